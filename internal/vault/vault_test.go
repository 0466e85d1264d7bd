package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"novault/internal/key"
)

func TestInitSealUnseal(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	password := key.NewCachedPassword([]byte("correct horse battery staple"))

	if err := Init(ctx, root, password); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "vault.bin")); err != nil {
		t.Fatalf("expected vault.bin after Init: %v", err)
	}

	if err := Unseal(ctx, root, password); err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	marker := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(marker, []byte("secret notes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := Seal(ctx, root, password); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("expected notes.txt gone from the working tree after Seal, got %v", err)
	}

	if err := Unseal(ctx, root, password); err != nil {
		t.Fatalf("second Unseal: %v", err)
	}
	data, err := os.ReadFile(marker)
	if err != nil || string(data) != "secret notes" {
		t.Fatalf("expected notes.txt restored: %v %q", err, data)
	}
}

func TestSyncWithoutRemoteFails(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	password := key.NewCachedPassword([]byte("s3cr3t"))

	if err := Init(ctx, root, password); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := Sync(ctx, root, password); err == nil {
		t.Fatal("expected Sync to fail on a vault with no linked remote")
	}
}
