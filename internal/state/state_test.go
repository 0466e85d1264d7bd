package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"novault/internal/key"
	"novault/internal/statefile"
)

func TestInitSealUnsealRoundTrip(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	password := key.NewCachedPassword([]byte("correct horse battery staple"))

	if _, err := Run(ctx, root, password, InitFull); err != nil {
		t.Fatalf("InitFull: %v", err)
	}

	sf := statefile.New(root)
	st, err := sf.GetState()
	if err != nil || st != statefile.Sealed {
		t.Fatalf("expected Sealed after init, got %s (%v)", st, err)
	}

	if _, err := Run(ctx, root, password, UnsealFull); err != nil {
		t.Fatalf("UnsealFull: %v", err)
	}

	dataPath := filepath.Join(root, "data.txt")
	if err := os.WriteFile(dataPath, []byte("hello vault"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Run(ctx, root, password, SealFull); err != nil {
		t.Fatalf("SealFull: %v", err)
	}

	if _, err := os.Stat(dataPath); !os.IsNotExist(err) {
		t.Fatalf("expected data.txt to be removed from the working tree after seal, got err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "vault.bin")); err != nil {
		t.Fatalf("expected vault.bin to exist after seal: %v", err)
	}

	if _, err := Run(ctx, root, password, UnsealFull); err != nil {
		t.Fatalf("second UnsealFull: %v", err)
	}

	data, err := os.ReadFile(dataPath)
	if err != nil || string(data) != "hello vault" {
		t.Fatalf("expected data.txt restored with original content: %v %q", err, data)
	}
}

func TestStartupGateFastPaths(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	password := key.NewCachedPassword([]byte("s3cr3t"))

	if _, err := Run(ctx, root, password, InitFull); err != nil {
		t.Fatalf("InitFull: %v", err)
	}

	c, err := Run(ctx, root, password, SealFull)
	if err != nil {
		t.Fatalf("SealFull on an already-sealed vault: %v", err)
	}
	if !c.Fallthrough {
		t.Fatal("expected the already-sealed fast-path to set Fallthrough")
	}

	sf := statefile.New(root)
	st, err := sf.GetState()
	if err != nil || st != statefile.Sealed {
		t.Fatalf("expected state to remain Sealed, got %s (%v)", st, err)
	}
}

func TestRepairEncryptingRollsBackToUnsealed(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	password := key.NewCachedPassword([]byte("s3cr3t"))

	if _, err := Run(ctx, root, password, InitFull); err != nil {
		t.Fatalf("InitFull: %v", err)
	}
	if _, err := Run(ctx, root, password, UnsealFull); err != nil {
		t.Fatalf("UnsealFull: %v", err)
	}

	sf := statefile.New(root)
	if err := sf.SetState(statefile.Encrypting); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	novDir := filepath.Join(root, ".nov")
	stray := filepath.Join(novDir, "inpro.zip")
	if err := os.WriteFile(stray, []byte("partial"), 0o644); err != nil {
		t.Fatalf("WriteFile stray: %v", err)
	}

	if _, err := Run(ctx, root, password, nil); err != nil {
		t.Fatalf("Run with repair-only: %v", err)
	}

	st, err := sf.GetState()
	if err != nil || st != statefile.Unsealed {
		t.Fatalf("expected repair to roll back to Unsealed, got %s (%v)", st, err)
	}
	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Fatal("expected the stray in-progress vault to be cleaned up by repair")
	}
}

func TestResumeSkipsToGivenState(t *testing.T) {
	resumed := Resume(SealFull, statefile.RelocateEncryptedBinaries)
	if len(resumed) == 0 || resumed[0] != statefile.RelocateEncryptedBinaries {
		t.Fatalf("expected resume to start at RelocateEncryptedBinaries, got %v", resumed)
	}
	if resumed[len(resumed)-1] != statefile.Sealed {
		t.Fatalf("expected resume to run through to Sealed, got %v", resumed)
	}
}
