package remote

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"novault/internal/gitutil"
)

func TestParseURL(t *testing.T) {
	cases := []struct {
		url     string
		backend string
		target  string
	}{
		{"git@example.com:vaults/mine.git", "Git", "git@example.com:vaults/mine.git"},
		{"t3://my-bucket", "TigrisS3", "my-bucket"},
	}
	for _, c := range cases {
		backend, target, err := ParseURL(c.url)
		if err != nil {
			t.Fatalf("ParseURL(%q): %v", c.url, err)
		}
		if backend != c.backend || target != c.target {
			t.Fatalf("ParseURL(%q) = (%q, %q), want (%q, %q)", c.url, backend, target, c.backend, c.target)
		}
	}

	if _, _, err := ParseURL("https://example.com/nope"); err == nil {
		t.Fatal("expected an error for an unrecognized URL scheme")
	}
}

func initBareRepo(t *testing.T, dir string) {
	t.Helper()
	cmd := exec.Command("git", "init", "--bare", dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init --bare: %v: %s", err, out)
	}
}

func configureIdentity(t *testing.T, dir string) {
	t.Helper()
	for _, args := range [][]string{
		{"config", "user.email", "test@novault.local"},
		{"config", "user.name", "novault test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
}

func TestGitBackendLinkPushPull(t *testing.T) {
	ctx := context.Background()

	origin := t.TempDir()
	initBareRepo(t, origin)

	work := t.TempDir()
	if err := gitutil.Init(ctx, work); err != nil {
		t.Fatalf("gitutil.Init: %v", err)
	}
	configureIdentity(t, work)
	if err := os.WriteFile(filepath.Join(work, "vault.bin"), []byte("sealed"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var backend GitBackend
	if err := backend.Link(ctx, work, origin); err != nil {
		t.Fatalf("Link: %v", err)
	}

	if err := os.WriteFile(filepath.Join(work, "vault.bin"), []byte("sealed again"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := backend.Push(ctx, work); err != nil {
		t.Fatalf("Push: %v", err)
	}

	clone := filepath.Join(t.TempDir(), "clone")
	if err := backend.Pull(ctx, clone, origin); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(clone, "vault.bin"))
	if err != nil || string(data) != "sealed again" {
		t.Fatalf("expected cloned vault.bin to match pushed content: %v %q", err, data)
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	root := t.TempDir()

	if _, _, ok, err := ReadCredentials(root); err != nil || ok {
		t.Fatalf("expected no credentials file yet, got ok=%v err=%v", ok, err)
	}

	if err := WriteCredentials(root, "AKIA-EXAMPLE", "s3cr3t-key"); err != nil {
		t.Fatalf("WriteCredentials: %v", err)
	}

	access, secret, ok, err := ReadCredentials(root)
	if err != nil || !ok {
		t.Fatalf("ReadCredentials: ok=%v err=%v", ok, err)
	}
	if access != "AKIA-EXAMPLE" || secret != "s3cr3t-key" {
		t.Fatalf("got access=%q secret=%q", access, secret)
	}
}
