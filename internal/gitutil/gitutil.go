// Package gitutil shells out to a host git binary for the handful of
// repository-lifecycle operations NoVault needs. There is deliberately no
// Git library here: every operation is a passthrough to whatever git the
// user already has installed and configured (credentials, SSH keys, etc).
package gitutil

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"novault/internal/errs"
)

// Exists reports whether root already contains a .git directory.
func Exists(root string) bool {
	_, err := os.Stat(filepath.Join(root, ".git"))
	return err == nil
}

// run executes git with args rooted at dir, wrapping any failure as a
// RemoteError.
func run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errs.NewRemoteError("git", args[0], fmt.Errorf("%w: %s", err, out))
	}
	return nil
}

// Init creates a fresh repository at root if one does not already exist.
func Init(ctx context.Context, root string) error {
	if Exists(root) {
		return nil
	}
	return run(ctx, root, "init")
}

// SetRemote adds or replaces the "origin" remote.
func SetRemote(ctx context.Context, root, url string) error {
	// Ignore failure: the common case is no prior remote to remove.
	_ = run(ctx, root, "remote", "remove", "origin")
	return run(ctx, root, "remote", "add", "origin", url)
}

// BranchMain creates and switches to the main branch.
func BranchMain(ctx context.Context, root string) error {
	return run(ctx, root, "checkout", "-B", "main")
}

// AddAll stages every change in the working tree.
func AddAll(ctx context.Context, root string) error {
	return run(ctx, root, "add", "-A")
}

// Commit commits the staged tree with message. A commit with nothing staged
// is not an error: NoVault treats "nothing changed" pushes as a success.
func Commit(ctx context.Context, root, message string) error {
	if err := run(ctx, root, "commit", "-m", message); err != nil {
		if diffErr := run(ctx, root, "diff", "--cached", "--quiet"); diffErr == nil {
			return nil
		}
		return err
	}
	return nil
}

// PushMain pushes main to origin, setting the upstream on first push.
func PushMain(ctx context.Context, root string) error {
	return run(ctx, root, "push", "-u", "origin", "main")
}

// Clone clones url into dest.
func Clone(ctx context.Context, url, dest string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", url, dest)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errs.NewRemoteError("git", "clone", fmt.Errorf("%w: %s", err, out))
	}
	return nil
}
