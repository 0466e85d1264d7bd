// Package remote synchronizes a sealed vault with a configured remote:
// either a Git origin (subprocess passthrough to the host git binary) or
// a TigrisS3-compatible object store. The vault must be Sealed for the
// whole duration of a sync — see RequireSeal.
package remote

import (
	"context"
	"fmt"
	"strings"

	"novault/internal/errs"
	"novault/internal/gitutil"
	"novault/internal/key"
	"novault/internal/state"
	"novault/internal/statefile"
)

// Backend is a configured remote a sealed vault can be pushed to or
// pulled from.
type Backend interface {
	// Link performs the one-time setup that makes root's vault track url:
	// for Git, add the remote and push the initial commit; for TigrisS3,
	// upload the current snapshot and set the lock.
	Link(ctx context.Context, root, url string) error
	// Push publishes root's current sealed state to the remote.
	Push(ctx context.Context, root string) error
	// Pull populates an uninitialized root from url.
	Pull(ctx context.Context, root, url string) error
}

// ParseURL selects the backend a remote URL names. Git uses SSH-style
// URLs (git@host:path); TigrisS3 uses a t3://bucket URL, returning the
// bucket name with the scheme stripped.
func ParseURL(url string) (backend string, target string, err error) {
	switch {
	case strings.HasPrefix(url, "t3://"):
		return "TigrisS3", strings.TrimPrefix(url, "t3://"), nil
	case strings.HasPrefix(url, "git@"):
		return "Git", url, nil
	default:
		return "", "", errs.NewConfigError("remote url", "expected a git@... SSH URL or a t3://bucket URL, got "+url)
	}
}

// GitBackend delegates to the host git binary (see internal/gitutil).
type GitBackend struct{}

func (GitBackend) Link(ctx context.Context, root, url string) error {
	if err := gitutil.SetRemote(ctx, root, url); err != nil {
		return err
	}
	if err := gitutil.BranchMain(ctx, root); err != nil {
		return err
	}
	return pushCommit(ctx, root)
}

func (GitBackend) Push(ctx context.Context, root string) error {
	return pushCommit(ctx, root)
}

func (GitBackend) Pull(ctx context.Context, root, url string) error {
	return gitutil.Clone(ctx, url, root)
}

func pushCommit(ctx context.Context, root string) error {
	if err := gitutil.AddAll(ctx, root); err != nil {
		return err
	}
	if err := gitutil.Commit(ctx, root, "novault sync"); err != nil {
		return err
	}
	return gitutil.PushMain(ctx, root)
}

// RequireSeal brackets fn with a seal/unseal cycle if root's vault is
// currently Unsealed, so a sync never ships plaintext: seal, run fn against
// the now-sealed vault.bin, then unseal again to restore the working tree.
// fn's error, if any, surfaces after the unseal completes rather than
// leaving the vault sealed on the caller.
func RequireSeal(ctx context.Context, root string, password *key.CachedPassword, fn func() error) error {
	sf := statefile.New(root)
	st, err := sf.GetState()
	if err != nil {
		return err
	}

	if st != statefile.Unsealed {
		return fn()
	}

	if _, err := state.Run(ctx, root, password, state.SealFull); err != nil {
		return fmt.Errorf("sealing for sync: %w", err)
	}

	fnErr := fn()

	if _, err := state.Run(ctx, root, password, state.UnsealFull); err != nil {
		if fnErr != nil {
			return fnErr
		}
		return fmt.Errorf("unsealing after sync: %w", err)
	}

	return fnErr
}
