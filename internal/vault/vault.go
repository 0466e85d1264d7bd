// Package vault is the high-level driver command implementations call:
// Init, Seal, Unseal, Sync, Link, Pull. It wires internal/state's
// state machine together with internal/remote's backends, including the
// seal/unseal bracketing a sync performs when run against an unsealed
// vault.
package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"novault/internal/errs"
	"novault/internal/key"
	"novault/internal/remote"
	"novault/internal/state"
	"novault/internal/statefile"
)

// Init creates a brand-new vault rooted at root, sealed and ready to
// unseal with password. It fails with errs.ErrAlreadyInit if root's state
// file already records Sealed or Unsealed.
func Init(ctx context.Context, root string, password *key.CachedPassword) error {
	if st, err := statefile.New(root).GetState(); err != nil {
		return err
	} else if st == statefile.Sealed || st == statefile.Unsealed {
		return fmt.Errorf("init %s: %w", root, errs.ErrAlreadyInit)
	}
	c, err := state.Run(ctx, root, password, state.InitFull)
	defer closeContext(c)
	return err
}

// Seal runs the full seal sequence: archive the working tree, encrypt it,
// tear the plaintext down, and restore the `.git` directory. A no-op if
// the vault is already Sealed.
func Seal(ctx context.Context, root string, password *key.CachedPassword) error {
	c, err := state.Run(ctx, root, password, state.SealFull)
	defer closeContext(c)
	return err
}

// Unseal runs the full unseal sequence: decrypt the vault, expand it back
// onto the working tree, and stash `.git` so it never gets indexed while
// unsealed. A no-op if the vault is already Unsealed.
func Unseal(ctx context.Context, root string, password *key.CachedPassword) error {
	c, err := state.Run(ctx, root, password, state.UnsealFull)
	defer closeContext(c)
	return err
}

func closeContext(c *state.Context) {
	if c != nil {
		c.Close()
	}
}

// resolveBackend builds the remote.Backend named by the vault's persisted
// configuration (or by explicit backend/target for Link, before anything
// is persisted).
func resolveBackend(ctx context.Context, root string, backendName statefile.RemoteBackend, target string) (remote.Backend, error) {
	switch backendName {
	case statefile.BackendGit:
		return remote.GitBackend{}, nil
	case statefile.BackendTigrisS3:
		access, secret, ok, err := remote.ReadCredentials(root)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.NewConfigError("remote credentials", "no .nov/.s3auth on record for this vault")
		}
		return remote.NewTigrisS3Backend(ctx, target, access, secret)
	default:
		return nil, errs.NewConfigError("remote backend", fmt.Sprintf("unknown backend %q", backendName))
	}
}

// Link points root's vault at url for the first time, persists the
// backend/target on the state file, and performs the initial publish. The
// vault is sealed for the duration if it is currently Unsealed.
func Link(ctx context.Context, root string, password *key.CachedPassword, url string) error {
	backendName, target, err := remote.ParseURL(url)
	if err != nil {
		return err
	}

	backend, err := resolveBackendForLink(ctx, root, statefile.RemoteBackend(backendName), target)
	if err != nil {
		return err
	}

	return remote.RequireSeal(ctx, root, password, func() error {
		if err := backend.Link(ctx, root, target); err != nil {
			return err
		}
		sf := statefile.New(root)
		if err := sf.SetRemote(target); err != nil {
			return err
		}
		return sf.SetRemoteBackend(statefile.RemoteBackend(backendName))
	})
}

// resolveBackendForLink handles TigrisS3's chicken-and-egg problem: Link
// cannot read persisted credentials yet (nothing is persisted), so the
// caller must have already written them via remote.WriteCredentials before
// calling Link (e.g. from an interactive prompt).
func resolveBackendForLink(ctx context.Context, root string, backendName statefile.RemoteBackend, target string) (remote.Backend, error) {
	if backendName == statefile.BackendGit {
		return remote.GitBackend{}, nil
	}
	return resolveBackend(ctx, root, backendName, target)
}

// Sync publishes root's current sealed state to its already-linked
// remote. The vault is sealed for the duration if it is currently
// Unsealed.
func Sync(ctx context.Context, root string, password *key.CachedPassword) error {
	sf := statefile.New(root)
	target, ok, err := sf.GetRemote()
	if err != nil {
		return err
	}
	if !ok {
		return errs.NewConfigError("remote", "vault is not linked to a remote yet")
	}
	backendName, ok, err := sf.GetRemoteBackend()
	if err != nil {
		return err
	}
	if !ok {
		return errs.NewConfigError("remote backend", "vault is not linked to a remote yet")
	}

	backend, err := resolveBackend(ctx, root, backendName, target)
	if err != nil {
		return err
	}

	return remote.RequireSeal(ctx, root, password, func() error {
		return backend.Push(ctx, root)
	})
}

// Pull populates an uninitialized root from url: fetch/clone only, leaving
// the vault Sealed. A subsequent Unseal is a separate, explicit step. It
// fails with errs.ErrAlreadyInit if root already has a .nov directory.
func Pull(ctx context.Context, root string, url string, backendCreds func() (accessKey, secretKey string, err error)) error {
	if _, err := os.Stat(filepath.Join(root, ".nov")); err == nil {
		return fmt.Errorf("pull %s: %w", root, errs.ErrAlreadyInit)
	}
	backendName, target, err := remote.ParseURL(url)
	if err != nil {
		return err
	}

	var backend remote.Backend
	switch statefile.RemoteBackend(backendName) {
	case statefile.BackendGit:
		backend = remote.GitBackend{}
	case statefile.BackendTigrisS3:
		access, secret, err := backendCreds()
		if err != nil {
			return err
		}
		backend, err = remote.NewTigrisS3Backend(ctx, target, access, secret)
		if err != nil {
			return err
		}
		if err := remote.WriteCredentials(root, access, secret); err != nil {
			return err
		}
	default:
		return errs.NewConfigError("remote backend", fmt.Sprintf("unknown backend %q", backendName))
	}

	if err := backend.Pull(ctx, root, target); err != nil {
		return err
	}

	sf := statefile.New(root)
	if err := sf.SetRemote(target); err != nil {
		return err
	}
	return sf.SetRemoteBackend(statefile.RemoteBackend(backendName))
}
