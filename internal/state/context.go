package state

import (
	"novault/internal/key"
	"novault/internal/statefile"
	"novault/internal/util"
)

// Context is threaded through every state of a running sequence. It holds
// the in-flight secrets and decrypted buffers a later step needs from an
// earlier one, plus the bookkeeping flags the driver and repair logic use.
type Context struct {
	Paths     Paths
	Password  *key.CachedPassword
	StateFile *statefile.StateFile

	// Master is the unwrapped key for the run currently in flight. Set by
	// Seed (init) or by the first Encrypting/DecryptMainVault step.
	Master *key.MasterVaultKey
	// NewWrapped is the wrapped key of the run in flight: during a seal, the
	// freshly re-wrapped key produced by Encrypting (committed to the state
	// file once Encrypting succeeds); during an unseal, the key as loaded
	// from the state file by DecryptMainVault.
	NewWrapped *key.WrappedKey

	// DecryptedZipBytes / DecryptedLocalBytes buffer the plaintext archives
	// between the Decrypt* and Expand* unseal states.
	DecryptedZipBytes   []byte
	DecryptedLocalBytes []byte

	// SkipLocalZip is set by DecryptLocallySecuredVault when there is no
	// local-only archive to expand, so ExpandLocalVault can no-op.
	SkipLocalZip bool

	// Starting is true only for the first state of a run; it gates whether
	// the startup repair check applies.
	Starting bool
	// Fallthrough is set by a startup-gate fast-path indicating the whole
	// sequence is already satisfied and should not run at all.
	Fallthrough bool
}

// NewContext builds a Context for a run rooted at root.
func NewContext(root string, password *key.CachedPassword) *Context {
	return &Context{
		Paths:     Paths{Root: root},
		Password:  password,
		StateFile: statefile.New(root),
		Starting:  true,
	}
}

// Close zeros any secret material still held by the Context. It does not
// close Password, which the caller owns across a possibly-longer bracket
// (e.g. the require_seal reseal-after-sync cycle).
func (c *Context) Close() {
	c.Master.Close()
	c.Master = nil
	util.SecureZero(c.DecryptedZipBytes)
	util.SecureZero(c.DecryptedLocalBytes)
	c.DecryptedZipBytes = nil
	c.DecryptedLocalBytes = nil
}
