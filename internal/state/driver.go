// Package state implements the NoVault state machine: the ordered
// VaultState steps that make up init/seal/unseal, each with a forward
// action and a repair action invoked if the process crashed mid-step.
package state

import (
	"context"
	"fmt"

	"novault/internal/errs"
	"novault/internal/key"
	"novault/internal/log"
	"novault/internal/statefile"
)

// act persists st as the current state, then runs its forward action. The
// state is committed before the action runs, per the write-state-before-act
// discipline: a crash mid-action always leaves a correct upper bound on
// progress for the next startup's repair pass.
func act(ctx context.Context, st statefile.VaultState, c *Context) error {
	if err := c.StateFile.SetState(st); err != nil {
		return err
	}
	log.Debug("entering state", log.String("state", string(st)))

	if err := forward(ctx, st, c); err != nil {
		return fmt.Errorf("state %s: %w", st, err)
	}
	return nil
}

// play runs every state in seq in order against c.
func play(ctx context.Context, seq []statefile.VaultState, c *Context) error {
	for _, st := range seq {
		err := act(ctx, st, c)
		c.Starting = false
		if err != nil {
			return err
		}
	}
	return nil
}

// playFrom resumes st's owning full sequence starting at st, used by the
// "re-enter from this step forward" repair actions.
func playFrom(ctx context.Context, c *Context, st statefile.VaultState) error {
	seq := owningSequence(st)
	if seq == nil {
		return errs.NewStateCorruptionError("sequence", fmt.Errorf("no owning sequence for state %s", st))
	}
	return play(ctx, Resume(seq, st), c)
}

// repair runs the repair action for a persisted state found at startup,
// implementing the table in the state machine's design notes.
func repair(ctx context.Context, st statefile.VaultState, c *Context) error {
	switch st {
	case statefile.RecreatingDirectories:
		if err := actRecreatingDirectories(c); err != nil {
			return err
		}
		return c.StateFile.SetState(statefile.Unsealed)

	case statefile.Encrypting:
		if err := removeFile(c.Paths.DeletionShards()); err != nil {
			return err
		}
		if err := removeFile(c.Paths.SecureLocalInprogress()); err != nil {
			return err
		}
		if err := removeFile(c.Paths.InprogressVault()); err != nil {
			return err
		}
		initializing, err := c.StateFile.GetInit()
		if err != nil {
			return err
		}
		if initializing {
			return c.StateFile.SetState(statefile.RecreatingDirectories)
		}
		return c.StateFile.SetState(statefile.Unsealed)

	case statefile.UnlinkPostSeal, statefile.RelocateEncryptedBinaries,
		statefile.WriteMandatoryPostSealFiles, statefile.RestoreVaultGit:
		return playFrom(ctx, c, st)

	case statefile.DecryptMainVault, statefile.DecryptLocallySecuredVault:
		return c.StateFile.SetState(statefile.Sealed)

	case statefile.StashExternalGitRepo:
		if err := undoStashExternalGitRepo(c); err != nil {
			return err
		}
		return c.StateFile.SetState(statefile.Sealed)

	case statefile.DeleteSealedGitFiles:
		if err := actWriteMandatoryPostSealFiles(c); err != nil {
			return err
		}
		return c.StateFile.SetState(statefile.Sealed)

	case statefile.ExpandMainVault, statefile.ExpandLocalVault:
		return c.StateFile.SetState(statefile.Sealed)

	case statefile.CleanupOldBinaries, statefile.RestoreUnsecureFiles:
		return playFrom(ctx, c, st)
	}

	// Rest states (Uninit, Sealed, Unsealed) have no repair action.
	return nil
}

// Run drives sequence to completion against a freshly built Context for
// root, first resolving the startup gate: if the persisted state is not a
// rest state, its repair action runs before anything else; then the two
// fast-paths are checked against sequence's first state.
func Run(ctx context.Context, root string, password *key.CachedPassword, sequence []statefile.VaultState) (*Context, error) {
	c := NewContext(root, password)

	current, err := c.StateFile.GetState()
	if err != nil {
		return c, err
	}

	if c.Starting && !current.IsRestState() {
		log.Info("repairing interrupted run", log.String("state", string(current)))
		if err := repair(ctx, current, c); err != nil {
			return c, err
		}
		current, err = c.StateFile.GetState()
		if err != nil {
			return c, err
		}
	}

	if len(sequence) == 0 {
		return c, nil
	}

	if current == statefile.Unsealed && sequence[0] == statefile.DecryptMainVault {
		log.Info("already unsealed")
		c.Fallthrough = true
		return c, nil
	}
	if current == statefile.Sealed && sequence[0] == statefile.RecreatingDirectories {
		log.Info("already sealed")
		c.Fallthrough = true
		return c, nil
	}

	c.Starting = true
	if err := play(ctx, sequence, c); err != nil {
		return c, err
	}
	return c, nil
}
