package state

import "novault/internal/statefile"

// PreInit prepares an uninitialized directory for its first seal.
var PreInit = []statefile.VaultState{
	statefile.InitFileSystem,
	statefile.Seed,
}

// SealPartial is the portion of a seal shared by SEAL_FULL and INIT_FULL.
var SealPartial = []statefile.VaultState{
	statefile.RecreatingDirectories,
	statefile.Encrypting,
	statefile.UnlinkPostSeal,
	statefile.RelocateEncryptedBinaries,
	statefile.WriteMandatoryPostSealFiles,
}

// SealFull is the complete seal pipeline for an already-initialized vault.
var SealFull = concat(SealPartial, []statefile.VaultState{
	statefile.RestoreVaultGit,
	statefile.Sealed,
})

// UnsealFull is the complete unseal pipeline.
var UnsealFull = []statefile.VaultState{
	statefile.DecryptMainVault,
	statefile.DecryptLocallySecuredVault,
	statefile.StashExternalGitRepo,
	statefile.DeleteSealedGitFiles,
	statefile.ExpandMainVault,
	statefile.ExpandLocalVault,
	statefile.CleanupOldBinaries,
	statefile.RestoreUnsecureFiles,
	statefile.Unsealed,
}

// InitFull is the complete first-time initialization pipeline: pre-init,
// the shared seal partial, then the init-only finalization.
var InitFull = concat(PreInit, SealPartial, []statefile.VaultState{
	statefile.MakeExternalGitRepo,
	statefile.MarkInitDone,
	statefile.Sealed,
})

func concat(parts ...[]statefile.VaultState) []statefile.VaultState {
	var out []statefile.VaultState
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Resume returns the subsequence of seq starting at (and including) from.
// If from does not appear in seq, the result is empty.
func Resume(seq []statefile.VaultState, from statefile.VaultState) []statefile.VaultState {
	for i, st := range seq {
		if st == from {
			return seq[i:]
		}
	}
	return nil
}

// owningSequence returns the full sequence that contains st, used by repair
// actions that must "re-enter from this step forward".
func owningSequence(st statefile.VaultState) []statefile.VaultState {
	for _, s := range SealFull {
		if s == st {
			return SealFull
		}
	}
	for _, s := range UnsealFull {
		if s == st {
			return UnsealFull
		}
	}
	return nil
}
