package state

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"novault/internal/archive"
	"novault/internal/classify"
	"novault/internal/envelope"
	"novault/internal/errs"
	"novault/internal/gitutil"
	"novault/internal/key"
	"novault/internal/statefile"
)

const starterGitignore = "# Feel free to customize.\n\n# Leave the next line be.\n/.nov\n"

const starterConfig = "[settings]\ndefault_policy = \"IgnoreAndEncrypt\"\n\n[rules]\nunsecured = []\ndelete = []\n"

const mandatoryGitignore = "# NOVAULT\n# DO NOT MODIFY THIS\n/.nov/unsecure\n/.nov/secure_local\n/.nov/.s3auth"

const mandatoryGitattributes = "# NOVAULT\n# DO NOT MODIFY THIS\nvault.bin binary"

// forward runs the forward action for st.
func forward(ctx context.Context, st statefile.VaultState, c *Context) error {
	switch st {
	case statefile.InitFileSystem:
		return actInitFileSystem(ctx, c)
	case statefile.Seed:
		return actSeed(c)
	case statefile.MakeExternalGitRepo:
		return actMakeExternalGitRepo(ctx, c)
	case statefile.MarkInitDone:
		return c.StateFile.SetInit(false)

	case statefile.RecreatingDirectories:
		return actRecreatingDirectories(c)
	case statefile.Encrypting:
		return actEncrypting(c)
	case statefile.UnlinkPostSeal:
		return actUnlinkPostSeal(c)
	case statefile.RelocateEncryptedBinaries:
		return os.Rename(c.Paths.InprogressVault(), c.Paths.VaultBinary())
	case statefile.WriteMandatoryPostSealFiles:
		return actWriteMandatoryPostSealFiles(c)
	case statefile.RestoreVaultGit:
		return actRestoreVaultGit(c)
	case statefile.Sealed:
		return nil

	case statefile.DecryptMainVault:
		return actDecryptMainVault(c)
	case statefile.DecryptLocallySecuredVault:
		return actDecryptLocallySecuredVault(c)
	case statefile.StashExternalGitRepo:
		return actStashExternalGitRepo(ctx, c)
	case statefile.DeleteSealedGitFiles:
		return actDeleteSealedGitFiles(c)
	case statefile.ExpandMainVault:
		return actExpandVault(c, c.DecryptedZipBytes)
	case statefile.ExpandLocalVault:
		if c.SkipLocalZip {
			return nil
		}
		return actExpandVault(c, c.DecryptedLocalBytes)
	case statefile.CleanupOldBinaries:
		return actCleanupOldBinaries(c)
	case statefile.RestoreUnsecureFiles:
		return actRestoreUnsecureFiles(c)
	case statefile.Unsealed:
		return nil
	}
	return fmt.Errorf("state: no forward action registered for %s", st)
}

func actInitFileSystem(ctx context.Context, c *Context) error {
	if err := gitutil.Init(ctx, c.Paths.Root); err != nil {
		return err
	}

	novDir := c.Paths.novDir()
	if _, err := os.Stat(novDir); os.IsNotExist(err) {
		if err := os.MkdirAll(novDir, 0o755); err != nil {
			return errs.NewIoError("mkdir", novDir, err)
		}
	}

	if _, err := os.Stat(c.Paths.Gitignore()); os.IsNotExist(err) {
		if err := os.WriteFile(c.Paths.Gitignore(), []byte(starterGitignore), 0o644); err != nil {
			return errs.NewIoError("write", c.Paths.Gitignore(), err)
		}
	}
	if _, err := os.Stat(c.Paths.Config()); os.IsNotExist(err) {
		if err := os.WriteFile(c.Paths.Config(), []byte(starterConfig), 0o644); err != nil {
			return errs.NewIoError("write", c.Paths.Config(), err)
		}
	}
	return nil
}

func actSeed(c *Context) error {
	master, err := key.NewMasterVaultKey()
	if err != nil {
		return err
	}
	wrapped, err := key.InitWrappedKey(c.Password, master)
	if err != nil {
		return err
	}

	if err := c.StateFile.SetWrappedKey(wrapped); err != nil {
		return err
	}
	if err := c.StateFile.SetInit(true); err != nil {
		return err
	}

	c.Master = master
	return nil
}

func actMakeExternalGitRepo(ctx context.Context, c *Context) error {
	return gitutil.Init(ctx, c.Paths.Root)
}

func recreateDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}
	if err := os.RemoveAll(path); err != nil {
		return errs.NewIoError("remove", path, err)
	}
	return os.MkdirAll(path, 0o755)
}

func actRecreatingDirectories(c *Context) error {
	if err := recreateDir(c.Paths.UnsecureFolder()); err != nil {
		return err
	}
	if err := recreateDir(c.Paths.SecureLocalFolder()); err != nil {
		return err
	}
	if _, err := os.Stat(c.Paths.DeletionShards()); err == nil {
		if err := os.Remove(c.Paths.DeletionShards()); err != nil {
			return errs.NewIoError("remove", c.Paths.DeletionShards(), err)
		}
	}
	if _, err := os.Stat(c.Paths.InprogressVault()); err == nil {
		if err := os.Remove(c.Paths.InprogressVault()); err != nil {
			return errs.NewIoError("remove", c.Paths.InprogressVault(), err)
		}
	}
	return nil
}

func actEncrypting(c *Context) error {
	wrapped, err := c.StateFile.GetWrappedKey()
	if err != nil {
		return err
	}
	newWrap, master, err := wrapped.Unwrap(c.Password)
	if err != nil {
		return err
	}
	c.Master = master
	c.NewWrapped = newWrap

	filter, err := classify.FromRoot(c.Paths.Root)
	if err != nil {
		return err
	}

	result, err := archive.Build(c.Paths.Root, filter, master.Bytes())
	if err != nil {
		return err
	}

	if err := os.WriteFile(c.Paths.InprogressVault(), result.Public, 0o644); err != nil {
		return errs.NewIoError("write", c.Paths.InprogressVault(), err)
	}
	if result.Local != nil {
		if err := os.MkdirAll(c.Paths.SecureLocalFolder(), 0o755); err != nil {
			return errs.NewIoError("mkdir", c.Paths.SecureLocalFolder(), err)
		}
		if err := os.WriteFile(c.Paths.SecureLocalInprogress(), result.Local, 0o644); err != nil {
			return errs.NewIoError("write", c.Paths.SecureLocalInprogress(), err)
		}
	}

	if err := writeDeletionShards(c.Paths.DeletionShards(), result.DeleteList); err != nil {
		return err
	}

	return c.StateFile.SetWrappedKey(newWrap)
}

func writeDeletionShards(path string, entries []string) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.NewIoError("create", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := w.WriteString(e); err != nil {
			return errs.NewIoError("write", path, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return errs.NewIoError("write", path, err)
		}
	}
	return w.Flush()
}

func actUnlinkPostSeal(c *Context) error {
	path := c.Paths.DeletionShards()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.NewStateCorruptionError("delete_shards", fmt.Errorf("missing %s", path))
		}
		return errs.NewIoError("open", path, err)
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	f.Close()
	if err := scanner.Err(); err != nil {
		return errs.NewIoError("read", path, err)
	}

	for _, line := range lines {
		info, err := os.Lstat(line)
		if err != nil {
			continue
		}
		if info.IsDir() {
			if err := os.RemoveAll(line); err != nil {
				return errs.NewIoError("remove", line, err)
			}
		} else {
			if err := os.Remove(line); err != nil {
				return errs.NewIoError("remove", line, err)
			}
		}
	}

	return os.Remove(path)
}

func actWriteMandatoryPostSealFiles(c *Context) error {
	if err := os.WriteFile(c.Paths.Gitignore(), []byte(mandatoryGitignore), 0o644); err != nil {
		return errs.NewIoError("write", c.Paths.Gitignore(), err)
	}
	if err := os.WriteFile(c.Paths.Gitattributes(), []byte(mandatoryGitattributes), 0o644); err != nil {
		return errs.NewIoError("write", c.Paths.Gitattributes(), err)
	}
	return nil
}

func actRestoreVaultGit(c *Context) error {
	backend, ok, err := c.StateFile.GetRemoteBackend()
	if err != nil {
		return err
	}
	if ok && backend == statefile.BackendTigrisS3 {
		return nil
	}

	if _, err := os.Stat(c.Paths.ExternalGit()); err == nil {
		if err := os.Rename(c.Paths.ExternalGit(), c.Paths.LocalGit()); err != nil {
			return errs.NewIoError("rename", c.Paths.ExternalGit(), err)
		}
	}
	if _, err := os.Stat(c.Paths.WrapFolder()); err == nil {
		if err := os.Remove(c.Paths.WrapFolder()); err != nil {
			return errs.NewIoError("remove", c.Paths.WrapFolder(), err)
		}
	}
	return nil
}

func decryptZip(path string, master *key.MasterVaultKey) ([]byte, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewIoError("read", path, err)
	}
	return envelope.Open(master.Bytes(), sealed)
}

func actDecryptMainVault(c *Context) error {
	wrapped, err := c.StateFile.GetWrappedKey()
	if err != nil {
		return err
	}
	c.NewWrapped = wrapped

	master, err := wrapped.UnwrapNoRewrap(c.Password)
	if err != nil {
		return err
	}
	c.Master = master

	plain, err := decryptZip(c.Paths.VaultBinary(), master)
	if err != nil {
		return err
	}
	c.DecryptedZipBytes = plain
	return nil
}

func actDecryptLocallySecuredVault(c *Context) error {
	if c.Master == nil {
		return errs.NewStateCorruptionError("master_key", fmt.Errorf("local vault decryption ran before main vault decryption"))
	}

	localPath := c.Paths.SecureLocalInprogress()
	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		c.SkipLocalZip = true
		return nil
	}

	plain, err := decryptZip(localPath, c.Master)
	if err != nil {
		return err
	}
	c.DecryptedLocalBytes = plain
	return nil
}

func actStashExternalGitRepo(ctx context.Context, c *Context) error {
	backend, ok, err := c.StateFile.GetRemoteBackend()
	if err != nil {
		return err
	}
	if ok && backend == statefile.BackendTigrisS3 {
		return nil
	}

	if _, err := os.Stat(c.Paths.WrapFolder()); os.IsNotExist(err) {
		if err := os.MkdirAll(c.Paths.WrapFolder(), 0o755); err != nil {
			return errs.NewIoError("mkdir", c.Paths.WrapFolder(), err)
		}
	}
	if err := os.Rename(c.Paths.LocalGit(), c.Paths.ExternalGit()); err != nil {
		return errs.NewIoError("rename", c.Paths.LocalGit(), err)
	}
	return nil
}

func actDeleteSealedGitFiles(c *Context) error {
	backend, ok, err := c.StateFile.GetRemoteBackend()
	if err != nil {
		return err
	}
	if ok && backend == statefile.BackendTigrisS3 {
		return nil
	}

	if err := os.Remove(c.Paths.Gitignore()); err != nil && !os.IsNotExist(err) {
		return errs.NewIoError("remove", c.Paths.Gitignore(), err)
	}
	if err := os.Remove(c.Paths.Gitattributes()); err != nil && !os.IsNotExist(err) {
		return errs.NewIoError("remove", c.Paths.Gitattributes(), err)
	}
	return nil
}

func actExpandVault(c *Context, plain []byte) error {
	if plain == nil {
		return nil
	}
	return archive.ExpandPlain(c.Paths.Root, plain)
}

func actCleanupOldBinaries(c *Context) error {
	if err := os.Remove(c.Paths.VaultBinary()); err != nil && !os.IsNotExist(err) {
		return errs.NewIoError("remove", c.Paths.VaultBinary(), err)
	}
	if err := os.RemoveAll(c.Paths.SecureLocalFolder()); err != nil {
		return errs.NewIoError("remove", c.Paths.SecureLocalFolder(), err)
	}
	return nil
}

// removeFile removes path if it exists, treating a missing file as success.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.NewIoError("remove", path, err)
	}
	return nil
}

// undoStashExternalGitRepo reverses actStashExternalGitRepo for repair:
// moves the stashed .git back into place if the stash completed.
func undoStashExternalGitRepo(c *Context) error {
	if _, err := os.Stat(c.Paths.ExternalGit()); err != nil {
		return nil
	}
	if err := os.Rename(c.Paths.ExternalGit(), c.Paths.LocalGit()); err != nil {
		return errs.NewIoError("rename", c.Paths.ExternalGit(), err)
	}
	return nil
}

func actRestoreUnsecureFiles(c *Context) error {
	unsecureDir := c.Paths.UnsecureFolder()
	if _, err := os.Stat(unsecureDir); os.IsNotExist(err) {
		return nil
	}

	err := filepath.Walk(unsecureDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == unsecureDir {
			return nil
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(unsecureDir, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(c.Paths.Root, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		return os.Rename(path, dest)
	})
	if err != nil {
		return errs.NewIoError("relocate", unsecureDir, err)
	}

	if err := os.RemoveAll(unsecureDir); err != nil {
		return errs.NewIoError("remove", unsecureDir, err)
	}
	return nil
}
