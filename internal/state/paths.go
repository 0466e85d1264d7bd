package state

import "path/filepath"

// Paths resolves every on-disk location the state machine touches, all
// rooted at a single vault directory.
type Paths struct {
	Root string
}

func (p Paths) novDir() string              { return filepath.Join(p.Root, ".nov") }
func (p Paths) VaultBinary() string         { return filepath.Join(p.Root, "vault.bin") }
func (p Paths) InprogressVault() string     { return filepath.Join(p.novDir(), "inpro.zip") }
func (p Paths) SecureLocalFolder() string   { return filepath.Join(p.novDir(), "secure_local") }
func (p Paths) SecureLocalInprogress() string {
	return filepath.Join(p.SecureLocalFolder(), "inpro.bin")
}
func (p Paths) DeletionShards() string { return filepath.Join(p.novDir(), ".delete") }
func (p Paths) UnsecureFolder() string { return filepath.Join(p.novDir(), "unsecure") }
func (p Paths) WrapFolder() string     { return filepath.Join(p.novDir(), "wrap") }
func (p Paths) ExternalGit() string    { return filepath.Join(p.WrapFolder(), "external.git") }
func (p Paths) LocalGit() string       { return filepath.Join(p.Root, ".git") }
func (p Paths) Gitignore() string      { return filepath.Join(p.Root, ".gitignore") }
func (p Paths) Gitattributes() string  { return filepath.Join(p.Root, ".gitattributes") }
func (p Paths) Config() string         { return filepath.Join(p.Root, "novault.toml") }
func (p Paths) S3Auth() string         { return filepath.Join(p.novDir(), ".s3auth") }
