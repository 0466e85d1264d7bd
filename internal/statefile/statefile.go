// Package statefile implements the durable, atomically-replaced key/value
// record NoVault uses to track vault state, the wrapped key, and remote
// configuration across process runs.
package statefile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"novault/internal/errs"
	"novault/internal/key"
)

// VaultState names a single step of the init/seal/unseal pipelines. The
// persisted string is the state's name verbatim.
type VaultState string

// Rest states: the system may idle here between commands.
const (
	Uninit   VaultState = "Uninit"
	Sealed   VaultState = "Sealed"
	Unsealed VaultState = "Unsealed"
)

// Seal sequence states.
const (
	RecreatingDirectories       VaultState = "RecreatingDirectories"
	Encrypting                  VaultState = "Encrypting"
	UnlinkPostSeal               VaultState = "UnlinkPostSeal"
	RelocateEncryptedBinaries    VaultState = "RelocateEncryptedBinaries"
	WriteMandatoryPostSealFiles  VaultState = "WriteMandatoryPostSealFiles"
	RestoreVaultGit              VaultState = "RestoreVaultGit"
)

// Unseal sequence states.
const (
	DecryptMainVault           VaultState = "DecryptMainVault"
	DecryptLocallySecuredVault VaultState = "DecryptLocallySecuredVault"
	StashExternalGitRepo       VaultState = "StashExternalGitRepo"
	DeleteSealedGitFiles       VaultState = "DeleteSealedGitFiles"
	ExpandMainVault            VaultState = "ExpandMainVault"
	ExpandLocalVault           VaultState = "ExpandLocalVault"
	CleanupOldBinaries         VaultState = "CleanupOldBinaries"
	RestoreUnsecureFiles       VaultState = "RestoreUnsecureFiles"
)

// Init sequence states.
const (
	InitFileSystem      VaultState = "InitFileSystem"
	Seed                VaultState = "Seed"
	MakeExternalGitRepo VaultState = "MakeExternalGitRepo"
	MarkInitDone        VaultState = "MarkInitDone"
)

// IsRestState reports whether the system may idle in s between commands.
func (s VaultState) IsRestState() bool {
	return s == Uninit || s == Sealed || s == Unsealed
}

// RemoteBackend names a remote synchronization backend.
type RemoteBackend string

const (
	BackendGit      RemoteBackend = "Git"
	BackendTigrisS3 RemoteBackend = "TigrisS3"
)

const (
	keyState        = "state"
	keyInit         = "init"
	keyWrapped      = "wrapped"
	keyRemote       = "remote"
	keyRemoteBackend = "remote_backend"
	keyPrevStampT3  = "prev_stamp_t3"
)

// StateFile is a handle to the `.nov/.state` record rooted at a vault
// directory.
type StateFile struct {
	root string
}

// New returns a StateFile handle for the vault rooted at root. It does not
// touch the filesystem until a Get/Set method is called.
func New(root string) *StateFile {
	return &StateFile{root: root}
}

func (s *StateFile) statePath() string {
	return filepath.Join(s.root, ".nov", ".state")
}

func (s *StateFile) read() (map[string]string, error) {
	path := s.statePath()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errs.NewIoError("mkdir", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, errs.NewIoError("write", path, err)
		}
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errs.NewIoError("read", path, err)
	}

	m := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		m[k] = v
	}
	return m, nil
}

// write commits m to disk via a temp-file-then-rename atomic replace.
func (s *StateFile) write(m map[string]string) error {
	dir := filepath.Join(s.root, ".nov")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.NewIoError("mkdir", dir, err)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s=%s", k, m[k])
	}

	temp := filepath.Join(dir, ".state.temp")
	if err := os.WriteFile(temp, []byte(b.String()), 0o644); err != nil {
		return errs.NewIoError("write", temp, err)
	}

	final := filepath.Join(dir, ".state")
	if err := os.Rename(temp, final); err != nil {
		return errs.NewIoError("rename", final, err)
	}
	return nil
}

func (s *StateFile) set(key, value string) error {
	m, err := s.read()
	if err != nil {
		return err
	}
	m[key] = value
	return s.write(m)
}

func (s *StateFile) get(key string) (string, bool, error) {
	m, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// GetState returns the persisted VaultState, defaulting to Uninit if the
// key is missing (a fresh or never-initialized directory).
func (s *StateFile) GetState() (VaultState, error) {
	v, ok, err := s.get(keyState)
	if err != nil {
		return Uninit, err
	}
	if !ok {
		return Uninit, nil
	}
	return VaultState(v), nil
}

// SetState persists st. Setting Uninit explicitly is rejected: Uninit is
// only ever the implicit default of a missing key.
func (s *StateFile) SetState(st VaultState) error {
	if st == Uninit {
		return errs.NewConfigError("state", "cannot set state to Uninit explicitly")
	}
	return s.set(keyState, string(st))
}

// GetInit reports the `init` flag, defaulting to false.
func (s *StateFile) GetInit() (bool, error) {
	v, ok, err := s.get(keyInit)
	if err != nil {
		return false, err
	}
	return ok && v == "true", nil
}

// SetInit persists the `init` flag.
func (s *StateFile) SetInit(initializing bool) error {
	v := "false"
	if initializing {
		v = "true"
	}
	return s.set(keyInit, v)
}

// GetWrappedKey reads and decodes the persisted WrappedKey.
func (s *StateFile) GetWrappedKey() (*key.WrappedKey, error) {
	v, ok, err := s.get(keyWrapped)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.NewStateCorruptionError("wrapped", fmt.Errorf("no wrapped key on record"))
	}
	return key.WrappedKeyFromHex(v)
}

// SetWrappedKey persists w as hex.
func (s *StateFile) SetWrappedKey(w *key.WrappedKey) error {
	return s.set(keyWrapped, w.ToHex())
}

// GetRemote returns the configured remote identifier, if any.
func (s *StateFile) GetRemote() (string, bool, error) {
	return s.get(keyRemote)
}

// SetRemote persists the remote identifier (a Git URL or bucket name).
func (s *StateFile) SetRemote(url string) error {
	return s.set(keyRemote, url)
}

// GetRemoteBackend returns the configured remote backend, if any.
func (s *StateFile) GetRemoteBackend() (RemoteBackend, bool, error) {
	v, ok, err := s.get(keyRemoteBackend)
	if err != nil || !ok {
		return "", ok, err
	}
	return RemoteBackend(v), true, nil
}

// SetRemoteBackend persists the remote backend.
func (s *StateFile) SetRemoteBackend(backend RemoteBackend) error {
	return s.set(keyRemoteBackend, string(backend))
}

// GetPrevStampT3 returns the most recently published TigrisS3 snapshot
// timestamp, if any.
func (s *StateFile) GetPrevStampT3() (string, bool, error) {
	return s.get(keyPrevStampT3)
}

// SetPrevStampT3 persists the most recently published snapshot timestamp.
func (s *StateFile) SetPrevStampT3(ts string) error {
	return s.set(keyPrevStampT3, ts)
}
