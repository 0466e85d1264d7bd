// Package classify decides, for every path under a vault's root, which of
// four classes it belongs to: Encrypt, IgnoreAndEncrypt, Unsecure, or
// Delete. The decision combines the root's .gitignore with an optional
// novault.toml rules file.
package classify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/pelletier/go-toml/v2"

	"novault/internal/errs"
)

// Decision is the classification outcome for a single path.
type Decision int

const (
	// Encrypt means the path is packed into the public vault archive.
	Encrypt Decision = iota
	// IgnoreAndEncrypt means the path is packed into the local-only archive.
	IgnoreAndEncrypt
	// Delete means the path is removed from the working tree during seal
	// and never restored.
	Delete
	// Unsecure means the path is staged verbatim under .nov/unsecure and
	// never encrypted.
	Unsecure
)

func (d Decision) String() string {
	switch d {
	case Encrypt:
		return "Encrypt"
	case IgnoreAndEncrypt:
		return "IgnoreAndEncrypt"
	case Delete:
		return "Delete"
	case Unsecure:
		return "Unsecure"
	default:
		return "Unknown"
	}
}

// ParseDecision parses a default_policy value from novault.toml.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "encrypt":
		return Encrypt, nil
	case "ignoreandencrypt", "ignore_and_encrypt":
		return IgnoreAndEncrypt, nil
	case "delete":
		return Delete, nil
	case "unsecure":
		return Unsecure, nil
	default:
		return Encrypt, errs.NewConfigError("settings.default_policy", fmt.Sprintf("unknown policy %q", s))
	}
}

// tomlConfig mirrors the recognized shape of novault.toml.
type tomlConfig struct {
	Settings struct {
		DefaultPolicy string `toml:"default_policy"`
	} `toml:"settings"`
	Rules map[string][]string `toml:"rules"`
}

type rules struct {
	defaultPolicy Decision
	unsecured     *gitignore.GitIgnore
	delete        *gitignore.GitIgnore
}

func readRules(root string) (rules, error) {
	path := filepath.Join(root, "novault.toml")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return rules{defaultPolicy: IgnoreAndEncrypt}, nil
	}
	if err != nil {
		return rules{}, errs.NewIoError("read", path, err)
	}

	var cfg tomlConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return rules{}, errs.NewConfigError("novault.toml", err.Error())
	}

	policy := IgnoreAndEncrypt
	if cfg.Settings.DefaultPolicy != "" {
		policy, err = ParseDecision(cfg.Settings.DefaultPolicy)
		if err != nil {
			return rules{}, err
		}
	}

	r := rules{defaultPolicy: policy}

	if lines, ok := cfg.Rules["unsecured"]; ok && len(lines) > 0 {
		r.unsecured = gitignore.CompileIgnoreLines(lines...)
	}
	if lines, ok := cfg.Rules["delete"]; ok && len(lines) > 0 {
		r.delete = gitignore.CompileIgnoreLines(lines...)
	}

	return r, nil
}

// Filter classifies paths under a single vault root.
type Filter struct {
	root      string
	gitIgnore *gitignore.GitIgnore
	rules     rules
}

// FromRoot builds a Filter for the canonicalized root, reading the root's
// .gitignore (if present) and novault.toml (if present).
func FromRoot(root string) (*Filter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.NewIoError("resolve", root, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errs.NewIoError("resolve", root, err)
	}

	giPath := filepath.Join(real, ".gitignore")
	var gi *gitignore.GitIgnore
	if _, err := os.Stat(giPath); err == nil {
		gi, err = gitignore.CompileIgnoreFile(giPath)
		if err != nil {
			return nil, errs.NewConfigError(".gitignore", err.Error())
		}
	} else {
		gi = gitignore.CompileIgnoreLines()
	}

	r, err := readRules(real)
	if err != nil {
		return nil, err
	}

	return &Filter{root: real, gitIgnore: gi, rules: r}, nil
}

// Decide classifies path, which must be absolute or relative to the
// current directory and inside the filter's root.
func (f *Filter) Decide(path string) (Decision, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Encrypt, errs.NewIoError("resolve", path, err)
	}
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return Encrypt, errs.NewIoError("relativize", path, err)
	}
	rel = filepath.ToSlash(rel)

	if f.rules.delete != nil && f.rules.delete.MatchesPath(rel) {
		return Delete, nil
	}
	if f.rules.unsecured != nil && f.rules.unsecured.MatchesPath(rel) {
		return Unsecure, nil
	}
	if f.gitIgnore.MatchesPath(rel) {
		return f.rules.defaultPolicy, nil
	}
	return Encrypt, nil
}
