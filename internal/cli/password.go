package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/Picocrypt/zxcvbn-go"
	"golang.org/x/term"

	"novault/internal/key"
	"novault/internal/statefile"
)

var (
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordEmpty    = errors.New("password cannot be empty")
)

// envPasswordVar is tried as the vault password before prompting.
const envPasswordVar = "novpwd"

func isTerminal() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

func readLineSecure(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	if !isTerminal() {
		// Unbuffered, so the next prompt still sees the rest of piped stdin.
		var line []byte
		b := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(b)
			if n == 1 && b[0] != '\n' {
				line = append(line, b[0])
			} else if n == 1 {
				return strings.TrimRight(string(line), "\r"), nil
			} else if err != nil {
				return "", fmt.Errorf("reading password: %w", err)
			}
		}
	}

	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// promptPassword asks for a password once, or twice with a match check if
// confirm is true (used by init, never by unseal/seal against an existing
// vault).
func promptPassword(confirm bool) (string, error) {
	password, err := readLineSecure("Password: ")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", ErrPasswordEmpty
	}

	if confirm {
		again, err := readLineSecure("Confirm password: ")
		if err != nil {
			return "", err
		}
		if password != again {
			return "", ErrPasswordMismatch
		}
		if warning := strengthWarning(password); warning != "" {
			fmt.Fprintln(os.Stderr, warning)
		}
	}

	return password, nil
}

// strengthWarning returns a short note for weak passwords, or "" for
// anything zxcvbn scores reasonably.
func strengthWarning(password string) string {
	result := zxcvbn.PasswordStrength(password, nil)
	if result.Score >= 3 {
		return ""
	}
	return fmt.Sprintf("warning: this password is weak (strength %d/4)", result.Score)
}

// passwordForInit prompts with confirmation for a brand-new vault.
func passwordForInit() (*key.CachedPassword, error) {
	pw, err := promptPassword(true)
	if err != nil {
		return nil, err
	}
	return key.CachedPasswordFromString(pw), nil
}

// passwordForExisting resolves the password for a vault that has already
// been through init: tries novpwd first (verified cheaply against the
// persisted WrappedKey, with no side effects), then falls back to an
// interactive prompt.
func passwordForExisting(root string) (*key.CachedPassword, error) {
	wrapped, err := statefile.New(root).GetWrappedKey()
	if err != nil {
		return nil, err
	}

	if env, ok := os.LookupEnv(envPasswordVar); ok && env != "" {
		candidate := key.CachedPasswordFromString(env)
		if wrapped.Verify(candidate) {
			return candidate, nil
		}
		fmt.Fprintln(os.Stderr, "novpwd did not unlock this vault, prompting instead")
	}

	pw, err := promptPassword(false)
	if err != nil {
		return nil, err
	}
	return key.CachedPasswordFromString(pw), nil
}
