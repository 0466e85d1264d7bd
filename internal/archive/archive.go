// Package archive builds and expands the two inner zip streams a seal cycle
// produces (the public vault and the local-only vault), walking the working
// tree through the path classifier and sealing each stream with the
// envelope codec.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"novault/internal/classify"
	"novault/internal/envelope"
	"novault/internal/errs"
	"novault/internal/util"
)

// novDir is the metadata directory, never classified or walked into for
// classification purposes (besides being skipped entirely).
const novDir = ".nov"

// BuildResult holds everything produced by a single tree walk.
type BuildResult struct {
	// Public is the envelope-sealed archive of Encrypt-classified files.
	Public []byte
	// Local is the envelope-sealed archive of IgnoreAndEncrypt-classified
	// files. Nil if no such files were found.
	Local []byte
	// DeleteList is every walked path (files and directories, excluding
	// root and .nov/), in the order visited, that must be removed from the
	// working tree once both envelopes are finalized.
	DeleteList []string
	// UnsecurePaths maps each Unsecure-classified source path (absolute)
	// to the destination it was copied to under .nov/unsecure/.
	UnsecurePaths map[string]string
}

// Build walks root, classifies every path via filter, and produces the
// public/local zip streams sealed under masterKey. Unsecure-classified
// files are copied verbatim into .nov/unsecure/<relpath> as a side effect.
func Build(root string, filter *classify.Filter, masterKey []byte) (*BuildResult, error) {
	var publicBuf, localBuf bytes.Buffer
	publicZip := zip.NewWriter(&publicBuf)
	localZip := zip.NewWriter(&localBuf)

	result := &BuildResult{UnsecurePaths: map[string]string{}}
	hasLocal := false

	unsecureDir := filepath.Join(root, novDir, "unsecure")

	// seenFold catches two archive entries that collide once case-folded
	// (e.g. "Foo" and "foo"): both get restored under root by Expand, so a
	// case-insensitive destination filesystem would silently let one
	// overwrite the other. Only Encrypt/IgnoreAndEncrypt entries land back
	// on root, so only those are tracked.
	seenFold := map[string]string{}
	checkCollision := func(rel string) error {
		fold := strings.ToLower(rel)
		if prior, ok := seenFold[fold]; ok && prior != rel {
			return errs.NewConfigError("archive path",
				fmt.Sprintf("case-insensitive collision between %q and %q", prior, rel))
		}
		seenFold[fold] = rel
		return nil
	}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if rel == novDir || strings.HasPrefix(rel, novDir+"/") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		decision, err := filter.Decide(path)
		if err != nil {
			return err
		}

		result.DeleteList = append(result.DeleteList, path)

		switch decision {
		case classify.Delete:
			return nil
		case classify.Unsecure:
			dst := filepath.Join(unsecureDir, rel)
			if info.IsDir() {
				return os.MkdirAll(dst, 0o755)
			}
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			if err := copyFile(path, dst); err != nil {
				return err
			}
			result.UnsecurePaths[path] = dst
			return nil
		case classify.IgnoreAndEncrypt:
			if err := checkCollision(rel); err != nil {
				return err
			}
			hasLocal = true
			return writeZipEntry(localZip, path, rel, info)
		default: // Encrypt
			if err := checkCollision(rel); err != nil {
				return err
			}
			return writeZipEntry(publicZip, path, rel, info)
		}
	})
	if err != nil {
		return nil, errs.Wrap(err, "archive: walk")
	}

	if err := publicZip.Close(); err != nil {
		return nil, fmt.Errorf("archive: close public zip: %w", err)
	}
	if err := localZip.Close(); err != nil {
		return nil, fmt.Errorf("archive: close local zip: %w", err)
	}

	sealedPublic, err := envelope.Seal(masterKey, publicBuf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("archive: seal public: %w", err)
	}
	result.Public = sealedPublic

	if hasLocal {
		sealedLocal, err := envelope.Seal(masterKey, localBuf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("archive: seal local: %w", err)
		}
		result.Local = sealedLocal
	}

	return result, nil
}

func writeZipEntry(w *zip.Writer, path, name string, info os.FileInfo) error {
	if info.IsDir() {
		_, err := w.CreateHeader(&zip.FileHeader{
			Name:   name + "/",
			Method: zip.Deflate,
		})
		return err
	}

	header := &zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	}
	header.SetMode(0o755)

	entry, err := w.CreateHeader(header)
	if err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	buf := util.GetMiBBuffer()
	defer util.PutMiBBuffer(buf)
	_, err = io.CopyBuffer(entry, src, buf)
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	buf := util.GetMiBBuffer()
	defer util.PutMiBBuffer(buf)
	_, err = io.CopyBuffer(out, in, buf)
	return err
}

// Expand decrypts envelope under masterKey and inflates the resulting zip
// archive into root, creating parent directories as needed. Entries are
// extracted in two passes (directories first, then files) and any entry
// name containing ".." is rejected to prevent zip-slip.
func Expand(root string, sealed []byte, masterKey []byte) error {
	plain, err := envelope.Open(masterKey, sealed)
	if err != nil {
		return err
	}
	return ExpandPlain(root, plain)
}

// ExpandPlain inflates an already-decrypted zip archive into root. Used by
// the unseal pipeline, which decrypts the envelope in one state and defers
// inflation to a later one.
func ExpandPlain(root string, plain []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(plain), int64(len(plain)))
	if err != nil {
		return fmt.Errorf("archive: open inner zip: %w", err)
	}

	names := make([]string, len(zr.File))
	for i, f := range zr.File {
		if strings.Contains(f.Name, "..") {
			return errs.NewIntegrityError("archive", fmt.Errorf("zip-slip entry name %q", f.Name))
		}
		names[i] = f.Name
	}
	sort.Strings(names)

	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			continue
		}
		out := filepath.Join(root, f.Name)
		if err := os.MkdirAll(out, 0o755); err != nil {
			return errs.NewIoError("mkdir", out, err)
		}
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		out := filepath.Join(root, f.Name)
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return errs.NewIoError("mkdir", filepath.Dir(out), err)
		}

		rc, err := f.Open()
		if err != nil {
			return errs.NewIoError("open", f.Name, err)
		}

		dst, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
		if err != nil {
			rc.Close()
			return errs.NewIoError("create", out, err)
		}

		buf := util.GetMiBBuffer()
		_, copyErr := io.CopyBuffer(dst, rc, buf)
		util.PutMiBBuffer(buf)
		rc.Close()
		dst.Close()
		if copyErr != nil {
			return errs.NewIoError("write", out, copyErr)
		}
	}

	return nil
}
