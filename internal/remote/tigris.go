package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"novault/internal/errs"
	"novault/internal/statefile"
)

// tigrisEndpoint is the S3-compatible endpoint Tigris exposes for every
// bucket, addressed virtual-host style (bucket.t3.storage.dev).
const tigrisEndpoint = "https://t3.storage.dev"

const lockObject = ".lock"

// snapshotFormat matches the timestamped prefix every push publishes under:
// YYYYMMDDTHHMMSSZ.
const snapshotFormat = "20060102T150405Z"

// TigrisS3Backend pushes/pulls a sealed vault to a Tigris bucket. Each
// publish writes a fresh timestamped snapshot and swings a `.lock` object
// to point at it; the previous snapshot is deleted only after the lock
// move succeeds, so a crash mid-push never leaves the bucket pointing at a
// partially-written snapshot.
type TigrisS3Backend struct {
	client *s3.Client
	bucket string
}

// NewTigrisS3Backend builds a client for bucket authenticated with the
// given static access/secret key pair.
func NewTigrisS3Backend(ctx context.Context, bucket, accessKey, secretKey string) (*TigrisS3Backend, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, errs.NewRemoteError("tigris", "load config", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(tigrisEndpoint)
		o.UsePathStyle = false
	})

	return &TigrisS3Backend{client: client, bucket: bucket}, nil
}

func (t *TigrisS3Backend) put(ctx context.Context, key string, data []byte) error {
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return errs.NewRemoteError("tigris", "put "+key, err)
	}
	return nil
}

func (t *TigrisS3Backend) get(ctx context.Context, key string) ([]byte, error) {
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errs.NewRemoteError("tigris", "get "+key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errs.NewRemoteError("tigris", "read "+key, err)
	}
	return data, nil
}

func (t *TigrisS3Backend) delete(ctx context.Context, key string) error {
	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errs.NewRemoteError("tigris", "delete "+key, err)
	}
	return nil
}

func snapshotKeys(ts string) (state, vault string) {
	return ts + "/.nov/.state", ts + "/vault.bin"
}

// publish uploads root's current .nov/.state and vault.bin under a fresh
// timestamped prefix, swings .lock to point at it, then deletes the prior
// snapshot and records the new one as prev_stamp_t3.
func (t *TigrisS3Backend) publish(ctx context.Context, root string) error {
	sf := statefile.New(root)

	stateBytes, err := os.ReadFile(filepath.Join(root, ".nov", ".state"))
	if err != nil {
		return errs.NewIoError("read", filepath.Join(root, ".nov", ".state"), err)
	}
	vaultBytes, err := os.ReadFile(filepath.Join(root, "vault.bin"))
	if err != nil {
		return errs.NewIoError("read", filepath.Join(root, "vault.bin"), err)
	}

	tsNew := time.Now().UTC().Format(snapshotFormat)
	stateKey, vaultKey := snapshotKeys(tsNew)

	if err := t.put(ctx, stateKey, stateBytes); err != nil {
		return err
	}
	if err := t.put(ctx, vaultKey, vaultBytes); err != nil {
		return err
	}
	if err := t.put(ctx, lockObject, []byte(tsNew)); err != nil {
		return err
	}

	if prev, ok, err := sf.GetPrevStampT3(); err != nil {
		return err
	} else if ok && prev != "" {
		prevState, prevVault := snapshotKeys(prev)
		// Best-effort: the old snapshot is merely orphaned, not harmful,
		// if either delete fails.
		_ = t.delete(ctx, prevVault)
		_ = t.delete(ctx, prevState)
	}

	return sf.SetPrevStampT3(tsNew)
}

func (t *TigrisS3Backend) Link(ctx context.Context, root, _ string) error {
	return t.publish(ctx, root)
}

func (t *TigrisS3Backend) Push(ctx context.Context, root string) error {
	return t.publish(ctx, root)
}

// Pull populates an uninitialized root from the bucket's current snapshot,
// as named by .lock. It writes only .nov/.state and vault.bin; recording
// the credentials in .nov/.s3auth is left to the caller (vault.Pull).
func (t *TigrisS3Backend) Pull(ctx context.Context, root, _ string) error {
	lock, err := t.get(ctx, lockObject)
	if err != nil {
		return err
	}
	ts := string(lock)

	stateKey, vaultKey := snapshotKeys(ts)
	stateBytes, err := t.get(ctx, stateKey)
	if err != nil {
		return err
	}
	vaultBytes, err := t.get(ctx, vaultKey)
	if err != nil {
		return err
	}

	novDir := filepath.Join(root, ".nov")
	if err := os.MkdirAll(novDir, 0o755); err != nil {
		return errs.NewIoError("mkdir", novDir, err)
	}
	if err := os.WriteFile(filepath.Join(novDir, ".state"), stateBytes, 0o644); err != nil {
		return errs.NewIoError("write", filepath.Join(novDir, ".state"), err)
	}
	if err := os.WriteFile(filepath.Join(root, "vault.bin"), vaultBytes, 0o644); err != nil {
		return errs.NewIoError("write", filepath.Join(root, "vault.bin"), err)
	}

	return nil
}

// WriteCredentials persists the access/secret key pair used to reach
// bucket into root's .nov/.s3auth, in the "ACCESS_KEY=...\nSECRET_KEY=...\n"
// format ReadCredentials expects.
func WriteCredentials(root, accessKey, secretKey string) error {
	path := filepath.Join(root, ".nov", ".s3auth")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.NewIoError("mkdir", filepath.Dir(path), err)
	}
	content := fmt.Sprintf("ACCESS_KEY=%s\nSECRET_KEY=%s\n", accessKey, secretKey)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return errs.NewIoError("write", path, err)
	}
	return nil
}

// ReadCredentials reads a previously-written .nov/.s3auth, returning
// ok=false if it does not exist.
func ReadCredentials(root string) (accessKey, secretKey string, ok bool, err error) {
	path := filepath.Join(root, ".nov", ".s3auth")
	data, readErr := os.ReadFile(path)
	if os.IsNotExist(readErr) {
		return "", "", false, nil
	}
	if readErr != nil {
		return "", "", false, errs.NewIoError("read", path, readErr)
	}

	m := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, found := strings.Cut(line, "=")
		if found {
			m[k] = v
		}
	}

	access, hasAccess := m["ACCESS_KEY"]
	secret, hasSecret := m["SECRET_KEY"]
	if !hasAccess || !hasSecret {
		return "", "", false, errs.NewConfigError(".nov/.s3auth", "missing ACCESS_KEY or SECRET_KEY")
	}
	return access, secret, true, nil
}
