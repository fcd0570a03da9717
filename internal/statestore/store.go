// Package statestore moves a captured session document between its local
// path and durable storage. The document is an opaque blob: nothing here
// parses it.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kuitang/hudl-auth-e2e/internal/config"
	"github.com/kuitang/hudl-auth-e2e/internal/errs"
	"github.com/kuitang/hudl-auth-e2e/internal/obs"
)

// Store publishes and restores the session document at a local path.
type Store interface {
	// Push makes the document at localPath available to later runs.
	Push(ctx context.Context, localPath string) error
	// Pull ensures a usable document exists at localPath.
	Pull(ctx context.Context, localPath string) error
	// Location names where pushed documents are kept.
	Location() string
}

// Disk keeps the document on the local filesystem. Push copies it to Path
// and Pull copies it back from Path. With an empty Path, or when localPath
// is Path itself, both only verify that the file exists and is non-empty.
type Disk struct {
	Path string
}

// Push implements Store.
func (d Disk) Push(ctx context.Context, localPath string) error {
	size, err := checkDocument(localPath)
	if err != nil {
		return err
	}
	logger := obs.From(ctx).With("pkg", "statestore")
	if d.Path == "" || samePath(d.Path, localPath) {
		logger.Debug("state_kept_on_disk", "path", localPath, "bytes", size)
		return nil
	}
	if err := copyDocument(localPath, d.Path); err != nil {
		return err
	}
	logger.Info("state_pushed", "from", localPath, "to", d.Path, "bytes", size)
	return nil
}

// Pull implements Store.
func (d Disk) Pull(ctx context.Context, localPath string) error {
	if d.Path == "" || samePath(d.Path, localPath) {
		_, err := checkDocument(localPath)
		return err
	}
	if localPath == "" {
		return errs.New(errs.InvalidArgument, "session state path must not be empty")
	}
	size, err := checkDocument(d.Path)
	if err != nil {
		return err
	}
	if err := copyDocument(d.Path, localPath); err != nil {
		return err
	}
	obs.From(ctx).With("pkg", "statestore").Info("state_pulled", "from", d.Path, "to", localPath, "bytes", size)
	return nil
}

// Location implements Store.
func (d Disk) Location() string {
	if d.Path == "" {
		return "local disk"
	}
	return d.Path
}

// FromConfig returns an S3 store when a state bucket is configured and a
// Disk store backed by the configured storage file otherwise.
func FromConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg.StateBucket == "" {
		return Disk{Path: cfg.StorageFile}, nil
	}
	return NewS3(ctx, S3Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Bucket:          cfg.StateBucket,
		Key:             cfg.StateKey,
		UsePathStyle:    cfg.AWSEndpointS3 != "",
	})
}

func checkDocument(localPath string) (int64, error) {
	if localPath == "" {
		return 0, errs.New(errs.InvalidArgument, "session state path must not be empty")
	}
	info, err := os.Stat(localPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, errs.Wrap(errs.NotFound, "session state "+localPath+" does not exist", err)
		}
		return 0, errs.Wrap(errs.Internal, "stat session state", err)
	}
	if info.IsDir() {
		return 0, errs.New(errs.InvalidArgument, fmt.Sprintf("session state %s is a directory", localPath))
	}
	if info.Size() == 0 {
		return 0, errs.New(errs.NotFound, fmt.Sprintf("session state %s is empty", localPath))
	}
	return info.Size(), nil
}

func copyDocument(src, dst string) error {
	content, err := os.ReadFile(src)
	if err != nil {
		return errs.Wrap(errs.Internal, "read session state", err)
	}
	return storeDocument(dst, content)
}

// storeDocument writes content to localPath with owner-only permissions,
// creating its directory.
func storeDocument(localPath string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o700); err != nil {
		return errs.Wrap(errs.Internal, "create session state directory", err)
	}
	if err := os.WriteFile(localPath, content, 0o600); err != nil {
		return errs.Wrap(errs.Internal, "write session state", err)
	}
	return nil
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
