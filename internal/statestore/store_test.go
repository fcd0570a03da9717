package statestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/hudl-auth-e2e/internal/config"
	"github.com/kuitang/hudl-auth-e2e/internal/errs"
)

const sampleDocument = `{"cookies":[{"name":"hudl_session","value":"abc"}],"origins":[]}`

func writeDocument(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "storage", "hudl-auth.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDisk_PushPullRequireDocument(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	cases := []struct {
		name string
		path string
		code errs.Code
	}{
		{"missing", filepath.Join(dir, "nope.json"), errs.NotFound},
		{"empty", writeDocument(t, t.TempDir(), ""), errs.NotFound},
		{"directory", dir, errs.InvalidArgument},
		{"blank path", "", errs.InvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Disk{}.Push(ctx, tc.path)
			require.Error(t, err)
			assert.Equal(t, tc.code, errs.CodeOf(err))

			err = Disk{}.Pull(ctx, tc.path)
			require.Error(t, err)
			assert.Equal(t, tc.code, errs.CodeOf(err))
		})
	}

	path := writeDocument(t, dir, sampleDocument)
	require.NoError(t, Disk{}.Push(ctx, path))
	require.NoError(t, Disk{}.Pull(ctx, path))
}

func TestDisk_PushThenPullToFreshPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := Disk{Path: filepath.Join(t.TempDir(), "kept", "hudl-auth.json")}

	src := writeDocument(t, t.TempDir(), sampleDocument)
	require.NoError(t, store.Push(ctx, src))

	dst := filepath.Join(t.TempDir(), "storage", "hudl-auth.json")
	require.NoError(t, store.Pull(ctx, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, sampleDocument, string(got))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Equal(t, store.Path, store.Location())
}

func TestDisk_PullBeforePushIsNotFound(t *testing.T) {
	t.Parallel()
	store := Disk{Path: filepath.Join(t.TempDir(), "never-pushed.json")}

	dst := filepath.Join(t.TempDir(), "hudl-auth.json")
	err := store.Pull(context.Background(), dst)
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "failed pull must not create the file")

	err = store.Pull(context.Background(), "")
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}

func TestDisk_SamePathOnlyVerifies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := writeDocument(t, t.TempDir(), sampleDocument)
	store := Disk{Path: path}

	require.NoError(t, store.Push(ctx, path))
	require.NoError(t, store.Pull(ctx, filepath.Join(filepath.Dir(path), ".", filepath.Base(path))))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleDocument, string(got))
}

func TestS3_PushThenPullToFreshPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := TestS3(t, "sessions", "ci/hudl-auth.json")

	src := writeDocument(t, t.TempDir(), sampleDocument)
	require.NoError(t, store.Push(ctx, src))

	dst := filepath.Join(t.TempDir(), "nested", "dir", "hudl-auth.json")
	require.NoError(t, store.Pull(ctx, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, sampleDocument, string(got))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Equal(t, "s3://sessions/ci/hudl-auth.json", store.Location())
}

func TestS3_PullMissingObjectIsNotFound(t *testing.T) {
	t.Parallel()
	store := TestS3(t, "sessions", "absent.json")

	dst := filepath.Join(t.TempDir(), "hudl-auth.json")
	err := store.Pull(context.Background(), dst)
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "failed pull must not create the file")
}

func TestS3_PushRejectsMissingDocument(t *testing.T) {
	t.Parallel()
	store := TestS3(t, "sessions", "k.json")
	err := store.Push(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))
}

func TestS3_PushOverwrites(t *testing.T) {
	t.Parallel()
	store := TestS3(t, "sessions", "k.json")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	testS3_LastPushWins := func(rt *rapid.T) {
		docs := rapid.SliceOfN(rapid.StringMatching(`\{"v":"[a-z0-9]{1,16}"\}`), 1, 4).Draw(rt, "docs")
		dir := t.TempDir()
		for _, doc := range docs {
			path := filepath.Join(dir, "doc.json")
			if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
				rt.Fatalf("write: %v", err)
			}
			if err := store.Push(ctx, path); err != nil {
				rt.Fatalf("push: %v", err)
			}
		}
		dst := filepath.Join(dir, "pulled.json")
		if err := store.Pull(ctx, dst); err != nil {
			rt.Fatalf("pull: %v", err)
		}
		got, err := os.ReadFile(dst)
		if err != nil {
			rt.Fatalf("read: %v", err)
		}
		if want := docs[len(docs)-1]; string(got) != want {
			rt.Fatalf("pulled %q, want %q", got, want)
		}
	}
	rapid.Check(t, testS3_LastPushWins)
}

func TestNewS3_RequiresBucketAndKey(t *testing.T) {
	t.Parallel()
	_, err := NewS3(context.Background(), S3Config{Region: "auto", Bucket: "b"})
	require.Error(t, err)
	assert.Equal(t, errs.Configuration, errs.CodeOf(err))
}

func TestFromConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := FromConfig(ctx, &config.Config{StorageFile: "storage/hudl-auth.json"})
	require.NoError(t, err)
	assert.Equal(t, Disk{Path: "storage/hudl-auth.json"}, store)

	store, err = FromConfig(ctx, &config.Config{
		StateBucket:        "sessions",
		StateKey:           "hudl-auth.json",
		AWSRegion:          "auto",
		AWSEndpointS3:      "http://127.0.0.1:9000",
		AWSAccessKeyID:     "id",
		AWSSecretAccessKey: "secret",
	})
	require.NoError(t, err)
	s3Store, ok := store.(*S3)
	require.True(t, ok)
	assert.Equal(t, "s3://sessions/hudl-auth.json", s3Store.Location())
}
