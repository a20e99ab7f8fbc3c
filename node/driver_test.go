package node

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateExclusiveRejectsDuplicate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "bucket"), 0o755))
	d := New(dir, 4)

	w, err := d.CreateExclusive(context.Background(), "bucket", "key")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = d.CreateExclusive(context.Background(), "bucket", "key")
	require.ErrorIs(t, err, ErrConflict)
}

func TestCreateExclusiveMissingBucket(t *testing.T) {
	d := New(t.TempDir(), 4)
	_, err := d.CreateExclusive(context.Background(), "nosuchbucket", "key")
	require.Error(t, err)
}

func TestWriterAbortRemovesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "bucket"), 0o755))
	d := New(dir, 4)

	w, err := d.CreateExclusive(context.Background(), "bucket", "key")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	exists, err := d.Exists("bucket", "key")
	require.NoError(t, err)
	require.False(t, exists, "aborted write left a file behind")
}

func TestReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "bucket"), 0o755))
	d := New(dir, 4)

	w, err := d.CreateExclusive(context.Background(), "bucket", "key")
	require.NoError(t, err)
	want := []byte("round trip contents")
	_, err = w.Write(want)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, size, err := d.Reader("bucket", "key")
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, int64(len(want)), size)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestInvalidNameRejectsTraversal(t *testing.T) {
	d := New(t.TempDir(), 4)
	_, err := d.CreateExclusive(context.Background(), "../escape", "key")
	require.Error(t, err)
	_, err = d.CreateExclusive(context.Background(), "bucket", "../escape")
	require.Error(t, err)
}

func TestListSkipsNothingButReportsDirectories(t *testing.T) {
	dir := t.TempDir()
	bucket := filepath.Join(dir, "bucket")
	require.NoError(t, os.MkdirAll(filepath.Join(bucket, "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bucket, "a"), []byte("x"), 0o644))

	d := New(dir, 4)
	entries, err := d.List("bucket")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
