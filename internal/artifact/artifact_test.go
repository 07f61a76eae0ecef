package artifact

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	riggererrors "github.com/riggerci/rigger/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestBuildManifest(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "dist/app", "binary contents")
	dmg := writeFile(t, dir, "dist/app.dmg", "disk image")

	m, err := BuildManifest("consolidator", "run-1", []StageArtifacts{
		{Stage: "build", Paths: []string{app}},
		{Stage: "package", Paths: []string{dmg}},
	})
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, m.Schema)
	assert.Equal(t, "consolidator", m.Name)
	assert.Equal(t, "run-1", m.RunID)
	require.Len(t, m.Files, 2)

	assert.Equal(t, "build/app", m.Files[0].Path)
	assert.Equal(t, app, m.Files[0].Source)
	assert.Equal(t, int64(len("binary contents")), m.Files[0].Size)
	assert.True(t, strings.HasPrefix(m.Files[0].Checksum, "blake3:"))

	assert.Equal(t, "package/app.dmg", m.Files[1].Path)
}

func TestBuildManifest_ChecksumIsContentAddressed(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", "same bytes")
	b := writeFile(t, dir, "b.bin", "same bytes")
	c := writeFile(t, dir, "c.bin", "different bytes")

	m, err := BuildManifest("x", "r", []StageArtifacts{{Stage: "s", Paths: []string{a, b, c}}})
	require.NoError(t, err)

	assert.Equal(t, m.Files[0].Checksum, m.Files[1].Checksum)
	assert.NotEqual(t, m.Files[0].Checksum, m.Files[2].Checksum)
}

func TestBuildManifest_Empty(t *testing.T) {
	_, err := BuildManifest("empty", "r", nil)
	require.Error(t, err)

	var rigErr *riggererrors.RiggerError
	require.ErrorAs(t, err, &rigErr)
	assert.Equal(t, riggererrors.ErrCodeManifestEmpty, rigErr.Code)
}

func TestBuildManifest_MissingFile(t *testing.T) {
	_, err := BuildManifest("x", "r", []StageArtifacts{
		{Stage: "build", Paths: []string{filepath.Join(t.TempDir(), "nope")}},
	})
	require.Error(t, err)

	var rigErr *riggererrors.RiggerError
	require.ErrorAs(t, err, &rigErr)
	assert.Equal(t, riggererrors.ErrCodeManifestBadFile, rigErr.Code)
}

func TestPack_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "dist/app", "binary contents")

	m, err := BuildManifest("consolidator", "run-1", []StageArtifacts{
		{Stage: "build", Paths: []string{app}},
	})
	require.NoError(t, err)

	archivePath := filepath.Join(dir, "out", "consolidator.tar.gz")
	require.NoError(t, Pack(m, archivePath))

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()
	gzr, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gzr)

	// Manifest first.
	header, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, ManifestFileName, header.Name)

	data, err := io.ReadAll(tr)
	require.NoError(t, err)
	var unpacked Manifest
	require.NoError(t, yaml.Unmarshal(data, &unpacked))
	assert.Equal(t, m.Name, unpacked.Name)
	require.Len(t, unpacked.Files, 1)
	assert.Equal(t, m.Files[0].Checksum, unpacked.Files[0].Checksum)

	// Then the payload.
	header, err = tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "files/build/app", header.Name)
	payload, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, "binary contents", string(payload))

	_, err = tr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDirStore_Publish(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "dist/app", "binary contents")

	m, err := BuildManifest("consolidator", "run-1", []StageArtifacts{
		{Stage: "build", Paths: []string{app}},
	})
	require.NoError(t, err)

	archivePath := filepath.Join(dir, "consolidator.tar.gz")
	require.NoError(t, Pack(m, archivePath))

	store := &DirStore{Root: filepath.Join(dir, "store"), Retention: 30 * 24 * time.Hour}
	loc, err := store.Publish(context.Background(), m, archivePath)
	require.NoError(t, err)

	assert.Equal(t, "consolidator", loc.Name)
	assert.Equal(t, "run-1", loc.RunID)
	assert.True(t, strings.HasPrefix(loc.Digest, "blake3:"))
	assert.Contains(t, loc.String(), "retained")

	published := filepath.Join(dir, "store", "consolidator", "run-1", "consolidator.tar.gz")
	assert.FileExists(t, published)
	assert.FileExists(t, filepath.Join(dir, "store", "consolidator", "run-1", ManifestFileName))
	assert.Equal(t, "file://"+published, loc.URI)
}

func TestDirStore_PublishCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &DirStore{Root: t.TempDir()}
	_, err := store.Publish(ctx, &Manifest{Name: "x", RunID: "r"}, "unused")
	require.Error(t, err)

	var rigErr *riggererrors.RiggerError
	require.ErrorAs(t, err, &rigErr)
	assert.Equal(t, riggererrors.ErrCodePublishFailed, rigErr.Code)
}

func TestOCIPublisher_BadReference(t *testing.T) {
	pub := &OCIPublisher{Reference: "UPPERCASE/not valid::"}
	_, err := pub.Publish(context.Background(), &Manifest{Name: "x", RunID: "r"}, "unused")
	require.Error(t, err)

	var rigErr *riggererrors.RiggerError
	require.ErrorAs(t, err, &rigErr)
	assert.Equal(t, riggererrors.ErrCodePublishBadRef, rigErr.Code)
}
