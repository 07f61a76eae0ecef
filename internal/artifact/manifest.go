// Package artifact collects the declared outputs of a successful run into a
// named, retrievable bundle: a manifest with content checksums, a packed
// archive, and pluggable publish backends.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/riggerci/rigger/internal/errors"
)

const (
	// SchemaVersion is the manifest format version.
	SchemaVersion = "rigger.artifact/v1"

	// ChecksumAlgorithm names the hash used for file checksums.
	ChecksumAlgorithm = "blake3"
)

// Manifest maps one artifact name to the files contributed by the run's
// succeeded stages. Built once, after the last required stage succeeds.
type Manifest struct {
	Schema  string    `yaml:"schema"`
	Name    string    `yaml:"name"`
	RunID   string    `yaml:"run_id"`
	Created time.Time `yaml:"created"`

	// Files lists every bundled file with its integrity checksum.
	Files []FileEntry `yaml:"files"`
}

// FileEntry is one file in the artifact with integrity information.
type FileEntry struct {
	// Path is the file's location inside the archive: <stage>/<basename>.
	Path string `yaml:"path"`

	// Source is the absolute path the file was collected from.
	Source string `yaml:"source"`

	// Stage names the stage that produced the file.
	Stage string `yaml:"stage"`

	// Size is the file size in bytes.
	Size int64 `yaml:"size"`

	// Checksum is "blake3:<hex>" over the file contents.
	Checksum string `yaml:"checksum"`
}

// StageArtifacts is one stage's contribution to the artifact.
type StageArtifacts struct {
	Stage string
	Paths []string
}

// BuildManifest checksums every contributed file and assembles the manifest.
// An artifact with no files is an error: publishing nothing is always a
// mistake upstream.
func BuildManifest(name, runID string, contributions []StageArtifacts) (*Manifest, error) {
	m := &Manifest{
		Schema:  SchemaVersion,
		Name:    name,
		RunID:   runID,
		Created: time.Now().UTC(),
	}

	for _, contrib := range contributions {
		for _, path := range contrib.Paths {
			entry, err := fileEntry(contrib.Stage, path)
			if err != nil {
				return nil, err
			}
			m.Files = append(m.Files, entry)
		}
	}

	if len(m.Files) == 0 {
		return nil, errors.New(errors.ErrCodeManifestEmpty,
			fmt.Sprintf("artifact %q has no files: no succeeded stage declared outputs", name))
	}

	return m, nil
}

func fileEntry(stage, path string) (FileEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileEntry{}, errors.Wrap(errors.ErrCodeManifestBadFile,
			fmt.Sprintf("cannot collect artifact file %s", path), err)
	}
	if info.IsDir() {
		return FileEntry{}, errors.New(errors.ErrCodeManifestBadFile,
			fmt.Sprintf("artifact path %s is a directory", path))
	}

	checksum, err := checksumFile(path)
	if err != nil {
		return FileEntry{}, errors.Wrap(errors.ErrCodeManifestBadFile,
			fmt.Sprintf("cannot checksum artifact file %s", path), err)
	}

	return FileEntry{
		Path:     filepath.Join(stage, filepath.Base(path)),
		Source:   path,
		Stage:    stage,
		Size:     info.Size(),
		Checksum: checksum,
	}, nil
}

// checksumFile computes the blake3 checksum of a file as "blake3:<hex>".
func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%x", ChecksumAlgorithm, hasher.Sum(nil)), nil
}
