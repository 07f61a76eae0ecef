package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/riggerci/rigger/internal/errors"
)

// Location references a published artifact: where it went and how long it
// will be retained.
type Location struct {
	Name      string
	RunID     string
	URI       string
	Digest    string
	Retention time.Duration
}

func (l *Location) String() string {
	if l.Retention > 0 {
		return fmt.Sprintf("%s (retained %s)", l.URI, l.Retention)
	}
	return l.URI
}

// Publisher makes a packed artifact retrievable under a stable name.
// Publishing failures never rewrite stage statuses: the build succeeded,
// only distribution failed, and both facts are surfaced separately.
type Publisher interface {
	Publish(ctx context.Context, m *Manifest, archivePath string) (*Location, error)
}

// DirStore publishes artifacts into a local directory tree laid out as
// <root>/<name>/<run-id>/. The default backend.
type DirStore struct {
	// Root is the store directory.
	Root string

	// Retention is advisory metadata carried on the returned location.
	Retention time.Duration
}

// Publish copies the archive into the store and writes the manifest beside
// it for retrieval without unpacking.
func (s *DirStore) Publish(ctx context.Context, m *Manifest, archivePath string) (*Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewPublishError(err)
	}

	dest := filepath.Join(s.Root, m.Name, m.RunID)
	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, errors.NewPublishError(err)
	}

	archiveName := m.Name + ".tar.gz"
	if err := copyFile(archivePath, filepath.Join(dest, archiveName)); err != nil {
		return nil, errors.NewPublishError(err)
	}

	manifestData, err := yaml.Marshal(m)
	if err != nil {
		return nil, errors.NewPublishError(err)
	}
	if err := os.WriteFile(filepath.Join(dest, ManifestFileName), manifestData, 0644); err != nil {
		return nil, errors.NewPublishError(err)
	}

	digest, err := checksumFile(filepath.Join(dest, archiveName))
	if err != nil {
		return nil, errors.NewPublishError(err)
	}

	return &Location{
		Name:      m.Name,
		RunID:     m.RunID,
		URI:       "file://" + filepath.Join(dest, archiveName),
		Digest:    digest,
		Retention: s.Retention,
	}, nil
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

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
