package artifact

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/riggerci/rigger/internal/errors"
)

// ManifestFileName is the manifest's name inside the archive.
const ManifestFileName = "manifest.yaml"

// Pack writes the manifest and every file it lists into a gzipped tarball at
// outPath. The manifest goes first so consumers can stream-inspect the
// archive without unpacking it fully.
func Pack(m *Manifest, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return errors.Wrap(errors.ErrCodePublishFailed, "cannot create archive directory", err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodePublishFailed, fmt.Sprintf("cannot create archive %s", outPath), err)
	}
	defer out.Close()

	gzw := gzip.NewWriter(out)
	defer gzw.Close()
	tw := tar.NewWriter(gzw)
	defer tw.Close()

	manifestData, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap(errors.ErrCodePublishFailed, "cannot marshal manifest", err)
	}
	if err := writeTarFile(tw, ManifestFileName, manifestData, m.Created); err != nil {
		return err
	}

	for _, entry := range m.Files {
		if err := copyTarFile(tw, entry); err != nil {
			return err
		}
	}

	return nil
}

func writeTarFile(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(header); err != nil {
		return errors.Wrap(errors.ErrCodePublishFailed, fmt.Sprintf("cannot write archive entry %s", name), err)
	}
	if _, err := tw.Write(data); err != nil {
		return errors.Wrap(errors.ErrCodePublishFailed, fmt.Sprintf("cannot write archive entry %s", name), err)
	}
	return nil
}

func copyTarFile(tw *tar.Writer, entry FileEntry) error {
	f, err := os.Open(entry.Source)
	if err != nil {
		return errors.Wrap(errors.ErrCodePublishFailed, fmt.Sprintf("cannot read artifact file %s", entry.Source), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(errors.ErrCodePublishFailed, fmt.Sprintf("cannot stat artifact file %s", entry.Source), err)
	}

	header := &tar.Header{
		Name:    filepath.ToSlash(filepath.Join("files", entry.Path)),
		Mode:    int64(info.Mode().Perm()),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return errors.Wrap(errors.ErrCodePublishFailed, fmt.Sprintf("cannot write archive entry %s", entry.Path), err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return errors.Wrap(errors.ErrCodePublishFailed, fmt.Sprintf("cannot write archive entry %s", entry.Path), err)
	}
	return nil
}
