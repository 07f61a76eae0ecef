package artifact

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"

	"github.com/riggerci/rigger/internal/errors"
)

// OCI media types for rigger artifacts
const (
	ArtifactLayerMediaType = "application/vnd.rigger.artifact.layer.v1.tar+gzip"
)

// OCIPublisher pushes the packed artifact archive to an OCI registry as a
// single-layer artifact image. Selected with --push.
type OCIPublisher struct {
	// Reference is the full OCI reference (e.g., ghcr.io/org/app:1.2.0)
	Reference string

	// Insecure allows plain-HTTP registries.
	Insecure bool

	// Keychain provides authentication credentials. Defaults to the
	// ambient docker keychain.
	Keychain authn.Keychain

	// UserAgent for registry requests.
	UserAgent string
}

// Publish uploads the archive as one layer plus artifact metadata labels.
func (p *OCIPublisher) Publish(ctx context.Context, m *Manifest, archivePath string) (*Location, error) {
	opts := []name.Option{}
	if p.Insecure {
		opts = append(opts, name.Insecure)
	}
	ref, err := name.ParseReference(p.Reference, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePublishBadRef,
			fmt.Sprintf("invalid OCI reference %q", p.Reference), err)
	}

	layer, err := tarball.LayerFromFile(archivePath, tarball.WithMediaType(ArtifactLayerMediaType))
	if err != nil {
		return nil, errors.NewPublishError(fmt.Errorf("create layer from archive: %w", err))
	}

	img, err := mutate.AppendLayers(empty.Image, layer)
	if err != nil {
		return nil, errors.NewPublishError(fmt.Errorf("append layer: %w", err))
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, errors.NewPublishError(fmt.Errorf("read image config: %w", err))
	}
	cfg = cfg.DeepCopy()
	cfg.Config.Labels = map[string]string{
		"org.opencontainers.image.title":   m.Name,
		"org.opencontainers.image.created": m.Created.Format("2006-01-02T15:04:05Z"),
		"io.rigger.artifact.schema":        m.Schema,
		"io.rigger.artifact.run-id":        m.RunID,
	}
	img, err = mutate.ConfigFile(img, cfg)
	if err != nil {
		return nil, errors.NewPublishError(fmt.Errorf("set image config: %w", err))
	}

	keychain := p.Keychain
	if keychain == nil {
		keychain = authn.DefaultKeychain
	}
	userAgent := p.UserAgent
	if userAgent == "" {
		userAgent = "rigger-artifact/1.0"
	}

	if err := remote.Write(ref, img,
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(keychain),
		remote.WithUserAgent(userAgent),
	); err != nil {
		return nil, errors.NewPublishError(fmt.Errorf("push to %s: %w", ref.String(), err))
	}

	digest, err := img.Digest()
	if err != nil {
		return nil, errors.NewPublishError(fmt.Errorf("compute image digest: %w", err))
	}

	return &Location{
		Name:   m.Name,
		RunID:  m.RunID,
		URI:    ref.String(),
		Digest: digest.String(),
	}, nil
}
