// Package tags applies track metadata to finished downloads. The actual
// container mutation is behind the TagWriter contract; this package owns the
// extension gate, the artwork fetch and the swallow-all failure policy.
package tags

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/magicianjarden/audiio-official-sub003/internal/artcache"
	"github.com/magicianjarden/audiio-official-sub003/internal/client"
	"github.com/magicianjarden/audiio-official-sub003/internal/config"
	"github.com/magicianjarden/audiio-official-sub003/internal/models"
)

// TagWriter writes metadata into a media container. Implementations wrap a
// concrete tagging library; artwork is nil when no image is available.
type TagWriter interface {
	Write(path string, t models.TrackTags, artwork []byte) error
}

// embeddableExtensions are the containers a TagWriter can be handed. Other
// extensions skip the processing phase entirely.
var embeddableExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
}

// Embedder runs the optional post-download tagging step. A download whose
// payload arrived intact never fails because of tag trouble: every error in
// here is logged and swallowed.
type Embedder struct {
	writer  TagWriter
	client  client.Client
	artwork artcache.Cache
}

// NewEmbedder wires a TagWriter to the shared HTTP client and the artwork
// cache. artworkCache may be nil, in which case every artwork URL is fetched
// fresh.
func NewEmbedder(writer TagWriter, c client.Client, artworkCache artcache.Cache) *Embedder {
	return &Embedder{
		writer:  writer,
		client:  c,
		artwork: artworkCache,
	}
}

// CanEmbed reports whether the file's extension supports tag embedding. A nil
// embedder never embeds, so callers can keep the step optional without
// guarding.
func (e *Embedder) CanEmbed(path string) bool {
	if e == nil || e.writer == nil {
		return false
	}
	return embeddableExtensions[strings.ToLower(filepath.Ext(path))]
}

// Apply embeds metadata into the finished file at path and reports whether a
// write happened. Empty metadata and non-embeddable extensions are skipped.
func (e *Embedder) Apply(ctx context.Context, path string, t *models.TrackTags) bool {
	if !e.CanEmbed(path) || t.IsEmpty() {
		return false
	}
	logger := config.GetLogger()

	var artwork []byte
	if t.ArtworkURL != "" {
		artwork = e.fetchArtwork(ctx, t.ArtworkURL)
	}

	if err := e.writer.Write(path, *t, artwork); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to embed tags")
		return false
	}
	logger.Debug().Str("path", path).Str("title", t.Title).Msg("Embedded tags")
	return true
}

// fetchArtwork returns the image bytes for a URL, from cache when possible.
// Any fetch failure degrades to embedding without artwork.
func (e *Embedder) fetchArtwork(ctx context.Context, artworkURL string) []byte {
	if e.artwork != nil {
		if image, ok := e.artwork.Get(artworkURL); ok {
			return image
		}
	}

	image, err := e.client.FetchBytes(ctx, artworkURL)
	if err != nil {
		logger := config.GetLogger()
		logger.Warn().Err(err).Str("url", artworkURL).Msg("Failed to fetch artwork")
		return nil
	}
	if e.artwork != nil {
		e.artwork.Set(artworkURL, image)
	}
	return image
}
