// internal/services/resolver_service.go
package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Corphon/SceneComposer/internal/backend"
	"github.com/Corphon/SceneComposer/internal/cache"
	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// MediaFetcher downloads remote media references
type MediaFetcher interface {
	Fetch(ctx context.Context, ref string) (*backend.FetchedMedia, error)
}

// ResolvedMedia is a scene's media materialised as bytes
type ResolvedMedia struct {
	Type        models.MediaType
	Source      models.MediaKind
	Filename    string
	ContentType string
	Data        []byte
}

// Upload converts the resolved media into a multipart part
func (m *ResolvedMedia) Upload() backend.Upload {
	return backend.Upload{Filename: m.Filename, ContentType: m.ContentType, Data: m.Data}
}

// ResolverService turns declared scene media into uploadable binaries. It only reads
// scenes and never writes them back.
type ResolverService struct {
	fetcher     MediaFetcher
	cache       *cache.Store
	parallelism int
	logger      *utils.Logger
	metrics     *utils.MetricsCollector
}

// NewResolverService creates a resolver. A nil store disables fetch memoisation.
func NewResolverService(fetcher MediaFetcher, store *cache.Store, parallelism int, metrics *utils.MetricsCollector) *ResolverService {
	if parallelism <= 0 {
		parallelism = 1
	}
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	return &ResolverService{
		fetcher:     fetcher,
		cache:       store,
		parallelism: parallelism,
		logger:      utils.GetLogger(),
		metrics:     metrics,
	}
}

// Resolve materialises the media a scene would render with in its current mode.
// A scene without usable media resolves to nil. Only context cancellation is an error.
func (r *ResolverService) Resolve(ctx context.Context, scene *models.Scene) (*ResolvedMedia, error) {
	if scene == nil {
		return nil, nil
	}
	var slot *models.MediaSlot
	switch {
	case scene.Mode == models.ModeFrames:
		slot = scene.Clip
	case scene.Image.HasContent():
		slot = scene.Image
	default:
		slot = scene.Video
	}
	return r.ResolveSlot(ctx, slot)
}

// ResolveSlot materialises one slot: uploaded bytes, then inline data, then a remote fetch.
func (r *ResolverService) ResolveSlot(ctx context.Context, slot *models.MediaSlot) (*ResolvedMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !slot.HasContent() {
		r.metrics.RecordResolve("none")
		return nil, nil
	}

	switch {
	case len(slot.Data) > 0:
		r.metrics.RecordResolve(string(models.MediaUploaded))
		return r.build(slot, models.MediaUploaded, slot.Data, slot.ContentType), nil

	case slot.Kind == models.MediaGeneratedInline:
		data, contentType, err := DecodeDataURL(slot.URL)
		if err != nil {
			r.logger.Warn("inline media could not be decoded", map[string]interface{}{"error": err.Error()})
			r.metrics.RecordResolve("none")
			return nil, nil
		}
		r.metrics.RecordResolve(string(models.MediaGeneratedInline))
		return r.build(slot, models.MediaGeneratedInline, data, contentType), nil

	case slot.URL != "":
		fetched, err := r.fetch(ctx, slot.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("remote media could not be fetched", map[string]interface{}{
				"url":   slot.URL,
				"error": err.Error(),
			})
			r.metrics.RecordResolve("none")
			return nil, nil
		}
		r.metrics.RecordResolve(string(slot.Kind))
		return r.build(slot, slot.Kind, fetched.Data, fetched.ContentType), nil
	}

	r.metrics.RecordResolve("none")
	return nil, nil
}

// ResolveAll resolves scenes concurrently, bounded by the configured parallelism.
// The result is in scene order; entries are nil where a scene has no usable media.
func (r *ResolverService) ResolveAll(ctx context.Context, scenes models.SceneList) ([]*ResolvedMedia, error) {
	results := make([]*ResolvedMedia, len(scenes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, scene := range scenes {
		g.Go(func() error {
			media, err := r.Resolve(gctx, scene)
			if err != nil {
				return err
			}
			results[i] = media
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *ResolverService) fetch(ctx context.Context, ref string) (*backend.FetchedMedia, error) {
	if r.fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured")
	}
	if r.cache == nil {
		return r.fetcher.Fetch(ctx, ref)
	}
	v, _, err := r.cache.GetOrLoad(ctx, "media:"+ref, func(ctx context.Context) (interface{}, error) {
		return r.fetcher.Fetch(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	return v.(*backend.FetchedMedia), nil
}

func (r *ResolverService) build(slot *models.MediaSlot, source models.MediaKind, data []byte, contentType string) *ResolvedMedia {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	mediaType := slot.Type
	if mediaType == "" {
		mediaType = models.MediaImage
		if strings.HasPrefix(contentType, "video/") {
			mediaType = models.MediaVideo
		}
	}
	return &ResolvedMedia{
		Type:        mediaType,
		Source:      source,
		Filename:    mediaFilename(slot, mediaType, contentType),
		ContentType: contentType,
		Data:        data,
	}
}

func mediaFilename(slot *models.MediaSlot, mediaType models.MediaType, contentType string) string {
	if slot.Filename != "" {
		return slot.Filename
	}
	if slot.Kind != models.MediaGeneratedInline && slot.URL != "" {
		if u, err := url.Parse(slot.URL); err == nil {
			if base := path.Base(u.Path); base != "." && base != "/" && path.Ext(base) != "" {
				return base
			}
		}
	}
	ext := ""
	if exts, err := mime.ExtensionsByType(strings.SplitN(contentType, ";", 2)[0]); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return string(mediaType) + ext
}

// DecodeDataURL decodes "data:[<mediatype>][;base64],<data>"
func DecodeDataURL(ref string) ([]byte, string, error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, "data:") {
		return nil, "", fmt.Errorf("not a data url")
	}
	meta, payload, found := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !found {
		return nil, "", fmt.Errorf("data url has no payload")
	}

	contentType := "text/plain;charset=US-ASCII"
	isBase64 := false
	if meta != "" {
		parts := strings.Split(meta, ";")
		if parts[0] != "" {
			contentType = parts[0]
		}
		for _, p := range parts[1:] {
			if strings.EqualFold(p, "base64") {
				isBase64 = true
			}
		}
	}

	var data []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return nil, "", fmt.Errorf("invalid base64 payload: %w", err)
			}
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("invalid payload: %w", err)
		}
		data = []byte(unescaped)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("data url is empty")
	}
	return data, contentType, nil
}
