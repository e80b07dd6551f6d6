// internal/services/stream_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Corphon/SceneComposer/internal/backend"
	apperrors "github.com/Corphon/SceneComposer/internal/errors"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// TextTarget is a single mutable text a stream writes into
type TextTarget interface {
	Get() string
	Set(text string)
}

// TextChecker is implemented by targets that refuse some finished texts. A refused
// text is rolled back like a failed stream.
type TextChecker interface {
	CheckText(text string) error
}

// StreamOpener starts a backend stream
type StreamOpener func(ctx context.Context) (<-chan backend.Chunk, error)

// StreamService applies streamed text to targets, at most one stream per target key
type StreamService struct {
	mu     sync.Mutex
	active map[string]struct{}

	logger  *utils.Logger
	metrics *utils.MetricsCollector
}

// NewStreamService creates a stream consumer
func NewStreamService(metrics *utils.MetricsCollector) *StreamService {
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	return &StreamService{
		active:  make(map[string]struct{}),
		logger:  utils.GetLogger(),
		metrics: metrics,
	}
}

// IsActive reports whether a stream is writing to key
func (s *StreamService) IsActive(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[key]
	return ok
}

func (s *StreamService) claim(key string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[key]; busy {
		return nil, apperrors.NewBusyError("text is already being written for this target, wait for it to finish", nil)
	}
	s.active[key] = struct{}{}
	s.metrics.StreamStarted()
	return func() {
		s.mu.Lock()
		delete(s.active, key)
		s.mu.Unlock()
		s.metrics.StreamFinished()
	}, nil
}

// Run claims key, opens the stream and consumes it into target
func (s *StreamService) Run(ctx context.Context, key string, open StreamOpener, target TextTarget) (string, error) {
	release, err := s.claim(key)
	if err != nil {
		return "", err
	}
	defer release()

	stream, err := open(ctx)
	if err != nil {
		return "", apperrors.NewNetworkError("could not reach the writing service, please try again", err)
	}
	return s.consume(ctx, key, stream, target)
}

// Consume applies an already open stream to target. The first data chunk clears the
// target once and every chunk after it appends. On an error chunk or cancellation the
// target is restored to its value before the stream. A channel closed without Done
// counts as completion.
func (s *StreamService) Consume(ctx context.Context, key string, stream <-chan backend.Chunk, target TextTarget) (string, error) {
	release, err := s.claim(key)
	if err != nil {
		return "", err
	}
	defer release()
	return s.consume(ctx, key, stream, target)
}

func (s *StreamService) consume(ctx context.Context, key string, stream <-chan backend.Chunk, target TextTarget) (string, error) {
	original := target.Get()
	var text strings.Builder
	cleared := false

	rollback := func(reason error) {
		target.Set(original)
		s.logger.Warn("stream failed, target restored", map[string]interface{}{
			"target": key,
			"error":  reason.Error(),
		})
	}

	for {
		select {
		case <-ctx.Done():
			rollback(ctx.Err())
			return "", apperrors.NewNetworkError("writing was interrupted, the previous text was kept", ctx.Err())

		case chunk, ok := <-stream:
			if !ok || chunk.Kind == backend.ChunkDone {
				if !cleared {
					return "", apperrors.NewNetworkError("the writing service returned no text, the previous text was kept", nil)
				}
				result := text.String()
				if checker, ok := target.(TextChecker); ok {
					if err := checker.CheckText(result); err != nil {
						rollback(err)
						return "", err
					}
				}
				s.logger.Debug("stream completed", map[string]interface{}{
					"target": key,
					"length": len(result),
				})
				return result, nil
			}

			switch chunk.Kind {
			case backend.ChunkError:
				reason := chunk.Err
				if reason == nil {
					reason = fmt.Errorf("stream reported an error")
				}
				rollback(reason)
				return "", apperrors.NewNetworkError("writing failed midway, the previous text was kept", reason)

			case backend.ChunkData:
				if !cleared {
					target.Set("")
					cleared = true
				}
				text.WriteString(chunk.Text)
				target.Set(text.String())
				s.metrics.RecordStreamChunk(targetKind(key))
			}
		}
	}
}

// targetKind strips the id from keys like "scene:<id>"
func targetKind(key string) string {
	kind, _, _ := strings.Cut(key, ":")
	return kind
}

// valueTarget is a TextTarget over a guarded string
type valueTarget struct {
	mu   *sync.Mutex
	text *string
}

func (t valueTarget) Get() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.text
}

func (t valueTarget) Set(text string) {
	t.mu.Lock()
	*t.text = text
	t.mu.Unlock()
}
