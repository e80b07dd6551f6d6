// internal/backend/interface.go
package backend

import (
	"context"

	"github.com/Corphon/SceneComposer/internal/models"
)

// ChunkKind tags one event of a text stream
type ChunkKind int

const (
	ChunkData ChunkKind = iota
	ChunkDone
	ChunkError
)

// Chunk is one event of a text stream: Data(text) | Done | Error(reason)
type Chunk struct {
	Kind ChunkKind
	Text string
	Err  error
}

// DataChunk wraps a piece of text
func DataChunk(text string) Chunk { return Chunk{Kind: ChunkData, Text: text} }

// DoneChunk marks normal completion
func DoneChunk() Chunk { return Chunk{Kind: ChunkDone} }

// ErrorChunk marks a failed stream
func ErrorChunk(err error) Chunk { return Chunk{Kind: ChunkError, Err: err} }

// GenerateScriptRequest asks for a new script
type GenerateScriptRequest struct {
	models.GenerationConfig
}

// EnhanceScriptRequest asks for a rewrite of an existing script
type EnhanceScriptRequest struct {
	Script string                  `json:"script"`
	Config models.GenerationConfig `json:"config"`
}

// EnhanceSentenceRequest asks for a rewrite of one sentence
type EnhanceSentenceRequest struct {
	Sentence    string `json:"sentence"`
	Instruction string `json:"instruction,omitempty"`
	Script      string `json:"script,omitempty"`
}

// ImageRequest asks for one generated image
type ImageRequest struct {
	Sentence string `json:"sentence"`
	Style    string `json:"style,omitempty"`
	Script   string `json:"script,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// ImageResult is a generated image carried inline
type ImageResult struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image"`
}

// Upload is one binary part of a multipart request
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// InterpolateRequest turns a start/end frame pair into a clip
type InterpolateRequest struct {
	Start  Upload
	End    Upload
	Prompt string
}

// ClipResult is the reference of an interpolated clip
type ClipResult struct {
	URL string `json:"url"`
}

// SavedMedia is the durable identity of persisted media
type SavedMedia struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// SceneMedia is the per-scene part of a submission. Exactly one of SavedID or File is set.
type SceneMedia struct {
	Index      int              `json:"index"`
	Mode       models.MediaMode `json:"mode"`
	Type       models.MediaType `json:"type"`
	SavedID    string           `json:"saved_id,omitempty"`
	IsSuspense bool             `json:"is_suspense,omitempty"`
	File       *Upload          `json:"-"`
}

// Submission is the assembled render request, scenes in cut order
type Submission struct {
	VoiceOver models.VoiceOver
	Sentences []string
	Scenes    []SceneMedia
	Render    models.RenderConfig
}

// FetchedMedia is a downloaded remote asset
type FetchedMedia struct {
	Data        []byte
	ContentType string
}

// Client is the contract of the remote AI/render service
type Client interface {
	GenerateScript(ctx context.Context, req GenerateScriptRequest) (<-chan Chunk, error)
	EnhanceScript(ctx context.Context, req EnhanceScriptRequest) (<-chan Chunk, error)
	EnhanceSentence(ctx context.Context, req EnhanceSentenceRequest) (<-chan Chunk, error)
	SplitScript(ctx context.Context, script string) ([]string, error)

	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error)
	InterpolateFrames(ctx context.Context, req InterpolateRequest) (*ClipResult, error)
	SaveImage(ctx context.Context, img Upload) (*SavedMedia, error)

	SubmitVideo(ctx context.Context, sub Submission) (*models.JobHandle, error)
	JobStatus(ctx context.Context, jobID string) (*models.JobStatus, error)

	// Fetch downloads a media reference. Relative references resolve against the backend base URL.
	Fetch(ctx context.Context, ref string) (*FetchedMedia, error)
}
