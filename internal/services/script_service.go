// internal/services/script_service.go
package services

import (
	"context"
	"strings"

	"github.com/Corphon/SceneComposer/internal/backend"
	apperrors "github.com/Corphon/SceneComposer/internal/errors"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// ScriptWriter is the streaming part of the backend
type ScriptWriter interface {
	GenerateScript(ctx context.Context, req backend.GenerateScriptRequest) (<-chan backend.Chunk, error)
	EnhanceScript(ctx context.Context, req backend.EnhanceScriptRequest) (<-chan backend.Chunk, error)
	EnhanceSentence(ctx context.Context, req backend.EnhanceSentenceRequest) (<-chan backend.Chunk, error)
}

const scriptStreamKey = "script"

func sceneStreamKey(id string) string { return "scene:" + id }

// ScriptService writes and rewrites text through streams
type ScriptService struct {
	writer  ScriptWriter
	streams *StreamService
	project *ProjectService
	tasks   *TaskTracker
	logger  *utils.Logger
}

// NewScriptService creates the script writer
func NewScriptService(writer ScriptWriter, streams *StreamService, project *ProjectService, tasks *TaskTracker) *ScriptService {
	return &ScriptService{
		writer:  writer,
		streams: streams,
		project: project,
		tasks:   tasks,
		logger:  utils.GetLogger(),
	}
}

// Generate writes a new script from the generation settings and records them as the baseline
func (s *ScriptService) Generate(ctx context.Context) (string, error) {
	cfg := s.project.Script().Config
	if err := cfg.Validate(); err != nil {
		return "", apperrors.NewValidationError("pick a subject, a system prompt or reference scripts before generating", err)
	}

	text, err := s.streams.Run(ctx, scriptStreamKey, func(ctx context.Context) (<-chan backend.Chunk, error) {
		return s.writer.GenerateScript(ctx, backend.GenerateScriptRequest{GenerationConfig: cfg})
	}, s.project.scriptTarget())
	if err != nil {
		return "", err
	}
	s.project.captureBaseline()
	s.logger.Info("script generated", map[string]interface{}{
		"subject": cfg.Subject,
		"length":  len(text),
	})
	return text, nil
}

// Enhance rewrites the current script. Refused once the settings drifted from the ones
// that produced it.
func (s *ScriptService) Enhance(ctx context.Context) (string, error) {
	st := s.project.Script()
	if strings.TrimSpace(st.Text) == "" {
		return "", apperrors.NewValidationError("there is no script to enhance yet", nil)
	}
	if st.HasDrifted() {
		return "", apperrors.NewValidationError("the generation settings changed since this script was written, generate a new one instead", nil)
	}

	return s.streams.Run(ctx, scriptStreamKey, func(ctx context.Context) (<-chan backend.Chunk, error) {
		return s.writer.EnhanceScript(ctx, backend.EnhanceScriptRequest{Script: st.Text, Config: st.Config})
	}, s.project.scriptTarget())
}

// EnhanceSentence rewrites one scene's text, addressed by id
func (s *ScriptService) EnhanceSentence(ctx context.Context, sceneID, instruction string) (string, error) {
	scene, ok := s.project.Scenes.Get(sceneID)
	if !ok {
		return "", apperrors.NewNotFoundError("the scene no longer exists", nil)
	}
	if scene.IsPinned() {
		return "", apperrors.NewForbiddenError("the call-to-action sentence cannot be edited", nil)
	}

	release, err := s.tasks.TryStart(sceneID, TaskEnhance)
	if err != nil {
		return "", err
	}
	defer release()

	req := backend.EnhanceSentenceRequest{
		Sentence:    scene.Text,
		Instruction: strings.TrimSpace(instruction),
		Script:      s.project.Script().Text,
	}
	text, err := s.streams.Run(ctx, sceneStreamKey(sceneID), func(ctx context.Context) (<-chan backend.Chunk, error) {
		return s.writer.EnhanceSentence(ctx, req)
	}, s.project.Scenes.SceneTextTarget(sceneID))
	if err != nil {
		return "", err
	}
	s.project.Scenes.changed()
	return text, nil
}
