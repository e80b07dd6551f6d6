// internal/services/generation_service.go
package services

import (
	"context"
	"fmt"

	"github.com/Corphon/SceneComposer/internal/backend"
	apperrors "github.com/Corphon/SceneComposer/internal/errors"
	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// MediaGenerator is the media part of the backend
type MediaGenerator interface {
	GenerateImage(ctx context.Context, req backend.ImageRequest) (*backend.ImageResult, error)
	InterpolateFrames(ctx context.Context, req backend.InterpolateRequest) (*backend.ClipResult, error)
	SaveImage(ctx context.Context, img backend.Upload) (*backend.SavedMedia, error)
}

// GenerationService runs AI media generation for scenes. Work is addressed by scene id
// captured at trigger time; a result for a scene deleted meanwhile is dropped.
type GenerationService struct {
	generator MediaGenerator
	project   *ProjectService
	resolver  *ResolverService
	tasks     *TaskTracker
	logger    *utils.Logger
}

// GenerateResult reports the outcome for one scene
type GenerateResult struct {
	SceneID string        `json:"scene_id"`
	Applied bool          `json:"applied"`
	Scene   *models.Scene `json:"scene,omitempty"`
}

// GenerateAllResult reports a sequential bulk run
type GenerateAllResult struct {
	Generated []string          `json:"generated"`
	Skipped   []string          `json:"skipped"`
	Failed    map[string]string `json:"failed"`
}

// NewGenerationService creates the media generator
func NewGenerationService(generator MediaGenerator, project *ProjectService, resolver *ResolverService, tasks *TaskTracker) *GenerationService {
	return &GenerationService{
		generator: generator,
		project:   project,
		resolver:  resolver,
		tasks:     tasks,
		logger:    utils.GetLogger(),
	}
}

func imageTask(slot models.SlotName) (TaskKind, error) {
	switch slot {
	case models.SlotImage:
		return TaskImage, nil
	case models.SlotStart:
		return TaskStartImage, nil
	case models.SlotEnd:
		return TaskEndImage, nil
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("images cannot be generated into the %q slot", slot), nil)
}

func (g *GenerationService) editableScene(sceneID string) (*models.Scene, error) {
	scene, ok := g.project.Scenes.Get(sceneID)
	if !ok {
		return nil, apperrors.NewNotFoundError("the scene no longer exists", nil)
	}
	if scene.IsPinned() {
		return nil, apperrors.NewForbiddenError("the call-to-action scene media cannot be changed", nil)
	}
	return scene, nil
}

// GenerateImage produces an image for the image, start or end slot of a scene.
// prompt overrides the prompt the backend would derive from the sentence.
func (g *GenerationService) GenerateImage(ctx context.Context, sceneID string, slot models.SlotName, prompt string) (*GenerateResult, error) {
	kind, err := imageTask(slot)
	if err != nil {
		return nil, err
	}
	scene, err := g.editableScene(sceneID)
	if err != nil {
		return nil, err
	}
	release, err := g.tasks.TryStart(sceneID, kind)
	if err != nil {
		return nil, err
	}
	defer release()

	script := g.project.Script()
	result, err := g.generator.GenerateImage(ctx, backend.ImageRequest{
		Sentence: scene.Text,
		Style:    script.Config.Style,
		Script:   script.Text,
		Prompt:   prompt,
	})
	if err != nil {
		g.logger.Warn("image generation failed", map[string]interface{}{
			"scene_id": sceneID,
			"slot":     string(slot),
			"error":    err.Error(),
		})
		return nil, apperrors.NewNetworkError("the image could not be generated, please try again", err)
	}

	media := models.SlotFromRef(result.Image, models.MediaImage, false)
	if media == nil {
		return nil, apperrors.NewNetworkError("the image service returned no image", nil)
	}
	media.Prompt = result.Prompt

	applied, err := g.project.Scenes.AttachMedia(sceneID, slot, media)
	if err != nil {
		return nil, err
	}
	return g.result(sceneID, applied), nil
}

// GenerateAllImages fills every single-mode scene lacking media, one scene at a time.
// A failure on one scene does not stop the others.
func (g *GenerationService) GenerateAllImages(ctx context.Context) (*GenerateAllResult, error) {
	out := &GenerateAllResult{Failed: make(map[string]string)}
	for _, scene := range g.project.Scenes.Scenes() {
		if err := ctx.Err(); err != nil {
			return out, apperrors.NewNetworkError("generating images was interrupted", err)
		}
		if scene.IsPinned() || scene.Mode != models.ModeSingle || scene.IsReady() {
			out.Skipped = append(out.Skipped, scene.ID)
			continue
		}
		res, err := g.GenerateImage(ctx, scene.ID, models.SlotImage, "")
		switch {
		case err != nil:
			out.Failed[scene.ID] = apperrors.MessageOf(err)
		case !res.Applied:
			out.Skipped = append(out.Skipped, scene.ID)
		default:
			out.Generated = append(out.Generated, scene.ID)
		}
	}
	g.logger.Info("bulk image generation finished", map[string]interface{}{
		"generated": len(out.Generated),
		"failed":    len(out.Failed),
	})
	return out, nil
}

// GenerateClip interpolates the scene's start and end frames into its clip
func (g *GenerationService) GenerateClip(ctx context.Context, sceneID, prompt string) (*GenerateResult, error) {
	scene, err := g.editableScene(sceneID)
	if err != nil {
		return nil, err
	}
	if !scene.StartFrame.HasContent() || !scene.EndFrame.HasContent() {
		return nil, apperrors.NewMissingMediaError("both a start and an end frame are needed to generate a clip", nil)
	}
	release, err := g.tasks.TryStart(sceneID, TaskClip)
	if err != nil {
		return nil, err
	}
	defer release()

	start, err := g.resolver.ResolveSlot(ctx, scene.StartFrame)
	if err != nil {
		return nil, apperrors.NewNetworkError("loading the frames was interrupted", err)
	}
	end, err := g.resolver.ResolveSlot(ctx, scene.EndFrame)
	if err != nil {
		return nil, apperrors.NewNetworkError("loading the frames was interrupted", err)
	}
	if start == nil || end == nil {
		return nil, apperrors.NewMissingMediaError("a frame of this scene could not be loaded, attach it again", nil)
	}

	if prompt == "" {
		prompt = scene.Text
	}
	clip, err := g.generator.InterpolateFrames(ctx, backend.InterpolateRequest{
		Start:  start.Upload(),
		End:    end.Upload(),
		Prompt: prompt,
	})
	if err != nil {
		g.logger.Warn("clip generation failed", map[string]interface{}{
			"scene_id": sceneID,
			"error":    err.Error(),
		})
		return nil, apperrors.NewNetworkError("the clip could not be generated, please try again", err)
	}

	media := models.SlotFromRef(clip.URL, models.MediaVideo, false)
	if media == nil {
		return nil, apperrors.NewNetworkError("the clip service returned no clip", nil)
	}
	media.Prompt = prompt
	applied, err := g.project.Scenes.AttachMedia(sceneID, models.SlotClip, media)
	if err != nil {
		return nil, err
	}
	return g.result(sceneID, applied), nil
}

// SaveImage persists a slot's image on the backend and records its saved id,
// provided the slot still holds the same image when the save returns.
func (g *GenerationService) SaveImage(ctx context.Context, sceneID string, slot models.SlotName) (*GenerateResult, error) {
	if slot != models.SlotImage && slot != models.SlotStart && slot != models.SlotEnd {
		return nil, apperrors.NewValidationError(fmt.Sprintf("only images can be saved, not the %q slot", slot), nil)
	}
	scene, err := g.editableScene(sceneID)
	if err != nil {
		return nil, err
	}
	original := *scene.Slot(slot)
	if !original.HasContent() {
		return nil, apperrors.NewMissingMediaError("there is no image to save on this scene", nil)
	}
	if original.SavedID != "" {
		return g.result(sceneID, false), nil
	}
	release, err := g.tasks.TryStart(sceneID, TaskSaveImage)
	if err != nil {
		return nil, err
	}
	defer release()

	resolved, err := g.resolver.ResolveSlot(ctx, original)
	if err != nil {
		return nil, apperrors.NewNetworkError("loading the image was interrupted", err)
	}
	if resolved == nil {
		return nil, apperrors.NewMissingMediaError("the image could not be loaded, attach it again", nil)
	}
	saved, err := g.generator.SaveImage(ctx, resolved.Upload())
	if err != nil {
		return nil, apperrors.NewNetworkError("the image could not be saved, please try again", err)
	}

	applied := g.project.Scenes.UpdateMedia(sceneID, slot, func(m *models.MediaSlot) bool {
		if m.URL != original.URL || len(m.Data) != len(original.Data) || m.Prompt != original.Prompt {
			return false
		}
		m.SavedID = saved.ID
		if saved.URL != "" {
			m.URL = saved.URL
			m.Kind = models.MediaRemote
			m.Data = nil
		}
		return true
	})
	return g.result(sceneID, applied), nil
}

func (g *GenerationService) result(sceneID string, applied bool) *GenerateResult {
	res := &GenerateResult{SceneID: sceneID, Applied: applied}
	if scene, ok := g.project.Scenes.Get(sceneID); ok {
		res.Scene = scene
	}
	return res
}
