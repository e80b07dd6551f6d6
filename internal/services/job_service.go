// internal/services/job_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Corphon/SceneComposer/internal/backend"
	apperrors "github.com/Corphon/SceneComposer/internal/errors"
	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// JobSubmitter sends an assembled render request
type JobSubmitter interface {
	SubmitVideo(ctx context.Context, sub backend.Submission) (*models.JobHandle, error)
}

// SubmitInput is everything a render submission is built from
type SubmitInput struct {
	Script    string
	VoiceOver *models.VoiceOver
	Scenes    models.SceneList
	Render    models.RenderConfig
}

// JobService checks submission preconditions, assembles the payload and hands the
// resulting job to the poller.
type JobService struct {
	submitter JobSubmitter
	resolver  *ResolverService
	poller    *Poller
	logger    *utils.Logger
	metrics   *utils.MetricsCollector
}

// NewJobService creates the submission client. poller may be nil.
func NewJobService(submitter JobSubmitter, resolver *ResolverService, poller *Poller, metrics *utils.MetricsCollector) *JobService {
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	return &JobService{
		submitter: submitter,
		resolver:  resolver,
		poller:    poller,
		logger:    utils.GetLogger(),
		metrics:   metrics,
	}
}

// Validate checks every local precondition. Each failure has its own message.
func (s *JobService) Validate(in SubmitInput) error {
	if strings.TrimSpace(in.Script) == "" {
		return apperrors.NewValidationError("the script is empty, write or generate a script before rendering", nil)
	}
	if !in.VoiceOver.IsPresent() {
		return apperrors.NewValidationError("a voice-over is required before rendering, record or upload one", nil)
	}
	if len(in.Scenes) == 0 {
		return apperrors.NewValidationError("there are no scenes yet, split the script into scenes first", nil)
	}
	if err := in.Render.Validate(); err != nil {
		return apperrors.NewValidationError(
			"render settings are invalid: "+strings.Join(models.ValidationMessages(err), "; "), err)
	}
	if missing := in.Scenes.MissingMedia(); len(missing) > 0 {
		return apperrors.NewMissingMediaError(describeMissing(in.Scenes, missing), nil)
	}
	return nil
}

func describeMissing(scenes models.SceneList, missing []int) string {
	parts := make([]string, 0, len(missing))
	for _, n := range missing {
		if scenes[n-1].Mode == models.ModeFrames {
			parts = append(parts, fmt.Sprintf("scene %d is in frames mode and has no generated clip", n))
		} else {
			parts = append(parts, fmt.Sprintf("scene %d has no image or video", n))
		}
	}
	return "cannot render yet: " + strings.Join(parts, "; ")
}

// activeSlot returns the slot a scene renders with in its current mode
func activeSlot(scene *models.Scene) *models.MediaSlot {
	if scene.Mode == models.ModeFrames {
		return scene.Clip
	}
	if scene.Image.HasContent() {
		return scene.Image
	}
	return scene.Video
}

// Assemble builds the ordered submission. Media with a saved id is sent by reference,
// everything else is resolved to bytes.
func (s *JobService) Assemble(ctx context.Context, in SubmitInput) (*backend.Submission, error) {
	if err := s.Validate(in); err != nil {
		return nil, err
	}

	items := make([]backend.SceneMedia, len(in.Scenes))
	sentences := make([]string, len(in.Scenes))
	var toResolve models.SceneList
	var resolveIdx []int

	for i, scene := range in.Scenes {
		sentences[i] = scene.Text
		slot := activeSlot(scene)
		items[i] = backend.SceneMedia{
			Index:      i,
			Mode:       scene.Mode,
			Type:       slot.Type,
			IsSuspense: scene.IsSuspense,
		}
		if slot.SavedID != "" {
			items[i].SavedID = slot.SavedID
			continue
		}
		toResolve = append(toResolve, scene)
		resolveIdx = append(resolveIdx, i)
	}

	resolved, err := s.resolver.ResolveAll(ctx, toResolve)
	if err != nil {
		return nil, apperrors.NewNetworkError("loading scene media was interrupted, please try again", err)
	}
	var failed []string
	for j, media := range resolved {
		i := resolveIdx[j]
		if media == nil {
			failed = append(failed, fmt.Sprintf("%d", i+1))
			continue
		}
		upload := media.Upload()
		items[i].File = &upload
		items[i].Type = media.Type
	}
	if len(failed) > 0 {
		return nil, apperrors.NewMissingMediaError(
			fmt.Sprintf("the media of scene %s could not be loaded, attach it again", strings.Join(failed, ", ")), nil)
	}

	return &backend.Submission{
		VoiceOver: *in.VoiceOver,
		Sentences: sentences,
		Scenes:    items,
		Render:    in.Render,
	}, nil
}

// Submit assembles and sends the render request, then binds the poller to the new job.
// A failed submission creates no job state and can simply be retried.
func (s *JobService) Submit(ctx context.Context, in SubmitInput) (*models.JobHandle, error) {
	sub, err := s.Assemble(ctx, in)
	if err != nil {
		return nil, err
	}

	handle, err := s.submitter.SubmitVideo(ctx, *sub)
	if err != nil {
		s.logger.Error("render submission failed", map[string]interface{}{
			"scenes": len(sub.Scenes),
			"error":  err.Error(),
		})
		return nil, apperrors.NewNetworkError("the render request did not go through, please try again", err)
	}

	s.metrics.RecordJobSubmitted()
	s.logger.Info("render job submitted", map[string]interface{}{
		"job_id": handle.ID,
		"status": handle.Status,
		"scenes": len(sub.Scenes),
	})
	if s.poller != nil {
		s.poller.Bind(*handle)
	}
	return handle, nil
}
