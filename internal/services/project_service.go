// internal/services/project_service.go
package services

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/SceneComposer/internal/errors"
	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// DraftRepository persists project snapshots
type DraftRepository interface {
	SaveDraft(draft *models.Draft) error
	LoadDraft(id string) (*models.Draft, error)
}

// ProjectService holds the script-level state of one project and ties the scene
// engine, job client and poller together.
type ProjectService struct {
	id string

	mu     sync.Mutex
	script models.ScriptState
	voice  *models.VoiceOver
	render models.RenderConfig

	Scenes *SceneService
	Jobs   *JobService
	Poller *Poller

	drafts DraftRepository
	logger *utils.Logger
}

// NewProjectService creates a project. drafts may be nil.
func NewProjectService(id string, scenes *SceneService, jobs *JobService, poller *Poller, render models.RenderConfig, drafts DraftRepository) *ProjectService {
	p := &ProjectService{
		id:     id,
		render: render,
		Scenes: scenes,
		Jobs:   jobs,
		Poller: poller,
		drafts: drafts,
		logger: utils.GetLogger(),
	}
	return p
}

// ID returns the project id
func (p *ProjectService) ID() string { return p.id }

// Script returns a copy of the script state
func (p *ProjectService) Script() models.ScriptState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.script
	st.Config = p.script.Config.Clone()
	if p.script.Baseline != nil {
		b := p.script.Baseline.Clone()
		st.Baseline = &b
	}
	return st
}

// SetScriptText replaces the script text by hand
func (p *ProjectService) SetScriptText(text string) {
	p.mu.Lock()
	p.script.Text = text
	p.mu.Unlock()
}

// SetGenerationConfig replaces the generation settings
func (p *ProjectService) SetGenerationConfig(cfg models.GenerationConfig) error {
	if err := cfg.Validate(); err != nil {
		return apperrors.NewValidationError(
			"generation settings are invalid: "+strings.Join(models.ValidationMessages(err), "; "), err)
	}
	p.mu.Lock()
	p.script.Config = cfg.Clone()
	p.mu.Unlock()
	return nil
}

func (p *ProjectService) captureBaseline() {
	p.mu.Lock()
	p.script.CaptureBaseline()
	p.mu.Unlock()
}

// scriptTarget is the stream target for the script text
func (p *ProjectService) scriptTarget() TextTarget {
	return valueTarget{mu: &p.mu, text: &p.script.Text}
}

// SetVoiceOver attaches the narration audio
func (p *ProjectService) SetVoiceOver(v *models.VoiceOver) error {
	if !v.IsPresent() {
		return apperrors.NewValidationError("the voice-over file is empty", nil)
	}
	p.mu.Lock()
	c := *v
	c.Data = append([]byte(nil), v.Data...)
	p.voice = &c
	p.mu.Unlock()
	return nil
}

// ClearVoiceOver drops the narration audio
func (p *ProjectService) ClearVoiceOver() {
	p.mu.Lock()
	p.voice = nil
	p.mu.Unlock()
}

// VoiceOver returns the narration metadata, without data, or nil
func (p *ProjectService) VoiceOver() *models.VoiceOver {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.voice == nil {
		return nil
	}
	return &models.VoiceOver{Filename: p.voice.Filename, ContentType: p.voice.ContentType}
}

// Render returns the render settings
func (p *ProjectService) Render() models.RenderConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyRender(p.render)
}

// SetRender replaces the render settings after validating them
func (p *ProjectService) SetRender(cfg models.RenderConfig) error {
	if err := cfg.Validate(); err != nil {
		return apperrors.NewValidationError(
			"render settings are invalid: "+strings.Join(models.ValidationMessages(err), "; "), err)
	}
	p.mu.Lock()
	p.render = copyRender(cfg)
	p.mu.Unlock()
	return nil
}

func copyRender(r models.RenderConfig) models.RenderConfig {
	c := r
	c.Transitions = make(map[string]bool, len(r.Transitions))
	for k, v := range r.Transitions {
		c.Transitions[k] = v
	}
	return c
}

// SplitScript cuts the current script into scenes
func (p *ProjectService) SplitScript(ctx context.Context) (models.SceneList, error) {
	return p.Scenes.SplitScript(ctx, p.Script().Text)
}

// Submit checks preconditions and sends the project for rendering
func (p *ProjectService) Submit(ctx context.Context) (*models.JobHandle, error) {
	p.mu.Lock()
	in := SubmitInput{
		Script: p.script.Text,
		Render: copyRender(p.render),
	}
	if p.voice != nil {
		v := *p.voice
		in.VoiceOver = &v
	}
	p.mu.Unlock()
	in.Scenes = p.Scenes.Scenes()

	handle, err := p.Jobs.Submit(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := p.Save(); err != nil {
		p.logger.Warn("draft not saved after submission", map[string]interface{}{"error": err.Error()})
	}
	return handle, nil
}

// Draft builds a snapshot of the project
func (p *ProjectService) Draft() *models.Draft {
	d := &models.Draft{
		ID:      p.id,
		Script:  p.Script(),
		Scenes:  p.Scenes.Scenes(),
		Render:  p.Render(),
		SavedAt: time.Now(),
	}
	p.mu.Lock()
	if p.voice != nil {
		v := *p.voice
		d.VoiceOver = &v
	}
	p.mu.Unlock()
	if p.Poller != nil {
		if job := p.Poller.State(); job.Phase != models.PhaseNone {
			d.Job = &job
		}
	}
	return d
}

// Save persists the current snapshot
func (p *ProjectService) Save() error {
	if p.drafts == nil {
		return nil
	}
	return p.drafts.SaveDraft(p.Draft())
}

// Load restores the last saved snapshot, if there is one. An unfinished job is polled again.
func (p *ProjectService) Load() (bool, error) {
	if p.drafts == nil {
		return false, nil
	}
	d, err := p.drafts.LoadDraft(p.id)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}

	p.mu.Lock()
	p.script = d.Script
	p.voice = d.VoiceOver
	if d.Render.FrameRate != "" {
		p.render = copyRender(d.Render)
	}
	p.mu.Unlock()

	p.Scenes.Restore(d.Scenes)
	if p.Poller != nil && d.Job != nil {
		p.Poller.Restore(d.Job)
	}
	p.logger.Info("draft restored", map[string]interface{}{
		"project_id": p.id,
		"scenes":     len(d.Scenes),
	})
	return true, nil
}
