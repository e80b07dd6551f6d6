// internal/services/scene_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"github.com/Corphon/SceneComposer/internal/backend"
	apperrors "github.com/Corphon/SceneComposer/internal/errors"
	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// SceneSplitter is the part of the backend SceneService needs
type SceneSplitter interface {
	SplitScript(ctx context.Context, script string) ([]string, error)
}

// SceneService owns the scene list. Every mutation holds mu for its whole duration,
// network calls never do.
type SceneService struct {
	mu     sync.Mutex
	scenes models.SceneList

	splitter    SceneSplitter
	ctaMediaURL string
	onChange    func()
	logger      *utils.Logger
}

// NewSceneService creates the scene mutation engine
func NewSceneService(splitter SceneSplitter, ctaMediaURL string) *SceneService {
	return &SceneService{
		splitter:    splitter,
		ctaMediaURL: ctaMediaURL,
		logger:      utils.GetLogger(),
	}
}

// OnChange registers a hook run after every successful mutation, outside the lock
func (s *SceneService) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *SceneService) changed() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Scenes returns a deep copy of the current list
func (s *SceneService) Scenes() models.SceneList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenes.Snapshot()
}

// Get returns a copy of the scene with id
func (s *SceneService) Get(id string) (*models.Scene, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene := s.scenes.Get(id)
	if scene == nil {
		return nil, false
	}
	return scene.Clone(), true
}

// Restore replaces the list with a previously saved one
func (s *SceneService) Restore(list models.SceneList) {
	s.mu.Lock()
	s.scenes = list.Snapshot()
	// drafts written before the flag existed
	if n := len(s.scenes); n > 0 && !s.scenes.HasPinned() && models.IsPinnedText(s.scenes[n-1].Text) {
		s.scenes[n-1].Pinned = true
	}
	s.mu.Unlock()
}

func (s *SceneService) pinnedScene() *models.Scene {
	return &models.Scene{
		ID:     uuid.New().String(),
		Text:   models.PinnedSceneText,
		Mode:   models.ModeSingle,
		Pinned: true,
		Video:  models.SlotFromRef(s.ctaMediaURL, models.MediaVideo, false),
	}
}

// Split replaces the whole list with one scene per sentence. Every variant of the
// call-to-action sentence is dropped and one canonical pinned scene is appended last.
func (s *SceneService) Split(rawSentences []string) models.SceneList {
	scenes := make(models.SceneList, 0, len(rawSentences)+1)
	for _, raw := range rawSentences {
		text := strings.TrimSpace(raw)
		if text == "" || models.IsPinnedText(text) {
			continue
		}
		scenes = append(scenes, &models.Scene{
			ID:   uuid.New().String(),
			Text: text,
			Mode: models.ModeSingle,
		})
	}
	scenes = append(scenes, s.pinnedScene())

	s.mu.Lock()
	s.scenes = scenes
	out := s.scenes.Snapshot()
	s.mu.Unlock()

	s.logger.Info("script split into scenes", map[string]interface{}{
		"scenes": len(out),
	})
	s.changed()
	return out
}

// SplitScript asks the backend for sentence boundaries, falling back to a local
// splitter when the backend is unavailable, then calls Split.
func (s *SceneService) SplitScript(ctx context.Context, script string) (models.SceneList, error) {
	if strings.TrimSpace(script) == "" {
		return nil, apperrors.NewValidationError("the script is empty, write or generate one first", nil)
	}

	var sentences []string
	if s.splitter != nil {
		remote, err := s.splitter.SplitScript(ctx, script)
		if err != nil {
			s.logger.Warn("backend split failed, using local splitter", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			sentences = remote
		}
	}
	if len(sentences) == 0 {
		sentences = SplitSentences(script)
	}
	return s.Split(sentences), nil
}

// SplitSentences cuts text after '.', '!' or '?' runs followed by whitespace or the end
func SplitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		j := i
		for j+1 < len(runes) && (isTerminator(runes[j+1]) || isCloser(runes[j+1])) {
			j++
		}
		if j+1 == len(runes) || unicode.IsSpace(runes[j+1]) {
			if sentence := strings.TrimSpace(string(runes[start : j+1])); sentence != "" {
				out = append(out, sentence)
			}
			start = j + 1
		}
		i = j
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？'
}

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == '”' || r == '’'
}

// joinText concatenates with single-space normalisation
func joinText(a, b string) string {
	return strings.Join(strings.Fields(a+" "+b), " ")
}

// MergeUp folds scene index into the scene before it. The earlier scene keeps its media.
// Returns false without touching the list when out of bounds, when a pinned scene is
// involved or when the joined text would repeat the call-to-action sentence.
func (s *SceneService) MergeUp(index int) bool {
	s.mu.Lock()
	ok := s.mergeLocked(index-1, index, index-1)
	s.mu.Unlock()
	if ok {
		s.changed()
	}
	return ok
}

// MergeDown folds scene index into the scene after it. The later scene keeps its media.
func (s *SceneService) MergeDown(index int) bool {
	s.mu.Lock()
	ok := s.mergeLocked(index, index+1, index+1)
	s.mu.Unlock()
	if ok {
		s.changed()
	}
	return ok
}

func (s *SceneService) mergeLocked(first, second, survivor int) bool {
	if !s.scenes.InBounds(first) || !s.scenes.InBounds(second) {
		return false
	}
	a, b := s.scenes[first], s.scenes[second]
	if a.IsPinned() || b.IsPinned() {
		return false
	}
	joined := joinText(a.Text, b.Text)
	if models.IsPinnedText(joined) {
		return false
	}

	kept := s.scenes[survivor]
	kept.Text = joined

	absorbed := second
	if survivor == second {
		absorbed = first
	}
	s.scenes = append(s.scenes[:absorbed], s.scenes[absorbed+1:]...)
	return true
}

// Delete removes one scene and its media
func (s *SceneService) Delete(index int) error {
	s.mu.Lock()
	if !s.scenes.InBounds(index) {
		s.mu.Unlock()
		return apperrors.NewNotFoundError(fmt.Sprintf("there is no scene %d", index+1), nil)
	}
	if s.scenes[index].IsPinned() {
		s.mu.Unlock()
		return apperrors.NewForbiddenError("the call-to-action scene always closes the video and cannot be deleted", nil)
	}
	id := s.scenes[index].ID
	s.scenes = append(s.scenes[:index], s.scenes[index+1:]...)
	s.mu.Unlock()

	s.logger.Debug("scene deleted", map[string]interface{}{"scene_id": id})
	s.changed()
	return nil
}

// DuplicateAsSuspense inserts a copy of the scene at index as the opening hook
func (s *SceneService) DuplicateAsSuspense(index int) (*models.Scene, error) {
	s.mu.Lock()
	if !s.scenes.InBounds(index) {
		s.mu.Unlock()
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("there is no scene %d", index+1), nil)
	}
	source := s.scenes[index]
	if source.IsPinned() {
		s.mu.Unlock()
		return nil, apperrors.NewForbiddenError("the call-to-action scene cannot be used as a suspense opener", nil)
	}
	if !source.HasAnyMedia() {
		s.mu.Unlock()
		return nil, apperrors.NewMissingMediaError(
			fmt.Sprintf("scene %d has no image, video or frame to build a suspense opener from", index+1), nil)
	}

	dup := source.Clone()
	dup.ID = uuid.New().String()
	dup.IsSuspense = true
	s.scenes = append(models.SceneList{dup}, s.scenes...)
	out := dup.Clone()
	s.mu.Unlock()

	s.changed()
	return out, nil
}

// SetMediaMode switches a scene between single and frames. Media of the mode being
// left is kept.
func (s *SceneService) SetMediaMode(index int, mode models.MediaMode) error {
	if !mode.IsValid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown media mode %q", mode), nil)
	}
	s.mu.Lock()
	if !s.scenes.InBounds(index) {
		s.mu.Unlock()
		return apperrors.NewNotFoundError(fmt.Sprintf("there is no scene %d", index+1), nil)
	}
	scene := s.scenes[index]
	if scene.IsPinned() {
		s.mu.Unlock()
		return apperrors.NewForbiddenError("the call-to-action scene media cannot be changed", nil)
	}
	if scene.Mode == mode {
		s.mu.Unlock()
		return nil
	}
	scene.Mode = mode
	s.mu.Unlock()

	s.changed()
	return nil
}

// AttachMedia sets one slot of the scene with id. Setting image or video clears the
// other; changing a frame drops the clip interpolated from the old pair. Returns
// false when the scene no longer exists.
func (s *SceneService) AttachMedia(id string, slot models.SlotName, media *models.MediaSlot) (bool, error) {
	if !slot.IsValid() {
		return false, apperrors.NewValidationError(fmt.Sprintf("unknown media slot %q", slot), nil)
	}
	if !media.HasContent() {
		return false, apperrors.NewValidationError("the attached media is empty", nil)
	}

	s.mu.Lock()
	scene := s.scenes.Get(id)
	if scene == nil {
		s.mu.Unlock()
		return false, nil
	}
	if scene.IsPinned() {
		s.mu.Unlock()
		return false, apperrors.NewForbiddenError("the call-to-action scene media cannot be changed", nil)
	}

	m := media.Clone()
	switch slot {
	case models.SlotImage:
		m.Type = models.MediaImage
		scene.Video = nil
	case models.SlotVideo, models.SlotClip:
		m.Type = models.MediaVideo
		if slot == models.SlotVideo {
			scene.Image = nil
		}
	case models.SlotStart, models.SlotEnd:
		m.Type = models.MediaImage
		scene.Clip = nil
	}
	*scene.Slot(slot) = m
	s.mu.Unlock()

	s.changed()
	return true, nil
}

// RemoveMedia clears one slot together with its prompt and saved id
func (s *SceneService) RemoveMedia(id string, slot models.SlotName) (bool, error) {
	if !slot.IsValid() {
		return false, apperrors.NewValidationError(fmt.Sprintf("unknown media slot %q", slot), nil)
	}

	s.mu.Lock()
	scene := s.scenes.Get(id)
	if scene == nil {
		s.mu.Unlock()
		return false, nil
	}
	if scene.IsPinned() {
		s.mu.Unlock()
		return false, apperrors.NewForbiddenError("the call-to-action scene media cannot be changed", nil)
	}
	*scene.Slot(slot) = nil
	s.mu.Unlock()

	s.changed()
	return true, nil
}

// UpdateMedia lets fn edit one existing slot in place, e.g. to record a saved id.
// fn returns false to leave the slot alone. UpdateMedia reports whether a change was made.
func (s *SceneService) UpdateMedia(id string, slot models.SlotName, fn func(m *models.MediaSlot) bool) bool {
	s.mu.Lock()
	scene := s.scenes.Get(id)
	if scene == nil || !slot.IsValid() || *scene.Slot(slot) == nil {
		s.mu.Unlock()
		return false
	}
	if !fn(*scene.Slot(slot)) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.changed()
	return true
}

// SetText replaces a scene's text. Returns false when the scene no longer exists.
func (s *SceneService) SetText(id, text string) (bool, error) {
	s.mu.Lock()
	scene := s.scenes.Get(id)
	if scene == nil {
		s.mu.Unlock()
		return false, nil
	}
	if scene.IsPinned() {
		s.mu.Unlock()
		return false, apperrors.NewForbiddenError("the call-to-action sentence cannot be edited", nil)
	}
	if models.IsPinnedText(text) {
		s.mu.Unlock()
		return false, apperrors.NewValidationError("the call-to-action sentence is already the closing scene", nil)
	}
	scene.Text = text
	s.mu.Unlock()

	s.changed()
	return true, nil
}

// Text returns the current text of a scene
func (s *SceneService) Text(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene := s.scenes.Get(id)
	if scene == nil {
		return "", false
	}
	return scene.Text, true
}

// sceneTextTarget lets a stream write into one scene's text, addressed by id
type sceneTextTarget struct {
	svc *SceneService
	id  string
}

// SceneTextTarget returns a stream target bound to the scene with id
func (s *SceneService) SceneTextTarget(id string) TextTarget {
	return &sceneTextTarget{svc: s, id: id}
}

func (t *sceneTextTarget) Get() string {
	text, _ := t.svc.Text(t.id)
	return text
}

func (t *sceneTextTarget) Set(text string) {
	t.svc.mu.Lock()
	if scene := t.svc.scenes.Get(t.id); scene != nil && !scene.IsPinned() {
		scene.Text = text
	}
	t.svc.mu.Unlock()
}

// CheckText refuses a finished stream that would repeat the call-to-action sentence
func (t *sceneTextTarget) CheckText(text string) error {
	if models.IsPinnedText(text) {
		return apperrors.NewValidationError("the rewrite repeats the call-to-action sentence, the previous text was kept", nil)
	}
	return nil
}

var _ SceneSplitter = (backend.Client)(nil)
