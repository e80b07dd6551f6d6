// internal/models/scene.go
package models

import (
	"strings"
	"unicode"
)

// PinnedSceneText is the call-to-action sentence that always closes the video
const PinnedSceneText = "Please Subscribe & Help us reach out to more people"

// MediaMode selects how a scene carries its visuals
type MediaMode string

const (
	ModeSingle MediaMode = "single" // one image or one video
	ModeFrames MediaMode = "frames" // start/end image pair, interpolated into Clip
)

// IsValid reports whether m is a known mode
func (m MediaMode) IsValid() bool {
	return m == ModeSingle || m == ModeFrames
}

// SlotName addresses one media slot on a scene
type SlotName string

const (
	SlotImage SlotName = "image"
	SlotVideo SlotName = "video"
	SlotStart SlotName = "start"
	SlotEnd   SlotName = "end"
	SlotClip  SlotName = "clip"
)

// IsValid reports whether s is a known slot
func (s SlotName) IsValid() bool {
	switch s {
	case SlotImage, SlotVideo, SlotStart, SlotEnd, SlotClip:
		return true
	}
	return false
}

// Scene is one sentence of narration plus its visuals
type Scene struct {
	ID   string    `json:"id"`
	Text string    `json:"text"`
	Mode MediaMode `json:"mode"`

	// single mode
	Image *MediaSlot `json:"image,omitempty"`
	Video *MediaSlot `json:"video,omitempty"`

	// frames mode
	StartFrame *MediaSlot `json:"start_frame,omitempty"`
	EndFrame   *MediaSlot `json:"end_frame,omitempty"`
	Clip       *MediaSlot `json:"clip,omitempty"`

	IsSuspense bool `json:"is_suspense,omitempty"`

	// Pinned marks the call-to-action scene. Only a split sets it.
	Pinned bool `json:"pinned,omitempty"`
}

// NormalizeSentence folds case and drops everything that is not a letter or digit
func NormalizeSentence(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

var pinnedKey = NormalizeSentence(PinnedSceneText)

// IsPinnedText reports whether text is a variant of the call-to-action sentence
func IsPinnedText(text string) bool {
	return NormalizeSentence(text) == pinnedKey
}

// IsPinned reports whether the scene is the call-to-action scene
func (s *Scene) IsPinned() bool {
	return s != nil && s.Pinned
}

// Slot returns a pointer to the named slot field, or nil for an unknown name
func (s *Scene) Slot(name SlotName) **MediaSlot {
	switch name {
	case SlotImage:
		return &s.Image
	case SlotVideo:
		return &s.Video
	case SlotStart:
		return &s.StartFrame
	case SlotEnd:
		return &s.EndFrame
	case SlotClip:
		return &s.Clip
	}
	return nil
}

// HasAnyMedia reports whether any slot, in either mode, carries content
func (s *Scene) HasAnyMedia() bool {
	return s.Image.HasContent() || s.Video.HasContent() ||
		s.StartFrame.HasContent() || s.EndFrame.HasContent() || s.Clip.HasContent()
}

// IsReady reports whether the scene has media usable for rendering in its current mode.
// Frames mode needs the interpolated clip, a bare frame pair is not enough.
func (s *Scene) IsReady() bool {
	if s.Mode == ModeFrames {
		return s.Clip.HasContent()
	}
	return s.Image.HasContent() || s.Video.HasContent()
}

// Clone returns a deep copy of the scene
func (s *Scene) Clone() *Scene {
	if s == nil {
		return nil
	}
	c := *s
	c.Image = s.Image.Clone()
	c.Video = s.Video.Clone()
	c.StartFrame = s.StartFrame.Clone()
	c.EndFrame = s.EndFrame.Clone()
	c.Clip = s.Clip.Clone()
	return &c
}

// SceneList is the ordered scene collection. Order is narration order and cut order.
type SceneList []*Scene

// Len returns the number of scenes
func (l SceneList) Len() int { return len(l) }

// CompletedCount counts scenes with media for their current mode
func (l SceneList) CompletedCount() int {
	n := 0
	for _, s := range l {
		if s.IsReady() {
			n++
		}
	}
	return n
}

// HasMissingMedia reports whether any scene still lacks media
func (l SceneList) HasMissingMedia() bool {
	return l.CompletedCount() < len(l)
}

// MissingMedia returns the 1-based positions of scenes without media
func (l SceneList) MissingMedia() []int {
	var missing []int
	for i, s := range l {
		if !s.IsReady() {
			missing = append(missing, i+1)
		}
	}
	return missing
}

// HasPinned reports whether the call-to-action scene is present
func (l SceneList) HasPinned() bool {
	for _, s := range l {
		if s.IsPinned() {
			return true
		}
	}
	return false
}

// IndexOf returns the position of the scene with id, or -1
func (l SceneList) IndexOf(id string) int {
	for i, s := range l {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Get returns the scene with id, or nil
func (l SceneList) Get(id string) *Scene {
	if i := l.IndexOf(id); i >= 0 {
		return l[i]
	}
	return nil
}

// InBounds reports whether index addresses a scene
func (l SceneList) InBounds(index int) bool {
	return index >= 0 && index < len(l)
}

// Snapshot returns a deep copy safe to hand out
func (l SceneList) Snapshot() SceneList {
	out := make(SceneList, len(l))
	for i, s := range l {
		out[i] = s.Clone()
	}
	return out
}
