// internal/api/views.go
package api

import (
	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/services"
)

// MediaView is a media slot without its raw bytes
type MediaView struct {
	Kind        models.MediaKind `json:"kind"`
	Type        models.MediaType `json:"type"`
	URL         string           `json:"url,omitempty"`
	Filename    string           `json:"filename,omitempty"`
	ContentType string           `json:"content_type,omitempty"`
	Size        int              `json:"size,omitempty"`
	Prompt      string           `json:"prompt,omitempty"`
	SavedID     string           `json:"saved_id,omitempty"`
}

// SceneView is one scene as the editor sees it
type SceneView struct {
	Index      int                 `json:"index"`
	ID         string              `json:"id"`
	Text       string              `json:"text"`
	Mode       models.MediaMode    `json:"mode"`
	Image      *MediaView          `json:"image,omitempty"`
	Video      *MediaView          `json:"video,omitempty"`
	StartFrame *MediaView          `json:"start_frame,omitempty"`
	EndFrame   *MediaView          `json:"end_frame,omitempty"`
	Clip       *MediaView          `json:"clip,omitempty"`
	IsSuspense bool                `json:"is_suspense,omitempty"`
	IsPinned   bool                `json:"is_pinned"`
	IsReady    bool                `json:"is_ready"`
	Tasks      []services.TaskInfo `json:"tasks,omitempty"`
}

// ScenesView is the whole list plus its aggregate facts
type ScenesView struct {
	Scenes          []SceneView `json:"scenes"`
	CompletedCount  int         `json:"completed_count"`
	HasMissingMedia bool        `json:"has_missing_media"`
	MissingMedia    []int       `json:"missing_media,omitempty"`
}

// ProjectView is the full editor state
type ProjectView struct {
	ID         string              `json:"id"`
	Script     models.ScriptState  `json:"script"`
	CanEnhance bool                `json:"can_enhance"`
	Scenes     ScenesView          `json:"scenes"`
	Render     models.RenderConfig `json:"render"`
	VoiceOver  *models.VoiceOver   `json:"voice_over,omitempty"`
	Job        models.Job          `json:"job"`
}

func mediaView(m *models.MediaSlot) *MediaView {
	if m == nil {
		return nil
	}
	return &MediaView{
		Kind:        m.Kind,
		Type:        m.Type,
		URL:         m.URL,
		Filename:    m.Filename,
		ContentType: m.ContentType,
		Size:        len(m.Data),
		Prompt:      m.Prompt,
		SavedID:     m.SavedID,
	}
}

func sceneView(index int, s *models.Scene, tasks *services.TaskTracker) SceneView {
	v := SceneView{
		Index:      index,
		ID:         s.ID,
		Text:       s.Text,
		Mode:       s.Mode,
		Image:      mediaView(s.Image),
		Video:      mediaView(s.Video),
		StartFrame: mediaView(s.StartFrame),
		EndFrame:   mediaView(s.EndFrame),
		Clip:       mediaView(s.Clip),
		IsSuspense: s.IsSuspense,
		IsPinned:   s.IsPinned(),
		IsReady:    s.IsReady(),
	}
	if tasks != nil {
		v.Tasks = tasks.Tasks(s.ID)
	}
	return v
}

func scenesView(list models.SceneList, tasks *services.TaskTracker) ScenesView {
	out := ScenesView{
		Scenes:          make([]SceneView, len(list)),
		CompletedCount:  list.CompletedCount(),
		HasMissingMedia: list.HasMissingMedia(),
		MissingMedia:    list.MissingMedia(),
	}
	for i, s := range list {
		out.Scenes[i] = sceneView(i, s, tasks)
	}
	return out
}
