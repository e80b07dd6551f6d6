// internal/models/draft.go
package models

import "time"

// Draft is the persisted snapshot of one project. Transient task flags are never part of it.
type Draft struct {
	ID        string       `json:"id"`
	Script    ScriptState  `json:"script"`
	Scenes    SceneList    `json:"scenes"`
	Render    RenderConfig `json:"render"`
	VoiceOver *VoiceOver   `json:"voice_over,omitempty"`
	Job       *Job         `json:"job,omitempty"`
	SavedAt   time.Time    `json:"saved_at"`
}
