// internal/models/script.go
package models

import "strings"

// GenerationConfig drives script generation on the backend
type GenerationConfig struct {
	Subject          string   `json:"subject" validate:"required_without_all=SystemPrompt ReferenceScripts"`
	Length           string   `json:"length,omitempty" validate:"omitempty,oneof=short medium long"`
	Style            string   `json:"style,omitempty"`
	Model            string   `json:"model,omitempty"`
	SystemPrompt     string   `json:"system_prompt,omitempty"`
	ReferenceScripts []string `json:"reference_scripts,omitempty" validate:"omitempty,dive,required"`
}

// Equal compares two configs field by field
func (c GenerationConfig) Equal(o GenerationConfig) bool {
	if c.Subject != o.Subject || c.Length != o.Length || c.Style != o.Style ||
		c.Model != o.Model || c.SystemPrompt != o.SystemPrompt {
		return false
	}
	if len(c.ReferenceScripts) != len(o.ReferenceScripts) {
		return false
	}
	for i := range c.ReferenceScripts {
		if c.ReferenceScripts[i] != o.ReferenceScripts[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no slices with c
func (c GenerationConfig) Clone() GenerationConfig {
	if c.ReferenceScripts != nil {
		c.ReferenceScripts = append([]string(nil), c.ReferenceScripts...)
	}
	return c
}

// ScriptState is the script-level state of a project
type ScriptState struct {
	Text   string           `json:"text"`
	Config GenerationConfig `json:"config"`

	// Baseline is the config in effect when the current text was generated.
	Baseline *GenerationConfig `json:"baseline,omitempty"`
}

// CaptureBaseline records the current config as the one that produced Text
func (s *ScriptState) CaptureBaseline() {
	b := s.Config.Clone()
	s.Baseline = &b
}

// HasDrifted reports whether the config changed since the script was generated
func (s *ScriptState) HasDrifted() bool {
	if s.Baseline == nil {
		return false
	}
	return !s.Config.Equal(*s.Baseline)
}

// CanEnhance reports whether enhance is allowed for the current state
func (s *ScriptState) CanEnhance() bool {
	return strings.TrimSpace(s.Text) != "" && !s.HasDrifted()
}
