// internal/models/render.go
package models

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// RenderConfig is passed through verbatim to submission
type RenderConfig struct {
	FrameRate   string          `json:"frame_rate" validate:"required,oneof=standard reduced"`
	Resolution  string          `json:"resolution" validate:"required,oneof=standard reduced"`
	Transitions map[string]bool `json:"transitions,omitempty" validate:"omitempty,dive,keys,required,endkeys"`
}

// DefaultRenderConfig returns the standard tiers with no transitions
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{FrameRate: "standard", Resolution: "standard", Transitions: map[string]bool{}}
}

// VoiceOver is the narration audio
type VoiceOver struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data,omitempty"`
}

// IsPresent reports whether narration audio is attached
func (v *VoiceOver) IsPresent() bool {
	return v != nil && len(v.Data) > 0
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared struct validator
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks the config tiers
func (r RenderConfig) Validate() error {
	return Validator().Struct(r)
}

// Validate checks the generation config
func (c GenerationConfig) Validate() error {
	return Validator().Struct(c)
}

// ValidationMessages flattens validator errors into readable strings
func ValidationMessages(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		if err == nil {
			return nil
		}
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (%s)", msg, fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
