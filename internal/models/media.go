// internal/models/media.go
package models

import "strings"

// MediaKind is the provenance of a media slot
type MediaKind string

const (
	MediaUploaded        MediaKind = "uploaded"         // bytes held locally
	MediaGeneratedInline MediaKind = "generated-inline" // AI output carried as a data URL, not yet persisted
	MediaRemote          MediaKind = "remote"           // durable URL
	MediaLibrary         MediaKind = "library"          // picked from the user's saved library
)

// MediaType is what the slot carries once resolved
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// MediaSlot is one piece of scene media
type MediaSlot struct {
	Kind        MediaKind `json:"kind"`
	Type        MediaType `json:"type"`
	Data        []byte    `json:"data,omitempty"`
	URL         string    `json:"url,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	SavedID     string    `json:"saved_id,omitempty"`
}

// IsInlineRef reports whether ref is a data URL
func IsInlineRef(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), "data:")
}

// SlotFromRef turns a raw reference string into a slot. This is the only place a
// reference prefix is inspected; after it the Kind field carries provenance.
func SlotFromRef(ref string, mediaType MediaType, fromLibrary bool) *MediaSlot {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	slot := &MediaSlot{Type: mediaType, URL: ref}
	switch {
	case IsInlineRef(ref):
		slot.Kind = MediaGeneratedInline
	case fromLibrary:
		slot.Kind = MediaLibrary
	default:
		slot.Kind = MediaRemote
	}
	return slot
}

// UploadedSlot wraps locally held bytes
func UploadedSlot(mediaType MediaType, filename, contentType string, data []byte) *MediaSlot {
	return &MediaSlot{
		Kind:        MediaUploaded,
		Type:        mediaType,
		Data:        data,
		Filename:    filename,
		ContentType: contentType,
	}
}

// HasContent reports whether the slot carries bytes or a reference
func (m *MediaSlot) HasContent() bool {
	if m == nil {
		return false
	}
	if m.Kind == MediaUploaded {
		return len(m.Data) > 0
	}
	return m.URL != "" || m.SavedID != ""
}

// Clone returns a deep copy
func (m *MediaSlot) Clone() *MediaSlot {
	if m == nil {
		return nil
	}
	c := *m
	if m.Data != nil {
		c.Data = append([]byte(nil), m.Data...)
	}
	return &c
}
