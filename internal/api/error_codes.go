// internal/api/error_codes.go
package api

// API error codes
const (
	// general
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// input
	ErrorInvalidInput = "INVALID_INPUT"
	ErrorFileInvalid  = "FILE_INVALID"

	// scenes
	ErrorSceneNotFound = "SCENE_NOT_FOUND"
	ErrorPinnedScene   = "PINNED_SCENE"
	ErrorMissingMedia  = "MISSING_MEDIA"

	// backend and rendering
	ErrorBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrorRenderFailed       = "RENDER_FAILED"
)
