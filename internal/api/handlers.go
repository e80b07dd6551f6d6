// internal/api/handlers.go
package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/services"
	"github.com/Corphon/SceneComposer/internal/utils"
)

const (
	maxMediaBytes = 64 << 20
	maxVoiceBytes = 32 << 20
)

// Handler serves the editor API of one project
type Handler struct {
	Project    *services.ProjectService
	Scripts    *services.ScriptService
	Generation *services.GenerationService
	Tasks      *services.TaskTracker
	Metrics    *utils.MetricsCollector
	Response   *ResponseHelper
	logger     *utils.Logger
}

// NewHandler creates the API handler
func NewHandler(project *services.ProjectService, scripts *services.ScriptService, generation *services.GenerationService,
	tasks *services.TaskTracker, metrics *utils.MetricsCollector) *Handler {
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	return &Handler{
		Project:    project,
		Scripts:    scripts,
		Generation: generation,
		Tasks:      tasks,
		Metrics:    metrics,
		Response:   NewResponseHelper(),
		logger:     utils.GetLogger(),
	}
}

// ===============================
// request bodies
// ===============================

// ScriptTextRequest replaces the script text
type ScriptTextRequest struct {
	Text string `json:"text"`
}

// SceneTextRequest replaces one scene's text
type SceneTextRequest struct {
	Text string `json:"text" binding:"required"`
}

// MediaModeRequest switches a scene's media mode
type MediaModeRequest struct {
	Mode models.MediaMode `json:"mode" binding:"required"`
}

// MediaRefRequest attaches media by reference
type MediaRefRequest struct {
	Ref         string `json:"ref" binding:"required"`
	FromLibrary bool   `json:"from_library"`
}

// PromptRequest carries an optional prompt override
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// InstructionRequest carries an optional rewrite instruction
type InstructionRequest struct {
	Instruction string `json:"instruction"`
}

// MergeResult reports a merge attempt
type MergeResult struct {
	Merged bool       `json:"merged"`
	Scenes ScenesView `json:"scenes"`
}

// ===============================
// helpers
// ===============================

func (h *Handler) scenes() ScenesView {
	return scenesView(h.Project.Scenes.Scenes(), h.Tasks)
}

func (h *Handler) sceneByID(c *gin.Context, id string) {
	list := h.Project.Scenes.Scenes()
	index := list.IndexOf(id)
	if index < 0 {
		h.Response.Error(c, http.StatusNotFound, ErrorSceneNotFound, "the scene no longer exists")
		return
	}
	h.Response.Success(c, sceneView(index, list[index], h.Tasks))
}

func (h *Handler) parseIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.Response.BadRequest(c, "the scene position must be a number", err.Error())
		return 0, false
	}
	return index, true
}

func (h *Handler) parseSlot(c *gin.Context) (models.SlotName, bool) {
	slot := models.SlotName(c.Param("slot"))
	if !slot.IsValid() {
		h.Response.BadRequest(c, fmt.Sprintf("unknown media slot %q", slot))
		return "", false
	}
	return slot, true
}

// bindOptional binds a JSON body when there is one
func bindOptional(c *gin.Context, v interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}

// readUpload reads the multipart "file" field, bounded by limit
func readUpload(c *gin.Context, limit int64) (filename, contentType string, data []byte, err error) {
	header, err := c.FormFile("file")
	if err != nil {
		return "", "", nil, fmt.Errorf("a file field is required: %w", err)
	}
	if header.Size > limit {
		return "", "", nil, fmt.Errorf("%s is larger than %d MB", header.Filename, limit>>20)
	}
	f, err := header.Open()
	if err != nil {
		return "", "", nil, err
	}
	defer f.Close()

	data, err = io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return "", "", nil, err
	}
	if int64(len(data)) > limit {
		return "", "", nil, fmt.Errorf("%s is larger than %d MB", header.Filename, limit>>20)
	}
	if len(data) == 0 {
		return "", "", nil, fmt.Errorf("%s is empty", header.Filename)
	}
	contentType = header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return header.Filename, contentType, data, nil
}

// ===============================
// project
// ===============================

// GetProject returns the full editor state
func (h *Handler) GetProject(c *gin.Context) {
	st := h.Project.Script()
	h.Response.Success(c, ProjectView{
		ID:         h.Project.ID(),
		Script:     st,
		CanEnhance: st.CanEnhance(),
		Scenes:     h.scenes(),
		Render:     h.Project.Render(),
		VoiceOver:  h.Project.VoiceOver(),
		Job:        h.Project.Poller.State(),
	})
}

// SaveProject persists a draft now
func (h *Handler) SaveProject(c *gin.Context) {
	if err := h.Project.Save(); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, nil, "draft saved")
}

// ===============================
// script
// ===============================

// UpdateScript replaces the script text
func (h *Handler) UpdateScript(c *gin.Context) {
	var req ScriptTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid script body", err.Error())
		return
	}
	h.Project.SetScriptText(req.Text)
	h.Response.Success(c, h.Project.Script())
}

// UpdateGenerationConfig replaces the generation settings
func (h *Handler) UpdateGenerationConfig(c *gin.Context) {
	var cfg models.GenerationConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		h.Response.BadRequest(c, "invalid generation settings", err.Error())
		return
	}
	if err := h.Project.SetGenerationConfig(cfg); err != nil {
		h.Response.FromError(c, err)
		return
	}
	st := h.Project.Script()
	h.Response.Success(c, gin.H{"script": st, "can_enhance": st.CanEnhance()})
}

// GenerateScript writes a new script from the generation settings
func (h *Handler) GenerateScript(c *gin.Context) {
	text, err := h.Scripts.Generate(c.Request.Context())
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"text": text})
}

// EnhanceScript rewrites the current script
func (h *Handler) EnhanceScript(c *gin.Context) {
	text, err := h.Scripts.Enhance(c.Request.Context())
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"text": text})
}

// SplitScript cuts the script into scenes, replacing the current list
func (h *Handler) SplitScript(c *gin.Context) {
	if _, err := h.Project.SplitScript(c.Request.Context()); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, h.scenes())
}

// ===============================
// sequence, addressed by position
// ===============================

// MergeUp folds a scene into the one before it
func (h *Handler) MergeUp(c *gin.Context) {
	index, ok := h.parseIndex(c)
	if !ok {
		return
	}
	merged := h.Project.Scenes.MergeUp(index)
	h.Response.Success(c, MergeResult{Merged: merged, Scenes: h.scenes()})
}

// MergeDown folds a scene into the one after it
func (h *Handler) MergeDown(c *gin.Context) {
	index, ok := h.parseIndex(c)
	if !ok {
		return
	}
	merged := h.Project.Scenes.MergeDown(index)
	h.Response.Success(c, MergeResult{Merged: merged, Scenes: h.scenes()})
}

// DeleteScene removes a scene
func (h *Handler) DeleteScene(c *gin.Context) {
	index, ok := h.parseIndex(c)
	if !ok {
		return
	}
	if err := h.Project.Scenes.Delete(index); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, h.scenes())
}

// DuplicateAsSuspense inserts a suspense opener copied from a scene
func (h *Handler) DuplicateAsSuspense(c *gin.Context) {
	index, ok := h.parseIndex(c)
	if !ok {
		return
	}
	dup, err := h.Project.Scenes.DuplicateAsSuspense(index)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Created(c, gin.H{"scene_id": dup.ID, "scenes": h.scenes()})
}

// SetMediaMode switches a scene between single and frames
func (h *Handler) SetMediaMode(c *gin.Context) {
	index, ok := h.parseIndex(c)
	if !ok {
		return
	}
	var req MediaModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "a mode is required", err.Error())
		return
	}
	if err := h.Project.Scenes.SetMediaMode(index, req.Mode); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, h.scenes())
}

// ===============================
// scenes, addressed by id
// ===============================

// GetScenes returns the scene list
func (h *Handler) GetScenes(c *gin.Context) {
	h.Response.Success(c, h.scenes())
}

// GetScene returns one scene
func (h *Handler) GetScene(c *gin.Context) {
	h.sceneByID(c, c.Param("id"))
}

// UpdateSceneText replaces one scene's text
func (h *Handler) UpdateSceneText(c *gin.Context) {
	id := c.Param("id")
	var req SceneTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "a text is required", err.Error())
		return
	}
	applied, err := h.Project.Scenes.SetText(id, strings.TrimSpace(req.Text))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	if !applied {
		h.Response.Error(c, http.StatusNotFound, ErrorSceneNotFound, "the scene no longer exists")
		return
	}
	h.sceneByID(c, id)
}

// EnhanceSentence rewrites one scene's text through the writing service
func (h *Handler) EnhanceSentence(c *gin.Context) {
	id := c.Param("id")
	var req InstructionRequest
	if err := bindOptional(c, &req); err != nil {
		h.Response.BadRequest(c, "invalid instruction body", err.Error())
		return
	}
	if _, err := h.Scripts.EnhanceSentence(c.Request.Context(), id, req.Instruction); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.sceneByID(c, id)
}

// AttachMedia sets a slot from an uploaded file or from a reference
func (h *Handler) AttachMedia(c *gin.Context) {
	id := c.Param("id")
	slot, ok := h.parseSlot(c)
	if !ok {
		return
	}
	mediaType := models.MediaImage
	if slot == models.SlotVideo || slot == models.SlotClip {
		mediaType = models.MediaVideo
	}

	var media *models.MediaSlot
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		filename, contentType, data, err := readUpload(c, maxMediaBytes)
		if err != nil {
			h.Response.Error(c, http.StatusBadRequest, ErrorFileInvalid, "the uploaded file could not be read", err.Error())
			return
		}
		media = models.UploadedSlot(mediaType, filename, contentType, data)
	} else {
		var req MediaRefRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Response.BadRequest(c, "a file upload or a media reference is required", err.Error())
			return
		}
		media = models.SlotFromRef(req.Ref, mediaType, req.FromLibrary)
	}

	applied, err := h.Project.Scenes.AttachMedia(id, slot, media)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	if !applied {
		h.Response.Error(c, http.StatusNotFound, ErrorSceneNotFound, "the scene no longer exists")
		return
	}
	h.sceneByID(c, id)
}

// RemoveMedia clears a slot
func (h *Handler) RemoveMedia(c *gin.Context) {
	id := c.Param("id")
	slot, ok := h.parseSlot(c)
	if !ok {
		return
	}
	applied, err := h.Project.Scenes.RemoveMedia(id, slot)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	if !applied {
		h.Response.Error(c, http.StatusNotFound, ErrorSceneNotFound, "the scene no longer exists")
		return
	}
	h.sceneByID(c, id)
}

// GenerateImage generates the image of an image, start or end slot
func (h *Handler) GenerateImage(c *gin.Context) {
	slot, ok := h.parseSlot(c)
	if !ok {
		return
	}
	var req PromptRequest
	if err := bindOptional(c, &req); err != nil {
		h.Response.BadRequest(c, "invalid prompt body", err.Error())
		return
	}
	res, err := h.Generation.GenerateImage(c.Request.Context(), c.Param("id"), slot, strings.TrimSpace(req.Prompt))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.generationResult(c, res)
}

// SaveImage saves a slot's image on the backend
func (h *Handler) SaveImage(c *gin.Context) {
	slot, ok := h.parseSlot(c)
	if !ok {
		return
	}
	res, err := h.Generation.SaveImage(c.Request.Context(), c.Param("id"), slot)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.generationResult(c, res)
}

// GenerateClip interpolates a scene's frame pair
func (h *Handler) GenerateClip(c *gin.Context) {
	var req PromptRequest
	if err := bindOptional(c, &req); err != nil {
		h.Response.BadRequest(c, "invalid prompt body", err.Error())
		return
	}
	res, err := h.Generation.GenerateClip(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.Prompt))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.generationResult(c, res)
}

// GenerateAllImages fills every single-mode scene lacking media, one at a time
func (h *Handler) GenerateAllImages(c *gin.Context) {
	out, err := h.Generation.GenerateAllImages(c.Request.Context())
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"result": out, "scenes": h.scenes()})
}

func (h *Handler) generationResult(c *gin.Context, res *services.GenerateResult) {
	data := gin.H{"scene_id": res.SceneID, "applied": res.Applied}
	if res.Scene != nil {
		list := h.Project.Scenes.Scenes()
		if index := list.IndexOf(res.SceneID); index >= 0 {
			data["scene"] = sceneView(index, list[index], h.Tasks)
		}
	}
	if !res.Applied {
		h.Response.Success(c, data, "the result was not applied, the scene changed meanwhile")
		return
	}
	h.Response.Success(c, data)
}

// ===============================
// voice-over and render settings
// ===============================

// UploadVoiceOver attaches the narration audio
func (h *Handler) UploadVoiceOver(c *gin.Context) {
	filename, contentType, data, err := readUpload(c, maxVoiceBytes)
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileInvalid, "the voice-over could not be read", err.Error())
		return
	}
	if err := h.Project.SetVoiceOver(&models.VoiceOver{Filename: filename, ContentType: contentType, Data: data}); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, h.Project.VoiceOver())
}

// DeleteVoiceOver drops the narration audio
func (h *Handler) DeleteVoiceOver(c *gin.Context) {
	h.Project.ClearVoiceOver()
	h.Response.Success(c, nil, "voice-over removed")
}

// GetRender returns the render settings
func (h *Handler) GetRender(c *gin.Context) {
	h.Response.Success(c, h.Project.Render())
}

// UpdateRender replaces the render settings
func (h *Handler) UpdateRender(c *gin.Context) {
	var cfg models.RenderConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		h.Response.BadRequest(c, "invalid render settings", err.Error())
		return
	}
	if err := h.Project.SetRender(cfg); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, h.Project.Render())
}

// ===============================
// render jobs
// ===============================

// SubmitJob sends the project for rendering; progress arrives on /ws/jobs
func (h *Handler) SubmitJob(c *gin.Context) {
	handle, err := h.Project.Submit(c.Request.Context())
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Accepted(c, gin.H{"job": handle, "state": h.Project.Poller.State()}, "render job submitted")
}

// GetJob returns the observed state of the current job
func (h *Handler) GetJob(c *gin.Context) {
	h.Response.Success(c, h.Project.Poller.State())
}

// ResetJob stops polling and forgets the current job
func (h *Handler) ResetJob(c *gin.Context) {
	h.Project.Poller.Reset()
	h.Response.Success(c, h.Project.Poller.State())
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"status":     "ok",
		"project_id": h.Project.ID(),
		"tasks":      len(h.Tasks.Snapshot()),
	})
}
