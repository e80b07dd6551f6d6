// internal/api/router.go
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Corphon/SceneComposer/internal/config"
)

// SetupRouter builds the HTTP routes of the editor API
func SetupRouter(h *Handler, cfg *config.Config) *gin.Engine {
	if cfg == nil || !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(h.logger, h.Metrics))
	r.Use(corsMiddleware())

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	r.GET("/ws/jobs", h.JobUpdates)

	generation := GenerationRateLimit(h.Response)

	api := r.Group("/api")
	{
		// project
		api.GET("/project", h.GetProject)
		api.POST("/project/save", h.SaveProject)

		// script
		script := api.Group("/script")
		{
			script.PUT("", h.UpdateScript)
			script.PUT("/config", h.UpdateGenerationConfig)
			script.POST("/generate", generation, h.GenerateScript)
			script.POST("/enhance", generation, h.EnhanceScript)
			script.POST("/split", h.SplitScript)
		}

		// structural edits by position
		sequence := api.Group("/sequence/:index")
		{
			sequence.POST("/merge-up", h.MergeUp)
			sequence.POST("/merge-down", h.MergeDown)
			sequence.POST("/suspense", h.DuplicateAsSuspense)
			sequence.PUT("/mode", h.SetMediaMode)
			sequence.DELETE("", h.DeleteScene)
		}

		// scene content by id
		api.GET("/scenes", h.GetScenes)
		scenes := api.Group("/scenes/:id")
		{
			scenes.GET("", h.GetScene)
			scenes.PUT("/text", h.UpdateSceneText)
			scenes.POST("/enhance", generation, h.EnhanceSentence)
			scenes.PUT("/media/:slot", h.AttachMedia)
			scenes.DELETE("/media/:slot", h.RemoveMedia)
			scenes.POST("/media/:slot/generate", generation, h.GenerateImage)
			scenes.POST("/media/:slot/save", h.SaveImage)
			scenes.POST("/clip", generation, h.GenerateClip)
		}
		api.POST("/generation/images", generation, h.GenerateAllImages)

		// narration and render settings
		api.PUT("/voice-over", h.UploadVoiceOver)
		api.DELETE("/voice-over", h.DeleteVoiceOver)
		api.GET("/render", h.GetRender)
		api.PUT("/render", h.UpdateRender)

		// render jobs
		api.POST("/jobs", h.SubmitJob)
		api.GET("/jobs/current", h.GetJob)
		api.DELETE("/jobs/current", h.ResetJob)
	}

	r.NoRoute(func(c *gin.Context) {
		h.Response.NotFound(c, "no such endpoint", c.Request.URL.Path)
	})

	return r
}
