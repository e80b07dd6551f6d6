// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/SceneComposer/internal/api"
	"github.com/Corphon/SceneComposer/internal/backend"
	"github.com/Corphon/SceneComposer/internal/cache"
	"github.com/Corphon/SceneComposer/internal/config"
	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/services"
	"github.com/Corphon/SceneComposer/internal/storage"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// DefaultProjectID names the project a single-user server edits
const DefaultProjectID = "default"

const autosaveDelay = 2 * time.Second

// App holds the wired services of one orchestrator process
type App struct {
	Config  *config.Config
	Metrics *utils.MetricsCollector
	Backend backend.Client
	Drafts  *storage.FileStorage
	Project *services.ProjectService
	Handler *api.Handler
	Router  *gin.Engine

	server   *http.Server
	autosave *autosaver
	logger   *utils.Logger
	stopOnce sync.Once
}

// New wires an App against the HTTP backend described by cfg
func New(cfg *config.Config) (*App, error) {
	metrics := utils.GetMetricsCollector()
	client, err := backend.NewHTTPClient(cfg.Backend, metrics)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	return NewWithBackend(cfg, client, metrics)
}

// NewWithBackend wires an App against any backend client
func NewWithBackend(cfg *config.Config, client backend.Client, metrics *utils.MetricsCollector) (*App, error) {
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	logger := utils.GetLogger()
	logger.SetLevel(cfg.LogLevel)

	drafts, err := storage.NewFileStorage(filepath.Join(cfg.DataDir, "drafts"))
	if err != nil {
		return nil, fmt.Errorf("draft storage: %w", err)
	}

	fetchCache := cache.NewStore(cfg.Backend.FetchCacheTTL)
	resolver := services.NewResolverService(client, fetchCache, cfg.Backend.ResolveParallelism, metrics)
	poller := services.NewPoller(client, cfg.Backend.PollInterval, metrics)
	jobs := services.NewJobService(client, resolver, poller, metrics)
	scenes := services.NewSceneService(client, cfg.CTAMediaURL)
	project := services.NewProjectService(DefaultProjectID, scenes, jobs, poller, renderDefaults(cfg), drafts)

	tasks := services.NewTaskTracker(metrics)
	streams := services.NewStreamService(metrics)
	scripts := services.NewScriptService(client, streams, project, tasks)
	generation := services.NewGenerationService(client, project, resolver, tasks)

	if _, err := project.Load(); err != nil {
		logger.Warn("draft could not be restored, starting empty", map[string]interface{}{
			"project_id": DefaultProjectID,
			"error":      err.Error(),
		})
	}

	handler := api.NewHandler(project, scripts, generation, tasks, metrics)
	a := &App{
		Config:   cfg,
		Metrics:  metrics,
		Backend:  client,
		Drafts:   drafts,
		Project:  project,
		Handler:  handler,
		Router:   api.SetupRouter(handler, cfg),
		autosave: newAutosaver(project, autosaveDelay),
		logger:   logger,
	}
	scenes.OnChange(a.autosave.notify)
	go a.autosave.run()

	return a, nil
}

func renderDefaults(cfg *config.Config) models.RenderConfig {
	r := models.DefaultRenderConfig()
	if cfg.Render.FrameRate != "" {
		r.FrameRate = cfg.Render.FrameRate
	}
	if cfg.Render.Resolution != "" {
		r.Resolution = cfg.Render.Resolution
	}
	for k, v := range cfg.Render.Transitions {
		r.Transitions[k] = v
	}
	return r
}

// EnsureDirectories creates the data and log directories
func EnsureDirectories(cfg *config.Config) error {
	for _, dir := range []string{cfg.DataDir, filepath.Join(cfg.DataDir, "drafts"), cfg.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Run serves HTTP until Shutdown is called
func (a *App) Run() error {
	a.server = &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.logger.Info("server listening", map[string]interface{}{
		"port":    a.Config.Port,
		"backend": a.Config.Backend.BaseURL,
	})
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, the poller and autosave, then writes a final draft
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.server != nil {
			err = a.server.Shutdown(ctx)
		}
		a.autosave.stop()
		a.Project.Poller.Stop()
		if saveErr := a.Project.Save(); saveErr != nil {
			a.logger.Error("final draft save failed", map[string]interface{}{
				"error": saveErr.Error(),
			})
			if err == nil {
				err = saveErr
			}
		}
	})
	return err
}

// autosaver coalesces change notifications into one draft write per delay
type autosaver struct {
	project *services.ProjectService
	delay   time.Duration
	pending chan struct{}
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
	logger  *utils.Logger
}

func newAutosaver(project *services.ProjectService, delay time.Duration) *autosaver {
	return &autosaver{
		project: project,
		delay:   delay,
		pending: make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  utils.GetLogger(),
	}
}

func (s *autosaver) notify() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

func (s *autosaver) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.pending:
		}

		timer := time.NewTimer(s.delay)
		select {
		case <-s.quit:
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.project.Save(); err != nil {
			s.logger.Warn("autosave failed", map[string]interface{}{
				"project_id": s.project.ID(),
				"error":      err.Error(),
			})
		}
	}
}

func (s *autosaver) stop() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}
