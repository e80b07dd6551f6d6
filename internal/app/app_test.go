package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/SceneComposer/internal/backend"
	"github.com/Corphon/SceneComposer/internal/config"
	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// setupTest returns a config rooted in a temp dir and a backend that knows no routes
func setupTest(t *testing.T) (*config.Config, *backend.HTTPClient) {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := &config.Config{
		Port:     "0",
		DataDir:  filepath.Join(dir, "data"),
		LogDir:   filepath.Join(dir, "logs"),
		LogLevel: "error",
		Backend: config.BackendConfig{
			BaseURL:            srv.URL,
			Timeout:            5 * time.Second,
			PollInterval:       time.Second,
			StatusTimeout:      time.Second,
			FetchCacheTTL:      time.Minute,
			ResolveParallelism: 2,
		},
		Render:      config.RenderDefaults{FrameRate: "reduced", Resolution: "standard"},
		CTAMediaURL: "/assets/subscribe.mp4",
	}
	require.NoError(t, EnsureDirectories(cfg))

	client, err := backend.NewHTTPClient(cfg.Backend, utils.NewMetricsCollector())
	require.NoError(t, err)
	return cfg, client
}

func TestEnsureDirectories(t *testing.T) {
	cfg, _ := setupTest(t)
	for _, dir := range []string{cfg.DataDir, filepath.Join(cfg.DataDir, "drafts"), cfg.LogDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestNewAppliesRenderDefaults(t *testing.T) {
	cfg, client := setupTest(t)
	a, err := NewWithBackend(cfg, client, utils.NewMetricsCollector())
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	render := a.Project.Render()
	assert.Equal(t, "reduced", render.FrameRate)
	assert.Equal(t, "standard", render.Resolution)
}

func TestShutdownSavesDraftAndNewRestoresIt(t *testing.T) {
	cfg, client := setupTest(t)
	a, err := NewWithBackend(cfg, client, utils.NewMetricsCollector())
	require.NoError(t, err)

	a.Project.SetScriptText("Hello world.")
	list, err := a.Project.SplitScript(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NoError(t, a.Shutdown(context.Background()))

	_, err = os.Stat(filepath.Join(cfg.DataDir, "drafts", DefaultProjectID+".json"))
	require.NoError(t, err)

	b, err := NewWithBackend(cfg, client, utils.NewMetricsCollector())
	require.NoError(t, err)
	defer b.Shutdown(context.Background())

	restored := b.Project.Scenes.Scenes()
	require.Len(t, restored, 2)
	assert.Equal(t, list[0].ID, restored[0].ID)
	assert.Equal(t, "Hello world.", b.Project.Script().Text)
	assert.True(t, restored[1].IsPinned())
}

func TestShutdownIsIdempotent(t *testing.T) {
	cfg, client := setupTest(t)
	a, err := NewWithBackend(cfg, client, utils.NewMetricsCollector())
	require.NoError(t, err)

	require.NoError(t, a.Shutdown(context.Background()))
	assert.NoError(t, a.Shutdown(context.Background()))
}

func TestRouterServesHealth(t *testing.T) {
	cfg, client := setupTest(t)
	a, err := NewWithBackend(cfg, client, utils.NewMetricsCollector())
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAutosaverWritesAfterChange(t *testing.T) {
	cfg, client := setupTest(t)
	a, err := NewWithBackend(cfg, client, utils.NewMetricsCollector())
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	saver := newAutosaver(a.Project, 10*time.Millisecond)
	go saver.run()
	defer saver.stop()

	a.Project.Scenes.Split([]string{"One.", "Two."})
	for i := 0; i < 3; i++ {
		saver.notify()
	}

	path := filepath.Join(cfg.DataDir, "drafts", DefaultProjectID+".json")
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	d, err := a.Drafts.LoadDraft(DefaultProjectID)
	require.NoError(t, err)
	assert.Len(t, d.Scenes, 3)
	assert.Equal(t, models.PinnedSceneText, d.Scenes[2].Text)
}

func TestRestartLogsDraftRestoreOnce(t *testing.T) {
	cfg, client := setupTest(t)
	a, err := NewWithBackend(cfg, client, utils.NewMetricsCollector())
	require.NoError(t, err)
	a.Project.Scenes.Split([]string{"One."})
	require.NoError(t, a.Shutdown(context.Background()))

	backing := utils.GetLogger().Logrus()
	var buf bytes.Buffer
	out := backing.Out
	backing.SetOutput(&buf)
	defer backing.SetOutput(out)

	cfg.LogLevel = "info"
	b, err := NewWithBackend(cfg, client, utils.NewMetricsCollector())
	require.NoError(t, err)
	defer b.Shutdown(context.Background())
	defer utils.GetLogger().SetLevel("error")

	assert.Equal(t, 1, strings.Count(buf.String(), "draft restored"))
}
