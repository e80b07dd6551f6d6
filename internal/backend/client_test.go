package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/SceneComposer/internal/config"
	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/utils"
)

func newTestClient(t *testing.T, h http.Handler) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(config.BackendConfig{
		BaseURL:       srv.URL,
		Token:         "secret",
		StatusTimeout: time.Second,
	}, utils.NewMetricsCollector())
	require.NoError(t, err)
	return c, srv
}

func collect(t *testing.T, ch <-chan Chunk) ([]Chunk, string) {
	t.Helper()
	var chunks []Chunk
	var sb strings.Builder
	for c := range ch {
		chunks = append(chunks, c)
		if c.Kind == ChunkData {
			sb.WriteString(c.Text)
		}
	}
	return chunks, sb.String()
}

func TestNewHTTPClientRejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient(config.BackendConfig{BaseURL: "not a url"}, utils.NewMetricsCollector())
	assert.Error(t, err)
}

func TestStreamSSE(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scripts/generate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "space", body["subject"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "data: Hello\n\n")
		fmt.Fprint(w, "data: {\"text\":\" world\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))

	ch, err := c.GenerateScript(context.Background(), GenerateScriptRequest{
		GenerationConfig: models.GenerationConfig{Subject: "space"},
	})
	require.NoError(t, err)

	chunks, text := collect(t, ch)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, ChunkDone, chunks[len(chunks)-1].Kind)
}

func TestStreamSSEErrorEvent(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: partial\n\n")
		fmt.Fprint(w, "data: {\"error\":\"model overloaded\"}\n\n")
	}))

	ch, err := c.EnhanceSentence(context.Background(), EnhanceSentenceRequest{Sentence: "x"})
	require.NoError(t, err)

	chunks, _ := collect(t, ch)
	last := chunks[len(chunks)-1]
	assert.Equal(t, ChunkError, last.Kind)
	assert.EqualError(t, last.Err, "model overloaded")
}

func TestStreamRawText(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		flusher := w.(http.Flusher)
		for _, part := range []string{"AB", "CD", "EF"} {
			fmt.Fprint(w, part)
			flusher.Flush()
		}
	}))

	ch, err := c.EnhanceScript(context.Background(), EnhanceScriptRequest{Script: "old"})
	require.NoError(t, err)

	chunks, text := collect(t, ch)
	assert.Equal(t, "ABCDEF", text)
	assert.Equal(t, ChunkDone, chunks[len(chunks)-1].Kind)
}

func TestStreamStatusError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))

	_, err := c.GenerateScript(context.Background(), GenerateScriptRequest{})
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, "nope", se.Body)
}

func TestSplitScript(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "A. B.", body["script"])
		json.NewEncoder(w).Encode(map[string][]string{"sentences": {"A.", "B."}})
	}))

	sentences, err := c.SplitScript(context.Background(), "A. B.")
	require.NoError(t, err)
	assert.Equal(t, []string{"A.", "B."}, sentences)
}

func TestGenerateImageRequiresImage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"prompt": "a cat"})
	}))

	_, err := c.GenerateImage(context.Background(), ImageRequest{Sentence: "cat"})
	assert.Error(t, err)
}

func TestSubmitVideoMultipart(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/videos/generate", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		var sentences []string
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("sentences")), &sentences))
		assert.Equal(t, []string{"one", "two"}, sentences)

		var scenes []map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("scenes")), &scenes))
		require.Len(t, scenes, 2)
		assert.Equal(t, "img-7", scenes[1]["saved_id"])

		var render models.RenderConfig
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("config")), &render))
		assert.Equal(t, "reduced", render.Resolution)

		voice, _, err := r.FormFile("voice_over")
		require.NoError(t, err)
		data, _ := io.ReadAll(voice)
		assert.Equal(t, "mp3", string(data))

		_, hdr, err := r.FormFile("media_0")
		require.NoError(t, err)
		assert.Equal(t, "scene.png", hdr.Filename)
		_, _, err = r.FormFile("media_1")
		assert.Error(t, err, "saved media is sent by reference")

		json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "queued"})
	}))

	handle, err := c.SubmitVideo(context.Background(), Submission{
		VoiceOver: models.VoiceOver{Filename: "voice.mp3", ContentType: "audio/mpeg", Data: []byte("mp3")},
		Sentences: []string{"one", "two"},
		Scenes: []SceneMedia{
			{Index: 0, Mode: models.ModeSingle, Type: models.MediaImage, File: &Upload{Filename: "scene.png", ContentType: "image/png", Data: []byte{1}}},
			{Index: 1, Mode: models.ModeSingle, Type: models.MediaImage, SavedID: "img-7"},
		},
		Render: models.RenderConfig{FrameRate: "standard", Resolution: "reduced"},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", handle.ID)
	assert.Equal(t, "queued", handle.Status)
}

func TestJobStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/videos/jobs/job-1", r.URL.Path)
		fmt.Fprint(w, `{"status":"completed","error":null,"url":"https://cdn.example.com/out.mp4"}`)
	}))

	st, err := c.JobStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", st.Status)
	assert.Nil(t, st.Error)
	require.NotNil(t, st.URL)
	assert.Equal(t, "https://cdn.example.com/out.mp4", *st.URL)
}

func TestFetchResolvesRelativeRef(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assets/subscribe.mp4" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("mp4-bytes"))
	}))

	ref, err := c.ResolveRef("/assets/subscribe.mp4")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/assets/subscribe.mp4", ref)

	media, err := c.Fetch(context.Background(), "/assets/subscribe.mp4")
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", media.ContentType)
	assert.Equal(t, "mp4-bytes", string(media.Data))

	_, err = c.Fetch(context.Background(), "/missing.png")
	assert.Error(t, err)
}

func TestStreamSSEJoinsMultilineEvents(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: First paragraph.\ndata: Second paragraph.\n\n")
		fmt.Fprint(w, "event: note\ndata: \n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))

	ch, err := c.GenerateScript(context.Background(), GenerateScriptRequest{
		GenerationConfig: models.GenerationConfig{Subject: "space"},
	})
	require.NoError(t, err)

	chunks, text := collect(t, ch)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", text)
	assert.Equal(t, ChunkDone, chunks[len(chunks)-1].Kind)
}

func TestStreamSSEFlushesEventAtEOF(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: one\ndata: two")
	}))

	ch, err := c.EnhanceScript(context.Background(), EnhanceScriptRequest{Script: "old"})
	require.NoError(t, err)

	chunks, text := collect(t, ch)
	assert.Equal(t, "one\ntwo", text)
	assert.Equal(t, ChunkDone, chunks[len(chunks)-1].Kind)
}
