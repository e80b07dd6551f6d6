// internal/backend/client.go
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/Corphon/SceneComposer/internal/config"
	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// maxErrorBody caps how much of a failed response is kept for the error message
const maxErrorBody = 2048

// StatusError is a non-success HTTP response from the backend
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend %s returned %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("backend %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// HTTPClient talks to the render service over HTTP
type HTTPClient struct {
	baseURL       *url.URL
	token         string
	client        *http.Client
	statusTimeout time.Duration
	metrics       *utils.MetricsCollector
	logger        *utils.Logger
}

// NewHTTPClient builds a client from the backend section of the config
func NewHTTPClient(cfg config.BackendConfig, metrics *utils.MetricsCollector) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q: scheme and host are required", cfg.BaseURL)
	}
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	return &HTTPClient{
		baseURL:       base,
		token:         cfg.Token,
		client:        &http.Client{Timeout: cfg.Timeout},
		statusTimeout: cfg.StatusTimeout,
		metrics:       metrics,
		logger:        utils.GetLogger(),
	}, nil
}

// ResolveRef turns a relative reference into an absolute URL on the backend
func (c *HTTPClient) ResolveRef(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid media reference %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	return c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(u.Path, "/"), RawQuery: u.RawQuery}).String(), nil
}

func (c *HTTPClient) endpoint(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")}).String()
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends req and checks the status code. The caller closes the body on success.
func (c *HTTPClient) do(req *http.Request, name string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err == nil && resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		err = &StatusError{Endpoint: name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		resp = nil
	}
	c.metrics.RecordBackendRequest(name, err, time.Since(start))
	if err != nil {
		c.logger.Warn("backend request failed", map[string]interface{}{
			"endpoint": name,
			"error":    err.Error(),
		})
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data), "application/json")
	if err != nil {
		return err
	}
	resp, err := c.do(req, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) stream(ctx context.Context, path string, payload interface{}) (<-chan Chunk, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data), "application/json")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream, text/plain")
	resp, err := c.do(req, path)
	if err != nil {
		return nil, err
	}
	return readStream(ctx, resp.Body, resp.Header.Get("Content-Type")), nil
}

// GenerateScript streams a new script
func (c *HTTPClient) GenerateScript(ctx context.Context, req GenerateScriptRequest) (<-chan Chunk, error) {
	return c.stream(ctx, "/scripts/generate", req)
}

// EnhanceScript streams a rewrite of the script
func (c *HTTPClient) EnhanceScript(ctx context.Context, req EnhanceScriptRequest) (<-chan Chunk, error) {
	return c.stream(ctx, "/scripts/enhance", req)
}

// EnhanceSentence streams a rewrite of one sentence
func (c *HTTPClient) EnhanceSentence(ctx context.Context, req EnhanceSentenceRequest) (<-chan Chunk, error) {
	return c.stream(ctx, "/sentences/enhance", req)
}

// SplitScript asks the backend to cut the script into sentences
func (c *HTTPClient) SplitScript(ctx context.Context, script string) ([]string, error) {
	var resp struct {
		Sentences []string `json:"sentences"`
	}
	if err := c.postJSON(ctx, "/scripts/split", map[string]string{"script": script}, &resp); err != nil {
		return nil, err
	}
	return resp.Sentences, nil
}

// GenerateImage produces one inline image for a sentence
func (c *HTTPClient) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	var result ImageResult
	if err := c.postJSON(ctx, "/images/generate", req, &result); err != nil {
		return nil, err
	}
	if result.Image == "" {
		return nil, fmt.Errorf("backend /images/generate returned no image")
	}
	return &result, nil
}

// InterpolateFrames turns a frame pair into a clip
func (c *HTTPClient) InterpolateFrames(ctx context.Context, req InterpolateRequest) (*ClipResult, error) {
	form := newForm()
	form.file("start_image", req.Start)
	form.file("end_image", req.End)
	if req.Prompt != "" {
		form.field("prompt", req.Prompt)
	}

	var result ClipResult
	if err := c.postForm(ctx, "/videos/interpolate", form, &result); err != nil {
		return nil, err
	}
	if result.URL == "" {
		return nil, fmt.Errorf("backend /videos/interpolate returned no clip")
	}
	return &result, nil
}

// SaveImage persists an image and returns its durable identity
func (c *HTTPClient) SaveImage(ctx context.Context, img Upload) (*SavedMedia, error) {
	form := newForm()
	form.file("image", img)

	var saved SavedMedia
	if err := c.postForm(ctx, "/images", form, &saved); err != nil {
		return nil, err
	}
	if saved.ID == "" {
		return nil, fmt.Errorf("backend /images returned no id")
	}
	return &saved, nil
}

// SubmitVideo sends the assembled render request
func (c *HTTPClient) SubmitVideo(ctx context.Context, sub Submission) (*models.JobHandle, error) {
	form := newForm()
	form.file("voice_over", Upload{
		Filename:    sub.VoiceOver.Filename,
		ContentType: sub.VoiceOver.ContentType,
		Data:        sub.VoiceOver.Data,
	})
	form.json("sentences", sub.Sentences)
	form.json("scenes", sub.Scenes)
	form.json("config", sub.Render)
	for _, sm := range sub.Scenes {
		if sm.File != nil {
			form.file(fmt.Sprintf("media_%d", sm.Index), *sm.File)
		}
	}

	var handle models.JobHandle
	if err := c.postForm(ctx, "/videos/generate", form, &handle); err != nil {
		return nil, err
	}
	if handle.ID == "" {
		return nil, fmt.Errorf("backend /videos/generate returned no job id")
	}
	return &handle, nil
}

// JobStatus reads the current state of a render job
func (c *HTTPClient) JobStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	if c.statusTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.statusTimeout)
		defer cancel()
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/videos/jobs/"+url.PathEscape(jobID), nil, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, "/videos/jobs")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status models.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode job status: %w", err)
	}
	return &status, nil
}

// Fetch downloads a remote or library asset
func (c *HTTPClient) Fetch(ctx context.Context, ref string) (*FetchedMedia, error) {
	target, err := c.ResolveRef(ref)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	// Only send credentials to the backend itself
	if c.token != "" && strings.HasPrefix(target, c.baseURL.String()) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.do(req, "fetch")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetched %s is empty", target)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &FetchedMedia{Data: data, ContentType: contentType}, nil
}

func (c *HTTPClient) postForm(ctx context.Context, path string, form *formBuilder, out interface{}) error {
	body, contentType, err := form.finish()
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body, contentType)
	if err != nil {
		return err
	}
	resp, err := c.do(req, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// formBuilder accumulates a multipart body and remembers the first write error
type formBuilder struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *formBuilder {
	f := &formBuilder{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *formBuilder) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.w.WriteField(name, value)
}

func (f *formBuilder) json(name string, v interface{}) {
	if f.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		f.err = err
		return
	}
	f.err = f.w.WriteField(name, string(data))
}

func (f *formBuilder) file(name string, u Upload) {
	if f.err != nil {
		return
	}
	filename := u.Filename
	if filename == "" {
		filename = name
	}
	contentType := u.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(u.Data)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, name, escapeQuotes(filename)))
	h.Set("Content-Type", contentType)
	part, err := f.w.CreatePart(h)
	if err != nil {
		f.err = err
		return
	}
	_, f.err = part.Write(u.Data)
}

func (f *formBuilder) finish() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if err := f.w.Close(); err != nil {
		return nil, "", err
	}
	return &f.buf, f.w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
