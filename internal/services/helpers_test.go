package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Corphon/SceneComposer/internal/backend"
	"github.com/Corphon/SceneComposer/internal/cache"
	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/utils"
)

const testCTA = "/assets/subscribe.mp4"

var errOffline = errors.New("backend offline")

// fakeBackend is a hand-written backend.Client double
type fakeBackend struct {
	mu sync.Mutex

	splitResult []string
	splitErr    error

	streamChunks []backend.Chunk
	streamErr    error
	lastEnhance  *backend.EnhanceSentenceRequest

	imageFn     func(ctx context.Context, req backend.ImageRequest) (*backend.ImageResult, error)
	imageCalls  int
	inFlight    int
	maxInFlight int

	clipURL  string
	savedID  string
	saveErr  error
	saveHook func()

	submitErr   error
	submissions []backend.Submission

	statusFn func(ctx context.Context, id string) (*models.JobStatus, error)

	fetch      map[string]*backend.FetchedMedia
	fetchCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		fetch: map[string]*backend.FetchedMedia{
			testCTA: {Data: []byte("cta-video"), ContentType: "video/mp4"},
		},
		clipURL: "https://cdn.example.com/clip.mp4",
		savedID: "img-1",
	}
}

var _ backend.Client = (*fakeBackend)(nil)

func (f *fakeBackend) stream() (<-chan backend.Chunk, error) {
	f.mu.Lock()
	chunks, err := f.streamChunks, f.streamErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ch := make(chan backend.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (f *fakeBackend) GenerateScript(ctx context.Context, req backend.GenerateScriptRequest) (<-chan backend.Chunk, error) {
	return f.stream()
}

func (f *fakeBackend) EnhanceScript(ctx context.Context, req backend.EnhanceScriptRequest) (<-chan backend.Chunk, error) {
	return f.stream()
}

func (f *fakeBackend) EnhanceSentence(ctx context.Context, req backend.EnhanceSentenceRequest) (<-chan backend.Chunk, error) {
	f.mu.Lock()
	f.lastEnhance = &req
	f.mu.Unlock()
	return f.stream()
}

func (f *fakeBackend) SplitScript(ctx context.Context, script string) ([]string, error) {
	return f.splitResult, f.splitErr
}

func (f *fakeBackend) GenerateImage(ctx context.Context, req backend.ImageRequest) (*backend.ImageResult, error) {
	f.mu.Lock()
	f.imageCalls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	fn := f.imageFn
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if fn != nil {
		return fn(ctx, req)
	}
	return &backend.ImageResult{Prompt: "prompt: " + req.Sentence, Image: "data:image/png;base64,iVBORw0KGgo="}, nil
}

func (f *fakeBackend) InterpolateFrames(ctx context.Context, req backend.InterpolateRequest) (*backend.ClipResult, error) {
	return &backend.ClipResult{URL: f.clipURL}, nil
}

func (f *fakeBackend) SaveImage(ctx context.Context, img backend.Upload) (*backend.SavedMedia, error) {
	if f.saveHook != nil {
		f.saveHook()
	}
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	return &backend.SavedMedia{ID: f.savedID, URL: "https://cdn.example.com/" + f.savedID + ".png"}, nil
}

func (f *fakeBackend) SubmitVideo(ctx context.Context, sub backend.Submission) (*models.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submissions = append(f.submissions, sub)
	return &models.JobHandle{ID: "job-1", Status: "queued"}, nil
}

func (f *fakeBackend) JobStatus(ctx context.Context, id string) (*models.JobStatus, error) {
	if f.statusFn != nil {
		return f.statusFn(ctx, id)
	}
	return &models.JobStatus{Status: "processing"}, nil
}

func (f *fakeBackend) Fetch(ctx context.Context, ref string) (*backend.FetchedMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if m, ok := f.fetch[ref]; ok {
		return m, nil
	}
	return nil, errOffline
}

func (f *fakeBackend) submissionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

type testEnv struct {
	backend  *fakeBackend
	metrics  *utils.MetricsCollector
	project  *ProjectService
	scenes   *SceneService
	resolver *ResolverService
	poller   *Poller
	jobs     *JobService
	tasks    *TaskTracker
	streams  *StreamService
	gen      *GenerationService
	scripts  *ScriptService
}

func newTestEnv(t *testing.T, fb *fakeBackend) *testEnv {
	t.Helper()
	metrics := utils.NewMetricsCollector()
	scenes := NewSceneService(fb, testCTA)
	resolver := NewResolverService(fb, cache.NewStore(time.Minute), 2, metrics)
	poller := NewPoller(fb, 5*time.Millisecond, metrics)
	jobs := NewJobService(fb, resolver, poller, metrics)
	project := NewProjectService("test", scenes, jobs, poller, models.DefaultRenderConfig(), nil)
	tasks := NewTaskTracker(metrics)
	streams := NewStreamService(metrics)
	t.Cleanup(poller.Stop)

	return &testEnv{
		backend:  fb,
		metrics:  metrics,
		project:  project,
		scenes:   scenes,
		resolver: resolver,
		poller:   poller,
		jobs:     jobs,
		tasks:    tasks,
		streams:  streams,
		gen:      NewGenerationService(fb, project, resolver, tasks),
		scripts:  NewScriptService(fb, streams, project, tasks),
	}
}

func pngSlot() *models.MediaSlot {
	return models.UploadedSlot(models.MediaImage, "scene.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
}

func texts(list models.SceneList) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Text
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
