// internal/services/task_tracker.go
package services

import (
	"fmt"
	"sync"
	"time"

	apperrors "github.com/Corphon/SceneComposer/internal/errors"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// TaskKind names one kind of in-flight work on a scene
type TaskKind string

const (
	TaskImage      TaskKind = "image"
	TaskStartImage TaskKind = "start_image"
	TaskEndImage   TaskKind = "end_image"
	TaskClip       TaskKind = "clip"
	TaskSaveImage  TaskKind = "save_image"
	TaskEnhance    TaskKind = "enhance"
)

// TaskInfo describes one in-flight task
type TaskInfo struct {
	Kind      TaskKind  `json:"kind"`
	StartedAt time.Time `json:"started_at"`
}

// TaskTracker is the side-table of transient per-scene flags, keyed by scene id.
// It rejects a second trigger of the same kind on the same scene instead of queueing it.
type TaskTracker struct {
	mu      sync.Mutex
	tasks   map[string]map[TaskKind]time.Time
	metrics *utils.MetricsCollector
}

// NewTaskTracker creates an empty tracker
func NewTaskTracker(metrics *utils.MetricsCollector) *TaskTracker {
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	return &TaskTracker{
		tasks:   make(map[string]map[TaskKind]time.Time),
		metrics: metrics,
	}
}

// TryStart marks kind as running on sceneID. The returned release func must be called
// once the work finishes; calling it more than once is harmless.
func (t *TaskTracker) TryStart(sceneID string, kind TaskKind) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	flags, exists := t.tasks[sceneID]
	if !exists {
		flags = make(map[TaskKind]time.Time)
		t.tasks[sceneID] = flags
	}
	if _, busy := flags[kind]; busy {
		return nil, apperrors.NewBusyError(fmt.Sprintf("%s is already running for this scene", describeTask(kind)), nil)
	}
	flags[kind] = time.Now()
	t.metrics.TaskStarted(string(kind))

	var once sync.Once
	return func() {
		once.Do(func() { t.finish(sceneID, kind) })
	}, nil
}

func (t *TaskTracker) finish(sceneID string, kind TaskKind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	flags, exists := t.tasks[sceneID]
	if !exists {
		return
	}
	if _, running := flags[kind]; !running {
		return
	}
	delete(flags, kind)
	if len(flags) == 0 {
		delete(t.tasks, sceneID)
	}
	t.metrics.TaskFinished(string(kind))
}

// IsActive reports whether kind is running on sceneID
func (t *TaskTracker) IsActive(sceneID string, kind TaskKind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, active := t.tasks[sceneID][kind]
	return active
}

// Tasks lists the running tasks of one scene
func (t *TaskTracker) Tasks(sceneID string) []TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	flags := t.tasks[sceneID]
	out := make([]TaskInfo, 0, len(flags))
	for kind, started := range flags {
		out = append(out, TaskInfo{Kind: kind, StartedAt: started})
	}
	return out
}

// Snapshot returns every scene with running tasks
func (t *TaskTracker) Snapshot() map[string][]TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string][]TaskInfo, len(t.tasks))
	for id, flags := range t.tasks {
		infos := make([]TaskInfo, 0, len(flags))
		for kind, started := range flags {
			infos = append(infos, TaskInfo{Kind: kind, StartedAt: started})
		}
		out[id] = infos
	}
	return out
}

func describeTask(kind TaskKind) string {
	switch kind {
	case TaskImage:
		return "image generation"
	case TaskStartImage:
		return "start frame generation"
	case TaskEndImage:
		return "end frame generation"
	case TaskClip:
		return "clip generation"
	case TaskSaveImage:
		return "saving the image"
	case TaskEnhance:
		return "sentence enhancement"
	}
	return string(kind)
}
