package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/SceneComposer/internal/backend"
	apperrors "github.com/Corphon/SceneComposer/internal/errors"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// recordingTarget keeps every value written to it
type recordingTarget struct {
	mu     sync.Mutex
	text   string
	writes []string
}

func (r *recordingTarget) Get() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text
}

func (r *recordingTarget) Set(text string) {
	r.mu.Lock()
	r.text = text
	r.writes = append(r.writes, text)
	r.mu.Unlock()
}

func chunks(cs ...backend.Chunk) <-chan backend.Chunk {
	ch := make(chan backend.Chunk, len(cs))
	for _, c := range cs {
		ch <- c
	}
	close(ch)
	return ch
}

func TestConsumeAppendsChunks(t *testing.T) {
	svc := NewStreamService(utils.NewMetricsCollector())
	target := &recordingTarget{text: "old text"}

	text, err := svc.Consume(context.Background(), "scene:1",
		chunks(backend.DataChunk("AB"), backend.DataChunk("CD"), backend.DataChunk("EF"), backend.DoneChunk()), target)
	require.NoError(t, err)

	assert.Equal(t, "ABCDEF", text)
	assert.Equal(t, "ABCDEF", target.Get())
	assert.Equal(t, []string{"", "AB", "ABCD", "ABCDEF"}, target.writes, "cleared exactly once")
	assert.False(t, svc.IsActive("scene:1"))
}

func TestConsumeClosedWithoutDoneCompletes(t *testing.T) {
	svc := NewStreamService(utils.NewMetricsCollector())
	target := &recordingTarget{text: "old"}

	text, err := svc.Consume(context.Background(), "script", chunks(backend.DataChunk("new")), target)
	require.NoError(t, err)
	assert.Equal(t, "new", text)
	assert.Equal(t, "new", target.Get())
}

func TestConsumeErrorRestoresOriginal(t *testing.T) {
	svc := NewStreamService(utils.NewMetricsCollector())
	target := &recordingTarget{text: "keep me"}

	_, err := svc.Consume(context.Background(), "script",
		chunks(backend.DataChunk("AB"), backend.ErrorChunk(errors.New("upstream reset"))), target)
	require.Error(t, err)
	assert.True(t, apperrors.IsNetworkError(err))
	assert.Equal(t, "keep me", target.Get())
}

func TestConsumeEmptyStreamKeepsText(t *testing.T) {
	svc := NewStreamService(utils.NewMetricsCollector())
	target := &recordingTarget{text: "keep me"}

	_, err := svc.Consume(context.Background(), "script", chunks(backend.DoneChunk()), target)
	assert.True(t, apperrors.IsNetworkError(err))
	assert.Equal(t, "keep me", target.Get())
	assert.Empty(t, target.writes)
}

func TestConsumeCancelRestoresOriginal(t *testing.T) {
	svc := NewStreamService(utils.NewMetricsCollector())
	target := &recordingTarget{text: "keep me"}

	stream := make(chan backend.Chunk, 1)
	stream <- backend.DataChunk("partial")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Consume(ctx, "script", stream, target)
		done <- err
	}()

	waitFor(t, func() bool { return target.Get() == "partial" })
	cancel()

	err := <-done
	assert.True(t, apperrors.IsNetworkError(err))
	assert.Equal(t, "keep me", target.Get())
}

func TestSecondStreamOnSameTargetIsBusy(t *testing.T) {
	svc := NewStreamService(utils.NewMetricsCollector())
	target := &recordingTarget{}

	stream := make(chan backend.Chunk)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Consume(context.Background(), "scene:1", stream, target)
	}()
	waitFor(t, func() bool { return svc.IsActive("scene:1") })

	_, err := svc.Consume(context.Background(), "scene:1", chunks(backend.DataChunk("x")), target)
	assert.True(t, apperrors.IsBusyError(err))

	_, err = svc.Consume(context.Background(), "scene:2", chunks(backend.DataChunk("x")), &recordingTarget{})
	assert.NoError(t, err, "other targets are independent")

	stream <- backend.DataChunk("first")
	close(stream)
	<-done
	assert.Equal(t, "first", target.Get())
}

func TestRunOpenFailureLeavesTarget(t *testing.T) {
	svc := NewStreamService(utils.NewMetricsCollector())
	target := &recordingTarget{text: "keep me"}

	_, err := svc.Run(context.Background(), "script", func(ctx context.Context) (<-chan backend.Chunk, error) {
		return nil, errOffline
	}, target)
	assert.True(t, apperrors.IsNetworkError(err))
	assert.Equal(t, "keep me", target.Get())
	assert.Empty(t, target.writes)
	assert.False(t, svc.IsActive("script"))
}

func TestTargetKind(t *testing.T) {
	assert.Equal(t, "scene", targetKind("scene:abc"))
	assert.Equal(t, "script", targetKind("script"))
}

// checkedTarget refuses one exact text once a stream finishes
type checkedTarget struct {
	recordingTarget
	refuse string
}

func (c *checkedTarget) CheckText(text string) error {
	if text == c.refuse {
		return apperrors.NewValidationError("refused", nil)
	}
	return nil
}

func TestConsumeRollsBackRefusedText(t *testing.T) {
	svc := NewStreamService(utils.NewMetricsCollector())
	target := &checkedTarget{refuse: "BAD"}
	target.text = "original"

	_, err := svc.Consume(context.Background(), "scene:1", chunks(backend.DataChunk("BA"), backend.DataChunk("D"), backend.DoneChunk()), target)
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, "original", target.Get())

	text, err := svc.Consume(context.Background(), "scene:1", chunks(backend.DataChunk("BAD"), backend.DataChunk("!"), backend.DoneChunk()), target)
	require.NoError(t, err)
	assert.Equal(t, "BAD!", text)
	assert.Equal(t, "BAD!", target.Get())
}
