package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/SceneComposer/internal/errors"
	"github.com/Corphon/SceneComposer/internal/utils"
)

func TestTaskTracker(t *testing.T) {
	tr := NewTaskTracker(utils.NewMetricsCollector())

	release, err := tr.TryStart("s1", TaskImage)
	require.NoError(t, err)
	assert.True(t, tr.IsActive("s1", TaskImage))

	_, err = tr.TryStart("s1", TaskImage)
	assert.True(t, apperrors.IsBusyError(err))
	assert.Contains(t, apperrors.MessageOf(err), "image generation")

	other, err := tr.TryStart("s1", TaskClip)
	require.NoError(t, err, "different kinds run side by side")
	_, err = tr.TryStart("s2", TaskImage)
	require.NoError(t, err, "different scenes run side by side")

	assert.Len(t, tr.Tasks("s1"), 2)
	assert.Len(t, tr.Snapshot(), 2)

	release()
	release()
	other()
	assert.False(t, tr.IsActive("s1", TaskImage))
	assert.Empty(t, tr.Tasks("s1"))

	release, err = tr.TryStart("s1", TaskImage)
	require.NoError(t, err, "released kinds can start again")
	release()
}
