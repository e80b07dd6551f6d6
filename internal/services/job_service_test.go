package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/SceneComposer/internal/errors"
	"github.com/Corphon/SceneComposer/internal/models"
)

func voice() *models.VoiceOver {
	return &models.VoiceOver{Filename: "voice.mp3", ContentType: "audio/mpeg", Data: []byte("ID3")}
}

func readyInput(t *testing.T, env *testEnv, n int) SubmitInput {
	t.Helper()
	sentences := make([]string, n)
	for i := range sentences {
		sentences[i] = "Sentence."
	}
	for _, scene := range env.scenes.Split(sentences) {
		if scene.IsPinned() {
			continue
		}
		_, err := env.scenes.AttachMedia(scene.ID, models.SlotImage, pngSlot())
		require.NoError(t, err)
	}
	return SubmitInput{
		Script:    "Sentence.",
		VoiceOver: voice(),
		Scenes:    env.scenes.Scenes(),
		Render:    models.DefaultRenderConfig(),
	}
}

func TestValidateReportsEachPrecondition(t *testing.T) {
	env := newTestEnv(t, newFakeBackend())
	base := readyInput(t, env, 2)

	cases := map[string]func(in *SubmitInput){
		"the script is empty":      func(in *SubmitInput) { in.Script = "  " },
		"a voice-over is required": func(in *SubmitInput) { in.VoiceOver = nil },
		"there are no scenes yet":  func(in *SubmitInput) { in.Scenes = nil },
		"render settings are invalid": func(in *SubmitInput) {
			in.Render = models.RenderConfig{FrameRate: "fast", Resolution: "standard"}
		},
	}

	seen := map[string]bool{}
	for want, mutate := range cases {
		in := base
		mutate(&in)
		_, err := env.jobs.Submit(context.Background(), in)
		require.Error(t, err, want)
		assert.True(t, apperrors.IsValidationError(err), want)
		msg := apperrors.MessageOf(err)
		assert.Contains(t, msg, want)
		assert.False(t, seen[msg], "messages are distinct")
		seen[msg] = true
	}
	assert.Equal(t, 0, env.backend.submissionCount(), "no network call on a failed precondition")
	assert.Equal(t, models.PhaseNone, env.poller.State().Phase)
}

func TestValidateNamesScenesMissingMedia(t *testing.T) {
	env := newTestEnv(t, newFakeBackend())
	list := env.scenes.Split([]string{"One.", "Two.", "Three."})
	_, err := env.scenes.AttachMedia(list[0].ID, models.SlotImage, pngSlot())
	require.NoError(t, err)
	require.NoError(t, env.scenes.SetMediaMode(2, models.ModeFrames))

	_, err = env.jobs.Submit(context.Background(), SubmitInput{
		Script:    "One. Two. Three.",
		VoiceOver: voice(),
		Scenes:    env.scenes.Scenes(),
		Render:    models.DefaultRenderConfig(),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingMediaError(err))
	msg := apperrors.MessageOf(err)
	assert.Contains(t, msg, "scene 2 has no image or video")
	assert.Contains(t, msg, "scene 3 is in frames mode and has no generated clip")
	assert.NotContains(t, msg, "scene 1")
	assert.NotContains(t, msg, "scene 4")
	assert.Equal(t, 0, env.backend.submissionCount())
}

func TestSubmitThreeImageScenes(t *testing.T) {
	env := newTestEnv(t, newFakeBackend())
	in := readyInput(t, env, 2)
	require.Len(t, in.Scenes, 3)

	handle, err := env.jobs.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "job-1", handle.ID)

	require.Equal(t, 1, env.backend.submissionCount())
	sub := env.backend.submissions[0]
	assert.Equal(t, []string{"Sentence.", "Sentence.", models.PinnedSceneText}, sub.Sentences)
	require.Len(t, sub.Scenes, 3)
	for i, item := range sub.Scenes {
		assert.Equal(t, i, item.Index)
		require.NotNil(t, item.File, "scene %d is sent as bytes", i)
	}
	assert.Equal(t, models.MediaImage, sub.Scenes[0].Type)
	assert.Equal(t, models.MediaVideo, sub.Scenes[2].Type)
	assert.Equal(t, []byte("cta-video"), sub.Scenes[2].File.Data)
	assert.Equal(t, "voice.mp3", sub.VoiceOver.Filename)

	assert.NotEqual(t, models.PhaseNone, env.poller.State().Phase)
	assert.Equal(t, "job-1", env.poller.State().ID)
}

func TestSubmitSendsSavedMediaByReference(t *testing.T) {
	env := newTestEnv(t, newFakeBackend())
	in := readyInput(t, env, 1)
	saved := models.SlotFromRef("https://cdn.example.com/img-7.png", models.MediaImage, false)
	saved.SavedID = "img-7"
	_, err := env.scenes.AttachMedia(in.Scenes[0].ID, models.SlotImage, saved)
	require.NoError(t, err)
	in.Scenes = env.scenes.Scenes()

	_, err = env.jobs.Submit(context.Background(), in)
	require.NoError(t, err)

	item := env.backend.submissions[0].Scenes[0]
	assert.Equal(t, "img-7", item.SavedID)
	assert.Nil(t, item.File)
	assert.Equal(t, 1, env.backend.fetchCalls, "only the call-to-action video is fetched")
}

func TestSubmitFailureCreatesNoJob(t *testing.T) {
	fb := newFakeBackend()
	fb.submitErr = errOffline
	env := newTestEnv(t, fb)
	in := readyInput(t, env, 1)

	_, err := env.jobs.Submit(context.Background(), in)
	require.Error(t, err)
	assert.True(t, apperrors.IsNetworkError(err))
	assert.Equal(t, models.PhaseNone, env.poller.State().Phase)

	fb.mu.Lock()
	fb.submitErr = nil
	fb.mu.Unlock()
	_, err = env.jobs.Submit(context.Background(), in)
	assert.NoError(t, err, "retry after a failed submission")
}

func TestSubmitUnloadableMedia(t *testing.T) {
	env := newTestEnv(t, newFakeBackend())
	in := readyInput(t, env, 2)
	_, err := env.scenes.AttachMedia(in.Scenes[1].ID, models.SlotVideo,
		models.SlotFromRef("https://cdn.example.com/gone.mp4", models.MediaVideo, true))
	require.NoError(t, err)
	in.Scenes = env.scenes.Scenes()

	_, err = env.jobs.Submit(context.Background(), in)
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingMediaError(err))
	assert.Contains(t, apperrors.MessageOf(err), "scene 2")
	assert.Equal(t, 0, env.backend.submissionCount())
}

func TestProjectSubmitUsesProjectState(t *testing.T) {
	env := newTestEnv(t, newFakeBackend())
	env.project.SetScriptText("Hello world.")
	_, err := env.project.SplitScript(context.Background())
	require.NoError(t, err)

	_, err = env.project.Submit(context.Background())
	assert.True(t, apperrors.IsValidationError(err), "no voice-over yet")

	require.NoError(t, env.project.SetVoiceOver(voice()))
	_, err = env.project.Submit(context.Background())
	assert.True(t, apperrors.IsMissingMediaError(err))

	scene := env.scenes.Scenes()[0]
	_, err = env.scenes.AttachMedia(scene.ID, models.SlotImage, pngSlot())
	require.NoError(t, err)
	handle, err := env.project.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "job-1", handle.ID)
}
