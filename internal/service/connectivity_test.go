package service

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plottwist-server/internal/model"
)

func newTestRepairer() *ConnectivityRepairer {
	return NewConnectivityRepairer(rand.New(rand.NewSource(1)), zap.NewNop())
}

func collectTargets(script *model.VNScript) map[string][]string {
	out := make(map[string][]string)
	for _, scene := range script.Scenes {
		for _, line := range scene.Dialogue {
			for _, choice := range line.Choices {
				out[scene.ID] = append(out[scene.ID], choice.NextScene)
			}
		}
	}
	return out
}

func TestConnectivityRepairer_DanglingReferences(t *testing.T) {
	t.Run("Orphan target falls back to first scene", func(t *testing.T) {
		script := &model.VNScript{Scenes: []model.Scene{
			sceneWithChoice("scene_1", "scene_2"),
			sceneWithChoice("scene_2", "scene_3"),
			sceneWithChoice("scene_3", "orphan"),
		}}

		unreachable := newTestRepairer().Repair(script)
		assert.Empty(t, unreachable)

		targets := collectTargets(script)
		assert.Equal(t, []string{"scene_1"}, targets["scene_3"])

		// Closure from scene_1 now covers every scene.
		for _, scene := range script.Scenes {
			for _, line := range scene.Dialogue {
				for _, choice := range line.Choices {
					assert.Contains(t, []string{"scene_1", "scene_2", "scene_3"}, choice.NextScene)
				}
			}
		}
	})

	t.Run("Substring match preferred over fallback", func(t *testing.T) {
		script := &model.VNScript{Scenes: []model.Scene{
			sceneWithChoice("scene_1", "forest"),
			sceneWithChoice("scene_forest", "scene_1"),
		}}

		newTestRepairer().Repair(script)
		targets := collectTargets(script)
		assert.Equal(t, []string{"scene_forest"}, targets["scene_1"])
	})

	t.Run("Exit sentinel is never retargeted", func(t *testing.T) {
		script := &model.VNScript{Scenes: []model.Scene{
			sceneWithChoice("scene_1", model.SceneExit),
		}}

		newTestRepairer().Repair(script)
		targets := collectTargets(script)
		assert.Equal(t, []string{model.SceneExit}, targets["scene_1"])
	})
}

func TestConnectivityRepairer_Reachability(t *testing.T) {
	t.Run("Unreachable scene gets a synthetic edge", func(t *testing.T) {
		script := &model.VNScript{Scenes: []model.Scene{
			sceneWithChoice("scene_1", "scene_2"),
			sceneWithChoice("scene_2", model.SceneExit),
			sceneWithChoice("scene_island", model.SceneExit),
		}}

		unreachable := newTestRepairer().Repair(script)
		assert.Empty(t, unreachable)

		found := false
		for _, scene := range script.Scenes {
			for _, line := range scene.Dialogue {
				for _, choice := range line.Choices {
					if choice.NextScene == "scene_island" {
						found = true
						assert.Equal(t, "Explore a different path", choice.Text)
					}
				}
			}
		}
		assert.True(t, found, "expected an edge into scene_island")
	})

	t.Run("No insertion point leaves scene unreachable and reported", func(t *testing.T) {
		script := &model.VNScript{Scenes: []model.Scene{
			{ID: "scene_1", Dialogue: []model.DialogueLine{
				{Speaker: "Narrator", Text: "No choices here."},
			}},
			sceneWithChoice("scene_island", model.SceneExit),
		}}

		unreachable := newTestRepairer().Repair(script)
		assert.Equal(t, []string{"scene_island"}, unreachable)
	})

	t.Run("Start set falls back to first scene when neither intro nor scene_1 exists", func(t *testing.T) {
		script := &model.VNScript{Scenes: []model.Scene{
			sceneWithChoice("scene_a", "scene_b"),
			sceneWithChoice("scene_b", model.SceneExit),
		}}

		unreachable := newTestRepairer().Repair(script)
		assert.Empty(t, unreachable)
	})

	t.Run("Empty script", func(t *testing.T) {
		script := &model.VNScript{}
		require.NotPanics(t, func() {
			assert.Empty(t, newTestRepairer().Repair(script))
		})
	})
}
