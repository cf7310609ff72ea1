package service

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plottwist-server/internal/model"
)

func newTestScriptService(oracle *fakeOracle) *ScriptService {
	s := NewScriptService(oracle, 5, rand.New(rand.NewSource(1)), zap.NewNop())
	s.synthesizer.waitInterval = time.Millisecond
	s.synthesizer.waitAttempts = 1
	return s
}

func TestScriptService_GenerateScript(t *testing.T) {
	t.Run("Oracle down still yields a connected script", func(t *testing.T) {
		s := newTestScriptService(&fakeOracle{})
		analysis := testAnalysis()

		script := s.GenerateScript(context.Background(), analysis)

		require.NotNil(t, script)
		assert.Equal(t, "A Study: Interactive Edition", script.Title)
		// Fallback outline produces two placeholder scenes.
		require.Len(t, script.Scenes, 2)

		ids := make(map[string]struct{})
		for _, scene := range script.Scenes {
			ids[scene.ID] = struct{}{}
		}

		// No dangling references after repair.
		for _, scene := range script.Scenes {
			for _, line := range scene.Dialogue {
				for _, choice := range line.Choices {
					if choice.NextScene == "exit" {
						continue
					}
					_, ok := ids[choice.NextScene]
					assert.True(t, ok, "dangling reference %s -> %s", scene.ID, choice.NextScene)
				}
			}
		}

		// Visual enrichment replaced backgrounds with generated assets.
		for _, scene := range script.Scenes {
			assert.True(t, strings.HasPrefix(scene.Background, "data:image/svg+xml"), "scene %s background not enriched", scene.ID)
		}

		// Scenes are recorded into the session cache.
		for id := range ids {
			_, ok := s.Cache().Scene(id)
			assert.True(t, ok)
		}
	})

	t.Run("Regeneration resets the session", func(t *testing.T) {
		s := newTestScriptService(&fakeOracle{})
		analysis := testAnalysis()

		s.GenerateScript(context.Background(), analysis)
		s.Cache().Complete("scene_leftover", sceneWithChoice("scene_leftover", "exit"))

		s.GenerateScript(context.Background(), analysis)
		_, ok := s.Cache().Scene("scene_leftover")
		assert.False(t, ok)
	})
}

func TestScriptService_ExpandScene(t *testing.T) {
	t.Run("Cached scene returned without synthesis", func(t *testing.T) {
		oracle := &fakeOracle{}
		s := newTestScriptService(oracle)
		s.Cache().Reset(testAnalysis())
		s.Cache().Complete("scene_1", sceneWithChoice("scene_1", "scene_2"))

		scene := s.ExpandScene(context.Background(), "scene_1")
		assert.Equal(t, "scene_1", scene.ID)
		assert.Equal(t, 0, oracle.callCount())
	})

	t.Run("Graph-known id inherits context from incoming edges", func(t *testing.T) {
		oracle := &fakeOracle{}
		s := newTestScriptService(oracle)
		s.Cache().Reset(testAnalysis())

		source := sceneWithChoice("scene_1", "scene_2")
		source.Characters = []model.SceneCharacter{{ID: "holmes"}}
		s.Cache().Complete("scene_1", source)

		scene := s.ExpandScene(context.Background(), "scene_2")

		// Oracle is down, so the placeholder carries the inferred outline's
		// description as its second narration line.
		require.GreaterOrEqual(t, len(scene.Dialogue), 2)
		assert.Contains(t, scene.Dialogue[1].Text, "Continuation of the story from scene_1")

		_, ok := s.Cache().Scene("scene_2")
		assert.True(t, ok)
	})

	t.Run("Unknown id gets generic continuation", func(t *testing.T) {
		s := newTestScriptService(&fakeOracle{})
		s.Cache().Reset(testAnalysis())

		scene := s.ExpandScene(context.Background(), "scene_unknown")

		require.GreaterOrEqual(t, len(scene.Dialogue), 2)
		assert.Equal(t, "Continuation of the adventure", scene.Dialogue[1].Text)

		last := scene.Dialogue[len(scene.Dialogue)-1]
		targets := make([]string, 0, len(last.Choices))
		for _, choice := range last.Choices {
			targets = append(targets, choice.NextScene)
		}
		assert.Equal(t, []string{"scene_next", "scene_alt"}, targets)
	})
}
