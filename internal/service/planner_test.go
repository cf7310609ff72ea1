package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plottwist-server/pkg/ai"
)

func TestOutlinePlanner_Plan(t *testing.T) {
	analysis := testAnalysis()

	t.Run("Parses oracle outline", func(t *testing.T) {
		oracle := &fakeOracle{respond: func(req ai.Request) (string, error) {
			return `{"scenes": [
				{"id": "scene_intro", "description": "Opening", "characters": ["holmes"], "setting": "Baker Street", "atmosphere": "Calm", "dialogue_count": 8, "connects_to": ["scene_2"]},
				{"id": "scene_2", "description": "The case", "characters": ["holmes", "watson"], "setting": "A crime scene", "atmosphere": "Grim", "dialogue_count": 7, "connects_to": []}
			]}`, nil
		}}

		outlines := NewOutlinePlanner(oracle, zap.NewNop()).Plan(context.Background(), analysis, 5)

		require.Len(t, outlines, 2)
		assert.Equal(t, "scene_intro", outlines[0].ID)
		assert.Equal(t, []string{"scene_2"}, outlines[0].ConnectsTo)
		assert.Equal(t, 7, outlines[1].DialogueCount)
	})

	t.Run("Trims to scene limit", func(t *testing.T) {
		oracle := &fakeOracle{respond: func(req ai.Request) (string, error) {
			return `{"scenes": [{"id": "a"}, {"id": "b"}, {"id": "c"}]}`, nil
		}}

		outlines := NewOutlinePlanner(oracle, zap.NewNop()).Plan(context.Background(), analysis, 2)
		assert.Len(t, outlines, 2)
	})

	t.Run("Oracle failure yields fallback outline", func(t *testing.T) {
		outlines := NewOutlinePlanner(&fakeOracle{}, zap.NewNop()).Plan(context.Background(), analysis, 5)

		require.Len(t, outlines, 2)
		assert.Equal(t, "scene_1", outlines[0].ID)
		assert.Equal(t, []string{"scene_2a", "scene_2b"}, outlines[0].ConnectsTo)
		assert.Equal(t, "scene_2a", outlines[1].ID)
	})

	t.Run("Unparseable response yields fallback outline", func(t *testing.T) {
		oracle := &fakeOracle{respond: func(req ai.Request) (string, error) {
			return "I could not produce an outline, sorry.", nil
		}}

		outlines := NewOutlinePlanner(oracle, zap.NewNop()).Plan(context.Background(), analysis, 5)
		require.Len(t, outlines, 2)
		assert.Equal(t, "scene_1", outlines[0].ID)
	})

	t.Run("Empty scenes array yields fallback outline", func(t *testing.T) {
		oracle := &fakeOracle{respond: func(req ai.Request) (string, error) {
			return `{"scenes": []}`, nil
		}}

		outlines := NewOutlinePlanner(oracle, zap.NewNop()).Plan(context.Background(), analysis, 5)
		assert.Len(t, outlines, 2)
	})
}
