package ai

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairJSON(t *testing.T) {
	t.Run("Balanced input is returned unchanged", func(t *testing.T) {
		in := `{"a": [1, 2], "b": {"c": "d"}}`
		assert.Equal(t, in, RepairJSON(in))
	})

	t.Run("Idempotent on repaired output", func(t *testing.T) {
		fixed := RepairJSON(`{"a": [1,2`)
		assert.Equal(t, fixed, RepairJSON(fixed))
	})

	t.Run("Appends minimal closing suffix", func(t *testing.T) {
		out := RepairJSON(`{"a": [1,2`)
		assert.True(t, strings.HasSuffix(out, `]}`), "ожидался суффикс ]}, получено: %s", out)
		assert.Equal(t, 1, strings.Count(out, "]"))
		assert.Equal(t, 1, strings.Count(out, "}"))

		var parsed map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	})

	t.Run("Closes dangling quote before brackets", func(t *testing.T) {
		out := RepairJSON(`{"a": "unterminated`)
		var parsed map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &parsed))
		assert.Equal(t, "unterminated", parsed["a"])
	})

	t.Run("Braces inside strings are not counted", func(t *testing.T) {
		in := `{"a": "value with { and ["}`
		assert.Equal(t, in, RepairJSON(in))
	})

	t.Run("Empty input", func(t *testing.T) {
		assert.Equal(t, "", RepairJSON(""))
	})
}

func TestExtractJSON(t *testing.T) {
	t.Run("Fenced json block", func(t *testing.T) {
		in := "Вот результат:\n```json\n{\"a\": 1}\n```\nНадеюсь, помог."
		assert.Equal(t, `{"a": 1}`, ExtractJSON(in))
	})

	t.Run("Bare fence", func(t *testing.T) {
		in := "```\n{\"a\": 1}\n```"
		assert.Equal(t, `{"a": 1}`, ExtractJSON(in))
	})

	t.Run("Leading prose before object", func(t *testing.T) {
		in := `Here is the scene: {"id": "scene_1"}`
		assert.Equal(t, `{"id": "scene_1"}`, ExtractJSON(in))
	})

	t.Run("Plain json untouched", func(t *testing.T) {
		in := `{"a": 1}`
		assert.Equal(t, in, ExtractJSON(in))
	})
}
