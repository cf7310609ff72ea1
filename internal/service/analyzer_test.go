package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plottwist-server/internal/model"
	"plottwist-server/pkg/ai"
)

func testBookContent(text string) *model.BookContent {
	return &model.BookContent{
		Metadata: model.BookMetadata{Title: "A Study", Author: "Doyle", Pages: 1},
		Pages:    []model.PageContent{{Page: 1, Content: text}},
	}
}

func TestBookAnalyzer_Analyze(t *testing.T) {
	t.Run("Parses and normalizes oracle response", func(t *testing.T) {
		oracle := &fakeOracle{respond: func(req ai.Request) (string, error) {
			return `{"characters": [{"id": "holmes", "name": "Holmes"}], "plot": {"summary": "A detective story."}, "tone": "sharp"}`, nil
		}}
		a := NewBookAnalyzer(oracle, zap.NewNop())

		analysis := a.Analyze(context.Background(), testBookContent("Some text."))

		require.Len(t, analysis.Characters, 1)
		assert.Equal(t, "holmes", analysis.Characters[0].ID)
		// Missing fields are filled by normalization.
		assert.NotEmpty(t, analysis.Characters[0].Personality)
		assert.NotEmpty(t, analysis.Settings)
		assert.NotEmpty(t, analysis.Plot.KeyPoints)
		assert.Equal(t, "A Study", analysis.Metadata.Title)
	})

	t.Run("Oracle failure mines character names from text", func(t *testing.T) {
		a := NewBookAnalyzer(&fakeOracle{}, zap.NewNop())

		text := `Anna said nothing at first. Boris walked to the window. Anna said it again.`
		analysis := a.Analyze(context.Background(), testBookContent(text))

		names := make([]string, 0, len(analysis.Characters))
		for _, c := range analysis.Characters {
			names = append(names, c.Name)
		}
		assert.Contains(t, names, "Anna")
		assert.Contains(t, names, "Boris")
		// Duplicate mentions collapse to one character.
		assert.Len(t, analysis.Characters, 2)
	})

	t.Run("Oracle failure with no names yields default cast", func(t *testing.T) {
		a := NewBookAnalyzer(&fakeOracle{}, zap.NewNop())

		analysis := a.Analyze(context.Background(), testBookContent("no proper nouns here"))

		require.Len(t, analysis.Characters, 3)
		assert.Equal(t, "protagonist", analysis.Characters[0].ID)
		assert.Len(t, analysis.Plot.KeyPoints, 8)
		assert.Len(t, analysis.Settings, 3)
	})

	t.Run("Truncated response recovered by repair", func(t *testing.T) {
		oracle := &fakeOracle{respond: func(req ai.Request) (string, error) {
			return `{"characters": [{"id": "holmes", "name": "Holmes"}], "tone": "sharp`, nil
		}}
		a := NewBookAnalyzer(oracle, zap.NewNop())

		analysis := a.Analyze(context.Background(), testBookContent("Some text."))
		require.Len(t, analysis.Characters, 1)
		assert.Equal(t, "Holmes", analysis.Characters[0].Name)
	})
}

func TestSampleText(t *testing.T) {
	t.Run("Short text untouched", func(t *testing.T) {
		assert.Equal(t, "short", sampleText("short"))
	})

	t.Run("Large text sampled into four slices", func(t *testing.T) {
		text := strings.Repeat("a", 30000)
		sample := sampleText(text)

		assert.Less(t, len(sample), len(text))
		assert.Equal(t, 3, strings.Count(sample, "[...]"))
		assert.Equal(t, 4*sampleSliceSize+3*len("\n\n[...]\n\n"), len(sample))
	})
}
