package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plottwist-server/internal/model"
	"plottwist-server/pkg/ai"
)

// fakeOracle scripts the oracle's behavior and counts calls.
type fakeOracle struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	respond func(req ai.Request) (string, error)
}

func (f *fakeOracle) GenerateJSON(ctx context.Context, req ai.Request) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.respond == nil {
		return "", errors.New("oracle unavailable")
	}
	return f.respond(req)
}

func (f *fakeOracle) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testAnalysis() *model.LiteraryAnalysis {
	return NewAnalysisValidator().Normalize(&model.LiteraryAnalysis{
		Characters: []model.Character{
			{ID: "holmes", Name: "Holmes", Importance: "high"},
			{ID: "watson", Name: "Watson", Importance: "medium"},
		},
	}, model.BookMetadata{Title: "A Study", Author: "Doyle"})
}

func newTestSynthesizer(oracle ai.Client) (*SceneSynthesizer, *StoryCache) {
	cache := NewStoryCache()
	s := NewSceneSynthesizer(oracle, cache, rand.New(rand.NewSource(1)), zap.NewNop())
	s.waitInterval = 5 * time.Millisecond
	s.waitAttempts = 100
	return s, cache
}

func TestSceneSynthesizer_PlaceholderOnOracleFailure(t *testing.T) {
	oracle := &fakeOracle{}
	s, cache := newTestSynthesizer(oracle)

	outline := model.SceneOutline{
		ID:         "scene_x",
		Setting:    "A foggy street",
		Atmosphere: "Tense",
		ConnectsTo: []string{"scene_y"},
	}

	scene := s.Synthesize(context.Background(), outline, testAnalysis())

	assert.Equal(t, "scene_x", scene.ID)
	assert.Equal(t, "A foggy street", scene.Background)

	last := scene.Dialogue[len(scene.Dialogue)-1]
	require.Len(t, last.Choices, 1)
	assert.Equal(t, "Continue to scene_y", last.Choices[0].Text)
	assert.Equal(t, "scene_y", last.Choices[0].NextScene)

	// Placeholder still lands in the cache and releases the claim.
	cached, ok := cache.Scene("scene_x")
	assert.True(t, ok)
	assert.Equal(t, scene, cached)
	assert.False(t, cache.InFlight("scene_x"))
}

func TestSceneSynthesizer_PlaceholderGenericChoice(t *testing.T) {
	s, _ := newTestSynthesizer(&fakeOracle{})

	scene := s.Synthesize(context.Background(), model.SceneOutline{ID: "scene_x"}, testAnalysis())

	last := scene.Dialogue[len(scene.Dialogue)-1]
	require.Len(t, last.Choices, 1)
	assert.Equal(t, "Continue", last.Choices[0].Text)
	assert.Equal(t, "scene_next", last.Choices[0].NextScene)
}

func TestSceneSynthesizer_ParsesOracleResponse(t *testing.T) {
	oracle := &fakeOracle{respond: func(ai.Request) (string, error) {
		return `{"id": "ignored", "background": "street", "characters": [], "dialogue": [{"speaker": "Holmes", "text": "Observe.", "character": "holmes"}]}`, nil
	}}
	s, _ := newTestSynthesizer(oracle)

	scene := s.Synthesize(context.Background(), model.SceneOutline{ID: "scene_1"}, testAnalysis())

	assert.Equal(t, "scene_1", scene.ID, "outline id overrides whatever the oracle answered")
	require.Len(t, scene.Dialogue, 1)
	assert.Equal(t, "holmes", scene.Dialogue[0].CharacterID)
}

func TestSceneSynthesizer_RepairsTruncatedResponse(t *testing.T) {
	oracle := &fakeOracle{respond: func(ai.Request) (string, error) {
		return `{"id": "scene_1", "background": "street", "dialogue": [{"speaker": "Narrator", "text": "Fog rolls in."}`, nil
	}}
	s, _ := newTestSynthesizer(oracle)

	scene := s.Synthesize(context.Background(), model.SceneOutline{ID: "scene_1"}, testAnalysis())

	assert.Equal(t, "street", scene.Background)
	require.Len(t, scene.Dialogue, 1)
	assert.Equal(t, "Fog rolls in.", scene.Dialogue[0].Text)
}

func TestSceneSynthesizer_CachedSceneSkipsOracle(t *testing.T) {
	oracle := &fakeOracle{}
	s, cache := newTestSynthesizer(oracle)
	cache.Complete("scene_1", sceneWithChoice("scene_1", "scene_2"))

	scene := s.Synthesize(context.Background(), model.SceneOutline{ID: "scene_1"}, testAnalysis())

	assert.Equal(t, "scene_1", scene.ID)
	assert.Equal(t, 0, oracle.callCount())
}

func TestSceneSynthesizer_ConcurrentDedup(t *testing.T) {
	oracle := &fakeOracle{
		delay: 30 * time.Millisecond,
		respond: func(ai.Request) (string, error) {
			return `{"id": "scene_1", "background": "street", "dialogue": [{"speaker": "Narrator", "text": "..."}]}`, nil
		},
	}
	s, _ := newTestSynthesizer(oracle)

	outline := model.SceneOutline{ID: "scene_1"}
	analysis := testAnalysis()

	var wg sync.WaitGroup
	results := make([]model.Scene, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Synthesize(context.Background(), outline, analysis)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, oracle.callCount(), "only one caller should reach the oracle")
	assert.Equal(t, results[0], results[1])
}

func TestResolveCharacters(t *testing.T) {
	analysis := testAnalysis()

	t.Run("By id and case-insensitive name", func(t *testing.T) {
		resolved := resolveCharacters([]string{"holmes", "WATSON"}, analysis)
		require.Len(t, resolved, 2)
		assert.Equal(t, "holmes", resolved[0].ID)
		assert.Equal(t, "watson", resolved[1].ID)
	})

	t.Run("Unresolved references dropped silently", func(t *testing.T) {
		resolved := resolveCharacters([]string{"moriarty", "holmes"}, analysis)
		require.Len(t, resolved, 1)
		assert.Equal(t, "holmes", resolved[0].ID)
	})
}
