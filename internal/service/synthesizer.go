package service

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"plottwist-server/internal/model"
	"plottwist-server/pkg/ai"
)

// synthOutcome is the result ladder of one synthesis attempt: the oracle call
// itself failed, the response parsed only after syntactic repair, or it
// parsed cleanly. The synthesizer turns the two failure rungs into a
// placeholder scene instead of an error.
type synthOutcome int

const (
	synthOracleFailed synthOutcome = iota
	synthParseFailed
	synthRecovered
	synthOK
)

// SceneSynthesizer produces one full scene from its outline via the oracle.
// Concurrent calls for the same scene id are deduplicated through the
// StoryCache claim protocol; every failure path ends in a deterministic
// placeholder scene, never an error.
type SceneSynthesizer struct {
	oracle ai.Client
	cache  *StoryCache
	log    *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	// Poll parameters for waiting on a foreign in-flight generation.
	// Overridable in tests; production values are 1s x 30.
	waitInterval time.Duration
	waitAttempts int
}

// NewSceneSynthesizer creates a synthesizer bound to one session cache.
// The rng is injected so repair and placeholder decisions are reproducible.
func NewSceneSynthesizer(oracle ai.Client, cache *StoryCache, rng *rand.Rand, log *zap.Logger) *SceneSynthesizer {
	return &SceneSynthesizer{
		oracle:       oracle,
		cache:        cache,
		log:          log,
		rng:          rng,
		waitInterval: time.Second,
		waitAttempts: 30,
	}
}

// Synthesize resolves or generates the scene for outline.ID.
//
// Protocol: a cached scene is returned as is; if another caller holds the
// generation claim, the cache is polled once per waitInterval for up to
// waitAttempts and the scene returned as soon as it appears. If the wait
// times out the other generator is treated as abandoned and this caller
// takes over. Whatever the outcome, the id always ends up in the cache and
// the claim is always released.
func (s *SceneSynthesizer) Synthesize(ctx context.Context, outline model.SceneOutline, analysis *model.LiteraryAnalysis) model.Scene {
	id := outline.ID

	scene, claim := s.cache.TryClaim(id)
	switch claim {
	case ClaimCached:
		s.log.Debug("Scene already cached", zap.String("scene_id", id))
		return scene
	case ClaimBusy:
		s.log.Info("Scene already being generated, waiting", zap.String("scene_id", id))
		if scene, ok := s.waitForScene(ctx, id); ok {
			return scene
		}
		s.log.Warn("Timed out waiting for scene, taking over generation", zap.String("scene_id", id))
		s.cache.ForceClaim(id)
	}
	defer s.cache.Release(id)

	scene, outcome := s.generate(ctx, outline, analysis)
	switch outcome {
	case synthOK:
		s.log.Info("Generated scene", zap.String("scene_id", id), zap.Int("dialogue_lines", len(scene.Dialogue)))
	case synthRecovered:
		s.log.Info("Generated scene after JSON repair", zap.String("scene_id", id))
	case synthParseFailed:
		s.log.Warn("Scene response unparseable, using placeholder", zap.String("scene_id", id))
		scene = s.placeholderScene(outline, analysis)
	case synthOracleFailed:
		s.log.Warn("Scene generation failed, using placeholder", zap.String("scene_id", id))
		scene = s.placeholderScene(outline, analysis)
	}

	s.cache.Complete(id, scene)
	return scene
}

// waitForScene polls the cache while a foreign generation is in flight.
func (s *SceneSynthesizer) waitForScene(ctx context.Context, id string) (model.Scene, bool) {
	ticker := time.NewTicker(s.waitInterval)
	defer ticker.Stop()
	for i := 0; i < s.waitAttempts; i++ {
		select {
		case <-ctx.Done():
			return model.Scene{}, false
		case <-ticker.C:
		}
		if scene, ok := s.cache.Scene(id); ok {
			return scene, true
		}
	}
	return model.Scene{}, false
}

func (s *SceneSynthesizer) generate(ctx context.Context, outline model.SceneOutline, analysis *model.LiteraryAnalysis) (model.Scene, synthOutcome) {
	characters := resolveCharacters(outline.CharacterIDs, analysis)
	dialogueCount := outline.DialogueCount
	if dialogueCount < 1 || dialogueCount > 20 {
		dialogueCount = s.randInt(6, 10)
	}

	raw, err := s.oracle.GenerateJSON(ctx, ai.Request{
		SystemPrompt: sceneSystemPrompt,
		UserPrompt:   buildScenePrompt(outline, characters, dialogueCount),
		Temperature:  0.8,
		MaxTokens:    3500,
	})
	if err != nil {
		s.log.Warn("Oracle call failed", zap.String("scene_id", outline.ID), zap.Error(err))
		return model.Scene{}, synthOracleFailed
	}

	text := ai.ExtractJSON(raw)

	var scene model.Scene
	if err := json.Unmarshal([]byte(text), &scene); err == nil {
		scene.ID = outline.ID
		return scene, synthOK
	}

	// One repair attempt, one reparse. Continued failure is terminal for
	// this response.
	repaired := ai.RepairJSON(text)
	if repaired != text {
		if err := json.Unmarshal([]byte(repaired), &scene); err == nil {
			scene.ID = outline.ID
			return scene, synthRecovered
		}
	}
	return model.Scene{}, synthParseFailed
}

// resolveCharacters maps outline character references to analysis records,
// matching by id or case-insensitive name. Unresolved references are
// dropped silently: stale ids from the planner are expected.
func resolveCharacters(ids []string, analysis *model.LiteraryAnalysis) []model.Character {
	var resolved []model.Character
	for _, ref := range ids {
		for _, c := range analysis.Characters {
			if c.ID == ref || strings.EqualFold(c.Name, ref) {
				resolved = append(resolved, c)
				break
			}
		}
	}
	return resolved
}

// placeholderScene builds the deterministic fallback scene: narration from
// the outline's setting and description, one generic line from the first
// resolved character, and a closing choice per connection target.
func (s *SceneSynthesizer) placeholderScene(outline model.SceneOutline, analysis *model.LiteraryAnalysis) model.Scene {
	var sceneChars []model.SceneCharacter
	for _, c := range resolveCharacters(outline.CharacterIDs, analysis) {
		sceneChars = append(sceneChars, model.SceneCharacter{
			ID:    c.ID,
			Image: "A character representing " + c.Name,
		})
	}
	if len(sceneChars) == 0 {
		sceneChars = append(sceneChars, model.SceneCharacter{
			ID:    "character",
			Image: "A person relevant to this scene",
		})
	}

	description := outline.Description
	if description == "" {
		description = "A scene in the story"
	}
	setting := outline.Setting
	if setting == "" {
		setting = "An important location"
	}
	atmosphere := outline.Atmosphere
	if atmosphere == "" {
		atmosphere = "Creates a specific mood"
	}

	dialogue := []model.DialogueLine{
		{Speaker: "Narrator", Text: setting + ". " + atmosphere + "."},
		{Speaker: "Narrator", Text: description},
	}

	first := sceneChars[0]
	dialogue = append(dialogue, model.DialogueLine{
		Speaker:     first.ID,
		Text:        "We need to proceed carefully in this situation.",
		CharacterID: first.ID,
	})

	var choices []model.Choice
	for _, conn := range outline.ConnectsTo {
		choices = append(choices, model.Choice{Text: "Continue to " + conn, NextScene: conn})
	}
	if len(choices) == 0 {
		choices = append(choices, model.Choice{Text: "Continue", NextScene: "scene_next"})
	}
	dialogue = append(dialogue, model.DialogueLine{
		Speaker: "Narrator",
		Text:    "What will you do next?",
		Choices: choices,
	})

	return model.Scene{
		ID:         outline.ID,
		Background: setting,
		Characters: sceneChars,
		Dialogue:   dialogue,
	}
}

// randInt returns a pseudo-random int in [min, max]. The shared rng is
// guarded because sibling scenes synthesize concurrently.
func (s *SceneSynthesizer) randInt(min, max int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return min + s.rng.Intn(max-min+1)
}
