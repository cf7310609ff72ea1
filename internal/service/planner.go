package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"plottwist-server/internal/model"
	"plottwist-server/pkg/ai"
)

// OutlinePlanner asks the oracle for a bounded set of scene outlines derived
// from the literary analysis. Planning never fails: any oracle or parse
// error degrades to a fixed fallback outline.
type OutlinePlanner struct {
	oracle ai.Client
	log    *zap.Logger
}

// NewOutlinePlanner creates a planner.
func NewOutlinePlanner(oracle ai.Client, log *zap.Logger) *OutlinePlanner {
	return &OutlinePlanner{oracle: oracle, log: log}
}

// Plan requests sceneLimit outlines in one oracle call. The oracle is tried
// exactly once; the fallback outline is the retry strategy.
func (p *OutlinePlanner) Plan(ctx context.Context, analysis *model.LiteraryAnalysis, sceneLimit int) []model.SceneOutline {
	raw, err := p.oracle.GenerateJSON(ctx, ai.Request{
		SystemPrompt: outlineSystemPrompt,
		UserPrompt:   buildOutlinePrompt(analysis, sceneLimit),
		Temperature:  0.7,
		MaxTokens:    2500,
	})
	if err != nil {
		p.log.Warn("Outline generation failed, using fallback outline", zap.Error(err))
		return fallbackOutline()
	}

	var outline model.ScriptOutline
	if err := json.Unmarshal([]byte(ai.ExtractJSON(raw)), &outline); err != nil || len(outline.Scenes) == 0 {
		p.log.Warn("Outline response unparseable, using fallback outline", zap.Error(err))
		return fallbackOutline()
	}

	if len(outline.Scenes) > sceneLimit {
		outline.Scenes = outline.Scenes[:sceneLimit]
	}
	p.log.Info("Generated script outline", zap.Int("planned_scenes", len(outline.Scenes)))
	return outline.Scenes
}

// fallbackOutline is a minimal intro-plus-branch skeleton used whenever the
// oracle cannot produce a usable outline.
func fallbackOutline() []model.SceneOutline {
	return []model.SceneOutline{
		{
			ID:            "scene_1",
			Description:   "Introduction to the story and main characters",
			CharacterIDs:  []string{"protagonist"},
			Setting:       "The main setting of the story",
			Atmosphere:    "Establishes the tone of the narrative",
			DialogueCount: 8,
			ConnectsTo:    []string{"scene_2a", "scene_2b"},
		},
		{
			ID:            "scene_2a",
			Description:   "The protagonist takes an active approach",
			CharacterIDs:  []string{"protagonist", "supporting"},
			Setting:       "A location that presents challenges",
			Atmosphere:    "Tense and action-oriented",
			DialogueCount: 7,
			ConnectsTo:    []string{"scene_3"},
		},
	}
}
