package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"plottwist-server/internal/model"
	"plottwist-server/pkg/ai"
)

// ScriptService orchestrates full-script generation and on-demand scene
// expansion for one book. It owns the session's StoryCache, so two books
// generated by the same process never share scenes.
type ScriptService struct {
	planner     *OutlinePlanner
	synthesizer *SceneSynthesizer
	repairer    *ConnectivityRepairer
	cache       *StoryCache
	log         *zap.Logger
	sceneLimit  int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewScriptService wires the generation pipeline for one session. rng seeds
// every randomized decision in the pipeline so a session is reproducible.
func NewScriptService(oracle ai.Client, sceneLimit int, rng *rand.Rand, log *zap.Logger) *ScriptService {
	cache := NewStoryCache()
	return &ScriptService{
		planner:     NewOutlinePlanner(oracle, log),
		synthesizer: NewSceneSynthesizer(oracle, cache, rng, log),
		repairer:    NewConnectivityRepairer(rng, log),
		cache:       cache,
		log:         log,
		sceneLimit:  sceneLimit,
		rng:         rng,
	}
}

// Cache exposes the session cache for read-side handlers.
func (s *ScriptService) Cache() *StoryCache {
	return s.cache
}

// GenerateScript runs the full pipeline: plan outlines, synthesize all
// scenes concurrently, enrich visuals, repair connectivity and record the
// result into the scene graph. It cannot fail; an unexpected panic in the
// pipeline degrades to a deterministic placeholder script.
func (s *ScriptService) GenerateScript(ctx context.Context, analysis *model.LiteraryAnalysis) (script *model.VNScript) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Script generation panicked, using placeholder script", zap.Any("panic", r))
			script = s.placeholderScript(analysis)
			s.cache.RecordScenes(script.Scenes)
		}
	}()

	s.cache.Reset(analysis)
	s.log.Info("Generating initial script skeleton", zap.String("title", analysis.Metadata.Title))

	outlines := s.planner.Plan(ctx, analysis, s.sceneLimit)
	if len(outlines) > s.sceneLimit {
		outlines = outlines[:s.sceneLimit]
	}

	// Sibling scenes have no ordering dependency; synthesize them all at
	// once and join. Synthesize never returns an error, so the group only
	// propagates context cancellation.
	scenes := make([]model.Scene, len(outlines))
	g, gctx := errgroup.WithContext(ctx)
	for i, outline := range outlines {
		g.Go(func() error {
			scenes[i] = s.synthesizer.Synthesize(gctx, outline, analysis)
			return nil
		})
	}
	_ = g.Wait()

	script = &model.VNScript{
		ID:     uuid.NewString(),
		Title:  analysis.Metadata.Title + ": Interactive Edition",
		Scenes: scenes,
	}

	EnhanceVisuals(script, analysis.Characters)

	if unreachable := s.repairer.Repair(script); len(unreachable) > 0 {
		s.log.Warn("Scenes left unreachable after repair", zap.Strings("scene_ids", unreachable))
	}

	s.cache.RecordScenes(script.Scenes)
	s.log.Info("Generated initial script", zap.Int("scenes", len(script.Scenes)))
	return script
}

// ExpandScene resolves a scene id referenced at runtime but not generated
// yet. A cached scene is returned as is. If the graph already points at the
// id, the outline is inferred from the incoming edges (description names
// the source scenes, cast is the union of their characters). A wholly
// unknown id gets a generic outline. The synthesized scene enters the cache
// and graph through the synthesizer's completion write.
func (s *ScriptService) ExpandScene(ctx context.Context, sceneID string) model.Scene {
	if scene, ok := s.cache.Scene(sceneID); ok {
		return scene
	}

	analysis := s.cache.Analysis()
	if analysis == nil {
		analysis = NewAnalysisValidator().Normalize(nil, model.BookMetadata{})
	}

	outline := s.inferOutline(sceneID)
	scene := s.synthesizer.Synthesize(ctx, outline, analysis)
	EnhanceScene(&scene, len(s.cache.SceneIDs()), analysis.Characters)
	s.cache.Complete(sceneID, scene)
	return scene
}

func (s *ScriptService) inferOutline(sceneID string) model.SceneOutline {
	node, ok := s.cache.GraphNode(sceneID)
	if !ok || len(node.Incoming) == 0 {
		s.log.Info("No context available for scene, creating generic outline", zap.String("scene_id", sceneID))
		return model.SceneOutline{
			ID:            sceneID,
			Description:   "Continuation of the adventure",
			CharacterIDs:  []string{},
			Setting:       "A location within the story world",
			Atmosphere:    "Consistent with the narrative",
			DialogueCount: 8,
			ConnectsTo:    []string{"scene_next", "scene_alt"},
		}
	}

	sources := make([]string, 0, len(node.Incoming))
	var charIDs []string
	seen := make(map[string]struct{})
	for _, in := range node.Incoming {
		sources = append(sources, in.Source)
		if src, ok := s.cache.Scene(in.Source); ok {
			for _, c := range src.Characters {
				if _, dup := seen[c.ID]; dup {
					continue
				}
				seen[c.ID] = struct{}{}
				charIDs = append(charIDs, c.ID)
			}
		}
	}

	return model.SceneOutline{
		ID:            sceneID,
		Description:   fmt.Sprintf("Continuation of the story from %s", strings.Join(sources, ", ")),
		CharacterIDs:  charIDs,
		Setting:       "A location appropriate to the story progression",
		Atmosphere:    "Consistent with the narrative tone",
		DialogueCount: s.randInt(7, 10),
		ConnectsTo:    []string{},
	}
}

func (s *ScriptService) randInt(min, max int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return min + s.rng.Intn(max-min+1)
}

// placeholderScript is the last-resort deterministic script: a fixed
// ten-scene skeleton seeded with the analysis characters, structurally
// valid regardless of what upstream produced.
func (s *ScriptService) placeholderScript(analysis *model.LiteraryAnalysis) *model.VNScript {
	title := analysis.Metadata.Title
	if title == "" {
		title = "Adventure"
	}

	characters := analysis.Characters
	if len(characters) == 0 {
		characters = []model.Character{
			{ID: "protagonist", Name: "Protagonist", Description: "The main character"},
			{ID: "supporting", Name: "Supporting Character", Description: "A helpful friend"},
			{ID: "antagonist", Name: "Antagonist", Description: "The opposition"},
		}
	}

	images := make(map[string]string, len(characters))
	names := make(map[string]string, len(characters))
	for i, c := range characters {
		images[c.ID] = characterSVG(i % len(spriteColors))
		names[c.ID] = c.Name
	}

	script := &model.VNScript{
		ID:    uuid.NewString(),
		Title: title + ": An Interactive Adventure",
	}

	intro := model.Scene{
		ID:         "scene_1",
		Background: backgroundPalette[0].uri,
		Characters: []model.SceneCharacter{},
		Dialogue: []model.DialogueLine{
			{Speaker: "Narrator", Text: "Welcome to the world of " + title + "."},
			{Speaker: "Narrator", Text: analysis.Plot.Summary},
		},
	}
	for i, c := range characters {
		if i >= 2 {
			break
		}
		intro.Dialogue = append(intro.Dialogue, model.DialogueLine{
			Speaker: "Narrator",
			Text:    fmt.Sprintf("Meet %s, %s.", c.Name, c.Description),
		})
	}
	intro.Dialogue = append(intro.Dialogue, model.DialogueLine{
		Speaker: "Narrator",
		Text:    "How would you like to begin this adventure?",
		Choices: []model.Choice{
			{Text: "With courage and determination", NextScene: "scene_2"},
			{Text: "With caution and planning", NextScene: "scene_3"},
			{Text: "Let fate decide my path", NextScene: "scene_4"},
		},
	})
	script.Scenes = append(script.Scenes, intro)

	main := characters[0]
	script.Scenes = append(script.Scenes, model.Scene{
		ID:         "scene_2",
		Background: backgroundPalette[0].uri,
		Characters: []model.SceneCharacter{{ID: main.ID, Image: images[main.ID]}},
		Dialogue: []model.DialogueLine{
			{Speaker: names[main.ID], Text: "I need to face this challenge head-on.", CharacterID: main.ID},
			{Speaker: "Narrator", Text: "With determination guiding your steps, you move forward."},
			{Speaker: names[main.ID], Text: "What path should I take?", CharacterID: main.ID, Choices: []model.Choice{
				{Text: "The direct approach", NextScene: "scene_5"},
				{Text: "Seek allies first", NextScene: "scene_6"},
				{Text: "Gather more information", NextScene: "scene_7"},
			}},
		},
	})

	script.Scenes = append(script.Scenes, model.Scene{
		ID:         "scene_3",
		Background: backgroundPalette[1].uri,
		Characters: []model.SceneCharacter{{ID: main.ID, Image: images[main.ID]}},
		Dialogue: []model.DialogueLine{
			{Speaker: names[main.ID], Text: "I need to plan carefully before proceeding.", CharacterID: main.ID},
			{Speaker: "Narrator", Text: "Taking your time to consider options might reveal hidden paths."},
			{Speaker: names[main.ID], Text: "What should I focus on first?", CharacterID: main.ID, Choices: []model.Choice{
				{Text: "Study the situation", NextScene: "scene_8"},
				{Text: "Prepare equipment", NextScene: "scene_9"},
				{Text: "Consult with others", NextScene: "scene_10"},
			}},
		},
	})

	script.Scenes = append(script.Scenes, model.Scene{
		ID:         "scene_4",
		Background: backgroundPalette[2].uri,
		Characters: []model.SceneCharacter{},
		Dialogue: []model.DialogueLine{
			{Speaker: "Narrator", Text: "You surrender to the flow of the story, letting fate guide your journey."},
			{Speaker: "Narrator", Text: "Sometimes the most interesting paths are those we don't choose ourselves."},
			{Speaker: "Narrator", Text: "As you drift with the current of the narrative, you find yourself drawn to...", Choices: []model.Choice{
				{Text: "A mysterious encounter", NextScene: "scene_7"},
				{Text: "An unexpected opportunity", NextScene: "scene_8"},
				{Text: "A moment of revelation", NextScene: "scene_9"},
			}},
		},
	})

	backgroundOrder := []int{0, 1, 2, 1, 0, 2}
	for i := 0; i < 6; i++ {
		scene := model.Scene{
			ID:         fmt.Sprintf("scene_%d", i+5),
			Background: backgroundPalette[backgroundOrder[i]].uri,
			Characters: []model.SceneCharacter{},
		}
		scene.Dialogue = append(scene.Dialogue, model.DialogueLine{
			Speaker: "Narrator", Text: "Your journey continues along this path...",
		})
		if i%2 == 0 {
			c := characters[i%len(characters)]
			scene.Characters = append(scene.Characters, model.SceneCharacter{ID: c.ID, Image: images[c.ID]})
			scene.Dialogue = append(scene.Dialogue, model.DialogueLine{
				Speaker:     names[c.ID],
				Text:        "This path has its own challenges and rewards.",
				CharacterID: c.ID,
			})
		}
		scene.Dialogue = append(scene.Dialogue, model.DialogueLine{
			Speaker: "Narrator", Text: "What would you like to do next?", Choices: []model.Choice{
				{Text: "Return to the beginning", NextScene: "scene_1"},
				{Text: "Continue on this path", NextScene: "scene_1"},
			},
		})
		script.Scenes = append(script.Scenes, scene)
	}

	return script
}
