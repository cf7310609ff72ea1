package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"plottwist-server/internal/model"
	"plottwist-server/pkg/ai"
)

const analyzerSystemPrompt = "You are a literary analyst with expertise in deep narrative analysis."

// Sampling thresholds for large books: above sampleThreshold characters the
// prompt carries four sampleSliceSize slices (start, two middles, end)
// instead of the full text.
const (
	sampleThreshold = 12000
	sampleSliceSize = 3000
)

// speakerPattern mines likely character names from raw text for the
// placeholder analysis: quoted or capitalized subjects of common verbs.
var speakerPattern = regexp.MustCompile(`([A-Z][a-z]+) (?:said|walked|looked|thought|felt)\b`)

// BookAnalyzer turns raw book text into a literary analysis via the oracle.
// Like the rest of the pipeline it never fails: oracle or parse errors fall
// back to a text-mined placeholder analysis, and every result passes
// through the validator.
type BookAnalyzer struct {
	oracle    ai.Client
	validator *AnalysisValidator
	log       *zap.Logger
}

// NewBookAnalyzer creates an analyzer.
func NewBookAnalyzer(oracle ai.Client, log *zap.Logger) *BookAnalyzer {
	return &BookAnalyzer{
		oracle:    oracle,
		validator: NewAnalysisValidator(),
		log:       log,
	}
}

// Analyze samples the book text, asks the oracle for a structured analysis
// and normalizes whatever comes back. One repair-and-reparse attempt on
// malformed output, then the placeholder analysis.
func (a *BookAnalyzer) Analyze(ctx context.Context, content *model.BookContent) *model.LiteraryAnalysis {
	sample := sampleText(content.Text())
	a.logSampleSize(sample)

	raw, err := a.oracle.GenerateJSON(ctx, ai.Request{
		SystemPrompt: analyzerSystemPrompt,
		UserPrompt:   buildAnalysisPrompt(content.Metadata, sample),
		Temperature:  0.3,
		MaxTokens:    3500,
	})
	if err != nil {
		a.log.Warn("Book analysis failed, using placeholder analysis", zap.Error(err))
		return a.placeholderAnalysis(content)
	}

	text := ai.ExtractJSON(raw)
	var analysis model.LiteraryAnalysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		repaired := ai.RepairJSON(text)
		if repaired == text || json.Unmarshal([]byte(repaired), &analysis) != nil {
			a.log.Warn("Analysis response unparseable, using placeholder analysis", zap.Error(err))
			return a.placeholderAnalysis(content)
		}
		a.log.Info("Recovered analysis response after JSON repair")
	}

	return a.validator.Normalize(&analysis, content.Metadata)
}

// sampleText bounds the excerpt for large books: beginning, two middle
// slices and the end, separated by ellipsis markers.
func sampleText(text string) string {
	if len(text) <= sampleThreshold {
		return text
	}
	third := len(text) / 3
	return text[:sampleSliceSize] +
		"\n\n[...]\n\n" + text[third:third+sampleSliceSize] +
		"\n\n[...]\n\n" + text[2*third:2*third+sampleSliceSize] +
		"\n\n[...]\n\n" + text[len(text)-sampleSliceSize:]
}

func (a *BookAnalyzer) logSampleSize(sample string) {
	fields := []zap.Field{zap.Int("chars", len(sample))}
	if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
		fields = append(fields, zap.Int("tokens", len(enc.Encode(sample, nil, nil))))
	}
	a.log.Info("Analyzing book excerpt", fields...)
}

func buildAnalysisPrompt(meta model.BookMetadata, sample string) string {
	return fmt.Sprintf(`Analyze this book excerpt and create a detailed breakdown suitable for adaptation into an interactive visual novel.

BOOK METADATA:
Title: %s
Author: %s
Pages: %d

BOOK EXCERPT:
%s

IMPORTANT: Extract the following elements with deep detail:

1. CHARACTERS: For each major character (at least 5 if present):
   - Name and role in the story
   - Physical description
   - Personality traits
   - Speech patterns and expressions
   - Motivations and desires
   - Relationships with other characters

2. SETTINGS: For each important location (at least 3):
   - Name and physical description
   - Atmosphere and mood
   - Significance to the plot

3. PLOT ANALYSIS:
   - Detailed summary capturing the essence of the story
   - Central conflict
   - Key plot points (at least 8)
   - Potential branching points for an interactive story
   - Major themes and motifs
   - Tone and atmosphere

FORMAT YOUR RESPONSE AS A JSON OBJECT using this structure:

{
  "characters": [
    {
      "id": "char_id",
      "name": "Full Name",
      "role": "Role in story",
      "description": "Physical description",
      "personality": "Personality traits",
      "speech_patterns": "How they typically speak",
      "motivations": "What drives them",
      "relationships": "Connections to other characters",
      "importance": "high/medium/low"
    }
  ],
  "settings": [
    {
      "id": "setting_id",
      "name": "Setting Name",
      "description": "Physical description",
      "atmosphere": "Mood and feeling of the place",
      "significance": "Importance to the plot"
    }
  ],
  "plot": {
    "summary": "Comprehensive plot summary",
    "central_conflict": "Main tension driving the story",
    "key_points": ["First major plot point", "Second major plot point"],
    "branching_points": [
      {
        "description": "Potential choice point",
        "options": ["Option 1", "Option 2", "Option 3"]
      }
    ]
  },
  "themes": ["theme1", "theme2"],
  "tone": "Overall tone of the story"
}

Provide DEEP, RICH DETAILS for each element. No generalities or placeholders.`,
		meta.Title, meta.Author, meta.Pages, sample)
}

// placeholderAnalysis builds an analysis without the oracle: character
// names are mined from the text with a regex, everything else is fixed.
func (a *BookAnalyzer) placeholderAnalysis(content *model.BookContent) *model.LiteraryAnalysis {
	a.log.Info("Using placeholder analysis as fallback")

	var characters []model.Character
	seen := make(map[string]struct{})
	for _, match := range speakerPattern.FindAllStringSubmatch(content.Text(), -1) {
		name := match[1]
		if _, dup := seen[name]; dup || len(name) < 2 {
			continue
		}
		seen[name] = struct{}{}
		if len(characters) >= 5 {
			break
		}
		characters = append(characters, model.Character{
			ID:             fmt.Sprintf("char_%d", len(characters)),
			Name:           name,
			Role:           "A character in the narrative",
			Description:    "A distinctive individual with unique characteristics",
			Personality:    "Has a defined personality that influences their actions",
			SpeechPatterns: "Speaks in a characteristic way",
			Motivations:    "Driven by specific goals and desires",
			Relationships:  "Connected to other characters in meaningful ways",
			Importance:     "medium",
		})
	}

	if len(characters) == 0 {
		characters = []model.Character{
			{
				ID: "protagonist", Name: "Protagonist", Role: "The main character",
				Description:    "A compelling figure at the center of the story",
				Personality:    "Complex and multifaceted, with strengths and flaws",
				SpeechPatterns: "Speaks in a way that reveals their character",
				Motivations:    "Driven by deep and meaningful goals",
				Relationships:  "Forms significant connections with others",
				Importance:     "high",
			},
			{
				ID: "supporting", Name: "Supporting Character", Role: "An important ally",
				Description:    "A distinctive individual who aids the protagonist",
				Personality:    "Loyal and resourceful",
				SpeechPatterns: "Often provides insight or assistance through dialogue",
				Motivations:    "Aligned with helping the protagonist",
				Relationships:  "Closely connected to the main character",
				Importance:     "medium",
			},
			{
				ID: "antagonist", Name: "Antagonist", Role: "Opposes the protagonist",
				Description:    "A formidable presence that creates conflict",
				Personality:    "Complex with understandable motivations",
				SpeechPatterns: "Speaks with authority or menace",
				Motivations:    "Has goals that conflict with the protagonist",
				Relationships:  "In opposition to the main character",
				Importance:     "high",
			},
		}
	}

	analysis := &model.LiteraryAnalysis{
		Characters: characters,
		Settings: []model.Setting{
			{
				ID: "setting_1", Name: "Primary Location",
				Description:  "The main setting where key events unfold",
				Atmosphere:   "Creates a distinctive mood that enhances the narrative",
				Significance: "Central to the story's development",
			},
			{
				ID: "setting_2", Name: "Secondary Location",
				Description:  "Another important place in the story",
				Atmosphere:   "Provides contrast to the primary setting",
				Significance: "Hosts significant plot developments",
			},
			{
				ID: "setting_3", Name: "Tertiary Setting",
				Description:  "A third location with narrative importance",
				Atmosphere:   "Has a unique feel that affects the characters",
				Significance: "Plays a role in advancing the plot",
			},
		},
		Plot: model.Plot{
			Summary:         fmt.Sprintf("This engaging narrative by %s takes readers on a journey with compelling characters who face significant challenges and undergo meaningful development.", content.Metadata.Author),
			CentralConflict: "A core tension that drives the narrative forward",
			KeyPoints: []string{
				"Introduction of the main characters and setting",
				"Presentation of the central conflict",
				"Rising action as challenges intensify",
				"Complication that tests the characters",
				"Moment of revelation or discovery",
				"Climactic confrontation",
				"Resolution of the main conflict",
				"Aftermath showing character growth",
			},
			BranchingPoints: []model.BranchingPoint{
				{
					Description: "A moment where the protagonist must make a critical choice",
					Options:     []string{"Face the challenge directly", "Seek help from allies", "Find an alternative approach"},
				},
				{
					Description: "A situation requiring a moral decision",
					Options:     []string{"Make a personal sacrifice", "Compromise principles for a greater good", "Stand firm regardless of consequences"},
				},
			},
		},
		Themes: []string{"personal growth", "conflict and resolution", "challenges and triumphs", "relationships"},
		Tone:   "immersive and engaging",
	}

	return a.validator.Normalize(analysis, content.Metadata)
}
