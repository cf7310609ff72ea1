package service

import (
	"fmt"

	"plottwist-server/internal/model"
)

// AnalysisValidator normalizes a raw literary analysis to the required shape.
// Every missing, empty or malformed field is replaced with a deterministic
// default; individual records are patched field by field, never rejected.
// Normalization cannot fail.
type AnalysisValidator struct{}

// NewAnalysisValidator creates a validator.
func NewAnalysisValidator() *AnalysisValidator {
	return &AnalysisValidator{}
}

// Normalize fills every gap in the analysis in place and returns it.
// A nil analysis yields a fully defaulted one. Metadata is overwritten with
// the trusted values extracted from the document itself.
func (v *AnalysisValidator) Normalize(analysis *model.LiteraryAnalysis, meta model.BookMetadata) *model.LiteraryAnalysis {
	if analysis == nil {
		analysis = &model.LiteraryAnalysis{}
	}

	analysis.Metadata = meta

	if len(analysis.Characters) == 0 {
		analysis.Characters = []model.Character{defaultProtagonist()}
	}
	for i := range analysis.Characters {
		normalizeCharacter(&analysis.Characters[i], i)
	}

	if len(analysis.Settings) == 0 {
		analysis.Settings = []model.Setting{{
			ID:           "setting_1",
			Name:         "Main Setting",
			Description:  "The primary location of the story",
			Atmosphere:   "Creates a distinctive mood",
			Significance: "Central to the plot",
		}}
	}
	for i := range analysis.Settings {
		normalizeSetting(&analysis.Settings[i], i)
	}

	normalizePlot(&analysis.Plot)

	if len(analysis.Themes) == 0 {
		analysis.Themes = []string{"journey", "discovery", "challenge", "growth"}
	}
	if analysis.Tone == "" {
		analysis.Tone = "engaging and thoughtful"
	}

	return analysis
}

func defaultProtagonist() model.Character {
	return model.Character{
		ID:             "protagonist",
		Name:           "Protagonist",
		Role:           "protagonist",
		Description:    "The main character",
		Personality:    "Determined and resourceful",
		SpeechPatterns: "Direct and thoughtful",
		Motivations:    "To overcome the central challenge",
		Relationships:  "Central to the story",
		Importance:     "high",
	}
}

func normalizeCharacter(c *model.Character, i int) {
	if c.ID == "" {
		c.ID = fmt.Sprintf("char_%d", i)
	}
	if c.Name == "" {
		c.Name = fmt.Sprintf("Character %d", i+1)
	}
	if c.Role == "" {
		c.Role = "supporting character"
	}
	if c.Description == "" {
		c.Description = "A distinctive character in the story"
	}
	if c.Personality == "" {
		c.Personality = "Has a unique personality that drives their actions"
	}
	if c.SpeechPatterns == "" {
		c.SpeechPatterns = "Speaks in a characteristic manner"
	}
	if c.Motivations == "" {
		c.Motivations = "Driven by specific goals and desires"
	}
	if c.Relationships == "" {
		c.Relationships = "Connected to other characters in meaningful ways"
	}
	switch c.Importance {
	case "high", "medium", "low":
	default:
		c.Importance = "medium"
	}
}

func normalizeSetting(s *model.Setting, i int) {
	if s.ID == "" {
		s.ID = fmt.Sprintf("setting_%d", i)
	}
	if s.Name == "" {
		s.Name = fmt.Sprintf("Setting %d", i+1)
	}
	if s.Description == "" {
		s.Description = "A distinctive location in the story"
	}
	if s.Atmosphere == "" {
		s.Atmosphere = "Creates a specific mood and feeling"
	}
	if s.Significance == "" {
		s.Significance = "Plays an important role in the narrative"
	}
}

func normalizePlot(p *model.Plot) {
	if p.Summary == "" {
		p.Summary = "The story presents an engaging narrative with compelling characters."
	}
	if p.CentralConflict == "" {
		p.CentralConflict = "A significant challenge that drives the narrative"
	}
	if len(p.KeyPoints) == 0 {
		p.KeyPoints = []string{"Introduction", "Rising Action", "Climax", "Resolution"}
	}
	if len(p.BranchingPoints) == 0 {
		p.BranchingPoints = []model.BranchingPoint{{
			Description: "A critical decision point",
			Options:     []string{"Continue as planned", "Take a different approach"},
		}}
	}
	for i := range p.BranchingPoints {
		if p.BranchingPoints[i].Description == "" {
			p.BranchingPoints[i].Description = "A moment of choice"
		}
		if len(p.BranchingPoints[i].Options) == 0 {
			p.BranchingPoints[i].Options = []string{"Option 1", "Option 2"}
		}
	}
}
