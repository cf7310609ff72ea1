package service

import (
	"fmt"
	"strings"

	"plottwist-server/internal/model"
)

const (
	outlineSystemPrompt = "You are an expert narrative designer specializing in adapting literary works into interactive visual novels."
	sceneSystemPrompt   = "You are a master writer of interactive fiction, specializing in creating immersive, literary-quality scenes with authentic dialogue."
)

// Prompt context budgets. Keeps the outline prompt bounded regardless of how
// much the analyzer extracted.
const (
	promptCharacterLimit = 7
	promptKeyPointLimit  = 8
	promptBranchLimit    = 5
	promptThemeLimit     = 3
)

func buildOutlinePrompt(analysis *model.LiteraryAnalysis, sceneLimit int) string {
	var characterInfo strings.Builder
	for _, c := range limitCharacters(analysis.Characters, promptCharacterLimit) {
		fmt.Fprintf(&characterInfo, "- %s: %s\n", c.Name, c.Role)
		fmt.Fprintf(&characterInfo, "  * Description: %s\n", c.Description)
		fmt.Fprintf(&characterInfo, "  * Personality: %s\n", c.Personality)
		fmt.Fprintf(&characterInfo, "  * Speech patterns: %s\n", c.SpeechPatterns)
		fmt.Fprintf(&characterInfo, "  * Motivations: %s\n", c.Motivations)
		fmt.Fprintf(&characterInfo, "  * Relationships: %s\n", c.Relationships)
	}

	var branchingInfo strings.Builder
	for i, bp := range analysis.Plot.BranchingPoints {
		if i >= promptBranchLimit {
			break
		}
		options := make([]string, 0, len(bp.Options))
		for _, opt := range bp.Options {
			options = append(options, fmt.Sprintf("%q", opt))
		}
		fmt.Fprintf(&branchingInfo, "- Choice point %d: %s\n  * Options: %s\n", i+1, bp.Description, strings.Join(options, ", "))
	}

	return fmt.Sprintf(`Create a detailed outline for an interactive visual novel adaptation of this book:

TITLE: %s

KEY CHARACTERS:
%s
PLOT SUMMARY:
%s

CENTRAL CONFLICT:
%s

KEY PLOT POINTS:
%s

POTENTIAL BRANCHING POINTS:
%s
THEMES: %s
TONE: %s

CRITICAL REQUIREMENTS FOR VISUAL NOVEL ADAPTATION:
1. PACING: Create a SLOW, DELIBERATE story progression that allows readers to fully immerse
2. SCENE DEVELOPMENT: Each scene should thoroughly establish setting, mood, and character emotions
3. FORESHADOWING: Important plot elements must be properly established before appearing
4. NARRATIVE DEPTH: Every scene should include 6-10 dialogue exchanges to develop characters and plot
5. BRANCHING STRUCTURE: Create meaningful choice points with consequences

FORMAT REQUIREMENTS:
Create exactly %d scenes that follow a clear narrative path with branching options.

For each scene, provide:
1. Scene ID (e.g., "scene_1", "scene_forest")
2. Detailed description of what happens (4-5 sentences)
3. Characters present
4. Setting and atmosphere
5. How it connects to other scenes

Output in this JSON format:
{
  "scenes": [
    {
      "id": "scene_id",
      "description": "Detailed description of what happens in this scene",
      "characters": ["char1", "char2"],
      "setting": "Detailed setting description",
      "atmosphere": "Mood and tone of the scene",
      "dialogue_count": 8,
      "connects_to": ["scene_id_1", "scene_id_2"]
    }
  ]
}`,
		analysis.Metadata.Title,
		characterInfo.String(),
		analysis.Plot.Summary,
		analysis.Plot.CentralConflict,
		strings.Join(limitStrings(analysis.Plot.KeyPoints, promptKeyPointLimit), ", "),
		branchingInfo.String(),
		strings.Join(limitStrings(analysis.Themes, promptThemeLimit), ", "),
		analysis.Tone,
		sceneLimit,
	)
}

func buildScenePrompt(outline model.SceneOutline, characters []model.Character, dialogueCount int) string {
	var characterInfo strings.Builder
	for _, c := range characters {
		fmt.Fprintf(&characterInfo, "- %s:\n", c.Name)
		fmt.Fprintf(&characterInfo, "  * Role: %s\n", c.Role)
		fmt.Fprintf(&characterInfo, "  * Description: %s\n", c.Description)
		fmt.Fprintf(&characterInfo, "  * Personality: %s\n", c.Personality)
		fmt.Fprintf(&characterInfo, "  * Speech patterns: %s\n", c.SpeechPatterns)
		fmt.Fprintf(&characterInfo, "  * Motivations: %s\n", c.Motivations)
	}
	if characterInfo.Len() == 0 {
		characterInfo.WriteString("No specific characters identified for this scene.")
	}

	connectionsInfo := "None specified"
	if len(outline.ConnectsTo) > 0 {
		connectionsInfo = strings.Join(outline.ConnectsTo, ", ")
	}

	return fmt.Sprintf(`Generate a detailed scene for a visual novel with rich dialogue and atmosphere.

SCENE INFORMATION:
- ID: %s
- Description: %s
- Setting: %s
- Atmosphere: %s

CHARACTERS PRESENT:
%s

CONNECTIONS:
This scene should connect to these scenes: %s

IMPORTANT REQUIREMENTS:
1. CREATE EXACTLY %d DIALOGUE EXCHANGES for a slow, immersive pace
2. WRITE RICH, ENGAGING TEXT with detailed descriptions and natural dialogue
3. MAINTAIN CHARACTER VOICE - each character should speak in their distinctive pattern
4. INCLUDE DESCRIPTIVE NARRATION between dialogue to establish mood and setting
5. CREATE MEANINGFUL CHOICES that connect to the specified scenes
6. IF A CRITICAL PLOT ELEMENT appears, PROPERLY FORESHADOW it

FORMAT:
Return a JSON object for this single scene following this exact structure:
{
  "id": "%s",
  "background": "Detailed description of the setting and visuals",
  "characters": [
    { "id": "character_id", "image": "Detailed character appearance" }
  ],
  "dialogue": [
    {
      "speaker": "Character Name",
      "text": "Rich, detailed dialogue that reflects the character's voice",
      "character": "character_id"
    },
    {
      "speaker": "Narrator",
      "text": "Descriptive narration that establishes mood, setting, and character emotions"
    },
    {
      "speaker": "Character Name",
      "text": "Final choice prompt with depth and consequence",
      "choices": [
        { "text": "Meaningful choice with clear implication", "nextScene": "target_scene_id" }
      ]
    }
  ]
}

FOCUS ON QUALITY: Create dialogue that is engaging, natural, and reflects the character's voice.`,
		outline.ID,
		outline.Description,
		outline.Setting,
		outline.Atmosphere,
		characterInfo.String(),
		connectionsInfo,
		dialogueCount,
		outline.ID,
	)
}

func limitCharacters(chars []model.Character, limit int) []model.Character {
	if len(chars) > limit {
		return chars[:limit]
	}
	return chars
}

func limitStrings(values []string, limit int) []string {
	if len(values) > limit {
		return values[:limit]
	}
	return values
}
