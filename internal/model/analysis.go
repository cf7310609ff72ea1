package model

// BookMetadata описывает исходную книгу, извлеченную из загруженного файла.
type BookMetadata struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Pages  int    `json:"pages"`
}

// Character представляет персонажа, выделенного литературным анализом.
type Character struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	Description    string `json:"description"`
	Personality    string `json:"personality"`
	SpeechPatterns string `json:"speech_patterns"`
	Motivations    string `json:"motivations"`
	Relationships  string `json:"relationships"`
	Importance     string `json:"importance"` // high, medium, low
}

// Setting представляет значимую локацию истории.
type Setting struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Atmosphere   string `json:"atmosphere"`
	Significance string `json:"significance"`
}

// BranchingPoint - точка сюжета, в которой история может разойтись.
type BranchingPoint struct {
	Description string   `json:"description"`
	Options     []string `json:"options"`
}

// Plot содержит сюжетную часть анализа.
type Plot struct {
	Summary         string           `json:"summary"`
	CentralConflict string           `json:"central_conflict"`
	KeyPoints       []string         `json:"key_points"`
	BranchingPoints []BranchingPoint `json:"branching_points"`
}

// LiteraryAnalysis - структурированный результат анализа книги.
// После прохождения через валидатор ни одно поле не остается пустым.
type LiteraryAnalysis struct {
	Metadata   BookMetadata `json:"metadata"`
	Characters []Character  `json:"characters"`
	Settings   []Setting    `json:"settings"`
	Plot       Plot         `json:"plot"`
	Themes     []string     `json:"themes"`
	Tone       string       `json:"tone"`
}
