package model

// SceneExit - сентинельное значение nextScene, завершающее историю.
const SceneExit = "exit"

// Choice - вариант выбора игрока внутри реплики.
type Choice struct {
	Text      string `json:"text"`
	NextScene string `json:"nextScene"`
}

// DialogueLine - одна реплика сцены. Choices обычно присутствует только
// у последней реплики, но модель допускает выборы на любой строке.
type DialogueLine struct {
	Speaker     string   `json:"speaker"`
	Text        string   `json:"text"`
	CharacterID string   `json:"character,omitempty"`
	Choices     []Choice `json:"choices,omitempty"`
}

// SceneCharacter - персонаж, присутствующий в сцене, с его спрайтом.
type SceneCharacter struct {
	ID    string `json:"id"`
	Image string `json:"image"`
}

// Scene - полностью сгенерированная сцена визуальной новеллы.
// ID стабилен: перегенерация сцены сохраняет тот же идентификатор.
type Scene struct {
	ID         string           `json:"id"`
	Background string           `json:"background"`
	Characters []SceneCharacter `json:"characters"`
	Dialogue   []DialogueLine   `json:"dialogue"`
}

// VNScript - итоговый сценарий визуальной новеллы.
type VNScript struct {
	ID     string  `json:"id"`
	BookID string  `json:"book_id"`
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes"`
}

// SceneOutline - план сцены до генерации полного диалога.
// ConnectsTo может ссылаться на сцены, которых еще не существует.
type SceneOutline struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	CharacterIDs  []string `json:"characters"`
	Setting       string   `json:"setting"`
	Atmosphere    string   `json:"atmosphere"`
	DialogueCount int      `json:"dialogue_count"`
	ConnectsTo    []string `json:"connects_to"`
}

// ScriptOutline - ответ планировщика: набор запланированных сцен.
type ScriptOutline struct {
	Scenes []SceneOutline `json:"scenes"`
}

// GraphEdgeOut - исходящее ребро графа сцен.
type GraphEdgeOut struct {
	Target string `json:"target"`
	Text   string `json:"text"`
}

// GraphEdgeIn - входящее ребро графа сцен.
type GraphEdgeIn struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// GraphNode - узел производного графа связности сцен.
// Ребра дедуплицированы по паре (source, target).
type GraphNode struct {
	Outgoing []GraphEdgeOut `json:"outgoing"`
	Incoming []GraphEdgeIn  `json:"incoming"`
}
