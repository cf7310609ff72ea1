package model

// BookStatus - этап обработки загруженной книги.
type BookStatus string

// Возможные статусы обработки книги
const (
	BookStatusUploading  BookStatus = "uploading"
	BookStatusProcessing BookStatus = "processing"
	BookStatusAnalyzing  BookStatus = "analyzing"
	BookStatusGenerating BookStatus = "generating"
	BookStatusReady      BookStatus = "ready"
	BookStatusError      BookStatus = "error"
)

// Book - запись о загруженной книге и прогрессе ее обработки.
type Book struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Author   string     `json:"author"`
	FilePath string     `json:"file_path"`
	Status   BookStatus `json:"status"`
	Progress int        `json:"progress"` // 0-100
	ScriptID string     `json:"script_id,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// PageContent - одна страница извлеченного текста.
type PageContent struct {
	Page    int    `json:"page"`
	Content string `json:"content"`
}

// BookContent - результат работы экстрактора текста: упорядоченные
// страницы плюс метаданные книги.
type BookContent struct {
	Metadata BookMetadata  `json:"metadata"`
	Pages    []PageContent `json:"content"`
}

// Text возвращает весь текст книги одной строкой.
func (c BookContent) Text() string {
	var out string
	for _, p := range c.Pages {
		out += p.Content + "\n\n"
	}
	return out
}
