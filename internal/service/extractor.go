package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"plottwist-server/internal/model"
)

// TextExtractor turns an uploaded document into ordered pages of raw text
// plus metadata. The generation pipeline only consumes the concatenation,
// so any format with a text extraction path can plug in here.
type TextExtractor interface {
	Extract(ctx context.Context, filePath string) (*model.BookContent, error)
}

// pageSize is the character budget of one synthetic page when the source
// document carries no page markers of its own.
const pageSize = 3000

// PlainTextExtractor reads .txt uploads. Form feeds split pages when
// present; otherwise the text is chunked into fixed-size pages. The title
// defaults to the file name.
type PlainTextExtractor struct{}

// NewPlainTextExtractor creates the extractor.
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

// Extract reads the whole file. An empty document still yields one page so
// downstream never sees a pageless book.
func (e *PlainTextExtractor) Extract(_ context.Context, filePath string) (*model.BookContent, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	text := strings.TrimSpace(string(data))

	var pages []model.PageContent
	if strings.Contains(text, "\f") {
		for i, chunk := range strings.Split(text, "\f") {
			chunk = strings.TrimSpace(chunk)
			if chunk == "" {
				chunk = fmt.Sprintf("[Page %d has no extractable text]", i+1)
			}
			pages = append(pages, model.PageContent{Page: i + 1, Content: chunk})
		}
	} else {
		for i := 0; i < len(text); i += pageSize {
			end := i + pageSize
			if end > len(text) {
				end = len(text)
			}
			pages = append(pages, model.PageContent{Page: len(pages) + 1, Content: text[i:end]})
		}
	}

	if len(pages) == 0 {
		pages = append(pages, model.PageContent{
			Page:    1,
			Content: "This document appears to have no extractable text content.",
		})
	}

	name := filepath.Base(filePath)
	title := strings.TrimSuffix(name, filepath.Ext(name))

	return &model.BookContent{
		Metadata: model.BookMetadata{Title: title, Pages: len(pages)},
		Pages:    pages,
	}, nil
}
