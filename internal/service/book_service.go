package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"plottwist-server/internal/model"
	"plottwist-server/pkg/ai"
	"plottwist-server/pkg/taskmanager"
)

// ErrBookNotFound is returned for lookups of unknown book ids.
var ErrBookNotFound = fmt.Errorf("book not found")

// ErrScriptNotReady is returned when a script is requested before the
// processing pipeline has finished.
var ErrScriptNotReady = fmt.Errorf("script not ready")

// BookService owns the books of this process: upload registration, the
// asynchronous processing pipeline (extract, analyze, generate) and access
// to the finished scripts. Each book gets its own ScriptService, so scene
// caches of different books stay isolated.
type BookService struct {
	oracle     ai.Client
	extractor  TextExtractor
	analyzer   *BookAnalyzer
	tasks      *taskmanager.Manager
	log        *zap.Logger
	sceneLimit int

	mu       sync.RWMutex
	books    map[string]*model.Book
	sessions map[string]*ScriptService
	scripts  map[string]*model.VNScript
}

// NewBookService wires the processing pipeline.
func NewBookService(oracle ai.Client, extractor TextExtractor, tasks *taskmanager.Manager, sceneLimit int, log *zap.Logger) *BookService {
	return &BookService{
		oracle:     oracle,
		extractor:  extractor,
		analyzer:   NewBookAnalyzer(oracle, log),
		tasks:      tasks,
		log:        log,
		sceneLimit: sceneLimit,
		books:      make(map[string]*model.Book),
		sessions:   make(map[string]*ScriptService),
		scripts:    make(map[string]*model.VNScript),
	}
}

// Upload registers an uploaded book and kicks off its processing task.
// Returns immediately; progress is observable via GetBook and the task
// notifier.
func (s *BookService) Upload(ctx context.Context, title, author, filePath string) (*model.Book, error) {
	book := &model.Book{
		ID:       uuid.NewString(),
		Title:    title,
		Author:   author,
		FilePath: filePath,
		Status:   model.BookStatusUploading,
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	session := NewScriptService(s.oracle, s.sceneLimit, rng, s.log.With(zap.String("book_id", book.ID)))

	s.mu.Lock()
	s.books[book.ID] = book
	s.sessions[book.ID] = session
	s.mu.Unlock()

	if _, err := s.tasks.Submit(ctx, book.ID, func(taskCtx context.Context, reporter taskmanager.Reporter) (interface{}, error) {
		return s.process(taskCtx, book.ID, reporter)
	}); err != nil {
		s.setError(book.ID, err)
		return nil, fmt.Errorf("submitting processing task: %w", err)
	}

	return book, nil
}

// process runs the full pipeline for one book. Extraction is the only step
// that can fail; analysis and generation always degrade to placeholders.
func (s *BookService) process(ctx context.Context, bookID string, reporter taskmanager.Reporter) (interface{}, error) {
	book, err := s.GetBook(bookID)
	if err != nil {
		return nil, err
	}

	s.setStatus(bookID, model.BookStatusProcessing, 10)
	reporter.Report(10, "Extracting text")
	content, err := s.extractor.Extract(ctx, book.FilePath)
	if err != nil {
		s.setError(bookID, err)
		return nil, fmt.Errorf("extracting text: %w", err)
	}
	// Uploaded metadata wins over whatever the extractor guessed.
	if book.Title != "" {
		content.Metadata.Title = book.Title
	}
	if book.Author != "" {
		content.Metadata.Author = book.Author
	}

	s.setStatus(bookID, model.BookStatusAnalyzing, 30)
	reporter.Report(30, "Analyzing narrative")
	analysis := s.analyzer.Analyze(ctx, content)

	s.setStatus(bookID, model.BookStatusGenerating, 60)
	reporter.Report(60, "Generating script")
	session := s.session(bookID)
	script := session.GenerateScript(ctx, analysis)
	script.BookID = bookID

	reporter.Report(90, "Finalizing script")
	s.mu.Lock()
	s.scripts[bookID] = script
	if b, ok := s.books[bookID]; ok {
		b.ScriptID = script.ID
		b.Status = model.BookStatusReady
		b.Progress = 100
	}
	s.mu.Unlock()

	s.log.Info("Book processed", zap.String("book_id", bookID), zap.Int("scenes", len(script.Scenes)))
	return script.ID, nil
}

// GetBook returns a copy of the book record.
func (s *BookService) GetBook(id string) (*model.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	book, ok := s.books[id]
	if !ok {
		return nil, ErrBookNotFound
	}
	cp := *book
	return &cp, nil
}

// ListBooks returns all registered books.
func (s *BookService) ListBooks() []*model.Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Book, 0, len(s.books))
	for _, book := range s.books {
		cp := *book
		out = append(out, &cp)
	}
	return out
}

// GetScript returns the generated script for a book.
func (s *BookService) GetScript(bookID string) (*model.VNScript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.books[bookID]; !ok {
		return nil, ErrBookNotFound
	}
	script, ok := s.scripts[bookID]
	if !ok {
		return nil, ErrScriptNotReady
	}
	return script, nil
}

// ExpandScene resolves a scene id for a book, generating it on demand when
// the initial script never produced it.
func (s *BookService) ExpandScene(ctx context.Context, bookID, sceneID string) (model.Scene, error) {
	session := s.session(bookID)
	if session == nil {
		return model.Scene{}, ErrBookNotFound
	}
	return session.ExpandScene(ctx, sceneID), nil
}

func (s *BookService) session(bookID string) *ScriptService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[bookID]
}

func (s *BookService) setStatus(bookID string, status model.BookStatus, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if book, ok := s.books[bookID]; ok {
		book.Status = status
		book.Progress = progress
	}
}

func (s *BookService) setError(bookID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if book, ok := s.books[bookID]; ok {
		book.Status = model.BookStatusError
		book.Error = err.Error()
	}
}
