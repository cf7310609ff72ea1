package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"plottwist-server/internal/service"
)

// Handler обрабатывает HTTP-запросы к API генерации визуальных новелл
type Handler struct {
	books      *service.BookService
	uploadsDir string
	log        *zap.Logger
}

// NewHandler создает новый обработчик API
func NewHandler(books *service.BookService, uploadsDir string, log *zap.Logger) *Handler {
	return &Handler{books: books, uploadsDir: uploadsDir, log: log}
}

// RegisterRoutes регистрирует маршруты API в роутере Gin
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/books/upload", h.uploadBook)
	rg.GET("/books", h.listBooks)
	rg.GET("/books/:id", h.getBook)
	rg.GET("/books/:id/script", h.getScript)
	rg.GET("/scenes/:id", h.getScene)
}

// uploadBook принимает загружаемую книгу (multipart: title, author, file)
// и запускает ее асинхронную обработку
func (h *Handler) uploadBook(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "файл не найден в запросе"})
		return
	}

	if err := os.MkdirAll(h.uploadsDir, 0o755); err != nil {
		h.log.Error("Failed to create uploads dir", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "не удалось сохранить файл"})
		return
	}

	dst := filepath.Join(h.uploadsDir, uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		h.log.Error("Failed to save upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "не удалось сохранить файл"})
		return
	}

	book, err := h.books.Upload(c.Request.Context(), c.PostForm("title"), c.PostForm("author"), dst)
	if err != nil {
		h.log.Error("Failed to start book processing", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "обработка книги недоступна, попробуйте позже"})
		return
	}

	c.JSON(http.StatusAccepted, book)
}

// listBooks возвращает все загруженные книги
func (h *Handler) listBooks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"books": h.books.ListBooks()})
}

// getBook возвращает книгу и прогресс ее обработки
func (h *Handler) getBook(c *gin.Context) {
	book, err := h.books.GetBook(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "книга не найдена"})
		return
	}
	c.JSON(http.StatusOK, book)
}

// getScript возвращает сгенерированный сценарий книги
func (h *Handler) getScript(c *gin.Context) {
	script, err := h.books.GetScript(c.Param("id"))
	switch {
	case errors.Is(err, service.ErrBookNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "книга не найдена"})
	case errors.Is(err, service.ErrScriptNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "сценарий еще не готов"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, script)
	}
}

// getScene возвращает сцену по ID, генерируя ее на лету, если начальный
// сценарий ее не содержал. Книга указывается query-параметром book_id.
func (h *Handler) getScene(c *gin.Context) {
	bookID := c.Query("book_id")
	if bookID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "отсутствует параметр book_id"})
		return
	}

	scene, err := h.books.ExpandScene(c.Request.Context(), bookID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "книга не найдена"})
		return
	}
	c.JSON(http.StatusOK, scene)
}
