package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ollama/ollama/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openaigo "github.com/sashabaranov/go-openai"
)

var log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

// ErrGenerationFailed - ошибка при генерации текста AI. Оракул не делает
// внутренних ретраев: один вызов - один терминальный результат.
var ErrGenerationFailed = errors.New("ошибка генерации текста AI")

const responseCacheSize = 128

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plottwist_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plottwist_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	aiTotalTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plottwist_ai_total_tokens",
			Help:    "Histogram of total token counts (prompt + completion).",
			Buckets: prometheus.LinearBuckets(350, 350, 20),
		},
		[]string{"model"},
	)
)

// Request описывает один запрос к оракулу. Ожидаемая JSON-структура ответа
// описывается прямо в промптах.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

// Client - интерфейс оракула: внешняя возможность генерации структурированного
// текста. Ответ ожидается JSON-подобным, но может быть обернут в посторонний
// текст или оборван; вызывающая сторона обязана это переживать.
type Client interface {
	GenerateJSON(ctx context.Context, req Request) (string, error)
}

// Config содержит конфигурацию для клиента нейросети
type Config struct {
	ClientType string // openai или ollama
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
}

// New создает клиента оракула в зависимости от конфигурации.
func New(cfg Config) (Client, error) {
	if cfg.Model == "" {
		cfg.Model = "gpt-4-turbo"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}

	cache, err := lru.New[string, string](responseCacheSize)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать кэш ответов: %w", err)
	}

	switch strings.ToLower(cfg.ClientType) {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("не указан API ключ для AI")
		}
		openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			openaiConfig.BaseURL = cfg.BaseURL
		}
		openaiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		client := openaigo.NewClientWithConfig(openaiConfig)
		log.Info().Str("baseURL", openaiConfig.BaseURL).Str("model", cfg.Model).Dur("timeout", cfg.Timeout).Msg("OpenAI клиент создан")
		return &openAIClient{client: client, model: cfg.Model, timeout: cfg.Timeout, cache: cache}, nil
	case "ollama":
		base := strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/v1"), "/")
		parsedURL, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", base, err)
		}
		client := api.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout})
		log.Info().Str("baseURL", base).Str("model", cfg.Model).Dur("timeout", cfg.Timeout).Msg("Ollama клиент создан")
		return &ollamaClient{client: client, model: cfg.Model, timeout: cfg.Timeout, cache: cache}, nil
	default:
		return nil, fmt.Errorf("неизвестный тип AI клиента: '%s'", cfg.ClientType)
	}
}

// cacheKey хэширует промпты запроса; температура включена, чтобы
// креативные и детерминированные запросы не делили записи.
func cacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.SystemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(req.UserPrompt))
	h.Write([]byte(fmt.Sprintf("|%.2f|%d", req.Temperature, req.MaxTokens)))
	return hex.EncodeToString(h.Sum(nil))
}

// --- OpenAI implementation ---

type openAIClient struct {
	client  *openaigo.Client
	model   string
	timeout time.Duration
	cache   *lru.Cache[string, string]
}

func (c *openAIClient) GenerateJSON(ctx context.Context, req Request) (string, error) {
	key := cacheKey(req)
	if cached, ok := c.cache.Get(key); ok {
		log.Debug().Str("model", c.model).Msg("Ответ найден в кэше, запрос к API пропущен")
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "cache_hit"}).Inc()
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model: c.model,
		Messages: []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openaigo.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        0.95,
		ResponseFormat: &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	duration := time.Since(startTime)

	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("Ошибка при вызове CreateChatCompletion")
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error"}).Inc()
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		log.Warn().Dur("duration", duration).Msg("Пустой ответ от API")
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error_empty_response"}).Inc()
		return "", fmt.Errorf("%w: получен пустой ответ", ErrGenerationFailed)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": c.model}).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		aiTotalTokens.With(prometheus.Labels{"model": c.model}).Observe(float64(resp.Usage.TotalTokens))
	}

	content := resp.Choices[0].Message.Content
	log.Info().Str("model", c.model).Dur("duration", duration).Int("length", len(content)).Msg("Получен ответ от API")
	c.cache.Add(key, content)
	return content, nil
}

// --- Ollama implementation ---

type ollamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	cache   *lru.Cache[string, string]
}

func (c *ollamaClient) GenerateJSON(ctx context.Context, req Request) (string, error) {
	key := cacheKey(req)
	if cached, ok := c.cache.Get(key); ok {
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "cache_hit"}).Inc()
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream := false
	chatReq := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Stream: &stream,
		Format: []byte(`"json"`),
		Options: map[string]interface{}{
			"temperature": float64(req.Temperature),
			"num_predict": req.MaxTokens,
		},
	}

	startTime := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Error().Dur("timeout", c.timeout).Dur("duration", duration).Msg("Таймаут запроса к Ollama API")
		} else {
			log.Error().Err(err).Dur("duration", duration).Msg("Ошибка от Ollama API")
		}
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error"}).Inc()
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.Message.Content == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error_empty_response"}).Inc()
		return "", fmt.Errorf("%w: получен пустой ответ", ErrGenerationFailed)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": c.model}).Observe(duration.Seconds())
	if total := resp.PromptEvalCount + resp.EvalCount; total > 0 {
		aiTotalTokens.With(prometheus.Labels{"model": c.model}).Observe(float64(total))
	}

	content := resp.Message.Content
	log.Info().Str("model", c.model).Dur("duration", duration).Int("length", len(content)).Msg("Получен ответ от Ollama API")
	c.cache.Add(key, content)
	return content, nil
}
