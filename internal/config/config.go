package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию сервера PlotTwist
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Настройки HTTP сервера
	ServerPort          int      `envconfig:"SERVER_PORT" default:"8080"`
	BasePath            string   `envconfig:"SERVER_BASE_PATH" default:"/api"`
	ReadTimeout         int      `envconfig:"SERVER_READ_TIMEOUT" default:"15"`
	WriteTimeout        int      `envconfig:"SERVER_WRITE_TIMEOUT" default:"60"`
	IdleTimeout         int      `envconfig:"SERVER_IDLE_TIMEOUT" default:"60"`
	CORSAllowedOrigins  []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:8080,http://127.0.0.1:8080"`
	UploadsDir          string   `envconfig:"UPLOADS_DIR" default:"uploads"`
	StaticDir           string   `envconfig:"STATIC_DIR" default:"static"`

	// Настройки логирования
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// Настройки AI (OpenAI-совместимый API либо Ollama)
	AIClientType string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	AIBaseURL    string        `envconfig:"AI_BASE_URL" default:"https://api.openai.com/v1"`
	AIModel      string        `envconfig:"AI_MODEL" default:"gpt-4-turbo"`
	AITimeout    time.Duration `envconfig:"AI_TIMEOUT" default:"90s"`
	AIAPIKey     string        `envconfig:"AI_API_KEY"`

	// Настройки генерации сценария
	SceneLimit int `envconfig:"SCENE_LIMIT" default:"5"`
}

// LoadConfig загружает конфигурацию из переменных окружения
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	if cfg.AIClientType == "openai" && cfg.AIAPIKey == "" {
		return nil, fmt.Errorf("AI_API_KEY not set")
	}
	if cfg.SceneLimit <= 0 {
		cfg.SceneLimit = 5
	}

	// Логируем загруженную конфигурацию (кроме ключей)
	log.Printf("Конфигурация загружена:")
	log.Printf("  Environment: %s", cfg.Environment)
	log.Printf("  Server Port: %d", cfg.ServerPort)
	log.Printf("  Base Path: %s", cfg.BasePath)
	log.Printf("  Uploads Dir: %s", cfg.UploadsDir)
	log.Printf("  AI Client Type: %s", cfg.AIClientType)
	log.Printf("  AI Base URL: %s", cfg.AIBaseURL)
	log.Printf("  AI Model: %s", cfg.AIModel)
	log.Printf("  AI Timeout: %v", cfg.AITimeout)
	log.Printf("  Scene Limit: %d", cfg.SceneLimit)
	if cfg.AIAPIKey != "" {
		log.Println("  AI API Key: [ЗАГРУЖЕН]")
	}

	return &cfg, nil
}
