package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"plottwist-server/internal/api"
	"plottwist-server/internal/config"
	ws "plottwist-server/internal/delivery/websocket"
	"plottwist-server/internal/logger"
	"plottwist-server/internal/middleware"
	"plottwist-server/internal/service"
	"plottwist-server/pkg/ai"
	"plottwist-server/pkg/taskmanager"
)

func main() {
	// Загрузка переменных окружения
	if err := godotenv.Load(); err != nil {
		// В production .env может не использоваться
		fmt.Printf("Warning: could not load .env file: %v\n", err)
	}

	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	zapLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	// Клиент AI (OpenAI-совместимый API либо Ollama)
	aiClient, err := ai.New(ai.Config{
		ClientType: cfg.AIClientType,
		APIKey:     cfg.AIAPIKey,
		BaseURL:    cfg.AIBaseURL,
		Model:      cfg.AIModel,
		Timeout:    cfg.AITimeout,
	})
	if err != nil {
		zapLogger.Fatal("Не удалось создать AI клиента", zap.Error(err))
	}

	// WebSocket-менеджер для уведомлений о прогрессе
	wsManager := ws.NewManager()
	wsManager.Start()

	// Менеджер фоновых задач обработки книг
	taskManager := taskmanager.New(taskmanager.Config{MaxTasks: 10})
	taskManager.SetNotifier(wsManager)

	// Сервис книг: извлечение текста, анализ, генерация сценария
	bookService := service.NewBookService(
		aiClient,
		service.NewPlainTextExtractor(),
		taskManager,
		cfg.SceneLimit,
		zapLogger,
	)

	// Настройка Gin
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ZapLoggingMiddlewareForGin(zapLogger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Метрики Prometheus
	prom := ginprometheus.NewPrometheus("plottwist")
	prom.Use(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", gin.WrapH(wsManager.Handler()))
	router.Static("/static", cfg.StaticDir)

	apiHandler := api.NewHandler(bookService, cfg.UploadsDir, zapLogger)
	apiHandler.RegisterRoutes(router.Group(cfg.BasePath))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeout) * time.Second,
	}

	go func() {
		zapLogger.Info("Сервер запущен", zap.Int("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Ошибка запуска сервера", zap.Error(err))
		}
	}()

	gracefulShutdown(server, taskManager, zapLogger)
}

// gracefulShutdown обеспечивает плавное завершение работы сервера
func gracefulShutdown(server *http.Server, taskManager *taskmanager.Manager, log *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Получен сигнал завершения, останавливаем сервер...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Ошибка при остановке HTTP-сервера", zap.Error(err))
	}

	if err := taskManager.Shutdown(ctx); err != nil {
		log.Error("Ошибка при остановке менеджера задач", zap.Error(err))
	}

	log.Info("Сервер остановлен")
}
