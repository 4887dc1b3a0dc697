// Copyright 2025 KB Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main provides the chat service API for the KB Assistant. It
// answers user questions from a Kendra knowledge base, generating replies
// with Bedrock (or an OpenAI-compatible backend) and falling back across
// configured models.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/kendra"
	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/kb-assistant/internal/chat"
	"github.com/your-org/kb-assistant/internal/config"
	"github.com/your-org/kb-assistant/internal/generate"
	"github.com/your-org/kb-assistant/internal/health"
	"github.com/your-org/kb-assistant/internal/search"
)

const (
	// ServiceVersion is reported by the health endpoint
	ServiceVersion = "1.0.0"
	// DefaultPort is the default HTTP listen port
	DefaultPort = 8080
	// HealthCheckTimeout defines the timeout for health checks
	HealthCheckTimeout = 5 * time.Second

	// emptyMessageAnswer is returned when the request carries no message text.
	emptyMessageAnswer = "Mensagem vazia."
	// generationFailedAnswer is returned when every candidate model failed.
	generationFailedAnswer = "Desculpe, ocorreu um erro ao gerar a resposta. Tente novamente em instantes."
)

// ChatRequest represents the JSON payload for chat requests.
type ChatRequest struct {
	Message string `json:"message"`
}

// ServiceDependencies holds initialized service dependencies.
type ServiceDependencies struct {
	Service *chat.Service
	Config  *config.Config
	Logger  *zap.Logger
}

func main() {
	var configPath string
	var port int

	rootCmd := &cobra.Command{
		Use:   "chat",
		Short: "Knowledge-base chat service",
		Long:  "HTTP service answering user questions from the knowledge base with model fallback and structured artifact generation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath, port)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to the YAML configuration file")
	rootCmd.Flags().IntVar(&port, "port", DefaultPort, "HTTP listen port")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(configPath string, port int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initializeLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	maskedConfig := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded successfully",
		zap.String("service", "chat"),
		zap.String("region", maskedConfig.AWS.Region),
		zap.String("index_id", maskedConfig.Search.IndexID),
		zap.Int("top_k", maskedConfig.Search.TopK),
		zap.Int("max_context_chars", maskedConfig.Search.MaxContextChars),
		zap.String("model_id", maskedConfig.Generation.ModelID),
		zap.Strings("fallbacks", maskedConfig.Generation.Fallbacks),
		zap.String("on_empty_context", maskedConfig.Chat.OnEmptyContext),
		zap.String("openai_api_key", maskedConfig.OpenAI.APIKey),
	)

	deps, err := initializeDependencies(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(deps)

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting chat service",
		zap.String("addr", addr),
		zap.String("model_id", cfg.Generation.ModelID),
	)

	if err := router.Run(addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
	return nil
}

// initializeLogger creates a logger based on configuration settings.
func initializeLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	switch cfg.Logging.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	if cfg.Logging.Output == "file" {
		zapConfig.OutputPaths = []string{"chat.log"}
		zapConfig.ErrorOutputPaths = []string{"chat.log"}
	} else {
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	return zapConfig.Build()
}

// initializeDependencies builds the AWS clients and the chat pipeline.
func initializeDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ServiceDependencies, error) {
	logger.Info("Initializing service dependencies")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	retriever := search.NewRetriever(kendra.NewFromConfig(awsCfg), cfg.Search.IndexID, logger)

	var openAIClient generate.OpenAIAPI
	if needsOpenAI(cfg.Generation) {
		clientCfg := openai.DefaultConfig(cfg.OpenAI.APIKey)
		if cfg.OpenAI.Endpoint != "" {
			clientCfg.BaseURL = cfg.OpenAI.Endpoint
		}
		openAIClient = openai.NewClientWithConfig(clientCfg)
	}

	invoker := generate.NewInvoker(
		bedrockruntime.NewFromConfig(awsCfg),
		openAIClient,
		cfg.Generation.ModelID,
		cfg.Generation.Fallbacks,
		logger,
	)

	service := chat.NewService(retriever, invoker, chat.Options{
		TopK:            cfg.Search.TopK,
		MaxContextChars: cfg.Search.MaxContextChars,
		TextMaxTokens:   int32(cfg.Generation.TextMaxTokens),
		TextTemperature: float32(cfg.Generation.TextTemperature),
		JSONMaxTokens:   int32(cfg.Generation.JSONMaxTokens),
		JSONTemperature: float32(cfg.Generation.JSONTemperature),
		OnEmptyContext:  cfg.Chat.OnEmptyContext,
		NotFoundMessage: cfg.Chat.NotFoundMessage,
	}, logger)

	logger.Info("Service dependencies initialized successfully")

	return &ServiceDependencies{
		Service: service,
		Config:  cfg,
		Logger:  logger,
	}, nil
}

// needsOpenAI reports whether any configured model dispatches to the
// OpenAI-compatible backend.
func needsOpenAI(gen config.GenerationConfig) bool {
	if strings.HasPrefix(gen.ModelID, "gpt-") {
		return true
	}
	for _, m := range gen.Fallbacks {
		if strings.HasPrefix(m, "gpt-") {
			return true
		}
	}
	return false
}

// setupRouter builds the HTTP routes for the chat service.
func setupRouter(deps *ServiceDependencies) *gin.Engine {
	router := gin.Default()

	healthManager := health.NewManager("chat", ServiceVersion, deps.Logger)
	healthManager.SetTimeout(HealthCheckTimeout)
	setupHealthChecks(healthManager, deps)

	router.GET("/health", gin.WrapH(healthManager.HTTPHandler()))
	router.GET("/debug/config", createDebugConfigHandler(deps))
	router.POST("/chat", createChatHandler(deps))

	return router
}

// setupHealthChecks configures the dependency checks. Running without a
// Kendra index is a valid degraded mode, not a failure.
func setupHealthChecks(manager *health.Manager, deps *ServiceDependencies) {
	manager.AddCheckerFunc("search", func(ctx context.Context) health.CheckResult {
		if deps.Config.Search.IndexID == "" {
			return health.CheckResult{
				Status: health.StatusDegraded,
				Error:  "no Kendra index configured, answering without knowledge-base context",
			}
		}
		return health.CheckResult{
			Status: health.StatusHealthy,
			Metadata: map[string]interface{}{
				"index_id": deps.Config.Search.IndexID,
				"top_k":    deps.Config.Search.TopK,
			},
		}
	})

	manager.AddCheckerFunc("generation", func(ctx context.Context) health.CheckResult {
		return health.CheckResult{
			Status: health.StatusHealthy,
			Metadata: map[string]interface{}{
				"model_id":  deps.Config.Generation.ModelID,
				"fallbacks": deps.Config.Generation.Fallbacks,
			},
		}
	})
}

// createChatHandler creates the POST /chat handler.
func createChatHandler(deps *ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}

		message := strings.TrimSpace(req.Message)
		if message == "" {
			c.JSON(http.StatusOK, gin.H{"answer": emptyMessageAnswer, "citations": []chat.Citation{}})
			return
		}

		reply, err := deps.Service.Handle(c.Request.Context(), message)
		if err != nil {
			deps.Logger.Error("Chat request failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"answer": generationFailedAnswer, "error": err.Error()})
			return
		}

		if reply.Structured != nil {
			c.JSON(http.StatusOK, reply.Structured)
			return
		}
		c.JSON(http.StatusOK, gin.H{"answer": reply.Answer, "citations": reply.Citations})
	}
}

// createDebugConfigHandler creates the GET /debug/config handler, returning
// the effective configuration with sensitive values masked.
func createDebugConfigHandler(deps *ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Config.MaskSensitiveValues())
	}
}
