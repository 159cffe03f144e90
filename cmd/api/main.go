package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"token-giveaway/internal/config"
	"token-giveaway/internal/domain"
	"token-giveaway/internal/handler"
	"token-giveaway/internal/logger"
	"token-giveaway/internal/service"
	"token-giveaway/internal/storage"
	"token-giveaway/internal/wallet"
)

func main() {
	// Carregar configurações
	configLoader := config.NewConfigLoader()
	gateConfig, err := configLoader.LoadGateConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Obter configurações do servidor
	serverConfig := configLoader.GetConfig()

	// Inicializar logger
	appLogger := logger.NewLoggerWithOptions(logger.Options{
		Level:          serverConfig.LogLevel,
		Format:         serverConfig.LogFormat,
		File:           serverConfig.LogFile,
		FileMaxSizeMB:  serverConfig.LogFileMaxSizeMB,
		FileMaxAgeDays: serverConfig.LogFileMaxAgeDays,
	})
	appLogger.Info("Starting Token Giveaway API", map[string]interface{}{
		"version":   "1.0.0",
		"log_level": serverConfig.LogLevel,
		"port":      serverConfig.ServerPort,
	})

	// Inicializar storage (Strategy: memory ou redis via STORAGE_TYPE)
	storageConfig := storage.BuildStorageConfigFromEnv(
		serverConfig.StorageType,
		serverConfig.RedisHost,
		serverConfig.RedisPort,
		serverConfig.RedisPassword,
		serverConfig.RedisDB,
	)
	factory := storage.NewStorageFactory()
	store, err := factory.CreateStorage(storageConfig, appLogger)
	if err != nil {
		appLogger.Error("Failed to create storage", err, map[string]interface{}{
			"storage_type": serverConfig.StorageType,
		})
		os.Exit(1)
	}

	// O serviço de carteira é obrigatório: sem ele não há o que entregar
	if serverConfig.WalletAPIURL == "" {
		appLogger.Error("WALLET_API_URL is required", nil, nil)
		os.Exit(1)
	}

	clock := domain.NewSystemClock()

	// Inicializar serviços
	classifier := service.NewBotClassifier(gateConfig.BotSignatures)
	gate := service.NewAbuseGate(store, classifier, gateConfig, clock, appLogger)
	gate.StartCleanup()

	mintLimiter := service.NewMintLimiter(store, serverConfig.MaxMintsPerMinute, clock, appLogger)

	walletClient := wallet.NewClient(
		serverConfig.WalletAPIURL,
		serverConfig.WalletAPIKey,
		time.Duration(serverConfig.WalletTimeoutSeconds)*time.Second,
		appLogger,
	)

	claimProcessor := service.NewClaimProcessor(
		walletClient,
		mintLimiter,
		clock,
		appLogger,
		serverConfig.ClaimAmount,
		serverConfig.ClaimHistorySize,
	)

	// Inicializar handlers
	handlers := handler.NewHandlers(gate, mintLimiter, claimProcessor, store, appLogger, serverConfig.ClientIPHeader)

	// Configurar Gin
	if serverConfig.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Criar router
	router := gin.New()

	// Middlewares globais
	router.Use(gin.Recovery())

	// Middleware de logging customizado
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))

	// Configurar rotas
	handlers.SetupRoutes(router)

	// Configurar servidor HTTP
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", serverConfig.ServerPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Iniciar servidor em goroutine
	go func() {
		appLogger.Info("Starting HTTP server", map[string]interface{}{
			"port": serverConfig.ServerPort,
			"addr": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Failed to start server", err, nil)
			os.Exit(1)
		}
	}()

	// Aguardar sinais de interrupção
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	appLogger.Info("🚀 Token Giveaway API is running!", map[string]interface{}{
		"port": serverConfig.ServerPort,
		"endpoints": []string{
			"GET  /                  (game page)",
			"GET  /health",
			"GET  /metrics",
			"POST /api/claim         (abuse gate protected)",
			"GET  /api/claims/recent",
			"GET  /admin/stats",
			"GET  /admin/blocked",
			"POST /admin/unblock",
		},
		"abuse_gate": map[string]interface{}{
			"max_requests_per_window": gateConfig.MaxRequestsPerWindow,
			"window_seconds":          gateConfig.WindowSeconds,
			"block_duration_hours":    gateConfig.BlockDurationHours,
		},
		"mint_limiter": map[string]interface{}{
			"max_mints_per_minute": serverConfig.MaxMintsPerMinute,
			"claim_amount":         serverConfig.ClaimAmount,
		},
	})

	// Bloquear até receber sinal
	<-quit
	appLogger.Info("Shutting down server...", nil)

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", err, nil)
		os.Exit(1)
	}

	// Encerrar a varredura de limpeza e liberar o storage
	gate.StopCleanup()
	if err := store.Close(); err != nil {
		appLogger.Error("Failed to close storage", err, nil)
	}

	appLogger.Info("Server stopped gracefully", nil)
}
