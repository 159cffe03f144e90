package handler

import (
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"token-giveaway/internal/domain"
	"token-giveaway/internal/logger"
	"token-giveaway/internal/middleware"
)

// Limites de tamanho aceitos para um endereço de carteira
const (
	minWalletLength = 8
	maxWalletLength = 128
)

// defaultRecentLimit é a quantidade padrão de claims retornada pela listagem
const defaultRecentLimit = 10

// Handlers contém os handlers da API
type Handlers struct {
	gate           domain.AbuseGateService
	mints          domain.MintLimiterService
	claims         domain.ClaimService
	storage        domain.Storage
	logger         domain.Logger
	clientIPHeader string
	startTime      time.Time
}

// NewHandlers cria uma nova instância dos handlers
func NewHandlers(
	gate domain.AbuseGateService,
	mints domain.MintLimiterService,
	claims domain.ClaimService,
	storage domain.Storage,
	log domain.Logger,
	clientIPHeader string,
) *Handlers {
	return &Handlers{
		gate:           gate,
		mints:          mints,
		claims:         claims,
		storage:        storage,
		logger:         log,
		clientIPHeader: clientIPHeader,
		startTime:      time.Now(),
	}
}

// SetupRoutes configura as rotas da API
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Gate anti-abuso na frente das rotas sensíveis
	gateMiddleware := middleware.NewAbuseGateMiddleware(h.gate, h.logger, h.clientIPHeader)

	// Página do jogo e arquivos estáticos
	router.StaticFile("/", "./web/static/index.html")
	router.Static("/static", "./web/static")

	// Rotas públicas (sem proteção do gate)
	router.GET("/health", h.HealthHandler)
	router.GET("/metrics", h.MetricsHandler)

	api := router.Group("/api")
	{
		api.GET("/claims/recent", h.RecentClaimsHandler)

		// O claim movimenta tokens: é a única rota atrás do gate
		protected := api.Group("")
		protected.Use(gateMiddleware)
		{
			protected.POST("/claim", h.ClaimHandler)
		}
	}

	// Rotas administrativas (autenticação fica com a infraestrutura na frente)
	admin := router.Group("/admin")
	{
		admin.GET("/stats", h.AdminStatsHandler)
		admin.GET("/blocked", h.AdminBlockedHandler)
		admin.POST("/unblock", h.AdminUnblockHandler)
	}
}

// HealthHandler implementa health check básico
func (h *Handlers) HealthHandler(c *gin.Context) {
	response := gin.H{
		"status":    "healthy",
		"service":   "Token Giveaway API",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	c.JSON(http.StatusOK, response)
}

// ClaimRequest representa o corpo da solicitação de tokens
type ClaimRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
}

// ClaimHandler processa uma solicitação de tokens.
// O gate anti-abuso já avaliou a requisição quando este handler roda; o que
// resta é o teto global de mints, consultado dentro do serviço de claims
// imediatamente antes de acionar a carteira.
func (h *Handlers) ClaimHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	walletAddress := strings.TrimSpace(req.WalletAddress)
	if len(walletAddress) < minWalletLength || len(walletAddress) > maxWalletLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "walletAddress must be between 8 and 128 characters",
		})
		return
	}

	clientIP := middleware.GetClientIP(c, h.clientIPHeader)
	ctx = logger.ContextWithWallet(ctx, walletAddress)
	log := h.logger.WithContext(ctx)

	outcome, err := h.claims.Submit(ctx, walletAddress, clientIP)
	if err != nil {
		var walletErr *domain.WalletError
		if errors.As(err, &walletErr) {
			// Falha na carteira não consome orçamento; o jogador pode tentar
			// de novo
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "wallet_error",
				"message": "Token mint failed, please try again",
			})
			return
		}

		log.Error("Claim submission failed", err, map[string]interface{}{
			"client_ip": clientIP,
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_server_error",
			"message": "Unable to process claim",
		})
		return
	}

	if !outcome.Minted {
		// Teto global do minuto atingido, independente de quem pediu
		if outcome.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(outcome.RetryAfter))
		}
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":         "Mint capacity reached for this minute",
			"retryAfter":    outcome.RetryAfter,
			"ruleTriggered": domain.RuleMintLimit,
		})
		return
	}

	claim := outcome.Claim
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"claim": gin.H{
			"id":            claim.ID,
			"walletAddress": logger.MaskWallet(claim.WalletAddress),
			"amount":        claim.Amount,
			"txId":          claim.TxID,
			"createdAt":     claim.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
}

// RecentClaimsHandler lista as solicitações atendidas mais recentes
func (h *Handlers) RecentClaimsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	limit := defaultRecentLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	claims, err := h.claims.Recent(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_server_error",
			"message": "Unable to list recent claims",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"claims": claims,
		"count":  len(claims),
	})
}

// MetricsHandler implementa endpoint de métricas do sistema
func (h *Handlers) MetricsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	// Calcular uptime
	uptime := time.Since(h.startTime)

	// Obter estatísticas do sistema
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := gin.H{
		"service":        "Token Giveaway API",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime":         uptime.String(),
		"uptime_seconds": int64(uptime.Seconds()),
		"system": gin.H{
			"go_version":   runtime.Version(),
			"goroutines":   runtime.NumGoroutine(),
			"memory_alloc": formatBytes(m.Alloc),
			"memory_total": formatBytes(m.TotalAlloc),
			"memory_sys":   formatBytes(m.Sys),
			"gc_runs":      m.NumGC,
		},
	}

	if gateStats, err := h.gate.Stats(ctx); err == nil {
		response["abuse_gate"] = gin.H{
			"tracked_ips":    gateStats.TrackedIPs,
			"blocked_ips":    len(gateStats.BlockedIPs),
			"suspicious_ips": len(gateStats.SuspiciousIPs),
		}
	}

	if mintStats, err := h.mints.Stats(ctx); err == nil {
		response["mint_limiter"] = mintStats
	}

	c.JSON(http.StatusOK, response)
}

// AdminStatsHandler retorna o estado completo do gate e do limitador de mints
func (h *Handlers) AdminStatsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	gateStats, err := h.gate.Stats(ctx)
	if err != nil {
		h.logger.Error("Failed to collect gate stats", err, nil)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_server_error",
			"message": "Failed to retrieve abuse gate stats",
		})
		return
	}

	mintStats, err := h.mints.Stats(ctx)
	if err != nil {
		h.logger.Error("Failed to collect mint stats", err, nil)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_server_error",
			"message": "Failed to retrieve mint limiter stats",
		})
		return
	}

	storageHealthy := h.storage.Health(ctx) == nil

	c.JSON(http.StatusOK, gin.H{
		"abuseGate":      gateStats,
		"mintLimiter":    mintStats,
		"storageHealthy": storageHealthy,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// AdminBlockedHandler lista os IPs com bloqueio ativo
func (h *Handlers) AdminBlockedHandler(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.gate.Stats(ctx)
	if err != nil {
		h.logger.Error("Failed to list blocked IPs", err, nil)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_server_error",
			"message": "Failed to retrieve blocked IPs",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"blockedIps": stats.BlockedIPs,
		"count":      len(stats.BlockedIPs),
	})
}

// UnblockRequest representa o corpo da requisição de desbloqueio
type UnblockRequest struct {
	IP string `json:"ip" binding:"required"`
}

// AdminUnblockHandler remove manualmente o bloqueio de um IP (idempotente)
func (h *Handlers) AdminUnblockHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req UnblockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	ip := strings.TrimSpace(req.IP)
	if ip == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "ip is required",
		})
		return
	}

	if err := h.gate.Unblock(ctx, ip); err != nil {
		h.logger.Error("Failed to unblock IP", err, map[string]interface{}{
			"ip": ip,
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_server_error",
			"message": "Failed to unblock IP",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "IP unblocked successfully",
		"ip":        ip,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// formatBytes formata bytes em formato legível
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return strconv.FormatUint(bytes, 10) + " B"
	}

	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return strconv.FormatFloat(float64(bytes)/float64(div), 'f', 1, 64) + " " + "KMGTPE"[exp:exp+1] + "B"
}
