package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"token-giveaway/internal/domain"
	"token-giveaway/internal/logger"
)

// AbuseGateMiddleware coloca o gate anti-abuso na frente das rotas protegidas.
// Toda decisão de negação vira uma resposta 429 estruturada; falha interna de
// avaliação vira 503 sem admitir a requisição (fail-closed: a rota protegida
// movimenta tokens).
type AbuseGateMiddleware struct {
	gate            domain.AbuseGateService
	logger          domain.Logger
	trustedIPHeader string
}

// NewAbuseGateMiddleware cria o middleware do gate anti-abuso.
// trustedIPHeader, quando configurado, é a fonte prioritária do IP do
// cliente; só deve ser definido atrás de um proxy confiável.
func NewAbuseGateMiddleware(
	gate domain.AbuseGateService,
	log domain.Logger,
	trustedIPHeader string,
) gin.HandlerFunc {
	middleware := &AbuseGateMiddleware{
		gate:            gate,
		logger:          log,
		trustedIPHeader: trustedIPHeader,
	}

	return middleware.Handle
}

// Handle é o handler principal do middleware
func (m *AbuseGateMiddleware) Handle(c *gin.Context) {
	// Contexto com timeout para as operações do gate
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	requestID := m.getRequestID(c)
	clientIP := extractClientIP(c, m.trustedIPHeader)
	userAgent := c.GetHeader("User-Agent")

	ctx = logger.ContextWithRequestInfo(ctx, requestID, clientIP, userAgent)
	log := m.logger.WithContext(ctx)

	log.Debug("Abuse gate middleware initiated", map[string]interface{}{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	})

	decision, err := m.gate.Evaluate(ctx, clientIP, userAgent, flattenHeaders(c.Request.Header))
	if err != nil {
		log.Error("Abuse gate evaluation failed", err, nil)

		// Fail-closed: falha interna nunca admite a requisição
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "service_unavailable",
			"message": "Unable to evaluate request, please try again",
		})
		c.Abort()
		return
	}

	if !decision.Allowed {
		log.Warn("Request denied by abuse gate", map[string]interface{}{
			"rule_triggered": string(decision.RuleTriggered),
			"retry_after":    decision.RetryAfter,
		})

		if decision.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(decision.RetryAfter))
		}

		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":         decision.Message,
			"retryAfter":    decision.RetryAfter,
			"ruleTriggered": decision.RuleTriggered,
		})
		c.Abort()
		return
	}

	log.Debug("Request admitted by abuse gate", map[string]interface{}{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	})

	c.Next()
}

// extractClientIP resolve o IP do cliente em ordem determinística de
// precedência: header confiável configurado > X-Forwarded-For >
// X-Real-IP > RemoteAddr. Sem proxy confiável na frente, headers podem ser
// forjados; por isso a fonte prioritária é opt-in via configuração.
func extractClientIP(c *gin.Context, trustedHeader string) string {
	if trustedHeader != "" {
		if value := c.GetHeader(trustedHeader); value != "" {
			return strings.TrimSpace(value)
		}
	}

	// X-Forwarded-For pode conter múltiplos IPs separados por vírgula;
	// o primeiro é o IP original do cliente
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			clientIP := strings.TrimSpace(ips[0])
			if clientIP != "" {
				return clientIP
			}
		}
	}

	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fallback para RemoteAddr (remove porta se presente)
	if host, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		return host
	}

	return c.Request.RemoteAddr
}

// flattenHeaders achata o mapa de headers para o formato que o classificador
// espera, preservando as chaves canônicas do net/http
func flattenHeaders(header http.Header) map[string]string {
	flattened := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) > 0 {
			flattened[key] = values[0]
		}
	}
	return flattened
}

// getRequestID obtém ou gera um Request ID para tracking
func (m *AbuseGateMiddleware) getRequestID(c *gin.Context) string {
	if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
		return requestID
	}

	requestID := uuid.New().String()
	c.Header("X-Request-ID", requestID)
	return requestID
}

// GetClientIP é uma função utilitária exportada para uso externo
func GetClientIP(c *gin.Context, trustedHeader string) string {
	return extractClientIP(c, trustedHeader)
}
