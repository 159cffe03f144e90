package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"token-giveaway/internal/domain"
)

// Mensagens retornadas nas decisões de negação
const (
	msgIPBlocked    = "IP address is temporarily blocked"
	msgBotUserAgent = "Bot user agent detected"
	msgRateLimit    = "Rate limit exceeded"
)

// retentionMultiplier define quanto histórico de janela a varredura de
// limpeza preserva, em múltiplos da janela
const retentionMultiplier = 10

// mintPurgeHorizon define a idade a partir da qual buckets de mint são
// descartados pela varredura
const mintPurgeHorizon = 2 * time.Minute

// AbuseGate orquestra as proteções anti-abuso na frente das rotas sensíveis.
// A ordem de avaliação importa: bloqueio primeiro (mais barato e decisivo),
// depois heurísticas (baratas, sem crescimento de estado), por fim a janela
// deslizante, o único caminho que muta contadores e pode instalar bloqueio.
type AbuseGate struct {
	storage    domain.Storage
	classifier *BotClassifier
	config     *domain.GateConfig
	clock      domain.Clock
	logger     domain.Logger

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewAbuseGate cria uma nova instância do gate anti-abuso
func NewAbuseGate(
	storage domain.Storage,
	classifier *BotClassifier,
	config *domain.GateConfig,
	clock domain.Clock,
	logger domain.Logger,
) *AbuseGate {
	return &AbuseGate{
		storage:     storage,
		classifier:  classifier,
		config:      config,
		clock:       clock,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}
}

// Evaluate avalia uma requisição e decide se ela deve ser admitida.
// Negações são retornadas como dados; um erro aqui significa falha interna
// e o chamador deve negar a requisição (fail-closed).
func (g *AbuseGate) Evaluate(ctx context.Context, ip, userAgent string, headers map[string]string) (*domain.Decision, error) {
	now := g.clock.Now()
	blockDuration := g.blockDuration()

	// 1. IP já bloqueado: rejeição rápida, sem crescimento de estado
	blocked, blockedUntil, err := g.storage.IsBlocked(ctx, ip, now)
	if err != nil {
		return nil, fmt.Errorf("failed to check block status: %w", err)
	}
	if blocked {
		retryAfter := int(blockDuration.Seconds())
		if blockedUntil != nil {
			retryAfter = secondsUntil(*blockedUntil, now)
		}
		g.logDenied(ip, domain.RuleIPBlocked, map[string]interface{}{
			"blocked_until": blockedUntil,
		})
		return &domain.Decision{
			Allowed:       false,
			RuleTriggered: domain.RuleIPBlocked,
			Message:       msgIPBlocked,
			RetryAfter:    retryAfter,
		}, nil
	}

	// 2. User agent de bot: nega a requisição atual e sinaliza o IP, mas não
	// instala bloqueio temporizado; só o estouro da janela bloqueia
	if g.classifier.IsBotUserAgent(userAgent) {
		g.flagSuspicious(ctx, ip, msgBotUserAgent, now)
		g.logDenied(ip, domain.RuleBotUserAgent, map[string]interface{}{
			"user_agent": userAgent,
		})
		return &domain.Decision{
			Allowed:       false,
			RuleTriggered: domain.RuleBotUserAgent,
			Message:       msgBotUserAgent,
			RetryAfter:    int(blockDuration.Seconds()),
		}, nil
	}

	// 3. Headers suspeitos: mesmo tratamento do user agent de bot
	if suspicious, reason := g.classifier.CheckHeaders(headers); suspicious {
		g.flagSuspicious(ctx, ip, reason, now)
		g.logDenied(ip, domain.RuleSuspiciousHeaders, map[string]interface{}{
			"reason": reason,
		})
		return &domain.Decision{
			Allowed:       false,
			RuleTriggered: domain.RuleSuspiciousHeaders,
			Message:       reason,
			RetryAfter:    int(blockDuration.Seconds()),
		}, nil
	}

	// 4. Janela deslizante: a contagem é avaliada antes de registrar a
	// chegada atual, em uma única operação atômica do storage
	window := time.Duration(g.config.WindowSeconds) * time.Second
	count, exceeded, err := g.storage.Hit(ctx, ip, now, window, g.config.MaxRequestsPerWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to record arrival: %w", err)
	}
	if exceeded {
		// O bloqueio é melhor esforço: a negação 429 vale mesmo se a escrita
		// do bloqueio falhar
		if err := g.storage.Block(ctx, ip, now, blockDuration, domain.BlockReasonRateLimit); err != nil {
			g.logger.Error("Failed to install rate limit block", err, map[string]interface{}{
				"ip": ip,
			})
		}
		g.logDenied(ip, domain.RuleRateLimit, map[string]interface{}{
			"count": count,
			"limit": g.config.MaxRequestsPerWindow,
		})
		return &domain.Decision{
			Allowed:       false,
			RuleTriggered: domain.RuleRateLimit,
			Message:       msgRateLimit,
			RetryAfter:    int(blockDuration.Seconds()),
		}, nil
	}

	// 5. Admitida; a chegada já foi registrada pelo Hit
	g.logger.Debug("Request admitted by abuse gate", map[string]interface{}{
		"ip":    ip,
		"count": count,
		"limit": g.config.MaxRequestsPerWindow,
	})

	return &domain.Decision{Allowed: true}, nil
}

// Unblock remove manualmente o bloqueio de um IP (idempotente)
func (g *AbuseGate) Unblock(ctx context.Context, ip string) error {
	if err := g.storage.Unblock(ctx, ip); err != nil {
		return fmt.Errorf("failed to unblock %s: %w", ip, err)
	}

	g.logger.Info("IP unblocked by administrative override", map[string]interface{}{
		"ip": ip,
	})
	return nil
}

// Stats retorna o estado observável do gate para monitoramento
func (g *AbuseGate) Stats(ctx context.Context) (*domain.GateStats, error) {
	now := g.clock.Now()

	blocked, err := g.storage.BlockedIPs(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked IPs: %w", err)
	}

	suspicious, err := g.storage.SuspiciousIPs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list suspicious IPs: %w", err)
	}

	tracked, err := g.storage.TrackedCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count tracked IPs: %w", err)
	}

	return &domain.GateStats{
		TrackedIPs:    tracked,
		BlockedIPs:    blocked,
		SuspiciousIPs: suspicious,
		Config:        *g.config,
	}, nil
}

// StartCleanup inicia a varredura periódica de limpeza.
// A varredura é higiene de memória, não correção: bloqueios expiram
// preguiçosamente na leitura, e registros bloqueados nunca são removidos.
func (g *AbuseGate) StartCleanup() {
	interval := time.Duration(g.config.CleanupIntervalMinutes) * time.Minute

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				g.runCleanup()
			case <-g.stopCleanup:
				return
			}
		}
	}()

	g.logger.Info("Abuse gate cleanup loop started", map[string]interface{}{
		"interval_minutes": g.config.CleanupIntervalMinutes,
	})
}

// StopCleanup encerra a varredura periódica; seguro chamar mais de uma vez
func (g *AbuseGate) StopCleanup() {
	g.stopOnce.Do(func() {
		close(g.stopCleanup)
	})
}

// runCleanup executa uma passada de limpeza sobre registros de IP e buckets
// de mint
func (g *AbuseGate) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := g.clock.Now()
	retention := time.Duration(retentionMultiplier*g.config.WindowSeconds) * time.Second

	removed, err := g.storage.Cleanup(ctx, now, retention)
	if err != nil {
		g.logger.Error("Abuse gate cleanup failed", err, nil)
		return
	}

	oldestBucket := domain.MintBucket(now.Add(-mintPurgeHorizon))
	purged, err := g.storage.CleanupMints(ctx, oldestBucket)
	if err != nil {
		g.logger.Error("Mint bucket cleanup failed", err, nil)
		return
	}

	g.logger.Debug("Abuse gate cleanup completed", map[string]interface{}{
		"records_removed": removed,
		"buckets_purged":  purged,
	})
}

// blockDuration retorna a duração configurada dos bloqueios temporizados
func (g *AbuseGate) blockDuration() time.Duration {
	return time.Duration(g.config.BlockDurationHours) * time.Hour
}

// flagSuspicious sinaliza um IP sem interromper a avaliação; a negação da
// requisição atual vale mesmo se o registro do sinal falhar
func (g *AbuseGate) flagSuspicious(ctx context.Context, ip, reason string, now time.Time) {
	if err := g.storage.FlagSuspicious(ctx, ip, reason, now); err != nil {
		g.logger.Error("Failed to flag suspicious IP", err, map[string]interface{}{
			"ip":     ip,
			"reason": reason,
		})
	}
}

// logDenied registra uma negação do gate
func (g *AbuseGate) logDenied(ip string, rule domain.BlockRule, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["ip"] = ip
	fields["rule_triggered"] = string(rule)

	g.logger.Warn("Request denied by abuse gate", fields)
}

// secondsUntil retorna os segundos até um instante, arredondando para cima
func secondsUntil(until, now time.Time) int {
	remaining := until.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}
