package service

import (
	"context"
	"fmt"
	"time"

	"token-giveaway/internal/domain"
)

// MintLimiter limita a quantidade global de mints por minuto calendário.
// É independente do estado por IP: o que ele protege é o recurso escasso em
// si, não importa qual cliente o aciona. Com storage em memória o teto vale
// por instância; com Redis, vale para o conjunto de instâncias.
type MintLimiter struct {
	storage domain.MintStorage
	max     int
	clock   domain.Clock
	logger  domain.Logger
}

// NewMintLimiter cria um limitador global de mints
func NewMintLimiter(storage domain.MintStorage, maxPerMinute int, clock domain.Clock, logger domain.Logger) *MintLimiter {
	return &MintLimiter{
		storage: storage,
		max:     maxPerMinute,
		clock:   clock,
		logger:  logger,
	}
}

// IsExceeded verifica se o teto global do minuto atual foi atingido
func (m *MintLimiter) IsExceeded(ctx context.Context) (bool, error) {
	now := m.clock.Now()

	count, err := m.storage.MintCount(ctx, domain.MintBucket(now))
	if err != nil {
		return false, fmt.Errorf("failed to read mint bucket: %w", err)
	}

	return count >= m.max, nil
}

// RecordMint registra um mint bem-sucedido no minuto atual.
// Deve ser chamado somente após a confirmação do mint: tentativas que
// falharam não consomem o orçamento do minuto.
func (m *MintLimiter) RecordMint(ctx context.Context) error {
	now := m.clock.Now()
	bucket := domain.MintBucket(now)

	count, err := m.storage.IncrementMint(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to record mint: %w", err)
	}

	m.logger.Info("Mint recorded in global budget", map[string]interface{}{
		"bucket": bucket,
		"count":  count,
		"max":    m.max,
	})
	return nil
}

// Stats retorna o estado do minuto atual
func (m *MintLimiter) Stats(ctx context.Context) (*domain.MintStats, error) {
	now := m.clock.Now()
	bucket := domain.MintBucket(now)

	count, err := m.storage.MintCount(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to read mint bucket: %w", err)
	}

	nextMinute := now.Truncate(time.Minute).Add(time.Minute)

	return &domain.MintStats{
		CurrentMinute:   bucket,
		CountThisMinute: count,
		MaxPerMinute:    m.max,
		IsExceeded:      count >= m.max,
		SecondsToReset:  secondsUntil(nextMinute, now),
	}, nil
}
