package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"token-giveaway/internal/domain"
	"token-giveaway/internal/logger"
)

// ClaimProcessor atende solicitações de tokens: consulta o teto global de
// mints, aciona o serviço externo de carteira e mantém um histórico efêmero
// em memória das solicitações atendidas. O histórico some com o processo;
// essa é uma troca deliberada de durabilidade por simplicidade.
type ClaimProcessor struct {
	wallet      domain.WalletClient
	mints       domain.MintLimiterService
	clock       domain.Clock
	logger      domain.Logger
	amount      int
	historySize int

	mutex   sync.Mutex
	history []domain.Claim
}

// NewClaimProcessor cria o serviço de claims
func NewClaimProcessor(
	wallet domain.WalletClient,
	mints domain.MintLimiterService,
	clock domain.Clock,
	log domain.Logger,
	amount int,
	historySize int,
) *ClaimProcessor {
	return &ClaimProcessor{
		wallet:      wallet,
		mints:       mints,
		clock:       clock,
		logger:      log,
		amount:      amount,
		historySize: historySize,
	}
}

// Submit processa uma solicitação de claim para um endereço de carteira.
// O teto global é consultado antes do mint e o orçamento só é consumido
// depois da confirmação: mint que falha não conta.
func (s *ClaimProcessor) Submit(ctx context.Context, walletAddress, ip string) (*domain.ClaimOutcome, error) {
	stats, err := s.mints.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check mint budget: %w", err)
	}

	if stats.IsExceeded {
		s.logger.Warn("Claim rejected: global mint budget exhausted", map[string]interface{}{
			"bucket": stats.CurrentMinute,
			"count":  stats.CountThisMinute,
			"max":    stats.MaxPerMinute,
		})
		return &domain.ClaimOutcome{
			Minted:     false,
			RetryAfter: stats.SecondsToReset,
		}, nil
	}

	receipt, err := s.wallet.Mint(ctx, walletAddress, s.amount)
	if err != nil {
		// Falha no mint não consome orçamento
		s.logger.Error("Wallet mint failed", err, map[string]interface{}{
			"wallet": logger.MaskWallet(walletAddress),
			"ip":     ip,
		})
		return nil, &domain.WalletError{Err: err}
	}

	// O mint já aconteceu; falha no registro do orçamento só é logada
	if err := s.mints.RecordMint(ctx); err != nil {
		s.logger.Error("Failed to record successful mint", err, map[string]interface{}{
			"tx_id": receipt.TxID,
		})
	}

	claim := domain.Claim{
		ID:            uuid.New().String(),
		WalletAddress: walletAddress,
		Amount:        receipt.Amount,
		TxID:          receipt.TxID,
		IP:            ip,
		CreatedAt:     s.clock.Now(),
	}
	s.appendClaim(claim)

	s.logger.Info("Claim fulfilled", map[string]interface{}{
		"claim_id": claim.ID,
		"wallet":   logger.MaskWallet(walletAddress),
		"amount":   claim.Amount,
		"tx_id":    claim.TxID,
	})

	return &domain.ClaimOutcome{
		Minted: true,
		Claim:  &claim,
	}, nil
}

// Recent retorna as solicitações atendidas mais recentes, da mais nova para
// a mais antiga, com os endereços de carteira mascarados
func (s *ClaimProcessor) Recent(ctx context.Context, limit int) ([]domain.Claim, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}

	recent := make([]domain.Claim, 0, limit)
	for i := len(s.history) - 1; i >= len(s.history)-limit; i-- {
		claim := s.history[i]
		claim.WalletAddress = logger.MaskWallet(claim.WalletAddress)
		claim.IP = ""
		recent = append(recent, claim)
	}

	return recent, nil
}

// appendClaim adiciona um claim ao histórico, descartando o mais antigo
// quando o tamanho configurado é atingido
func (s *ClaimProcessor) appendClaim(claim domain.Claim) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.history = append(s.history, claim)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
}
