package domain

import (
	"context"
	"time"
)

// AbuseStorage define a persistência do motor anti-abuso.
// Implementa o Strategy Pattern: memória local por padrão, Redis quando o
// estado precisa ser compartilhado entre instâncias.
type AbuseStorage interface {
	// Hit registra atomicamente uma chegada na janela deslizante de um IP.
	// A contagem considera apenas as chegadas anteriores dentro da janela e é
	// avaliada ANTES de registrar a chegada atual; quando o limite já foi
	// atingido a chegada não é registrada.
	Hit(ctx context.Context, ip string, now time.Time, window time.Duration, limit int) (count int, exceeded bool, err error)

	// IsBlocked verifica se um IP está bloqueado. Bloqueios vencidos são
	// removidos como efeito colateral da própria leitura.
	IsBlocked(ctx context.Context, ip string, now time.Time) (bool, *time.Time, error)

	// Block bloqueia um IP por um período específico, sobrescrevendo
	// qualquer bloqueio anterior
	Block(ctx context.Context, ip string, now time.Time, duration time.Duration, reason BlockReason) error

	// Unblock remove o bloqueio de um IP (idempotente)
	Unblock(ctx context.Context, ip string) error

	// FlagSuspicious registra um IP como suspeito para fins de relatório
	FlagSuspicious(ctx context.Context, ip, reason string, now time.Time) error

	// BlockedIPs lista os bloqueios ativos
	BlockedIPs(ctx context.Context, now time.Time) ([]BlockedIPInfo, error)

	// SuspiciousIPs lista os IPs sinalizados pelas heurísticas
	SuspiciousIPs(ctx context.Context) ([]SuspiciousIPInfo, error)

	// TrackedCount retorna o número de IPs com registro ativo
	TrackedCount(ctx context.Context) (int, error)

	// Cleanup descarta timestamps anteriores à retenção e remove registros
	// vazios não bloqueados. Nunca remove um registro bloqueado.
	Cleanup(ctx context.Context, now time.Time, retention time.Duration) (removed int, err error)
}

// MintStorage define a persistência dos buckets por minuto do limitador global
type MintStorage interface {
	// MintCount retorna o total de mints registrados em um bucket
	MintCount(ctx context.Context, bucket string) (int, error)

	// IncrementMint registra um mint bem-sucedido no bucket e retorna o novo total
	IncrementMint(ctx context.Context, bucket string) (int, error)

	// CleanupMints remove buckets anteriores ao bucket informado
	CleanupMints(ctx context.Context, oldest string) (removed int, err error)
}

// Storage agrega as interfaces atendidas por cada estratégia de persistência
type Storage interface {
	AbuseStorage
	MintStorage

	// Health verifica se o storage está saudável
	Health(ctx context.Context) error

	// Close fecha a conexão com o storage
	Close() error
}

// AbuseGateService define o serviço que orquestra as proteções anti-abuso
type AbuseGateService interface {
	// Evaluate avalia uma requisição e decide se ela deve ser admitida.
	// As chaves de headers devem estar na forma canônica do net/http.
	Evaluate(ctx context.Context, ip, userAgent string, headers map[string]string) (*Decision, error)

	// Unblock remove manualmente o bloqueio de um IP (idempotente)
	Unblock(ctx context.Context, ip string) error

	// Stats retorna o estado observável do gate
	Stats(ctx context.Context) (*GateStats, error)
}

// MintLimiterService define o limitador global de mints por minuto
type MintLimiterService interface {
	// IsExceeded verifica se o teto global do minuto atual foi atingido
	IsExceeded(ctx context.Context) (bool, error)

	// RecordMint registra um mint bem-sucedido no minuto atual.
	// Deve ser chamado somente após a confirmação do mint.
	RecordMint(ctx context.Context) error

	// Stats retorna o estado do minuto atual
	Stats(ctx context.Context) (*MintStats, error)
}

// ClaimService define o fluxo de solicitação de tokens
type ClaimService interface {
	// Submit processa uma solicitação de claim para um endereço de carteira
	Submit(ctx context.Context, walletAddress, ip string) (*ClaimOutcome, error)

	// Recent retorna as solicitações atendidas mais recentes
	Recent(ctx context.Context, limit int) ([]Claim, error)
}

// WalletClient define o cliente do serviço externo de carteira
type WalletClient interface {
	// Mint credita tokens no endereço informado
	Mint(ctx context.Context, walletAddress string, amount int) (*MintReceipt, error)
}

// Logger define a interface para logging estruturado
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
	WithContext(ctx context.Context) Logger
}

// ConfigLoader define a interface para carregamento de configurações
type ConfigLoader interface {
	LoadGateConfig() (*GateConfig, error)
	LoadBotSignatures() ([]string, error)
	Reload() error
}
