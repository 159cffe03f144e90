package domain

import (
	"fmt"
	"time"
)

// BlockRule identifica a regra de proteção que negou uma requisição
type BlockRule string

const (
	RuleIPBlocked         BlockRule = "IP_BLOCKED"
	RuleBotUserAgent      BlockRule = "BOT_USER_AGENT"
	RuleSuspiciousHeaders BlockRule = "SUSPICIOUS_HEADERS"
	RuleRateLimit         BlockRule = "RATE_LIMIT"
	RuleMintLimit         BlockRule = "MINT_LIMIT"
)

// BlockReason registra o motivo pelo qual um IP está bloqueado
type BlockReason string

const (
	BlockReasonRateLimit         BlockReason = "RATE_LIMIT_EXCEEDED"
	BlockReasonBotUserAgent      BlockReason = "BOT_USER_AGENT"
	BlockReasonSuspiciousHeaders BlockReason = "SUSPICIOUS_HEADERS"
	BlockReasonManual            BlockReason = "MANUAL"
)

// Decision representa o resultado da avaliação de uma requisição pelo gate.
// Negações são dados, não erros: a política nega, o transporte traduz.
type Decision struct {
	Allowed       bool      `json:"allowed"`
	RuleTriggered BlockRule `json:"ruleTriggered,omitempty"`
	Message       string    `json:"message,omitempty"`
	RetryAfter    int       `json:"retryAfter,omitempty"` // Segundos até nova tentativa
}

// ClientRecord representa o estado rastreado de um IP cliente
type ClientRecord struct {
	IP           string      `json:"ip"`
	Timestamps   []time.Time `json:"timestamps"`
	Blocked      bool        `json:"blocked"`
	BlockReason  BlockReason `json:"blockReason,omitempty"`
	BlockedAt    *time.Time  `json:"blockedAt,omitempty"`
	BlockedUntil *time.Time  `json:"blockedUntil,omitempty"`
}

// BlockedIPInfo descreve um bloqueio ativo para fins de relatório
type BlockedIPInfo struct {
	IP               string      `json:"ip"`
	Reason           BlockReason `json:"reason"`
	BlockedAt        time.Time   `json:"blockedAt"`
	BlockedUntil     time.Time   `json:"blockedUntil"`
	RemainingSeconds int         `json:"remainingSeconds"`
}

// SuspiciousIPInfo descreve um IP sinalizado pelas heurísticas de bot
type SuspiciousIPInfo struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
	Count     int       `json:"count"`
}

// GateConfig define os parâmetros de proteção do gate anti-abuso
type GateConfig struct {
	MaxRequestsPerWindow   int      `json:"maxRequestsPerWindow"`
	WindowSeconds          int      `json:"windowSeconds"`
	BlockDurationHours     int      `json:"blockDurationHours"`
	CleanupIntervalMinutes int      `json:"cleanupIntervalMinutes"`
	BotSignatures          []string `json:"botSignatures"`
}

// GateStats agrega o estado observável do gate para monitoramento
type GateStats struct {
	TrackedIPs    int                `json:"trackedIps"`
	BlockedIPs    []BlockedIPInfo    `json:"blockedIps"`
	SuspiciousIPs []SuspiciousIPInfo `json:"suspiciousIps"`
	Config        GateConfig         `json:"config"`
}

// MintStats representa o estado do limitador global de mints no minuto atual
type MintStats struct {
	CurrentMinute   string `json:"currentMinute"`
	CountThisMinute int    `json:"countThisMinute"`
	MaxPerMinute    int    `json:"maxPerMinute"`
	IsExceeded      bool   `json:"isExceeded"`
	SecondsToReset  int    `json:"secondsToReset"`
}

// MintReceipt representa a confirmação de um mint pelo serviço de carteira
type MintReceipt struct {
	TxID   string `json:"txId"`
	Amount int    `json:"amount"`
}

// Claim representa uma solicitação de tokens atendida com sucesso
type Claim struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"walletAddress"`
	Amount        int       `json:"amount"`
	TxID          string    `json:"txId"`
	IP            string    `json:"ip"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ClaimOutcome representa o resultado de uma solicitação de claim.
// Quando o teto global do minuto foi atingido, Minted é false e RetryAfter
// indica os segundos até a virada do próximo minuto.
type ClaimOutcome struct {
	Minted     bool   `json:"minted"`
	Claim      *Claim `json:"claim,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// WalletError indica falha na comunicação com o serviço externo de carteira.
// Mints que falham não consomem o orçamento do minuto.
type WalletError struct {
	Err error
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("wallet service error: %v", e.Err)
}

func (e *WalletError) Unwrap() error {
	return e.Err
}
