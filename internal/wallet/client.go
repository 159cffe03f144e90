package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"token-giveaway/internal/domain"
	"token-giveaway/internal/logger"
)

// Client fala com o serviço externo de carteira que executa os mints.
// O contrato na fronteira é mínimo: sucesso com um txId ou falha. Retentativa
// e semântica de erro do lado da carteira ficam com o serviço externo.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     domain.Logger
}

// mintRequest é o corpo enviado ao serviço de carteira
type mintRequest struct {
	WalletAddress string `json:"walletAddress"`
	Amount        int    `json:"amount"`
}

// mintResponse é o corpo esperado de um mint bem-sucedido
type mintResponse struct {
	TxID string `json:"txId"`
}

// NewClient cria um cliente do serviço de carteira.
// apiKey é opcional; quando presente, vai como bearer token.
func NewClient(baseURL, apiKey string, timeout time.Duration, log domain.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log,
	}
}

// Mint credita tokens no endereço informado e retorna o recibo da transação
func (c *Client) Mint(ctx context.Context, walletAddress string, amount int) (*domain.MintReceipt, error) {
	payload, err := json.Marshal(mintRequest{
		WalletAddress: walletAddress,
		Amount:        amount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mint", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build mint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call wallet service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Corpo limitado só para diagnóstico no log
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("Wallet service returned non-OK status", nil, map[string]interface{}{
			"status": resp.StatusCode,
			"body":   string(body),
			"wallet": logger.MaskWallet(walletAddress),
		})
		return nil, fmt.Errorf("wallet service returned status %d", resp.StatusCode)
	}

	var parsed mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode mint response: %w", err)
	}
	if parsed.TxID == "" {
		return nil, fmt.Errorf("wallet service returned an empty txId")
	}

	c.logger.Info("Mint confirmed by wallet service", map[string]interface{}{
		"wallet":     logger.MaskWallet(walletAddress),
		"amount":     amount,
		"tx_id":      parsed.TxID,
		"latency_ms": time.Since(start).Seconds() * 1000,
	})

	return &domain.MintReceipt{
		TxID:   parsed.TxID,
		Amount: amount,
	}, nil
}
