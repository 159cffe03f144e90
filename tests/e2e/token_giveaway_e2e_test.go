package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-giveaway/internal/domain"
	"token-giveaway/internal/handler"
	"token-giveaway/internal/logger"
	"token-giveaway/internal/service"
	"token-giveaway/internal/storage"
)

// stubWallet simula o serviço externo de carteira: sempre confirma o mint
// e conta quantos foram pedidos
type stubWallet struct {
	calls int64
}

func (w *stubWallet) Mint(ctx context.Context, walletAddress string, amount int) (*domain.MintReceipt, error) {
	n := atomic.AddInt64(&w.calls, 1)
	return &domain.MintReceipt{
		TxID:   fmt.Sprintf("tx-%06d", n),
		Amount: amount,
	}, nil
}

// adjustableClock permite mover o relógio durante o teste
type adjustableClock struct {
	mutex sync.Mutex
	now   time.Time
}

func (c *adjustableClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *adjustableClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

// E2ETestSuite contém os componentes necessários para os testes E2E
type E2ETestSuite struct {
	router *gin.Engine
	server *httptest.Server
	wallet *stubWallet
	clock  *adjustableClock
	gate   *service.AbuseGate
}

// setupE2ETest configura um ambiente completo para testes E2E: serviços
// reais sobre storage em memória, com carteira simulada e relógio ajustável
func setupE2ETest(t *testing.T, maxRequests, maxMints int) *E2ETestSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	appLogger := logger.NewLogger("error", "json")
	store := storage.NewMemoryStorage(appLogger)
	clock := &adjustableClock{now: time.Date(2025, 6, 15, 10, 0, 30, 0, time.UTC)}
	wallet := &stubWallet{}

	gateConfig := &domain.GateConfig{
		MaxRequestsPerWindow:   maxRequests,
		WindowSeconds:          10,
		BlockDurationHours:     12,
		CleanupIntervalMinutes: 5,
	}

	classifier := service.NewBotClassifier(nil)
	gate := service.NewAbuseGate(store, classifier, gateConfig, clock, appLogger)
	mintLimiter := service.NewMintLimiter(store, maxMints, clock, appLogger)
	claimProcessor := service.NewClaimProcessor(wallet, mintLimiter, clock, appLogger, 5, 50)

	handlers := handler.NewHandlers(gate, mintLimiter, claimProcessor, store, appLogger, "")

	router := gin.New()
	router.Use(gin.Recovery())
	handlers.SetupRoutes(router)

	server := httptest.NewServer(router)

	return &E2ETestSuite{
		router: router,
		server: server,
		wallet: wallet,
		clock:  clock,
		gate:   gate,
	}
}

// teardownE2ETest limpa os recursos do teste E2E
func (suite *E2ETestSuite) teardownE2ETest() {
	if suite.server != nil {
		suite.server.Close()
	}
}

// claimRequest monta um POST /api/claim com headers de navegador para o IP
// e user agent informados
func (suite *E2ETestSuite) claimRequest(t *testing.T, ip, userAgent string) *http.Request {
	t.Helper()

	body := bytes.NewBufferString(`{"walletAddress": "0xabc123def456"}`)
	req, err := http.NewRequest("POST", suite.server.URL+"/api/claim", body)
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", ip)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Referer", "https://giveaway.example/")
	return req
}

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

func decodeResponse(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	return response
}

// TestE2E_TokenGiveaway_BasicFunctionality testa os endpoints públicos
func TestE2E_TokenGiveaway_BasicFunctionality(t *testing.T) {
	suite := setupE2ETest(t, 10, 20)
	defer suite.teardownE2ETest()

	client := &http.Client{Timeout: 5 * time.Second}

	t.Run("Health endpoint should be accessible", func(t *testing.T) {
		resp, err := client.Get(suite.server.URL + "/health")
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		response := decodeResponse(t, resp)
		assert.Equal(t, "healthy", response["status"])
		assert.Equal(t, "Token Giveaway API", response["service"])
	})

	t.Run("Metrics endpoint should return system info", func(t *testing.T) {
		resp, err := client.Get(suite.server.URL + "/metrics")
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		response := decodeResponse(t, resp)
		assert.Equal(t, "Token Giveaway API", response["service"])
		assert.Contains(t, response, "uptime")
		assert.Contains(t, response, "system")
		assert.Contains(t, response, "abuse_gate")
		assert.Contains(t, response, "mint_limiter")
	})

	t.Run("Claim should mint and show up in the recent list", func(t *testing.T) {
		resp, err := client.Do(suite.claimRequest(t, "203.0.113.1", browserUA))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		response := decodeResponse(t, resp)
		assert.Equal(t, "success", response["status"])

		claim := response["claim"].(map[string]interface{})
		assert.Equal(t, "0xabc123***", claim["walletAddress"])
		assert.Equal(t, float64(5), claim["amount"])
		assert.NotEmpty(t, claim["txId"])

		// O claim aparece na listagem pública, mascarado
		listResp, err := client.Get(suite.server.URL + "/api/claims/recent")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, listResp.StatusCode)

		listResponse := decodeResponse(t, listResp)
		assert.Equal(t, float64(1), listResponse["count"])
		claims := listResponse["claims"].([]interface{})
		require.Len(t, claims, 1)
		assert.Equal(t, "0xabc123***", claims[0].(map[string]interface{})["walletAddress"])
	})
}

// TestE2E_TokenGiveaway_AbuseGate testa as proteções na frente do claim
func TestE2E_TokenGiveaway_AbuseGate(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}

	t.Run("Should rate limit a flooding IP and then block it", func(t *testing.T) {
		suite := setupE2ETest(t, 3, 100)
		defer suite.teardownE2ETest()

		// As primeiras requisições dentro da janela passam
		for i := 0; i < 3; i++ {
			resp, err := client.Do(suite.claimRequest(t, "198.51.100.7", browserUA))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode, "Request %d should be allowed", i+1)
		}

		// A próxima estoura a janela e instala o bloqueio
		resp, err := client.Do(suite.claimRequest(t, "198.51.100.7", browserUA))
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("Retry-After"))

		response := decodeResponse(t, resp)
		assert.Equal(t, "RATE_LIMIT", response["ruleTriggered"])
		assert.Equal(t, "Rate limit exceeded", response["error"])

		// Com o bloqueio instalado, a regra muda para IP_BLOCKED
		resp, err = client.Do(suite.claimRequest(t, "198.51.100.7", browserUA))
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

		response = decodeResponse(t, resp)
		assert.Equal(t, "IP_BLOCKED", response["ruleTriggered"])

		// Outros IPs seguem atendidos normalmente
		resp, err = client.Do(suite.claimRequest(t, "198.51.100.8", browserUA))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Should deny bot user agents without minting", func(t *testing.T) {
		suite := setupE2ETest(t, 10, 100)
		defer suite.teardownE2ETest()

		for _, userAgent := range []string{"curl/7.68.0", "python-requests/2.28", "Googlebot/2.1"} {
			resp, err := client.Do(suite.claimRequest(t, "198.51.100.20", userAgent))
			require.NoError(t, err)

			assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
			response := decodeResponse(t, resp)
			assert.Equal(t, "BOT_USER_AGENT", response["ruleTriggered"])
		}

		assert.Equal(t, int64(0), atomic.LoadInt64(&suite.wallet.calls))
	})

	t.Run("Should deny requests missing browser headers", func(t *testing.T) {
		suite := setupE2ETest(t, 10, 100)
		defer suite.teardownE2ETest()

		body := bytes.NewBufferString(`{"walletAddress": "0xabc123def456"}`)
		req, err := http.NewRequest("POST", suite.server.URL+"/api/claim", body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "198.51.100.30")
		req.Header.Set("User-Agent", browserUA)
		// Sem Accept-Language e Accept-Encoding

		resp, err := client.Do(req)
		require.NoError(t, err)

		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		response := decodeResponse(t, resp)
		assert.Equal(t, "SUSPICIOUS_HEADERS", response["ruleTriggered"])
	})

	t.Run("Admin unblock should readmit a blocked IP", func(t *testing.T) {
		suite := setupE2ETest(t, 1, 100)
		defer suite.teardownE2ETest()

		// Estourar a janela para instalar o bloqueio
		resp, err := client.Do(suite.claimRequest(t, "198.51.100.40", browserUA))
		require.NoError(t, err)
		resp.Body.Close()

		resp, err = client.Do(suite.claimRequest(t, "198.51.100.40", browserUA))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

		// Conferir a listagem administrativa
		resp, err = client.Get(suite.server.URL + "/admin/blocked")
		require.NoError(t, err)
		response := decodeResponse(t, resp)
		assert.Equal(t, float64(1), response["count"])

		// Desbloquear
		unblockBody, _ := json.Marshal(map[string]string{"ip": "198.51.100.40"})
		resp, err = client.Post(suite.server.URL+"/admin/unblock", "application/json", bytes.NewBuffer(unblockBody))
		require.NoError(t, err)
		response = decodeResponse(t, resp)
		assert.Equal(t, "success", response["status"])

		// Depois da janela deslizar, o IP volta a ser atendido
		suite.clock.Advance(11 * time.Second)
		resp, err = client.Do(suite.claimRequest(t, "198.51.100.40", browserUA))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

// TestE2E_TokenGiveaway_MintLimit testa o teto global de mints por minuto
func TestE2E_TokenGiveaway_MintLimit(t *testing.T) {
	suite := setupE2ETest(t, 10, 2)
	defer suite.teardownE2ETest()

	client := &http.Client{Timeout: 5 * time.Second}

	t.Run("Should stop minting when the minute budget is spent", func(t *testing.T) {
		// Dois claims de IPs distintos consomem o orçamento do minuto
		for i, ip := range []string{"203.0.113.10", "203.0.113.11"} {
			resp, err := client.Do(suite.claimRequest(t, ip, browserUA))
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode, "claim %d should succeed", i+1)
		}

		// O terceiro bate no teto global, mesmo vindo de outro IP
		resp, err := client.Do(suite.claimRequest(t, "203.0.113.12", browserUA))
		require.NoError(t, err)

		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("Retry-After"))

		response := decodeResponse(t, resp)
		assert.Equal(t, "MINT_LIMIT", response["ruleTriggered"])
		assert.Equal(t, int64(2), atomic.LoadInt64(&suite.wallet.calls))
	})

	t.Run("Should reopen the budget on the next minute", func(t *testing.T) {
		suite.clock.Advance(time.Minute)

		resp, err := client.Do(suite.claimRequest(t, "203.0.113.13", browserUA))
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

// TestE2E_TokenGiveaway_Concurrency testa comportamento sob carga
func TestE2E_TokenGiveaway_Concurrency(t *testing.T) {
	suite := setupE2ETest(t, 5, 1000)
	defer suite.teardownE2ETest()

	t.Run("Should handle concurrent claims correctly", func(t *testing.T) {
		const numGoroutines = 20
		const requestsPerGoroutine = 3

		resultsChan := make(chan int, numGoroutines*requestsPerGoroutine)

		// Simular carga concorrente, um IP por goroutine
		for g := 0; g < numGoroutines; g++ {
			go func(goroutineID int) {
				client := &http.Client{Timeout: 5 * time.Second}

				for r := 0; r < requestsPerGoroutine; r++ {
					body := bytes.NewBufferString(`{"walletAddress": "0xabc123def456"}`)
					req, err := http.NewRequest("POST", suite.server.URL+"/api/claim", body)
					if err != nil {
						resultsChan <- http.StatusInternalServerError
						continue
					}
					req.Header.Set("Content-Type", "application/json")
					req.Header.Set("X-Forwarded-For", fmt.Sprintf("192.168.10.%d", goroutineID+1))
					req.Header.Set("User-Agent", browserUA)
					req.Header.Set("Accept", "application/json")
					req.Header.Set("Accept-Language", "en-US")
					req.Header.Set("Accept-Encoding", "gzip")
					req.Header.Set("Referer", "https://giveaway.example/")

					resp, err := client.Do(req)
					if err != nil {
						resultsChan <- http.StatusInternalServerError
						continue
					}

					resultsChan <- resp.StatusCode
					resp.Body.Close()
				}
			}(g)
		}

		// Coletar resultados
		var statusOK, status429, statusOther int
		for i := 0; i < numGoroutines*requestsPerGoroutine; i++ {
			status := <-resultsChan
			switch status {
			case http.StatusOK:
				statusOK++
			case http.StatusTooManyRequests:
				status429++
			default:
				statusOther++
			}
		}

		// Cada IP fica dentro da própria janela; tudo deve ser atendido
		assert.Equal(t, numGoroutines*requestsPerGoroutine, statusOK)
		assert.Equal(t, 0, statusOther, "Should not have unexpected status codes")
	})
}
