package service

import (
	"strings"

	"token-giveaway/internal/config"
)

// Mensagens produzidas pela heurística de headers
const (
	reasonMissingHeaders  = "Missing common browser headers"
	reasonSuspiciousCombo = "Suspicious header combination"
)

// commonBrowserHeaders são os headers que todo navegador real envia
var commonBrowserHeaders = []string{"Accept", "Accept-Language", "Accept-Encoding"}

// BotClassifier avalia heurísticas de bot sobre os metadados de uma requisição.
// Sem estado e sem I/O: funções puras sobre user agent e mapa de headers.
type BotClassifier struct {
	signatures []string
}

// NewBotClassifier cria um classificador com a lista de assinaturas informada.
// As assinaturas são comparadas como substrings, sem diferenciar maiúsculas.
// Lista vazia cai nas assinaturas padrão: erro de configuração nunca desliga
// a detecção de bots.
func NewBotClassifier(signatures []string) *BotClassifier {
	normalized := make([]string, 0, len(signatures))
	for _, signature := range signatures {
		trimmed := strings.ToLower(strings.TrimSpace(signature))
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}

	if len(normalized) == 0 {
		normalized = append(normalized, config.DefaultBotSignatures...)
	}

	return &BotClassifier{signatures: normalized}
}

// IsBotUserAgent verifica se o user agent aparenta ser de bot.
// User agent ausente conta como bot: navegadores reais sempre enviam um.
func (b *BotClassifier) IsBotUserAgent(userAgent string) bool {
	trimmed := strings.TrimSpace(userAgent)
	if trimmed == "" {
		return true
	}

	lowered := strings.ToLower(trimmed)
	for _, signature := range b.signatures {
		if strings.Contains(lowered, signature) {
			return true
		}
	}

	return false
}

// CheckHeaders verifica combinações suspeitas de headers.
// Espera as chaves na forma canônica do net/http. A ausência de headers
// comuns de navegador é verificada antes da combinação suspeita.
func (b *BotClassifier) CheckHeaders(headers map[string]string) (bool, string) {
	for _, header := range commonBrowserHeaders {
		if _, exists := headers[header]; !exists {
			return true, reasonMissingHeaders
		}
	}

	// User agent de navegador sem Referer e aceitando qualquer conteúdo é o
	// padrão típico de cliente automatizado se passando por navegador
	userAgent := headers["User-Agent"]
	if strings.Contains(userAgent, "Mozilla") && headers["Referer"] == "" && headers["Accept"] == "*/*" {
		return true, reasonSuspiciousCombo
	}

	return false, ""
}

// Signatures retorna as assinaturas ativas do classificador
func (b *BotClassifier) Signatures() []string {
	signatures := make([]string, len(b.signatures))
	copy(signatures, b.signatures)
	return signatures
}
