package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// browserHeaders monta um conjunto completo de headers de navegador
func browserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		"Accept":          "text/html,application/xhtml+xml",
		"Accept-Language": "en-US,en;q=0.9",
		"Accept-Encoding": "gzip, deflate, br",
		"Referer":         "https://example.com/",
	}
}

func TestBotClassifier_IsBotUserAgent(t *testing.T) {
	classifier := NewBotClassifier(nil)

	tests := []struct {
		name      string
		userAgent string
		expected  bool
	}{
		{
			name:      "Should flag empty user agent",
			userAgent: "",
			expected:  true,
		},
		{
			name:      "Should flag whitespace-only user agent",
			userAgent: "   ",
			expected:  true,
		},
		{
			name:      "Should flag curl",
			userAgent: "curl/7.68.0",
			expected:  true,
		},
		{
			name:      "Should flag python-requests",
			userAgent: "python-requests/2.25.1",
			expected:  true,
		},
		{
			name:      "Should flag Postman",
			userAgent: "PostmanRuntime/7.28.4",
			expected:  true,
		},
		{
			name:      "Should flag wget",
			userAgent: "Wget/1.20.3 (linux-gnu)",
			expected:  true,
		},
		{
			name:      "Should flag crawler regardless of case",
			userAgent: "MySearchCRAWLER/2.0",
			expected:  true,
		},
		{
			name:      "Should flag generic bot substring",
			userAgent: "Googlebot/2.1 (+http://www.google.com/bot.html)",
			expected:  true,
		},
		{
			name:      "Should allow a regular browser",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			expected:  false,
		},
		{
			name:      "Should allow a mobile browser",
			userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) Safari/604.1",
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifier.IsBotUserAgent(tt.userAgent))
		})
	}
}

func TestBotClassifier_IsBotUserAgent_CustomSignatures(t *testing.T) {
	t.Run("Should match only the configured signatures", func(t *testing.T) {
		// Arrange
		classifier := NewBotClassifier([]string{"Scanner", "  harvester "})

		// Act & Assert
		assert.True(t, classifier.IsBotUserAgent("vuln-scanner/1.0"))
		assert.True(t, classifier.IsBotUserAgent("EmailHarvester 3"))
		assert.False(t, classifier.IsBotUserAgent("curl/7.68.0"))
	})

	t.Run("Should fall back to defaults when the list is empty", func(t *testing.T) {
		// Arrange: erro de configuração não pode desligar a detecção
		classifier := NewBotClassifier([]string{"", "   "})

		// Act & Assert
		assert.True(t, classifier.IsBotUserAgent("curl/7.68.0"))
		assert.True(t, classifier.IsBotUserAgent("axios/0.21.1"))
	})
}

func TestBotClassifier_CheckHeaders(t *testing.T) {
	classifier := NewBotClassifier(nil)

	t.Run("Should accept a full browser header set", func(t *testing.T) {
		suspicious, reason := classifier.CheckHeaders(browserHeaders())

		assert.False(t, suspicious)
		assert.Empty(t, reason)
	})

	t.Run("Should flag missing Accept-Language and Accept-Encoding", func(t *testing.T) {
		headers := browserHeaders()
		delete(headers, "Accept-Language")
		delete(headers, "Accept-Encoding")

		suspicious, reason := classifier.CheckHeaders(headers)

		assert.True(t, suspicious)
		assert.Equal(t, "Missing common browser headers", reason)
	})

	t.Run("Should flag missing Accept", func(t *testing.T) {
		headers := browserHeaders()
		delete(headers, "Accept")

		suspicious, reason := classifier.CheckHeaders(headers)

		assert.True(t, suspicious)
		assert.Equal(t, "Missing common browser headers", reason)
	})

	t.Run("Should flag browser UA without referer accepting anything", func(t *testing.T) {
		headers := browserHeaders()
		delete(headers, "Referer")
		headers["Accept"] = "*/*"

		suspicious, reason := classifier.CheckHeaders(headers)

		assert.True(t, suspicious)
		assert.Equal(t, "Suspicious header combination", reason)
	})

	t.Run("Should accept browser UA with wildcard accept when referer is present", func(t *testing.T) {
		headers := browserHeaders()
		headers["Accept"] = "*/*"

		suspicious, _ := classifier.CheckHeaders(headers)

		assert.False(t, suspicious)
	})

	t.Run("Should accept non-browser UA without referer", func(t *testing.T) {
		// Sem assinatura de navegador a combinação não se aplica
		headers := browserHeaders()
		headers["User-Agent"] = "MyNativeApp/2.1"
		delete(headers, "Referer")
		headers["Accept"] = "*/*"

		suspicious, _ := classifier.CheckHeaders(headers)

		assert.False(t, suspicious)
	})
}
