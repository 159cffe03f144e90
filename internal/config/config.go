package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"token-giveaway/internal/domain"

	"github.com/joho/godotenv"
)

// Config representa todas as configurações da aplicação
type Config struct {
	// Server Configuration
	ServerPort string
	GinMode    string

	// Logging Configuration
	LogLevel          string
	LogFormat         string
	LogFile           string
	LogFileMaxSizeMB  int
	LogFileMaxAgeDays int

	// Storage Configuration
	StorageType   string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Abuse Gate Configuration
	MaxRequestsPerWindow   int
	WindowSeconds          int
	BlockDurationHours     int
	CleanupIntervalMinutes int

	// Global Mint Limiter Configuration
	MaxMintsPerMinute int

	// Bot Signatures File
	BotSignaturesFile string

	// Client IP Resolution
	ClientIPHeader string

	// Wallet Service Configuration
	WalletAPIURL         string
	WalletAPIKey         string
	WalletTimeoutSeconds int
	ClaimAmount          int
	ClaimHistorySize     int
}

// SignaturesFile representa a estrutura do arquivo bot_signatures.json
type SignaturesFile struct {
	Signatures []string `json:"signatures"`
}

// DefaultBotSignatures são as assinaturas aplicadas quando o arquivo de
// assinaturas está ausente, inválido ou vazio. Um erro de configuração
// nunca pode desligar a detecção de bots.
var DefaultBotSignatures = []string{
	"bot",
	"crawler",
	"spider",
	"scraper",
	"curl",
	"wget",
	"python-requests",
	"node-fetch",
	"axios",
	"postman",
}

// ConfigLoader implementa a interface domain.ConfigLoader
type ConfigLoader struct {
	config        *Config
	botSignatures []string
}

// NewConfigLoader cria uma nova instância do ConfigLoader
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// LoadGateConfig carrega as configurações do .env e monta a configuração do gate
func (c *ConfigLoader) LoadGateConfig() (*domain.GateConfig, error) {
	// Carrega o arquivo .env se existir
	if err := godotenv.Load(); err != nil {
		// Se não encontrar .env, continua com variáveis do sistema
		fmt.Println("Warning: .env file not found, using system environment variables")
	}

	// Carrega configurações do ambiente
	config, err := c.loadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	c.config = config

	// Carrega assinaturas de bot
	signatures, err := c.LoadBotSignatures()
	if err != nil {
		return nil, fmt.Errorf("failed to load bot signatures: %w", err)
	}

	// Cria a configuração do gate
	gateConfig := &domain.GateConfig{
		MaxRequestsPerWindow:   config.MaxRequestsPerWindow,
		WindowSeconds:          config.WindowSeconds,
		BlockDurationHours:     config.BlockDurationHours,
		CleanupIntervalMinutes: config.CleanupIntervalMinutes,
		BotSignatures:          signatures,
	}

	return gateConfig, nil
}

// LoadBotSignatures carrega as assinaturas de bot do arquivo JSON.
// Qualquer problema com o arquivo resulta nas assinaturas padrão, nunca
// em uma lista vazia.
func (c *ConfigLoader) LoadBotSignatures() ([]string, error) {
	signaturesFile := c.getSignaturesFile()

	// Verifica se o arquivo existe
	if _, err := os.Stat(signaturesFile); os.IsNotExist(err) {
		fmt.Printf("Warning: Bot signatures file %s not found, using built-in defaults\n", signaturesFile)
		c.botSignatures = DefaultBotSignatures
		return DefaultBotSignatures, nil
	}

	// Lê o arquivo
	data, err := os.ReadFile(signaturesFile)
	if err != nil {
		fmt.Printf("Warning: failed to read bot signatures file %s, using built-in defaults\n", signaturesFile)
		c.botSignatures = DefaultBotSignatures
		return DefaultBotSignatures, nil
	}

	// Parse do JSON
	var parsed SignaturesFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		fmt.Printf("Warning: failed to parse bot signatures file %s, using built-in defaults\n", signaturesFile)
		c.botSignatures = DefaultBotSignatures
		return DefaultBotSignatures, nil
	}

	// Normaliza as assinaturas: minúsculas, sem espaços, sem entradas vazias
	signatures := make([]string, 0, len(parsed.Signatures))
	for _, signature := range parsed.Signatures {
		normalized := strings.ToLower(strings.TrimSpace(signature))
		if normalized != "" {
			signatures = append(signatures, normalized)
		}
	}

	// Lista vazia cai nos padrões
	if len(signatures) == 0 {
		fmt.Printf("Warning: Bot signatures file %s has no valid entries, using built-in defaults\n", signaturesFile)
		c.botSignatures = DefaultBotSignatures
		return DefaultBotSignatures, nil
	}

	c.botSignatures = signatures
	return signatures, nil
}

// Reload recarrega todas as configurações
func (c *ConfigLoader) Reload() error {
	_, err := c.LoadGateConfig()
	return err
}

// GetConfig retorna a configuração atual
func (c *ConfigLoader) GetConfig() *Config {
	return c.config
}

// GetBotSignatures retorna as assinaturas de bot carregadas
func (c *ConfigLoader) GetBotSignatures() []string {
	if len(c.botSignatures) == 0 {
		return DefaultBotSignatures
	}
	return c.botSignatures
}

// loadFromEnv carrega configurações das variáveis de ambiente
func (c *ConfigLoader) loadFromEnv() (*Config, error) {
	config := &Config{
		// Server defaults
		ServerPort: getEnvWithDefault("SERVER_PORT", "8080"),
		GinMode:    getEnvWithDefault("GIN_MODE", "debug"),

		// Logging defaults
		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "json"),
		LogFile:   getEnvWithDefault("LOG_FILE", ""),

		// Storage defaults
		StorageType:   getEnvWithDefault("STORAGE_TYPE", "memory"),
		RedisHost:     getEnvWithDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvWithDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvWithDefault("REDIS_PASSWORD", ""),

		// Bot signatures file
		BotSignaturesFile: getEnvWithDefault("BOT_SIGNATURES_FILE", "internal/config/bot_signatures.json"),

		// Client IP resolution
		ClientIPHeader: getEnvWithDefault("CLIENT_IP_HEADER", ""),

		// Wallet service
		WalletAPIURL: getEnvWithDefault("WALLET_API_URL", ""),
		WalletAPIKey: getEnvWithDefault("WALLET_API_KEY", ""),
	}

	var err error

	if config.LogFileMaxSizeMB, err = getEnvIntWithDefault("LOG_FILE_MAX_SIZE_MB", 100); err != nil {
		return nil, err
	}

	if config.LogFileMaxAgeDays, err = getEnvIntWithDefault("LOG_FILE_MAX_AGE_DAYS", 28); err != nil {
		return nil, err
	}

	if config.RedisDB, err = getEnvIntWithDefault("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if config.MaxRequestsPerWindow, err = getEnvIntWithDefault("MAX_REQUESTS_PER_WINDOW", 10); err != nil {
		return nil, err
	}

	if config.WindowSeconds, err = getEnvIntWithDefault("WINDOW_SECONDS", 10); err != nil {
		return nil, err
	}

	if config.BlockDurationHours, err = getEnvIntWithDefault("BLOCK_DURATION_HOURS", 12); err != nil {
		return nil, err
	}

	if config.CleanupIntervalMinutes, err = getEnvIntWithDefault("CLEANUP_INTERVAL_MINUTES", 5); err != nil {
		return nil, err
	}

	if config.MaxMintsPerMinute, err = getEnvIntWithDefault("MAX_MINTS_PER_MINUTE", 20); err != nil {
		return nil, err
	}

	if config.WalletTimeoutSeconds, err = getEnvIntWithDefault("WALLET_TIMEOUT_SECONDS", 10); err != nil {
		return nil, err
	}

	if config.ClaimAmount, err = getEnvIntWithDefault("CLAIM_AMOUNT", 5); err != nil {
		return nil, err
	}

	if config.ClaimHistorySize, err = getEnvIntWithDefault("CLAIM_HISTORY_SIZE", 50); err != nil {
		return nil, err
	}

	// Valida configurações obrigatórias
	if err := c.validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateConfig valida se as configurações são válidas
func (c *ConfigLoader) validateConfig(config *Config) error {
	if config.MaxRequestsPerWindow <= 0 {
		return fmt.Errorf("MAX_REQUESTS_PER_WINDOW must be greater than 0")
	}

	if config.WindowSeconds <= 0 {
		return fmt.Errorf("WINDOW_SECONDS must be greater than 0")
	}

	if config.BlockDurationHours <= 0 {
		return fmt.Errorf("BLOCK_DURATION_HOURS must be greater than 0")
	}

	if config.CleanupIntervalMinutes <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL_MINUTES must be greater than 0")
	}

	if config.MaxMintsPerMinute <= 0 {
		return fmt.Errorf("MAX_MINTS_PER_MINUTE must be greater than 0")
	}

	if config.ClaimAmount <= 0 {
		return fmt.Errorf("CLAIM_AMOUNT must be greater than 0")
	}

	if config.ClaimHistorySize <= 0 {
		return fmt.Errorf("CLAIM_HISTORY_SIZE must be greater than 0")
	}

	if config.WalletTimeoutSeconds <= 0 {
		return fmt.Errorf("WALLET_TIMEOUT_SECONDS must be greater than 0")
	}

	if config.RedisDB < 0 || config.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be between 0 and 15")
	}

	if config.StorageType != "memory" && config.StorageType != "redis" {
		return fmt.Errorf("STORAGE_TYPE must be either memory or redis")
	}

	return nil
}

// getSignaturesFile retorna o caminho do arquivo de assinaturas de bot
func (c *ConfigLoader) getSignaturesFile() string {
	if c.config != nil && c.config.BotSignaturesFile != "" {
		return c.config.BotSignaturesFile
	}
	return getEnvWithDefault("BOT_SIGNATURES_FILE", "internal/config/bot_signatures.json")
}

// getEnvWithDefault retorna o valor da variável de ambiente ou um valor padrão
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntWithDefault retorna o valor inteiro da variável de ambiente ou um padrão
func getEnvIntWithDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return parsed, nil
}
