package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"token-giveaway/internal/domain"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// StructuredLogger implementa a interface domain.Logger
type StructuredLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// contextKey define chaves para contexto
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	IPKey        contextKey = "ip"
	WalletKey    contextKey = "wallet"
	UserAgentKey contextKey = "user_agent"
)

// Options define a configuração de saída do logger
type Options struct {
	Level          string
	Format         string
	File           string // quando definido, a saída também vai para arquivo com rotação
	FileMaxSizeMB  int
	FileMaxAgeDays int
}

// NewLogger cria uma nova instância do logger estruturado com saída em stdout
func NewLogger(level, format string) domain.Logger {
	return NewLoggerWithOptions(Options{Level: level, Format: format})
}

// NewLoggerWithOptions cria um logger estruturado com a saída configurada
func NewLoggerWithOptions(opts Options) domain.Logger {
	logger := logrus.New()

	// Configura o nível de log
	logLevel, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Configura o formato de saída
	switch strings.ToLower(opts.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
				logrus.FieldKeyFunc:  "function",
			},
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	// Define saída; com arquivo configurado, escreve em stdout e no arquivo
	// rotacionado pelo lumberjack
	var output io.Writer = os.Stdout
	if opts.File != "" {
		maxSize := opts.FileMaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		maxAge := opts.FileMaxAgeDays
		if maxAge <= 0 {
			maxAge = 28
		}
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxAge:     maxAge,
			MaxBackups: 5,
			Compress:   true,
		}
		output = io.MultiWriter(os.Stdout, rotating)
	}
	logger.SetOutput(output)

	return &StructuredLogger{
		logger: logger,
		fields: make(logrus.Fields),
	}
}

// Debug registra uma mensagem de debug
func (l *StructuredLogger) Debug(msg string, fields map[string]interface{}) {
	l.logWithFields(logrus.DebugLevel, msg, fields)
}

// Info registra uma mensagem informativa
func (l *StructuredLogger) Info(msg string, fields map[string]interface{}) {
	l.logWithFields(logrus.InfoLevel, msg, fields)
}

// Warn registra uma mensagem de warning
func (l *StructuredLogger) Warn(msg string, fields map[string]interface{}) {
	l.logWithFields(logrus.WarnLevel, msg, fields)
}

// Error registra uma mensagem de erro
func (l *StructuredLogger) Error(msg string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.logWithFields(logrus.ErrorLevel, msg, fields)
}

// WithContext cria um novo logger com contexto da requisição
func (l *StructuredLogger) WithContext(ctx context.Context) domain.Logger {
	contextFields := l.extractContextFields(ctx)

	// Mescla campos do contexto com campos existentes
	mergedFields := make(logrus.Fields)
	for k, v := range l.fields {
		mergedFields[k] = v
	}
	for k, v := range contextFields {
		mergedFields[k] = v
	}

	return &StructuredLogger{
		logger: l.logger,
		fields: mergedFields,
	}
}

// logWithFields registra uma mensagem com campos específicos
func (l *StructuredLogger) logWithFields(level logrus.Level, msg string, fields map[string]interface{}) {
	// Mescla todos os campos
	allFields := make(logrus.Fields)

	// Adiciona campos do logger
	for k, v := range l.fields {
		allFields[k] = v
	}

	// Adiciona campos da mensagem
	if fields != nil {
		for k, v := range fields {
			allFields[k] = v
		}
	}

	// Adiciona informações específicas do serviço
	l.addServiceFields(allFields)

	// Log da mensagem
	l.logger.WithFields(allFields).Log(level, msg)
}

// extractContextFields extrai campos relevantes do contexto
func (l *StructuredLogger) extractContextFields(ctx context.Context) logrus.Fields {
	fields := make(logrus.Fields)

	if ctx == nil {
		return fields
	}

	// Extrai request ID
	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		fields["request_id"] = requestID
	}

	// Extrai IP
	if ip := ctx.Value(IPKey); ip != nil {
		fields["ip"] = ip
	}

	// Extrai endereço de carteira (mascarado por segurança)
	if wallet := ctx.Value(WalletKey); wallet != nil {
		if walletStr, ok := wallet.(string); ok && len(walletStr) > 0 {
			fields["wallet"] = MaskWallet(walletStr)
		}
	}

	// Extrai user agent
	if userAgent := ctx.Value(UserAgentKey); userAgent != nil {
		fields["user_agent"] = userAgent
	}

	return fields
}

// addServiceFields adiciona campos comuns a todos os logs do serviço
func (l *StructuredLogger) addServiceFields(fields logrus.Fields) {
	// Adiciona componente
	fields["component"] = "token_giveaway"

	// Adiciona versão se disponível
	if version := os.Getenv("APP_VERSION"); version != "" {
		fields["version"] = version
	}
}

// WithFields cria um novo logger com campos específicos
func (l *StructuredLogger) WithFields(fields map[string]interface{}) domain.Logger {
	newFields := make(logrus.Fields)

	// Copia campos existentes
	for k, v := range l.fields {
		newFields[k] = v
	}

	// Adiciona novos campos
	for k, v := range fields {
		newFields[k] = v
	}

	return &StructuredLogger{
		logger: l.logger,
		fields: newFields,
	}
}

// LogGateEvent registra eventos do gate anti-abuso
func (l *StructuredLogger) LogGateEvent(eventType, ip string, allowed bool, rule string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}

	fields["event_type"] = eventType
	fields["ip"] = ip
	fields["allowed"] = allowed
	if rule != "" {
		fields["rule_triggered"] = rule
	}

	if allowed {
		l.Info("Abuse gate check passed", fields)
	} else {
		l.Warn("Abuse gate denied request", fields)
	}
}

// LogConfigEvent registra eventos de configuração
func (l *StructuredLogger) LogConfigEvent(eventType string, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["event_type"] = eventType

	l.Info("Configuration event", details)
}

// LogStorageEvent registra eventos do storage
func (l *StructuredLogger) LogStorageEvent(operation string, key string, success bool, latency float64, err error) {
	fields := map[string]interface{}{
		"operation":  operation,
		"key":        key,
		"success":    success,
		"latency_ms": latency,
	}

	if err != nil {
		fields["error"] = err.Error()
		l.Error("Storage operation failed", err, fields)
	} else {
		l.Debug("Storage operation completed", fields)
	}
}

// MaskWallet mascara um endereço de carteira para registro seguro
func MaskWallet(wallet string) string {
	if wallet == "" {
		return ""
	}
	if len(wallet) > 8 {
		return wallet[:8] + "***"
	}
	return wallet + "***"
}

// ContextWithRequestInfo adiciona informações da requisição ao contexto
func ContextWithRequestInfo(ctx context.Context, requestID, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	ctx = context.WithValue(ctx, IPKey, ip)
	ctx = context.WithValue(ctx, UserAgentKey, userAgent)
	return ctx
}

// ContextWithWallet adiciona o endereço de carteira ao contexto
func ContextWithWallet(ctx context.Context, wallet string) context.Context {
	if wallet == "" {
		return ctx
	}
	return context.WithValue(ctx, WalletKey, wallet)
}

// GetRequestID extrai o request ID do contexto
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
