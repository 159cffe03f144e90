package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"token-giveaway/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Prefixos de chave usados pela estratégia Redis
const (
	windowKeyPrefix     = "abuse:window:"
	blockKeyPrefix      = "abuse:block:"
	suspiciousKeyPrefix = "abuse:suspicious:"
	blockedIndexKey     = "abuse:blocked_ips"
	suspiciousIndexKey  = "abuse:suspicious_ips"
	mintKeyPrefix       = "mint:bucket:"

	// TTL dos buckets de mint; maior que o horizonte de purga de dois minutos
	mintBucketTTL = 3 * time.Minute

	// TTL das entradas suspeitas; relatório, não bloqueio
	suspiciousTTL = 24 * time.Hour
)

// hitScript poda, conta e registra uma chegada na janela deslizante em uma
// única operação atômica. A contagem considera apenas as chegadas anteriores
// dentro da janela; no limite, a chegada atual não é registrada.
const hitScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local retention = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - retention)

local count = redis.call('ZCOUNT', key, '(' .. (now - window), '+inf')

if count >= limit then
	return {count, 1}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, retention)
return {count + 1, 0}
`

// blockPayload é o formato persistido de um bloqueio no Redis
type blockPayload struct {
	Reason       domain.BlockReason `json:"reason"`
	BlockedAt    int64              `json:"blockedAt"`    // unix ms
	BlockedUntil int64              `json:"blockedUntil"` // unix ms
}

// RedisStorage implementa a interface domain.Storage usando Redis.
// Permite compartilhar janelas, bloqueios e buckets de mint entre múltiplas
// instâncias do serviço; o TTL do Redis faz a expiração dos bloqueios.
type RedisStorage struct {
	client redis.Cmdable
	logger domain.Logger
}

// NewRedisStorage cria uma nova instância do RedisStorage
func NewRedisStorage(host, port, password string, db int, logger domain.Logger) (*RedisStorage, error) {
	// Configura cliente Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,

		// Configurações de performance
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
	})

	// Testa a conexão
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established", map[string]interface{}{
		"host": host,
		"port": port,
		"db":   db,
	})

	return &RedisStorage{
		client: rdb,
		logger: logger,
	}, nil
}

// Hit registra atomicamente uma chegada na janela deslizante de um IP
func (r *RedisStorage) Hit(ctx context.Context, ip string, now time.Time, window time.Duration, limit int) (int, bool, error) {
	start := time.Now()
	key := windowKey(ip)

	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()
	retentionMs := 2 * windowMs
	member := uuid.NewString()

	result, err := r.client.Eval(ctx, hitScript, []string{key}, nowMs, windowMs, limit, retentionMs, member).Result()
	if err != nil {
		r.logStorageOperation("HIT", key, false, time.Since(start).Seconds()*1000, err)
		return 0, false, fmt.Errorf("failed to hit window for %s: %w", ip, err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 2 {
		err := fmt.Errorf("invalid hit result format")
		r.logStorageOperation("HIT", key, false, time.Since(start).Seconds()*1000, err)
		return 0, false, fmt.Errorf("invalid hit result for %s", ip)
	}

	count, err := strconv.Atoi(fmt.Sprint(resultSlice[0]))
	if err != nil {
		r.logStorageOperation("HIT", key, false, time.Since(start).Seconds()*1000, err)
		return 0, false, fmt.Errorf("invalid count in hit result for %s: %w", ip, err)
	}

	exceeded := fmt.Sprint(resultSlice[1]) == "1"

	r.logStorageOperation("HIT", key, true, time.Since(start).Seconds()*1000, nil)
	return count, exceeded, nil
}

// IsBlocked verifica se um IP está bloqueado.
// A expiração é delegada ao TTL da chave: bloqueio vencido simplesmente
// não existe mais.
func (r *RedisStorage) IsBlocked(ctx context.Context, ip string, now time.Time) (bool, *time.Time, error) {
	start := time.Now()
	key := blockKey(ip)

	result, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			r.logStorageOperation("IS_BLOCKED", key, true, time.Since(start).Seconds()*1000, nil)
			return false, nil, nil
		}
		r.logStorageOperation("IS_BLOCKED", key, false, time.Since(start).Seconds()*1000, err)
		return false, nil, fmt.Errorf("failed to get block for %s: %w", ip, err)
	}

	var payload blockPayload
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		r.logStorageOperation("IS_BLOCKED", key, false, time.Since(start).Seconds()*1000, err)
		return false, nil, fmt.Errorf("failed to unmarshal block for %s: %w", ip, err)
	}

	until := time.UnixMilli(payload.BlockedUntil)
	if !now.Before(until) {
		// TTL ainda não varreu a chave; trata como expirado
		r.client.Del(ctx, key)
		r.client.SRem(ctx, blockedIndexKey, ip)
		r.logStorageOperation("IS_BLOCKED", key, true, time.Since(start).Seconds()*1000, nil)
		return false, nil, nil
	}

	r.logStorageOperation("IS_BLOCKED", key, true, time.Since(start).Seconds()*1000, nil)
	return true, &until, nil
}

// Block bloqueia um IP por um período específico.
// O TTL acompanha a duração, então a chave morre junto com o bloqueio.
func (r *RedisStorage) Block(ctx context.Context, ip string, now time.Time, duration time.Duration, reason domain.BlockReason) error {
	start := time.Now()
	key := blockKey(ip)

	payload := blockPayload{
		Reason:       reason,
		BlockedAt:    now.UnixMilli(),
		BlockedUntil: now.Add(duration).UnixMilli(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		r.logStorageOperation("BLOCK", key, false, time.Since(start).Seconds()*1000, err)
		return fmt.Errorf("failed to marshal block for %s: %w", ip, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, data, duration)
	pipe.SAdd(ctx, blockedIndexKey, ip)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logStorageOperation("BLOCK", key, false, time.Since(start).Seconds()*1000, err)
		return fmt.Errorf("failed to block %s: %w", ip, err)
	}

	r.logStorageOperation("BLOCK", key, true, time.Since(start).Seconds()*1000, nil)
	return nil
}

// Unblock remove o bloqueio de um IP (idempotente)
func (r *RedisStorage) Unblock(ctx context.Context, ip string) error {
	start := time.Now()
	key := blockKey(ip)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, blockedIndexKey, ip)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logStorageOperation("UNBLOCK", key, false, time.Since(start).Seconds()*1000, err)
		return fmt.Errorf("failed to unblock %s: %w", ip, err)
	}

	r.logStorageOperation("UNBLOCK", key, true, time.Since(start).Seconds()*1000, nil)
	return nil
}

// FlagSuspicious registra um IP como suspeito para fins de relatório
func (r *RedisStorage) FlagSuspicious(ctx context.Context, ip, reason string, now time.Time) error {
	start := time.Now()
	key := suspiciousKey(ip)

	pipe := r.client.TxPipeline()
	pipe.HSetNX(ctx, key, "first_seen", now.UnixMilli())
	pipe.HSet(ctx, key, "reason", reason, "last_seen", now.UnixMilli())
	pipe.HIncrBy(ctx, key, "count", 1)
	pipe.Expire(ctx, key, suspiciousTTL)
	pipe.SAdd(ctx, suspiciousIndexKey, ip)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logStorageOperation("FLAG_SUSPICIOUS", key, false, time.Since(start).Seconds()*1000, err)
		return fmt.Errorf("failed to flag %s: %w", ip, err)
	}

	r.logStorageOperation("FLAG_SUSPICIOUS", key, true, time.Since(start).Seconds()*1000, nil)
	return nil
}

// BlockedIPs lista os bloqueios ativos.
// Entradas do índice cujo bloqueio já expirou via TTL são removidas no caminho.
func (r *RedisStorage) BlockedIPs(ctx context.Context, now time.Time) ([]domain.BlockedIPInfo, error) {
	start := time.Now()

	ips, err := r.client.SMembers(ctx, blockedIndexKey).Result()
	if err != nil {
		r.logStorageOperation("BLOCKED_IPS", blockedIndexKey, false, time.Since(start).Seconds()*1000, err)
		return nil, fmt.Errorf("failed to list blocked IPs: %w", err)
	}

	blocked := make([]domain.BlockedIPInfo, 0, len(ips))
	for _, ip := range ips {
		result, err := r.client.Get(ctx, blockKey(ip)).Result()
		if err != nil {
			if err == redis.Nil {
				// Bloqueio expirou; poda o índice
				r.client.SRem(ctx, blockedIndexKey, ip)
				continue
			}
			r.logStorageOperation("BLOCKED_IPS", blockKey(ip), false, time.Since(start).Seconds()*1000, err)
			return nil, fmt.Errorf("failed to read block for %s: %w", ip, err)
		}

		var payload blockPayload
		if err := json.Unmarshal([]byte(result), &payload); err != nil {
			continue
		}

		until := time.UnixMilli(payload.BlockedUntil)
		if !now.Before(until) {
			r.client.Del(ctx, blockKey(ip))
			r.client.SRem(ctx, blockedIndexKey, ip)
			continue
		}

		blocked = append(blocked, domain.BlockedIPInfo{
			IP:               ip,
			Reason:           payload.Reason,
			BlockedAt:        time.UnixMilli(payload.BlockedAt),
			BlockedUntil:     until,
			RemainingSeconds: secondsUntil(until, now),
		})
	}

	r.logStorageOperation("BLOCKED_IPS", blockedIndexKey, true, time.Since(start).Seconds()*1000, nil)
	return blocked, nil
}

// SuspiciousIPs lista os IPs sinalizados pelas heurísticas
func (r *RedisStorage) SuspiciousIPs(ctx context.Context) ([]domain.SuspiciousIPInfo, error) {
	start := time.Now()

	ips, err := r.client.SMembers(ctx, suspiciousIndexKey).Result()
	if err != nil {
		r.logStorageOperation("SUSPICIOUS_IPS", suspiciousIndexKey, false, time.Since(start).Seconds()*1000, err)
		return nil, fmt.Errorf("failed to list suspicious IPs: %w", err)
	}

	suspicious := make([]domain.SuspiciousIPInfo, 0, len(ips))
	for _, ip := range ips {
		fields, err := r.client.HGetAll(ctx, suspiciousKey(ip)).Result()
		if err != nil {
			r.logStorageOperation("SUSPICIOUS_IPS", suspiciousKey(ip), false, time.Since(start).Seconds()*1000, err)
			return nil, fmt.Errorf("failed to read suspicious entry for %s: %w", ip, err)
		}
		if len(fields) == 0 {
			// Entrada expirou via TTL; poda o índice
			r.client.SRem(ctx, suspiciousIndexKey, ip)
			continue
		}

		suspicious = append(suspicious, domain.SuspiciousIPInfo{
			IP:        ip,
			Reason:    fields["reason"],
			FirstSeen: parseUnixMilli(fields["first_seen"]),
			LastSeen:  parseUnixMilli(fields["last_seen"]),
			Count:     parseIntField(fields["count"]),
		})
	}

	r.logStorageOperation("SUSPICIOUS_IPS", suspiciousIndexKey, true, time.Since(start).Seconds()*1000, nil)
	return suspicious, nil
}

// TrackedCount retorna o número de IPs com janela ativa
func (r *RedisStorage) TrackedCount(ctx context.Context) (int, error) {
	start := time.Now()

	count := 0
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, windowKeyPrefix+"*", 1000).Result()
		if err != nil {
			r.logStorageOperation("TRACKED_COUNT", windowKeyPrefix, false, time.Since(start).Seconds()*1000, err)
			return 0, fmt.Errorf("failed to scan tracked IPs: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	r.logStorageOperation("TRACKED_COUNT", windowKeyPrefix, true, time.Since(start).Seconds()*1000, nil)
	return count, nil
}

// Cleanup poda os índices de bloqueio e de suspeitos.
// Janelas, bloqueios e entradas suspeitas expiram sozinhos via TTL; o que
// sobra para a varredura é retirar dos índices as chaves já vencidas.
func (r *RedisStorage) Cleanup(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	start := time.Now()
	removed := 0

	blockedIPs, err := r.client.SMembers(ctx, blockedIndexKey).Result()
	if err != nil {
		r.logStorageOperation("CLEANUP", blockedIndexKey, false, time.Since(start).Seconds()*1000, err)
		return 0, fmt.Errorf("failed to read blocked index: %w", err)
	}
	for _, ip := range blockedIPs {
		exists, err := r.client.Exists(ctx, blockKey(ip)).Result()
		if err != nil {
			continue
		}
		if exists == 0 {
			r.client.SRem(ctx, blockedIndexKey, ip)
			removed++
		}
	}

	suspiciousIPs, err := r.client.SMembers(ctx, suspiciousIndexKey).Result()
	if err != nil {
		r.logStorageOperation("CLEANUP", suspiciousIndexKey, false, time.Since(start).Seconds()*1000, err)
		return removed, fmt.Errorf("failed to read suspicious index: %w", err)
	}
	for _, ip := range suspiciousIPs {
		exists, err := r.client.Exists(ctx, suspiciousKey(ip)).Result()
		if err != nil {
			continue
		}
		if exists == 0 {
			r.client.SRem(ctx, suspiciousIndexKey, ip)
		}
	}

	r.logStorageOperation("CLEANUP", "indexes", true, time.Since(start).Seconds()*1000, nil)
	return removed, nil
}

// MintCount retorna o total de mints registrados em um bucket
func (r *RedisStorage) MintCount(ctx context.Context, bucket string) (int, error) {
	start := time.Now()
	key := mintKey(bucket)

	result, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			r.logStorageOperation("MINT_COUNT", key, true, time.Since(start).Seconds()*1000, nil)
			return 0, nil
		}
		r.logStorageOperation("MINT_COUNT", key, false, time.Since(start).Seconds()*1000, err)
		return 0, fmt.Errorf("failed to get mint bucket %s: %w", bucket, err)
	}

	count, err := strconv.Atoi(result)
	if err != nil {
		r.logStorageOperation("MINT_COUNT", key, false, time.Since(start).Seconds()*1000, err)
		return 0, fmt.Errorf("invalid mint count in bucket %s: %w", bucket, err)
	}

	r.logStorageOperation("MINT_COUNT", key, true, time.Since(start).Seconds()*1000, nil)
	return count, nil
}

// IncrementMint registra um mint bem-sucedido no bucket e retorna o novo total
func (r *RedisStorage) IncrementMint(ctx context.Context, bucket string) (int, error) {
	start := time.Now()
	key := mintKey(bucket)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, mintBucketTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logStorageOperation("INCREMENT_MINT", key, false, time.Since(start).Seconds()*1000, err)
		return 0, fmt.Errorf("failed to increment mint bucket %s: %w", bucket, err)
	}

	r.logStorageOperation("INCREMENT_MINT", key, true, time.Since(start).Seconds()*1000, nil)
	return int(incr.Val()), nil
}

// CleanupMints é um no-op no Redis: os buckets carregam TTL desde a criação
func (r *RedisStorage) CleanupMints(ctx context.Context, oldest string) (int, error) {
	return 0, nil
}

// Health verifica se o storage está saudável
func (r *RedisStorage) Health(ctx context.Context) error {
	start := time.Now()

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logStorageOperation("HEALTH", "ping", false, time.Since(start).Seconds()*1000, err)
		return fmt.Errorf("Redis health check failed: %w", err)
	}

	r.logStorageOperation("HEALTH", "ping", true, time.Since(start).Seconds()*1000, nil)
	return nil
}

// Close fecha a conexão com o storage
func (r *RedisStorage) Close() error {
	if client, ok := r.client.(*redis.Client); ok {
		if err := client.Close(); err != nil {
			r.logger.Error("Failed to close Redis connection", err, nil)
			return err
		}
		r.logger.Info("Redis connection closed", nil)
	}
	return nil
}

// logStorageOperation registra operações de storage
func (r *RedisStorage) logStorageOperation(operation, key string, success bool, latency float64, err error) {
	if r.logger != nil {
		if success {
			r.logger.Debug("Storage operation completed", map[string]interface{}{
				"operation": operation,
				"key":       key,
				"latency":   latency,
			})
		} else {
			r.logger.Error("Storage operation failed", err, map[string]interface{}{
				"operation": operation,
				"key":       key,
				"latency":   latency,
			})
		}
	}
}

func windowKey(ip string) string {
	return windowKeyPrefix + ip
}

func blockKey(ip string) string {
	return blockKeyPrefix + ip
}

func suspiciousKey(ip string) string {
	return suspiciousKeyPrefix + ip
}

func mintKey(bucket string) string {
	return mintKeyPrefix + bucket
}

func parseUnixMilli(value string) time.Time {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func parseIntField(value string) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
