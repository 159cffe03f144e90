package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"token-giveaway/internal/domain"
)

// MemoryStorage implementa a interface domain.Storage usando memória local.
// É a estratégia padrão: estado efêmero por instância, sem dependências
// externas. Reiniciar o processo zera contadores e bloqueios.
type MemoryStorage struct {
	records    map[string]*domain.ClientRecord
	suspicious map[string]*domain.SuspiciousIPInfo
	mints      map[string]int
	mutex      sync.RWMutex
	logger     domain.Logger
}

// NewMemoryStorage cria uma nova instância do MemoryStorage.
// A limpeza periódica é dirigida de fora, pelo ciclo de manutenção do gate;
// o storage não possui goroutines próprias.
func NewMemoryStorage(logger domain.Logger) *MemoryStorage {
	storage := &MemoryStorage{
		records:    make(map[string]*domain.ClientRecord),
		suspicious: make(map[string]*domain.SuspiciousIPInfo),
		mints:      make(map[string]int),
		logger:     logger,
	}

	if logger != nil {
		logger.Info("Memory storage initialized", nil)
	}

	return storage
}

// Hit registra atomicamente uma chegada na janela deslizante de um IP.
// A contagem considera apenas as chegadas anteriores dentro da janela; quando
// o limite já foi atingido a chegada atual não é registrada. Verificação e
// registro acontecem na mesma seção crítica.
func (m *MemoryStorage) Hit(ctx context.Context, ip string, now time.Time, window time.Duration, limit int) (int, bool, error) {
	start := time.Now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, exists := m.records[ip]
	if !exists {
		record = &domain.ClientRecord{IP: ip}
		m.records[ip] = record
	}

	// Poda preguiçosa: retém no máximo 2x janela de histórico
	historyCutoff := now.Add(-2 * window)
	windowCutoff := now.Add(-window)

	kept := record.Timestamps[:0]
	inWindow := 0
	for _, ts := range record.Timestamps {
		if !ts.After(historyCutoff) {
			continue
		}
		kept = append(kept, ts)
		if ts.After(windowCutoff) {
			inWindow++
		}
	}
	record.Timestamps = kept

	// Avaliação ANTES do registro: no limite, a chegada é negada e não conta
	if inWindow >= limit {
		m.logStorageOperation("HIT", ip, true, time.Since(start).Seconds()*1000, nil)
		return inWindow, true, nil
	}

	record.Timestamps = append(record.Timestamps, now)

	m.logStorageOperation("HIT", ip, true, time.Since(start).Seconds()*1000, nil)
	return inWindow + 1, false, nil
}

// IsBlocked verifica se um IP está bloqueado. Bloqueios vencidos são
// removidos aqui mesmo, por isso a leitura adquire o lock de escrita.
func (m *MemoryStorage) IsBlocked(ctx context.Context, ip string, now time.Time) (bool, *time.Time, error) {
	start := time.Now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, exists := m.records[ip]
	if !exists || !record.Blocked {
		m.logStorageOperation("IS_BLOCKED", ip, true, time.Since(start).Seconds()*1000, nil)
		return false, nil, nil
	}

	if record.BlockedUntil != nil && now.Before(*record.BlockedUntil) {
		until := *record.BlockedUntil
		m.logStorageOperation("IS_BLOCKED", ip, true, time.Since(start).Seconds()*1000, nil)
		return true, &until, nil
	}

	// Bloqueio expirou: expira preguiçosamente na própria leitura
	m.clearBlock(record)

	m.logStorageOperation("IS_BLOCKED", ip, true, time.Since(start).Seconds()*1000, nil)
	return false, nil, nil
}

// Block bloqueia um IP por um período específico.
// Um bloqueio existente é sobrescrito, nunca acumulado.
func (m *MemoryStorage) Block(ctx context.Context, ip string, now time.Time, duration time.Duration, reason domain.BlockReason) error {
	start := time.Now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, exists := m.records[ip]
	if !exists {
		record = &domain.ClientRecord{IP: ip}
		m.records[ip] = record
	}

	blockedAt := now
	blockedUntil := now.Add(duration)

	record.Blocked = true
	record.BlockReason = reason
	record.BlockedAt = &blockedAt
	record.BlockedUntil = &blockedUntil

	m.logStorageOperation("BLOCK", ip, true, time.Since(start).Seconds()*1000, nil)
	return nil
}

// Unblock remove o bloqueio de um IP (idempotente)
func (m *MemoryStorage) Unblock(ctx context.Context, ip string) error {
	start := time.Now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if record, exists := m.records[ip]; exists {
		m.clearBlock(record)
	}

	m.logStorageOperation("UNBLOCK", ip, true, time.Since(start).Seconds()*1000, nil)
	return nil
}

// FlagSuspicious registra um IP como suspeito para fins de relatório.
// Sinalizar não bloqueia: o conjunto de suspeitos é independente do registro
// de bloqueios.
func (m *MemoryStorage) FlagSuspicious(ctx context.Context, ip, reason string, now time.Time) error {
	start := time.Now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if entry, exists := m.suspicious[ip]; exists {
		entry.Reason = reason
		entry.LastSeen = now
		entry.Count++
	} else {
		m.suspicious[ip] = &domain.SuspiciousIPInfo{
			IP:        ip,
			Reason:    reason,
			FirstSeen: now,
			LastSeen:  now,
			Count:     1,
		}
	}

	m.logStorageOperation("FLAG_SUSPICIOUS", ip, true, time.Since(start).Seconds()*1000, nil)
	return nil
}

// BlockedIPs lista os bloqueios ativos, expirando os vencidos no caminho
func (m *MemoryStorage) BlockedIPs(ctx context.Context, now time.Time) ([]domain.BlockedIPInfo, error) {
	start := time.Now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	blocked := make([]domain.BlockedIPInfo, 0)
	for _, record := range m.records {
		if !record.Blocked || record.BlockedUntil == nil {
			continue
		}
		if !now.Before(*record.BlockedUntil) {
			m.clearBlock(record)
			continue
		}
		blocked = append(blocked, domain.BlockedIPInfo{
			IP:               record.IP,
			Reason:           record.BlockReason,
			BlockedAt:        *record.BlockedAt,
			BlockedUntil:     *record.BlockedUntil,
			RemainingSeconds: secondsUntil(*record.BlockedUntil, now),
		})
	}

	sort.Slice(blocked, func(i, j int) bool {
		return blocked[i].IP < blocked[j].IP
	})

	m.logStorageOperation("BLOCKED_IPS", "all", true, time.Since(start).Seconds()*1000, nil)
	return blocked, nil
}

// SuspiciousIPs lista os IPs sinalizados pelas heurísticas
func (m *MemoryStorage) SuspiciousIPs(ctx context.Context) ([]domain.SuspiciousIPInfo, error) {
	start := time.Now()

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	suspicious := make([]domain.SuspiciousIPInfo, 0, len(m.suspicious))
	for _, entry := range m.suspicious {
		suspicious = append(suspicious, *entry)
	}

	sort.Slice(suspicious, func(i, j int) bool {
		return suspicious[i].IP < suspicious[j].IP
	})

	m.logStorageOperation("SUSPICIOUS_IPS", "all", true, time.Since(start).Seconds()*1000, nil)
	return suspicious, nil
}

// TrackedCount retorna o número de IPs com registro ativo
func (m *MemoryStorage) TrackedCount(ctx context.Context) (int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return len(m.records), nil
}

// Cleanup descarta timestamps anteriores à retenção e remove registros
// vazios não bloqueados. Registros bloqueados nunca são removidos aqui;
// a expiração deles é preguiçosa, na leitura.
func (m *MemoryStorage) Cleanup(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	start := time.Now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	cutoff := now.Add(-retention)
	removed := 0

	for ip, record := range m.records {
		kept := record.Timestamps[:0]
		for _, ts := range record.Timestamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		record.Timestamps = kept

		if !record.Blocked && len(record.Timestamps) == 0 {
			delete(m.records, ip)
			removed++
		}
	}

	// Entradas suspeitas têm horizonte próprio, mais longo: são relatório,
	// não bloqueio
	suspiciousCutoff := now.Add(-suspiciousTTL)
	for ip, entry := range m.suspicious {
		if !entry.LastSeen.After(suspiciousCutoff) {
			delete(m.suspicious, ip)
		}
	}

	m.logStorageOperation("CLEANUP", "all", true, time.Since(start).Seconds()*1000, nil)
	return removed, nil
}

// MintCount retorna o total de mints registrados em um bucket
func (m *MemoryStorage) MintCount(ctx context.Context, bucket string) (int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.mints[bucket], nil
}

// IncrementMint registra um mint bem-sucedido no bucket e retorna o novo total
func (m *MemoryStorage) IncrementMint(ctx context.Context, bucket string) (int, error) {
	start := time.Now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.mints[bucket]++
	count := m.mints[bucket]

	m.logStorageOperation("INCREMENT_MINT", bucket, true, time.Since(start).Seconds()*1000, nil)
	return count, nil
}

// CleanupMints remove buckets anteriores ao bucket informado.
// As chaves de bucket têm largura fixa, então a ordem lexicográfica coincide
// com a cronológica.
func (m *MemoryStorage) CleanupMints(ctx context.Context, oldest string) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	removed := 0
	for bucket := range m.mints {
		if bucket < oldest {
			delete(m.mints, bucket)
			removed++
		}
	}

	return removed, nil
}

// Health verifica se o storage está saudável
func (m *MemoryStorage) Health(ctx context.Context) error {
	start := time.Now()

	m.mutex.RLock()
	recordCount := len(m.records)
	suspiciousCount := len(m.suspicious)
	mintBuckets := len(m.mints)
	m.mutex.RUnlock()

	if m.logger != nil {
		m.logger.Debug("Memory storage health check", map[string]interface{}{
			"client_records":     recordCount,
			"suspicious_entries": suspiciousCount,
			"mint_buckets":       mintBuckets,
		})
	}

	m.logStorageOperation("HEALTH", "check", true, time.Since(start).Seconds()*1000, nil)
	return nil
}

// Close fecha a conexão com o storage (no-op para memory)
func (m *MemoryStorage) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Limpa todos os dados
	m.records = make(map[string]*domain.ClientRecord)
	m.suspicious = make(map[string]*domain.SuspiciousIPInfo)
	m.mints = make(map[string]int)

	if m.logger != nil {
		m.logger.Info("Memory storage closed", nil)
	}
	return nil
}

// GetStats retorna estatísticas do storage em memória
func (m *MemoryStorage) GetStats() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return map[string]interface{}{
		"client_records":     len(m.records),
		"suspicious_entries": len(m.suspicious),
		"mint_buckets":       len(m.mints),
		"type":               "memory",
	}
}

// clearBlock limpa os campos de bloqueio de um registro.
// Chamador deve estar com o lock de escrita.
func (m *MemoryStorage) clearBlock(record *domain.ClientRecord) {
	record.Blocked = false
	record.BlockReason = ""
	record.BlockedAt = nil
	record.BlockedUntil = nil
}

// secondsUntil retorna os segundos até um instante, arredondando para cima
func secondsUntil(until, now time.Time) int {
	remaining := until.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}

// logStorageOperation registra operações de storage
func (m *MemoryStorage) logStorageOperation(operation, key string, success bool, latency float64, err error) {
	if m.logger == nil {
		return
	}

	if success {
		m.logger.Debug("Storage operation completed", map[string]interface{}{
			"operation": operation,
			"key":       key,
			"latency":   latency,
		})
	} else {
		m.logger.Error("Storage operation failed", err, map[string]interface{}{
			"operation": operation,
			"key":       key,
			"latency":   latency,
		})
	}
}
