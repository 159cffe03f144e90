package domain

import "time"

// Clock abstrai a fonte de tempo do sistema.
// Serviços e storages recebem um Clock injetado para que os testes possam
// controlar a passagem do tempo de forma determinística.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// NewSystemClock cria um Clock baseado no relógio do sistema
func NewSystemClock() Clock {
	return systemClock{}
}

// MintBucket retorna a chave de bucket por minuto para um instante.
// Formato UTC de largura fixa: a chave muda em toda virada de minuto, hora,
// dia e ano, e a ordem lexicográfica coincide com a cronológica.
func MintBucket(t time.Time) string {
	return t.UTC().Format("200601021504")
}
