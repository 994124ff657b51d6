package room

import (
	"fmt"
	"time"
)

// Valores padrão de configuração de sala.
const (
	DefaultMinPlayers   = 2
	DefaultMaxPlayers   = 2
	DefaultDrainWindow  = 5 * time.Second
	DefaultPendingLimit = 64
)

// Config descreve uma sala. Labels iguais formam o pool que o
// join-or-create varre; o resto controla lotação e ciclo de vida.
type Config struct {
	// Label agrupa salas compatíveis para matchmaking ("ranked-1v1").
	Label string

	// MinPlayers dispara o início automático quando atingido.
	MinPlayers int

	// MaxPlayers é o número de slots da sala.
	MaxPlayers int

	// AllowPartialStart permite Start() explícito abaixo de MinPlayers.
	AllowPartialStart bool

	// EndOnLeave encerra o jogo quando alguém sai de uma sala ativa
	// (comportamento típico de 1v1: quem fica vence por W.O.).
	EndOnLeave bool

	// DrainWindow é quanto tempo a sala fica em Finished antes de
	// fechar, para o resultado escoar. Zero fecha imediatamente.
	DrainWindow time.Duration

	// PendingLimit limita a fila de entradas entre ticks. Acima disso
	// as mais antigas são descartadas.
	PendingLimit int
}

// DefaultConfig devolve uma sala 1v1 com drenagem curta.
func DefaultConfig(label string) Config {
	return Config{
		Label:        label,
		MinPlayers:   DefaultMinPlayers,
		MaxPlayers:   DefaultMaxPlayers,
		DrainWindow:  DefaultDrainWindow,
		PendingLimit: DefaultPendingLimit,
	}
}

// normalize preenche defaults e valida. Erros embrulham ErrBadConfig.
func (c Config) normalize() (Config, error) {
	if c.MinPlayers == 0 {
		c.MinPlayers = DefaultMinPlayers
	}
	if c.MaxPlayers == 0 {
		c.MaxPlayers = DefaultMaxPlayers
	}
	if c.PendingLimit <= 0 {
		c.PendingLimit = DefaultPendingLimit
	}
	if c.MinPlayers < 1 {
		return c, fmt.Errorf("%w: min players %d < 1", ErrBadConfig, c.MinPlayers)
	}
	if c.MaxPlayers < c.MinPlayers {
		return c, fmt.Errorf("%w: max players %d < min players %d",
			ErrBadConfig, c.MaxPlayers, c.MinPlayers)
	}
	if c.DrainWindow < 0 {
		return c, fmt.Errorf("%w: negative drain window", ErrBadConfig)
	}
	return c, nil
}
