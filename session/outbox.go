package session

// Política aplicada quando o outbox enche.
type Policy int

const (
	// DropOldest descarta a mensagem mais antiga para abrir espaço.
	// Bom para jogos em tempo real, onde estado velho não interessa.
	DropOldest Policy = iota
	// ForceDisconnect derruba a conexão do jogador lento. Bom para
	// jogos por turno, onde perder mensagem corrompe a visão do jogo.
	ForceDisconnect
)

// DefaultOutboxLimit é o tamanho padrão do outbox por sessão.
const DefaultOutboxLimit = 256

// Outbox guarda mensagens destinadas a uma sessão sem conexão viva (ou
// com a conexão saturada), para descarregar na reconexão. Não é seguro
// para uso concorrente: o mutex da Session guarda.
type Outbox struct {
	limit   int
	policy  Policy
	buf     [][]byte
	dropped uint64
}

// NewOutbox cria um outbox limitado. limit <= 0 usa o padrão.
func NewOutbox(limit int, policy Policy) *Outbox {
	if limit <= 0 {
		limit = DefaultOutboxLimit
	}
	return &Outbox{limit: limit, policy: policy}
}

// Push enfileira a mensagem. Se o outbox estiver cheio, a mais antiga é
// descartada e Push devolve true; com ForceDisconnect cabe ao chamador
// derrubar a conexão.
func (o *Outbox) Push(data []byte) (overflowed bool) {
	if len(o.buf) >= o.limit {
		o.buf = o.buf[1:]
		o.dropped++
		overflowed = true
	}
	o.buf = append(o.buf, data)
	return overflowed
}

// Peek devolve a mensagem mais antiga sem remover. nil se vazio.
func (o *Outbox) Peek() []byte {
	if len(o.buf) == 0 {
		return nil
	}
	return o.buf[0]
}

// Pop remove a mensagem mais antiga.
func (o *Outbox) Pop() {
	if len(o.buf) > 0 {
		o.buf = o.buf[1:]
	}
}

// Len devolve quantas mensagens estão enfileiradas.
func (o *Outbox) Len() int { return len(o.buf) }

// Policy devolve a política de estouro.
func (o *Outbox) Policy() Policy { return o.policy }

// Dropped devolve quantas mensagens já foram descartadas.
func (o *Outbox) Dropped() uint64 { return o.dropped }
