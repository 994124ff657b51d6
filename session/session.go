// Package session desacopla a identidade do jogador da conexão física.
// A sessão sobrevive a quedas de rede dentro de uma janela de graça e
// amortece a entrega com um outbox limitado.
package session

import (
	"sync"

	"quadra/protocol"
)

// ConnState é o estado de conectividade de uma sessão.
type ConnState int

const (
	// StateConnected tem conexão viva.
	StateConnected ConnState = iota
	// StateDisconnected está na janela de graça, aguardando reconexão.
	StateDisconnected
	// StateExpired estourou a graça. Terminal.
	StateExpired
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Conn é o que a sessão precisa de uma conexão de transporte. Send deve
// ser não-bloqueante e devolver erro quando o buffer de envio satura.
type Conn interface {
	Send(data []byte) error
	Close()
}

// Session é o vínculo estável entre um PlayerID e (no máximo) uma
// conexão viva. Segura para uso concorrente.
type Session struct {
	player protocol.PlayerID
	token  string

	mu     sync.Mutex
	state  ConnState
	conn   Conn
	outbox *Outbox
	seq    uint64
	roomID protocol.RoomID
}

func newSession(player protocol.PlayerID, token string, outboxLimit int, policy Policy) *Session {
	return &Session{
		player: player,
		token:  token,
		state:  StateDisconnected,
		outbox: NewOutbox(outboxLimit, policy),
	}
}

// PlayerID devolve a identidade do jogador.
func (s *Session) PlayerID() protocol.PlayerID { return s.player }

// Token devolve o token de reconexão, gerado uma vez na autenticação.
func (s *Session) Token() string { return s.token }

// State devolve o estado de conectividade atual.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoomID devolve a sala que a sessão ocupa ("" se nenhuma).
func (s *Session) RoomID() protocol.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// SetRoomID registra a sala ocupada.
func (s *Session) SetRoomID(id protocol.RoomID) {
	s.mu.Lock()
	s.roomID = id
	s.mu.Unlock()
}

// ClearRoomID limpa o vínculo com a sala.
func (s *Session) ClearRoomID() {
	s.mu.Lock()
	s.roomID = ""
	s.mu.Unlock()
}

// NextSeq devolve o próximo número de sequência de saída, estritamente
// crescente por sessão.
func (s *Session) NextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Send entrega bytes já codificados para o jogador. Com conexão viva,
// primeiro drena o que o outbox acumulou (uma falha transitória não
// pode parar a sessão até a próxima reconexão) e então tenta o envio
// direto; o que não couber vai para o outbox, preservando a ordem. Com
// ForceDisconnect, estouro derruba a conexão e devolve
// ErrOutboxOverflow.
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	if s.state == StateExpired {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.state == StateConnected && s.conn != nil {
		s.flushLocked()
		if s.outbox.Len() == 0 {
			if err := s.conn.Send(data); err == nil {
				s.mu.Unlock()
				return nil
			}
			// buffer da conexão saturado: cai para o outbox
		}
	}
	overflowed := s.outbox.Push(data)
	if overflowed && s.outbox.Policy() == ForceDisconnect {
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrOutboxOverflow
	}
	s.mu.Unlock()
	return nil
}

// OutboxLen devolve quantas mensagens aguardam entrega.
func (s *Session) OutboxLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbox.Len()
}

// bindConn ata uma conexão viva e descarrega o outbox na ordem.
func (s *Session) bindConn(conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.flushLocked()
	s.mu.Unlock()
}

// flushLocked descarrega o outbox na conexão atual, parando na primeira
// falha para preservar a ordem.
func (s *Session) flushLocked() {
	for s.outbox.Len() > 0 {
		if err := s.conn.Send(s.outbox.Peek()); err != nil {
			return
		}
		s.outbox.Pop()
	}
}

// connIs diz se c é a conexão atualmente atada.
func (s *Session) connIs(c Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == c
}

// markDisconnected solta a conexão sem mexer no outbox.
func (s *Session) markDisconnected() {
	s.mu.Lock()
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()
}

// markExpired fecha a sessão em definitivo.
func (s *Session) markExpired() {
	s.mu.Lock()
	s.conn = nil
	s.state = StateExpired
	s.mu.Unlock()
}
