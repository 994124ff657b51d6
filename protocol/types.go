// Package protocol define os tipos que viajam "no fio": identidades,
// destinatários e o envelope padrão de toda a comunicação.
package protocol

import "github.com/google/uuid"

// PlayerID identifica um jogador de forma estável. É atribuído na
// autenticação e nunca muda enquanto a sessão/membership existir.
type PlayerID string

// RoomID identifica uma sala. Gerado pelo Registry na criação.
type RoomID string

// NewRoomID gera um RoomID novo.
func NewRoomID() RoomID {
	return RoomID(uuid.NewString())
}

// RecipientKind diz para quem uma mensagem de saída deve ir.
type RecipientKind int

const (
	// RecipientOne entrega para um único jogador.
	RecipientOne RecipientKind = iota
	// RecipientAll entrega para todos os jogadores da sala.
	RecipientAll
	// RecipientAllExcept entrega para todos menos um (útil para
	// broadcasts do tipo "o jogador X se moveu").
	RecipientAllExcept
)

// Recipient é o alvo de roteamento de uma mensagem de saída.
type Recipient struct {
	Kind   RecipientKind
	Player PlayerID // preenchido para One e AllExcept
}

// To constrói um Recipient para um único jogador.
func To(p PlayerID) Recipient {
	return Recipient{Kind: RecipientOne, Player: p}
}

// ToAll constrói um Recipient de broadcast.
func ToAll() Recipient {
	return Recipient{Kind: RecipientAll}
}

// ToAllExcept constrói um broadcast que exclui um jogador.
func ToAllExcept(p PlayerID) Recipient {
	return Recipient{Kind: RecipientAllExcept, Player: p}
}
