// Package game define o ponto de extensão do framework: a lógica do
// jogo. O desenvolvedor implementa Logic com funções puras de transição
// de estado; rede, sessão e agendamento nunca aparecem aqui.
package game

import (
	"time"

	"quadra/protocol"
)

// Outbound é uma mensagem endereçada produzida pela lógica. A sala
// expande o Recipient em entregas concretas por sessão.
type Outbound[SM any] struct {
	To  protocol.Recipient
	Msg SM
}

// Reply é açúcar para responder só ao remetente.
func Reply[SM any](to protocol.PlayerID, msg SM) Outbound[SM] {
	return Outbound[SM]{To: protocol.To(to), Msg: msg}
}

// Broadcast é açúcar para mandar a todos.
func Broadcast[SM any](msg SM) Outbound[SM] {
	return Outbound[SM]{To: protocol.ToAll(), Msg: msg}
}

// Logic é a interface que o desenvolvedor implementa, parametrizada
// pelos tipos do jogo:
//
//   - S  — estado completo (tabuleiro, placar, de quem é a vez...)
//   - CM — mensagem que o cliente manda (jogadas)
//   - SM — mensagem que o servidor devolve (eventos, atualizações)
//
// A instância de Logic carrega a configuração do jogo (tamanho do
// tabuleiro, limites de tempo); o framework chama cada método na hora
// certa, sempre dentro da seção crítica da sala.
type Logic[S, CM, SM any] interface {
	// Init cria o estado inicial quando a sala ativa. players vem na
	// ordem dos slots.
	Init(players []protocol.PlayerID) S

	// ValidateMessage roda antes de HandleMessage. Um erro rejeita a
	// mensagem sem tocar no estado; a rejeição volta só para o
	// remetente.
	ValidateMessage(state *S, sender protocol.PlayerID, msg CM) error

	// HandleMessage aplica a jogada e devolve as mensagens de saída,
	// em ordem.
	HandleMessage(state *S, sender protocol.PlayerID, msg CM) []Outbound[SM]

	// IsFinished é checado depois de cada mensagem aplicada e de cada
	// tick. true transita a sala para Finished.
	IsFinished(state *S) bool
}

// TickLogic é opcional: jogos em tempo real implementam Tick para
// evoluir o estado no passo fixo do scheduler, independente de
// mensagens. Detectado por type assertion na sala.
type TickLogic[S, CM, SM any] interface {
	Logic[S, CM, SM]
	Tick(state *S, dt time.Duration) []Outbound[SM]
}

// DepartureLogic é opcional: avisa a lógica quando um jogador sai da
// sala em definitivo (leave explícito ou graça expirada).
type DepartureLogic[S, CM, SM any] interface {
	Logic[S, CM, SM]
	OnPlayerLeave(state *S, player protocol.PlayerID) []Outbound[SM]
}

// ReconnectLogic é opcional: avisa a lógica quando um jogador volta
// dentro da janela de graça (para reenviar estado, retomar o jogo...).
type ReconnectLogic[S, CM, SM any] interface {
	Logic[S, CM, SM]
	OnPlayerReconnect(state *S, player protocol.PlayerID) []Outbound[SM]
}
