// Servidor de exemplo: jogo da velha 1v1 por cima do framework. Mostra
// o mínimo que um jogo precisa: um tipo de estado, um tipo de jogada,
// um tipo de evento e a Logic que os liga.
package main

import (
	"flag"
	"fmt"
	"log"

	"quadra"
	"quadra/events"
	"quadra/game"
	"quadra/protocol"
	"quadra/room"
	"quadra/session"
)

// State é o estado completo de uma partida. Vai inteiro no snapshot.
type State struct {
	Board   [9]string           `json:"board"` // "X", "O" ou ""
	Players []protocol.PlayerID `json:"players"`
	Turn    protocol.PlayerID   `json:"turn"`
	Winner  string              `json:"winner,omitempty"` // id, "draw" ou ""
	Over    bool                `json:"over"`
}

// Move é a única mensagem que o cliente manda.
type Move struct {
	Cell int `json:"cell"` // 0..8
}

// Update é o evento que o servidor devolve depois de cada jogada.
type Update struct {
	Board  [9]string         `json:"board"`
	Turn   protocol.PlayerID `json:"turn"`
	Winner string            `json:"winner,omitempty"`
	Over   bool              `json:"over"`
}

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // linhas
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // colunas
	{0, 4, 8}, {2, 4, 6}, // diagonais
}

// TicTacToe implementa game.Logic. Sem estado próprio: tudo vive no
// State da sala.
type TicTacToe struct{}

func (TicTacToe) Init(players []protocol.PlayerID) State {
	return State{Players: players, Turn: players[0]}
}

func (TicTacToe) ValidateMessage(s *State, sender protocol.PlayerID, m Move) error {
	if s.Over {
		return fmt.Errorf("game is over")
	}
	if sender != s.Turn {
		return fmt.Errorf("not your turn")
	}
	if m.Cell < 0 || m.Cell > 8 {
		return fmt.Errorf("cell %d out of range", m.Cell)
	}
	if s.Board[m.Cell] != "" {
		return fmt.Errorf("cell %d is taken", m.Cell)
	}
	return nil
}

func (TicTacToe) HandleMessage(s *State, sender protocol.PlayerID, m Move) []game.Outbound[Update] {
	mark := "X"
	if len(s.Players) > 1 && sender == s.Players[1] {
		mark = "O"
	}
	s.Board[m.Cell] = mark

	if winningMark(s.Board) != "" {
		s.Winner = string(sender)
		s.Over = true
	} else if boardFull(s.Board) {
		s.Winner = "draw"
		s.Over = true
	} else {
		s.Turn = opponent(s, sender)
	}

	return []game.Outbound[Update]{game.Broadcast(Update{
		Board:  s.Board,
		Turn:   s.Turn,
		Winner: s.Winner,
		Over:   s.Over,
	})}
}

func (TicTacToe) IsFinished(s *State) bool { return s.Over }

// OnPlayerLeave dá a vitória por W.O. para quem ficou.
func (TicTacToe) OnPlayerLeave(s *State, player protocol.PlayerID) []game.Outbound[Update] {
	if s.Over {
		return nil
	}
	s.Winner = string(opponent(s, player))
	s.Over = true
	return []game.Outbound[Update]{game.Broadcast(Update{
		Board:  s.Board,
		Winner: s.Winner,
		Over:   true,
	})}
}

func opponent(s *State, player protocol.PlayerID) protocol.PlayerID {
	for _, p := range s.Players {
		if p != player {
			return p
		}
	}
	return player
}

func winningMark(b [9]string) string {
	for _, l := range lines {
		if b[l[0]] != "" && b[l[0]] == b[l[1]] && b[l[1]] == b[l[2]] {
			return b[l[0]]
		}
	}
	return ""
}

func boardFull(b [9]string) bool {
	for _, c := range b {
		if c == "" {
			return false
		}
	}
	return true
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	natsURL := flag.String("nats", "", "NATS url for lifecycle events (empty disables)")
	flag.Parse()

	var pub *events.Publisher
	if *natsURL != "" {
		var err error
		pub, err = events.Connect(*natsURL)
		if err != nil {
			log.Fatalf("[Main] failed to connect to NATS: %v", err)
		}
		defer pub.Close()
	}

	srv := quadra.NewServer[State, Move, Update](TicTacToe{}, session.PlainAuthenticator{}, quadra.Options{
		Session: session.Config{OutboxPolicy: session.ForceDisconnect},
		Events:  pub,
	})
	if err := srv.Registry().RegisterBlueprint("tictactoe", room.Config{
		MinPlayers:  2,
		MaxPlayers:  2,
		EndOnLeave:  true,
		DrainWindow: room.DefaultDrainWindow,
	}); err != nil {
		log.Fatalf("[Main] bad blueprint: %v", err)
	}

	log.Fatal(srv.Listen(*addr))
}
