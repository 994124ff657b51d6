// Package quadra é a fachada do framework: amarra transporte, sessões,
// salas e scheduler em um servidor pronto para ouvir WebSockets. O
// desenvolvedor traz a Logic do jogo e um Authenticator; o resto é
// infraestrutura daqui.
package quadra

import (
	"log"
	"net/http"

	"quadra/events"
	"quadra/game"
	"quadra/protocol"
	"quadra/room"
	"quadra/session"
	"quadra/tick"
	"quadra/transport"
)

// Options configura o servidor. O zero value dá um servidor orientado a
// eventos (sem scheduler), JSON no fio e sessões com defaults.
type Options struct {
	// Codec serializa envelopes e payloads. nil usa JSON.
	Codec protocol.Codec

	// Session configura graça de reconexão e outbox.
	Session session.Config

	// Tick, quando não-nil, liga o scheduler de passo fixo e faz as
	// entradas de jogo passarem pela fila drenada a cada tick.
	Tick *tick.Config

	// Events publica o ciclo de vida em NATS. nil desliga.
	Events *events.Publisher
}

// Server é o processo autoritativo completo, parametrizado pelos tipos
// do jogo (estado, mensagem do cliente, mensagem do servidor).
type Server[S, CM, SM any] struct {
	codec     protocol.Codec
	sessions  *session.Manager
	registry  *room.Registry[S, CM, SM]
	sched     *tick.Scheduler
	transport *transport.Server
}

// NewServer monta o servidor em volta da lógica do jogo.
func NewServer[S, CM, SM any](logic game.Logic[S, CM, SM], auth session.Authenticator, opts Options) *Server[S, CM, SM] {
	codec := opts.Codec
	if codec == nil {
		codec = protocol.JSONCodec{}
	}
	var sched *tick.Scheduler
	if opts.Tick != nil {
		sched = tick.New(*opts.Tick, opts.Events)
	}
	s := &Server[S, CM, SM]{
		codec:    codec,
		sessions: session.NewManager(auth, opts.Session, opts.Events),
		registry: room.NewRegistry(logic, sched, opts.Events),
		sched:    sched,
	}
	s.transport = transport.NewServer(s)

	// sessão que estourou a graça libera a vaga na sala
	s.sessions.SetExpiryHandler(func(player protocol.PlayerID) {
		if err := s.registry.LeaveRoom(player); err != nil && err != room.ErrNotInRoom {
			log.Printf("[Server] failed to evict expired %s: %v", player, err)
		}
	})
	return s
}

// Registry expõe o índice de salas (criação manual, blueprints...).
func (s *Server[S, CM, SM]) Registry() *room.Registry[S, CM, SM] { return s.registry }

// Sessions expõe o gerenciador de sessões.
func (s *Server[S, CM, SM]) Sessions() *session.Manager { return s.sessions }

// Scheduler expõe o scheduler (nil em servidor orientado a eventos).
func (s *Server[S, CM, SM]) Scheduler() *tick.Scheduler { return s.sched }

// ServeWS expõe o endpoint WebSocket para quem quiser montar o próprio
// mux HTTP.
func (s *Server[S, CM, SM]) ServeWS(w http.ResponseWriter, r *http.Request) {
	s.transport.ServeWS(w, r)
}

// Listen liga o scheduler (se houver) e bloqueia servindo WebSockets em
// /ws no endereço dado.
func (s *Server[S, CM, SM]) Listen(addr string) error {
	if s.sched != nil {
		s.sched.Start()
	}
	return s.transport.Listen(addr)
}

// Shutdown fecha tudo na ordem: scheduler, salas, sessões.
func (s *Server[S, CM, SM]) Shutdown() {
	if s.sched != nil {
		s.sched.Stop()
	}
	s.registry.Shutdown()
	s.sessions.Shutdown()
	log.Printf("[Server] shutdown complete")
}
