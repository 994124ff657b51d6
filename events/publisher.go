// Package events publica eventos de ciclo de vida (salas, sessões,
// scheduler) em NATS, para observabilidade externa. O publisher é
// opcional: um *Publisher nil é seguro e simplesmente não publica nada —
// o framework nunca exige um broker rodando.
package events

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Assuntos publicados pelo framework.
const (
	SubjectRoomCreated      = "quadra.rooms.created"
	SubjectRoomStarted      = "quadra.rooms.started"
	SubjectRoomFinished     = "quadra.rooms.finished"
	SubjectRoomClosed       = "quadra.rooms.closed"
	SubjectSessionExpired   = "quadra.sessions.expired"
	SubjectSchedulerOverrun = "quadra.scheduler.overrun"
)

// Publisher embrulha uma conexão NATS core (sem JetStream: eventos de
// observabilidade não precisam de persistência).
type Publisher struct {
	nc *nats.Conn
}

// Connect abre uma conexão NATS com reconexão automática e devolve um
// Publisher pronto.
func Connect(url string) (*Publisher, error) {
	nc, err := nats.Connect(
		url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

// NewPublisher embrulha uma conexão já estabelecida.
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// Publish serializa o payload e publica. Falhas só geram log: um evento
// perdido nunca pode derrubar uma sala.
func (p *Publisher) Publish(subject string, payload any) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Events] ERROR: failed to marshal event for %s: %v", subject, err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		log.Printf("[Events] WARN: failed to publish %s: %v", subject, err)
	}
}

// Close descarrega o que estiver pendente e fecha a conexão.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Flush(); err != nil {
		log.Printf("[Events] WARN: flush on close: %v", err)
	}
	p.nc.Close()
}
