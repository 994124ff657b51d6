package room

import (
	"fmt"
	"log"
	"sync"

	"quadra/events"
	"quadra/game"
	"quadra/protocol"
	"quadra/tick"
)

// Registry é o índice global de salas. Mantém a ordem de criação para
// o matchmaking varrer de forma determinística e garante o invariante
// de um jogador em no máximo uma sala por vez.
//
// Ordem de locks: o mutex do Registry nunca é segurado durante chamadas
// na sala; os hooks da sala (que pegam o mutex do Registry) rodam fora
// do mutex dela. Assim não existe ciclo.
type Registry[S, CM, SM any] struct {
	logic game.Logic[S, CM, SM]
	sched *tick.Scheduler   // opcional
	pub   *events.Publisher // opcional

	mu          sync.Mutex
	rooms       map[protocol.RoomID]*Room[S, CM, SM]
	order       []protocol.RoomID // ordem de criação
	playerRooms map[protocol.PlayerID]protocol.RoomID
	blueprints  map[string]Config
	closed      bool
}

// placeholder em playerRooms enquanto um join está em andamento; o
// jogador já está reservado mas ainda não tem sala definitiva.
const joining = protocol.RoomID("")

// NewRegistry cria um registry vazio. sched e pub podem ser nil (sem
// ticks agendados e sem eventos, respectivamente).
func NewRegistry[S, CM, SM any](logic game.Logic[S, CM, SM], sched *tick.Scheduler, pub *events.Publisher) *Registry[S, CM, SM] {
	return &Registry[S, CM, SM]{
		logic:       logic,
		sched:       sched,
		pub:         pub,
		rooms:       make(map[protocol.RoomID]*Room[S, CM, SM]),
		playerRooms: make(map[protocol.PlayerID]protocol.RoomID),
		blueprints:  make(map[string]Config),
	}
}

// RegisterBlueprint define a config usada quando o join-or-create de um
// label precisa criar sala nova. Labels sem blueprint usam
// DefaultConfig.
func (g *Registry[S, CM, SM]) RegisterBlueprint(label string, cfg Config) error {
	cfg, err := cfg.normalize()
	if err != nil {
		return err
	}
	cfg.Label = label
	g.mu.Lock()
	g.blueprints[label] = cfg
	g.mu.Unlock()
	return nil
}

// CreateRoom cria uma sala em Waiting e a registra.
func (g *Registry[S, CM, SM]) CreateRoom(cfg Config) (protocol.RoomID, error) {
	id := protocol.NewRoomID()
	rm, err := New(id, cfg, g.logic, g.hooksFor(id))
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return "", fmt.Errorf("%w: registry is shut down", ErrWrongState)
	}
	g.rooms[id] = rm
	g.order = append(g.order, id)
	g.mu.Unlock()

	log.Printf("[Registry] room %s created (label=%q)", id, cfg.Label)
	g.pub.Publish(events.SubjectRoomCreated, map[string]any{
		"room_id": id,
		"label":   rm.Label(),
	})
	return id, nil
}

// hooksFor liga o ciclo de vida da sala ao resto do processo: entrada
// no scheduler quando ativa, saída do índice quando fecha.
func (g *Registry[S, CM, SM]) hooksFor(id protocol.RoomID) Hooks {
	return Hooks{
		OnActive: func() {
			if g.sched != nil {
				g.mu.Lock()
				rm := g.rooms[id]
				g.mu.Unlock()
				if rm != nil {
					g.sched.Register(id, rm)
					// a sala pode ter fechado entre a leitura do índice e o
					// Register, com o Unregister do OnClosed já concluído;
					// sem esta checagem a sala morta ficaria registrada
					if rm.Status() == StatusClosed {
						g.sched.Unregister(id)
					}
				}
			}
			g.pub.Publish(events.SubjectRoomStarted, map[string]any{"room_id": id})
		},
		OnFinished: func() {
			g.pub.Publish(events.SubjectRoomFinished, map[string]any{"room_id": id})
		},
		OnClosed: func() {
			g.mu.Lock()
			delete(g.rooms, id)
			for i, other := range g.order {
				if other == id {
					g.order = append(g.order[:i], g.order[i+1:]...)
					break
				}
			}
			g.mu.Unlock()
			if g.sched != nil {
				// fora da pilha do tick: Unregister espera o ciclo corrente
				go g.sched.Unregister(id)
			}
			g.pub.Publish(events.SubjectRoomClosed, map[string]any{"room_id": id})
		},
		OnLeave: func(player protocol.PlayerID) {
			g.mu.Lock()
			if g.playerRooms[player] == id {
				delete(g.playerRooms, player)
			}
			g.mu.Unlock()
		},
	}
}

// Get devolve a sala pelo id.
func (g *Registry[S, CM, SM]) Get(id protocol.RoomID) (*Room[S, CM, SM], error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rm, ok := g.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rm, nil
}

// RoomFor devolve a sala que o jogador ocupa, se houver.
func (g *Registry[S, CM, SM]) RoomFor(player protocol.PlayerID) (*Room[S, CM, SM], bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.playerRooms[player]
	if !ok || id == joining {
		return nil, false
	}
	rm, ok := g.rooms[id]
	return rm, ok
}

// JoinRoom coloca o jogador em uma sala específica. A reserva do
// jogador no índice e a reserva do slot na sala são, juntas, o que
// torna a operação atômica frente a joins concorrentes.
func (g *Registry[S, CM, SM]) JoinRoom(id protocol.RoomID, player protocol.PlayerID, h Handle[S, SM]) (int, error) {
	g.mu.Lock()
	if _, busy := g.playerRooms[player]; busy {
		g.mu.Unlock()
		return -1, ErrAlreadyJoined
	}
	rm, ok := g.rooms[id]
	if !ok {
		g.mu.Unlock()
		return -1, ErrNotFound
	}
	g.playerRooms[player] = joining
	g.mu.Unlock()

	slot, err := rm.Join(player, h)

	g.mu.Lock()
	_, live := g.rooms[id]
	if err != nil || !live {
		// sala pode ter fechado entre o join e o registro
		delete(g.playerRooms, player)
	} else {
		g.playerRooms[player] = id
	}
	g.mu.Unlock()
	return slot, err
}

// joinOrCreateAttempts limita as rodadas de varredura+criação quando
// corridas roubam as salas no meio do caminho.
const joinOrCreateAttempts = 16

// JoinOrCreate procura uma sala em Waiting com o label pedido, varrendo
// na ordem de criação, e entra na primeira com vaga. Sem candidata, cria
// uma sala nova a partir do blueprint do label. Corridas são resolvidas
// pelo Join da sala: candidata que lotou no meio do caminho é pulada, e
// se até a sala recém-criada for tomada, a varredura recomeça.
func (g *Registry[S, CM, SM]) JoinOrCreate(label string, player protocol.PlayerID, h Handle[S, SM]) (protocol.RoomID, int, error) {
	g.mu.Lock()
	if _, busy := g.playerRooms[player]; busy {
		g.mu.Unlock()
		return "", -1, ErrAlreadyJoined
	}
	g.playerRooms[player] = joining
	g.mu.Unlock()

	settle := func(id protocol.RoomID, slot int, err error) (protocol.RoomID, int, error) {
		g.mu.Lock()
		_, live := g.rooms[id]
		if err != nil || !live {
			delete(g.playerRooms, player)
		} else {
			g.playerRooms[player] = id
		}
		g.mu.Unlock()
		return id, slot, err
	}

	var lastErr error
	for attempt := 0; attempt < joinOrCreateAttempts; attempt++ {
		g.mu.Lock()
		candidates := make([]*Room[S, CM, SM], 0, len(g.order))
		for _, id := range g.order {
			if rm := g.rooms[id]; rm != nil && rm.Label() == label {
				candidates = append(candidates, rm)
			}
		}
		cfg, hasBlueprint := g.blueprints[label]
		g.mu.Unlock()

		for _, rm := range candidates {
			slot, err := rm.Join(player, h)
			if err == nil {
				return settle(rm.ID(), slot, nil)
			}
			// lotada ou já ativa: tenta a próxima
		}

		if !hasBlueprint {
			cfg = DefaultConfig(label)
		}
		id, err := g.CreateRoom(cfg)
		if err != nil {
			return settle("", -1, err)
		}
		rm, err := g.Get(id)
		if err != nil {
			lastErr = err
			continue
		}
		slot, err := rm.Join(player, h)
		if err == nil {
			return settle(id, slot, nil)
		}
		// outra corrida tomou a sala nova; varre de novo
		lastErr = err
	}
	return settle("", -1, fmt.Errorf("join-or-create for %q gave up: %w", label, lastErr))
}

// LeaveRoom tira o jogador da sala que ele ocupa.
func (g *Registry[S, CM, SM]) LeaveRoom(player protocol.PlayerID) error {
	rm, ok := g.RoomFor(player)
	if !ok {
		return ErrNotInRoom
	}
	return rm.Leave(player)
}

// List devolve um snapshot de todas as salas, em ordem de criação.
func (g *Registry[S, CM, SM]) List() []Info {
	g.mu.Lock()
	rooms := make([]*Room[S, CM, SM], 0, len(g.order))
	for _, id := range g.order {
		if rm := g.rooms[id]; rm != nil {
			rooms = append(rooms, rm)
		}
	}
	g.mu.Unlock()

	infos := make([]Info, 0, len(rooms))
	for _, rm := range rooms {
		infos = append(infos, rm.Info())
	}
	return infos
}

// ListJoinable filtra List para salas em Waiting com vaga.
func (g *Registry[S, CM, SM]) ListJoinable() []Info {
	all := g.List()
	joinable := all[:0]
	for _, info := range all {
		if info.Status == StatusWaiting && info.Players < info.MaxPlayers {
			joinable = append(joinable, info)
		}
	}
	return joinable
}

// Count devolve quantas salas existem.
func (g *Registry[S, CM, SM]) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Shutdown fecha todas as salas e recusa criações futuras.
func (g *Registry[S, CM, SM]) Shutdown() {
	g.mu.Lock()
	g.closed = true
	rooms := make([]*Room[S, CM, SM], 0, len(g.rooms))
	for _, rm := range g.rooms {
		rooms = append(rooms, rm)
	}
	g.mu.Unlock()

	for _, rm := range rooms {
		rm.Close()
	}
	log.Printf("[Registry] shut down, %d room(s) closed", len(rooms))
}
