// Package room implementa a autoridade do jogo: a sala serializa toda
// mutação de estado atrás de um único mutex, e o Registry mantém o
// índice global com a garantia de um jogador por sala.
package room

import (
	"fmt"
	"log"
	"sync"
	"time"

	"quadra/game"
	"quadra/protocol"
)

// Handle é o canal de entrega que a sala usa para falar com um jogador.
// O servidor injeta um adapter por sessão no Join; a sala nunca enxerga
// socket nem codec. Implementações precisam ser não-bloqueantes e não
// podem chamar a sala de volta.
type Handle[S, SM any] interface {
	// DeliverMessage entrega uma mensagem produzida pela lógica.
	DeliverMessage(msg SM)
	// DeliverState entrega um snapshot completo do estado (início de
	// jogo e reconexão).
	DeliverState(roomID protocol.RoomID, state S)
	// Reject devolve uma rejeição de entrada processada fora de banda
	// (fila de tick).
	Reject(err error)
}

// Envelope é uma entrada de jogador já decodificada, com o número de
// sequência original do fio.
type Envelope[CM any] struct {
	Seq uint64
	Msg CM
}

// Hooks são callbacks de ciclo de vida para o dono da sala (Registry).
// Rodam FORA do mutex da sala, então podem pegar outros locks.
type Hooks struct {
	OnActive   func()
	OnFinished func()
	OnClosed   func()
	OnLeave    func(player protocol.PlayerID)
}

type queuedInput[CM any] struct {
	sender protocol.PlayerID
	env    Envelope[CM]
}

// Room é uma instância de jogo com seus jogadores. Todos os métodos são
// seguros para chamada concorrente; o mutex interno é a seção crítica
// que serializa jogadas, ticks e transições de estado.
type Room[S, CM, SM any] struct {
	id    protocol.RoomID
	cfg   Config
	logic game.Logic[S, CM, SM]
	hooks Hooks

	// capacidades opcionais da lógica, resolvidas uma vez na criação
	ticker    game.TickLogic[S, CM, SM]
	departure game.DepartureLogic[S, CM, SM]
	rejoin    game.ReconnectLogic[S, CM, SM]

	mu         sync.Mutex
	status     Status
	slots      []protocol.PlayerID // "" = slot livre; índice = slot
	handles    map[protocol.PlayerID]Handle[S, SM]
	lastSeq    map[protocol.PlayerID]uint64
	state      S
	ticks      uint64
	queue      []queuedInput[CM]
	dropped    uint64
	closeTimer *time.Timer
}

// New cria uma sala em Waiting. A config é validada e preenchida com
// defaults; a lógica é sondada pelas capacidades opcionais.
func New[S, CM, SM any](id protocol.RoomID, cfg Config, logic game.Logic[S, CM, SM], hooks Hooks) (*Room[S, CM, SM], error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	r := &Room[S, CM, SM]{
		id:      id,
		cfg:     cfg,
		logic:   logic,
		hooks:   hooks,
		status:  StatusWaiting,
		slots:   make([]protocol.PlayerID, cfg.MaxPlayers),
		handles: make(map[protocol.PlayerID]Handle[S, SM]),
		lastSeq: make(map[protocol.PlayerID]uint64),
	}
	if t, ok := logic.(game.TickLogic[S, CM, SM]); ok {
		r.ticker = t
	}
	if d, ok := logic.(game.DepartureLogic[S, CM, SM]); ok {
		r.departure = d
	}
	if rc, ok := logic.(game.ReconnectLogic[S, CM, SM]); ok {
		r.rejoin = rc
	}
	return r, nil
}

// ID devolve o identificador da sala.
func (r *Room[S, CM, SM]) ID() protocol.RoomID { return r.id }

// Label devolve o label de matchmaking da sala.
func (r *Room[S, CM, SM]) Label() string { return r.cfg.Label }

// Status devolve o estado atual da máquina de estados.
func (r *Room[S, CM, SM]) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Ticks devolve quantos ticks a sala já processou.
func (r *Room[S, CM, SM]) Ticks() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}

// Info resume a sala com valores copiáveis, próprios para listagem.
type Info struct {
	ID         protocol.RoomID
	Label      string
	Status     Status
	Players    int
	MaxPlayers int
}

// Info devolve um snapshot resumido da sala.
func (r *Room[S, CM, SM]) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Info{
		ID:         r.id,
		Label:      r.cfg.Label,
		Status:     r.status,
		Players:    r.occupiedLocked(),
		MaxPlayers: r.cfg.MaxPlayers,
	}
}

// Players devolve os jogadores presentes, em ordem de slot.
func (r *Room[S, CM, SM]) Players() []protocol.PlayerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playersLocked()
}

// Join reserva o primeiro slot livre para o jogador, atomicamente:
// checagem e reserva acontecem na mesma seção crítica, então duas
// entradas concorrentes no último slot nunca passam as duas. Atingir
// MinPlayers ativa a sala no mesmo passo.
func (r *Room[S, CM, SM]) Join(player protocol.PlayerID, h Handle[S, SM]) (int, error) {
	r.mu.Lock()
	slot, after, err := r.joinLocked(player, h)
	r.mu.Unlock()
	runAll(after)
	return slot, err
}

func (r *Room[S, CM, SM]) joinLocked(player protocol.PlayerID, h Handle[S, SM]) (int, []func(), error) {
	if r.status != StatusWaiting {
		// sala lotada reporta lotação, mesmo que já tenha ativado
		if r.occupiedLocked() >= len(r.slots) {
			return -1, nil, ErrRoomFull
		}
		return -1, nil, fmt.Errorf("%w: join on %s room", ErrWrongState, r.status)
	}
	if r.slotOf(player) >= 0 {
		return -1, nil, ErrAlreadyJoined
	}
	slot := -1
	for i, pid := range r.slots {
		if pid == "" {
			slot = i
			break
		}
	}
	if slot < 0 {
		return -1, nil, ErrRoomFull
	}
	r.slots[slot] = player
	r.handles[player] = h

	var after []func()
	if r.occupiedLocked() >= r.cfg.MinPlayers {
		after = r.activateLocked()
	}
	return slot, after, nil
}

// Start ativa a sala por comando explícito, antes da lotação mínima.
// Exige AllowPartialStart quando abaixo de MinPlayers e pelo menos um
// jogador presente.
func (r *Room[S, CM, SM]) Start() error {
	r.mu.Lock()
	if r.status != StatusWaiting {
		r.mu.Unlock()
		return fmt.Errorf("%w: start on %s room", ErrWrongState, r.status)
	}
	n := r.occupiedLocked()
	if n == 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: start on empty room", ErrWrongState)
	}
	if n < r.cfg.MinPlayers && !r.cfg.AllowPartialStart {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d player(s), need %d", ErrWrongState, n, r.cfg.MinPlayers)
	}
	after := r.activateLocked()
	r.mu.Unlock()
	runAll(after)
	return nil
}

func (r *Room[S, CM, SM]) activateLocked() []func() {
	r.status = StatusActive
	players := r.playersLocked()
	r.state = r.logic.Init(players)
	log.Printf("[Room %s] game started with %d player(s)", r.id, len(players))

	// snapshot inicial para todo mundo
	for _, pid := range players {
		if h, ok := r.handles[pid]; ok {
			h.DeliverState(r.id, r.state)
		}
	}
	if r.hooks.OnActive != nil {
		return []func(){r.hooks.OnActive}
	}
	return nil
}

// Dispatch aplica uma entrada imediatamente (caminho orientado a
// eventos, sem scheduler). Entrada inválida ou fora de sequência não
// toca o estado e volta como erro para o chamador responder.
func (r *Room[S, CM, SM]) Dispatch(sender protocol.PlayerID, env Envelope[CM]) error {
	r.mu.Lock()
	after, err := r.dispatchLocked(sender, env, false)
	r.mu.Unlock()
	runAll(after)
	return err
}

func (r *Room[S, CM, SM]) dispatchLocked(sender protocol.PlayerID, env Envelope[CM], viaQueue bool) ([]func(), error) {
	fail := func(err error) ([]func(), error) {
		if viaQueue {
			if h, ok := r.handles[sender]; ok {
				h.Reject(err)
			}
		}
		return nil, err
	}

	if r.status != StatusActive {
		return fail(ErrRoomNotActive)
	}
	if r.slotOf(sender) < 0 {
		return fail(ErrNotInRoom)
	}
	if env.Seq <= r.lastSeq[sender] {
		return fail(fmt.Errorf("%w: got %d, last was %d", ErrInvalidSequence, env.Seq, r.lastSeq[sender]))
	}
	r.lastSeq[sender] = env.Seq

	if err := r.logic.ValidateMessage(&r.state, sender, env.Msg); err != nil {
		return fail(err)
	}
	r.fanoutLocked(r.logic.HandleMessage(&r.state, sender, env.Msg))

	if r.logic.IsFinished(&r.state) {
		return r.finishLocked(), nil
	}
	return nil, nil
}

// Enqueue guarda uma entrada para a drenagem do próximo tick, mantendo
// a ordem de chegada. A fila é limitada; estourando, a entrada mais
// antiga é descartada.
func (r *Room[S, CM, SM]) Enqueue(sender protocol.PlayerID, env Envelope[CM]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusFinished || r.status == StatusClosed {
		return
	}
	if len(r.queue) >= r.cfg.PendingLimit {
		r.queue = r.queue[1:]
		r.dropped++
		log.Printf("[Room %s] WARN: input queue full, dropped oldest (%d total)", r.id, r.dropped)
	}
	r.queue = append(r.queue, queuedInput[CM]{sender: sender, env: env})
}

// ProcessTick drena a fila de entradas na ordem de chegada e depois
// avança a simulação em um passo. Chamado pelo scheduler; é um no-op
// fora de Active.
func (r *Room[S, CM, SM]) ProcessTick(dt time.Duration) {
	r.mu.Lock()
	if r.status != StatusActive {
		r.mu.Unlock()
		return
	}
	var after []func()

	pending := r.queue
	r.queue = nil
	for i, in := range pending {
		if r.status != StatusActive {
			// o jogo terminou no meio da drenagem: o resto não é
			// descartado em silêncio, cada remetente recebe a rejeição
			for _, rest := range pending[i:] {
				if h, ok := r.handles[rest.sender]; ok {
					h.Reject(ErrRoomNotActive)
				}
			}
			break
		}
		a, err := r.dispatchLocked(in.sender, in.env, true)
		after = append(after, a...)
		if err != nil {
			log.Printf("[Room %s] rejected queued input from %s: %v", r.id, in.sender, err)
		}
	}

	if r.status == StatusActive {
		r.ticks++
		if r.ticker != nil {
			r.fanoutLocked(r.ticker.Tick(&r.state, dt))
			if r.logic.IsFinished(&r.state) {
				after = append(after, r.finishLocked()...)
			}
		}
	}
	r.mu.Unlock()
	runAll(after)
}

// Leave libera o slot do jogador. Em sala ativa a lógica é avisada
// (DepartureLogic) e, conforme a config, o jogo pode encerrar.
func (r *Room[S, CM, SM]) Leave(player protocol.PlayerID) error {
	r.mu.Lock()
	slot := r.slotOf(player)
	if slot < 0 {
		r.mu.Unlock()
		return ErrNotInRoom
	}
	r.slots[slot] = ""
	delete(r.handles, player)
	delete(r.lastSeq, player)

	var after []func()
	if r.hooks.OnLeave != nil {
		hook := r.hooks.OnLeave
		after = append(after, func() { hook(player) })
	}

	if r.status == StatusActive {
		if r.departure != nil {
			r.fanoutLocked(r.departure.OnPlayerLeave(&r.state, player))
		}
		switch {
		case r.cfg.EndOnLeave, r.logic.IsFinished(&r.state), r.occupiedLocked() == 0:
			after = append(after, r.finishLocked()...)
		}
	}
	r.mu.Unlock()
	runAll(after)
	return nil
}

// NotifyReconnect reenvia o snapshot de estado para um jogador que
// voltou dentro da janela de graça e avisa a lógica, se ela quiser
// saber (ReconnectLogic).
func (r *Room[S, CM, SM]) NotifyReconnect(player protocol.PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusActive || r.slotOf(player) < 0 {
		return
	}
	if h, ok := r.handles[player]; ok {
		h.DeliverState(r.id, r.state)
	}
	if r.rejoin != nil {
		r.fanoutLocked(r.rejoin.OnPlayerReconnect(&r.state, player))
	}
}

// Close fecha a sala em qualquer estado. Idempotente; cancela a janela
// de drenagem se houver uma pendente.
func (r *Room[S, CM, SM]) Close() {
	r.mu.Lock()
	if r.status == StatusClosed {
		r.mu.Unlock()
		return
	}
	if r.closeTimer != nil {
		r.closeTimer.Stop()
		r.closeTimer = nil
	}
	r.status = StatusClosed
	r.queue = nil
	players := r.playersLocked()
	for i := range r.slots {
		r.slots[i] = ""
	}
	r.handles = make(map[protocol.PlayerID]Handle[S, SM])

	// OnClosed primeiro: o dono tira a sala do índice antes de liberar
	// os jogadores, para um join concorrente não enxergar a sala morta
	var after []func()
	if r.hooks.OnClosed != nil {
		after = append(after, r.hooks.OnClosed)
	}
	if r.hooks.OnLeave != nil {
		hook := r.hooks.OnLeave
		for _, pid := range players {
			pid := pid
			after = append(after, func() { hook(pid) })
		}
	}
	r.mu.Unlock()
	log.Printf("[Room %s] closed", r.id)
	runAll(after)
}

// finishLocked transita para Finished e agenda o fechamento.
func (r *Room[S, CM, SM]) finishLocked() []func() {
	r.status = StatusFinished
	log.Printf("[Room %s] game finished after %d tick(s)", r.id, r.ticks)

	var after []func()
	if r.hooks.OnFinished != nil {
		after = append(after, r.hooks.OnFinished)
	}
	if r.cfg.DrainWindow > 0 {
		r.closeTimer = time.AfterFunc(r.cfg.DrainWindow, r.Close)
	} else {
		after = append(after, r.Close)
	}
	return after
}

// fanoutLocked expande cada Outbound em entregas por jogador, na ordem
// dos slots.
func (r *Room[S, CM, SM]) fanoutLocked(outs []game.Outbound[SM]) {
	for _, out := range outs {
		if out.To.Kind == protocol.RecipientOne {
			if h, ok := r.handles[out.To.Player]; ok {
				h.DeliverMessage(out.Msg)
			}
			continue
		}
		for _, pid := range r.slots {
			if pid == "" {
				continue
			}
			if out.To.Kind == protocol.RecipientAllExcept && pid == out.To.Player {
				continue
			}
			if h, ok := r.handles[pid]; ok {
				h.DeliverMessage(out.Msg)
			}
		}
	}
}

func (r *Room[S, CM, SM]) slotOf(player protocol.PlayerID) int {
	for i, pid := range r.slots {
		if pid == player {
			return i
		}
	}
	return -1
}

func (r *Room[S, CM, SM]) occupiedLocked() int {
	n := 0
	for _, pid := range r.slots {
		if pid != "" {
			n++
		}
	}
	return n
}

func (r *Room[S, CM, SM]) playersLocked() []protocol.PlayerID {
	players := make([]protocol.PlayerID, 0, len(r.slots))
	for _, pid := range r.slots {
		if pid != "" {
			players = append(players, pid)
		}
	}
	return players
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
