// Package tick implementa o scheduler de passo fixo. Uma única
// goroutine acorda na cadência configurada e entrega ticks para todas
// as salas registradas, em ordem de registro. Atraso acumulado é
// recuperado até um teto de catch-up; o excedente é descartado e
// contado como overrun.
package tick

import (
	"log"
	"sync"
	"time"

	"quadra/events"
	"quadra/protocol"
)

// Limites da cadência, em ticks por segundo.
const (
	MinRate = 1
	MaxRate = 128

	// DefaultMaxCatchup limita quantos ticks atrasados rodam em rajada
	// depois de uma pausa longa do processo.
	DefaultMaxCatchup = 4
)

// Tickable é o que o scheduler sabe acionar. *room.Room implementa.
type Tickable interface {
	ProcessTick(dt time.Duration)
}

// Config do scheduler. Zero value vira 32 Hz com catch-up padrão.
type Config struct {
	Rate       int // ticks por segundo, grampeado em [MinRate, MaxRate]
	MaxCatchup int // máximo de ticks atrasados por ciclo; <=0 usa o padrão
}

func clampRate(r int) int {
	if r < MinRate {
		if r == 0 {
			return 32
		}
		return MinRate
	}
	if r > MaxRate {
		return MaxRate
	}
	return r
}

// Scheduler entrega ticks de passo fixo. Seguro para uso concorrente.
type Scheduler struct {
	mu        sync.Mutex
	cycleDone *sync.Cond

	dt         time.Duration
	maxCatchup int
	rooms      map[protocol.RoomID]Tickable
	order      []protocol.RoomID
	running    bool
	inCycle    bool
	overruns   uint64

	stop chan struct{}
	done chan struct{}

	pub *events.Publisher
}

// New cria um scheduler parado. pub pode ser nil.
func New(cfg Config, pub *events.Publisher) *Scheduler {
	catchup := cfg.MaxCatchup
	if catchup <= 0 {
		catchup = DefaultMaxCatchup
	}
	s := &Scheduler{
		dt:         time.Second / time.Duration(clampRate(cfg.Rate)),
		maxCatchup: catchup,
		rooms:      make(map[protocol.RoomID]Tickable),
		pub:        pub,
	}
	s.cycleDone = sync.NewCond(&s.mu)
	return s
}

// Start liga o loop de ticks. Idempotente.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	dt := s.dt
	s.mu.Unlock()

	log.Printf("[Scheduler] started at %v per tick", dt)
	go s.run(stop, done)
}

// Stop desliga o loop. O tick em andamento termina antes do retorno.
// Idempotente.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	log.Printf("[Scheduler] stopped")
}

// SetRate troca a cadência em tempo de execução, grampeada nos limites.
// Vale a partir do próximo ciclo.
func (s *Scheduler) SetRate(rate int) {
	dt := time.Second / time.Duration(clampRate(rate))
	s.mu.Lock()
	s.dt = dt
	s.mu.Unlock()
	log.Printf("[Scheduler] rate set to %v per tick", dt)
}

// Rate devolve a cadência atual em ticks por segundo.
func (s *Scheduler) Rate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(time.Second / s.dt)
}

// Overruns devolve quantos ticks já foram descartados por atraso.
func (s *Scheduler) Overruns() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overruns
}

// Len devolve quantos alvos estão registrados.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Register inscreve um alvo para receber ticks, na posição final da
// ordem. Registrar o mesmo id de novo é um no-op.
func (s *Scheduler) Register(id protocol.RoomID, t Tickable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; ok {
		return
	}
	s.rooms[id] = t
	s.order = append(s.order, id)
}

// Unregister remove um alvo. Quando retorna, nenhum tick futuro será
// entregue para ele; se um ciclo estiver em andamento, espera o ciclo
// terminar. Não pode ser chamado de dentro de um callback de tick.
func (s *Scheduler) Unregister(id protocol.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return
	}
	delete(s.rooms, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	for s.inCycle {
		s.cycleDone.Wait()
	}
}

func (s *Scheduler) run(stop, done chan struct{}) {
	defer close(done)

	s.mu.Lock()
	dt := s.dt
	s.mu.Unlock()

	next := time.Now().Add(dt)
	timer := time.NewTimer(dt)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-timer.C:
			next = s.cycle(now, next)
			timer.Reset(time.Until(next))
		}
	}
}

// cycle roda os ticks vencidos e devolve o instante do próximo.
func (s *Scheduler) cycle(now, next time.Time) time.Time {
	s.mu.Lock()
	dt := s.dt

	// quantos ticks venceram desde o último ciclo
	due := 1
	if behind := now.Sub(next); behind > 0 {
		due += int(behind / dt)
	}
	run := due
	skipped := 0
	if run > s.maxCatchup {
		run = s.maxCatchup
		skipped = due - run
		s.overruns += uint64(skipped)
	}

	targets := make([]Tickable, len(s.order))
	for i, id := range s.order {
		targets[i] = s.rooms[id]
	}
	s.inCycle = true
	s.mu.Unlock()

	for i := 0; i < run; i++ {
		for _, t := range targets {
			t.ProcessTick(dt)
		}
	}

	s.mu.Lock()
	s.inCycle = false
	s.cycleDone.Broadcast()
	s.mu.Unlock()

	if skipped > 0 {
		log.Printf("[Scheduler] WARN: behind schedule, dropped %d tick(s)", skipped)
		s.pub.Publish(events.SubjectSchedulerOverrun, map[string]any{
			"dropped": skipped,
			"at":      now.UTC(),
		})
	}

	// avança o relógio lógico por tudo que venceu (rodado ou
	// descartado); atraso criado durante o ciclo aparece como behind no
	// próximo wake e é contado lá
	return next.Add(time.Duration(due) * dt)
}
