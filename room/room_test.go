package room_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quadra/game"
	"quadra/protocol"
	"quadra/room"
)

// tallyState é um jogo mínimo para os testes: soma números até um
// limite.
type tallyState struct {
	Players []protocol.PlayerID
	Total   int
}

type addMsg struct{ N int }

type tallyEvent struct{ Total int }

type tallyLogic struct{ limit int }

func (tallyLogic) Init(players []protocol.PlayerID) tallyState {
	return tallyState{Players: players}
}

func (tallyLogic) ValidateMessage(s *tallyState, sender protocol.PlayerID, m addMsg) error {
	if m.N < 0 {
		return fmt.Errorf("negative add")
	}
	return nil
}

func (tallyLogic) HandleMessage(s *tallyState, sender protocol.PlayerID, m addMsg) []game.Outbound[tallyEvent] {
	s.Total += m.N
	return []game.Outbound[tallyEvent]{game.Broadcast(tallyEvent{Total: s.Total})}
}

func (l tallyLogic) IsFinished(s *tallyState) bool {
	return l.limit > 0 && s.Total >= l.limit
}

// tickingTally soma 1 por tick, além das jogadas.
type tickingTally struct{ tallyLogic }

func (l tickingTally) Tick(s *tallyState, dt time.Duration) []game.Outbound[tallyEvent] {
	s.Total++
	return []game.Outbound[tallyEvent]{game.Broadcast(tallyEvent{Total: s.Total})}
}

// fakeHandle grava tudo que a sala entrega.
type fakeHandle struct {
	mu      sync.Mutex
	events  []tallyEvent
	states  []tallyState
	rejects []error
}

func (h *fakeHandle) DeliverMessage(msg tallyEvent) {
	h.mu.Lock()
	h.events = append(h.events, msg)
	h.mu.Unlock()
}

func (h *fakeHandle) DeliverState(_ protocol.RoomID, state tallyState) {
	h.mu.Lock()
	h.states = append(h.states, state)
	h.mu.Unlock()
}

func (h *fakeHandle) Reject(err error) {
	h.mu.Lock()
	h.rejects = append(h.rejects, err)
	h.mu.Unlock()
}

func (h *fakeHandle) eventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *fakeHandle) lastEvent() tallyEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[len(h.events)-1]
}

func newTestRoom(t *testing.T, cfg room.Config, logic game.Logic[tallyState, addMsg, tallyEvent], hooks room.Hooks) *room.Room[tallyState, addMsg, tallyEvent] {
	t.Helper()
	rm, err := room.New(protocol.NewRoomID(), cfg, logic, hooks)
	require.NoError(t, err)
	return rm
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := room.New[tallyState, addMsg, tallyEvent](protocol.NewRoomID(), room.Config{MinPlayers: 3, MaxPlayers: 2}, tallyLogic{}, room.Hooks{})
	assert.ErrorIs(t, err, room.ErrBadConfig)
}

func TestJoinActivatesAtMinPlayers(t *testing.T) {
	var activated int
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2}, tallyLogic{}, room.Hooks{
		OnActive: func() { activated++ },
	})

	h1, h2 := &fakeHandle{}, &fakeHandle{}
	slot, err := rm.Join("alice", h1)
	require.NoError(t, err)
	assert.Equal(t, 0, slot)
	assert.Equal(t, room.StatusWaiting, rm.Status())

	slot, err = rm.Join("bob", h2)
	require.NoError(t, err)
	assert.Equal(t, 1, slot)
	assert.Equal(t, room.StatusActive, rm.Status())
	assert.Equal(t, 1, activated)

	// os dois recebem o snapshot inicial, na ordem dos slots
	require.Len(t, h1.states, 1)
	require.Len(t, h2.states, 1)
	assert.Equal(t, []protocol.PlayerID{"alice", "bob"}, h1.states[0].Players)
}

func TestJoinErrors(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 3, MaxPlayers: 3}, tallyLogic{}, room.Hooks{})

	_, err := rm.Join("alice", &fakeHandle{})
	require.NoError(t, err)
	_, err = rm.Join("alice", &fakeHandle{})
	assert.ErrorIs(t, err, room.ErrAlreadyJoined)

	_, err = rm.Join("bob", &fakeHandle{})
	require.NoError(t, err)
	_, err = rm.Join("carol", &fakeHandle{})
	require.NoError(t, err)

	// sala ativou (e lotou) no terceiro
	_, err = rm.Join("dave", &fakeHandle{})
	assert.ErrorIs(t, err, room.ErrRoomFull)
}

func TestJoinFullRoom(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2}, tallyLogic{}, room.Hooks{})
	_, err := rm.Join("alice", &fakeHandle{})
	require.NoError(t, err)
	_, err = rm.Join("bob", &fakeHandle{})
	require.NoError(t, err)

	_, err = rm.Join("carol", &fakeHandle{})
	assert.ErrorIs(t, err, room.ErrRoomFull)
	assert.Equal(t, []protocol.PlayerID{"alice", "bob"}, rm.Players())
}

func TestJoinLastSlotRace(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2}, tallyLogic{}, room.Hooks{})

	const contenders = 10
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = rm.Join(protocol.PlayerID(fmt.Sprintf("p%d", i)), &fakeHandle{})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.True(t, errors.Is(err, room.ErrRoomFull) || errors.Is(err, room.ErrWrongState))
		}
	}
	assert.Equal(t, 2, wins)
	assert.Len(t, rm.Players(), 2)
}

func TestStartExplicit(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 4}, tallyLogic{}, room.Hooks{})

	err := rm.Start()
	assert.ErrorIs(t, err, room.ErrWrongState) // vazia

	_, err = rm.Join("alice", &fakeHandle{})
	require.NoError(t, err)
	err = rm.Start()
	assert.ErrorIs(t, err, room.ErrWrongState) // abaixo do mínimo

	partial := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 4, AllowPartialStart: true}, tallyLogic{}, room.Hooks{})
	_, err = partial.Join("alice", &fakeHandle{})
	require.NoError(t, err)
	require.NoError(t, partial.Start())
	assert.Equal(t, room.StatusActive, partial.Status())
	assert.ErrorIs(t, partial.Start(), room.ErrWrongState) // já ativa
}

func TestDispatchAppliesAndBroadcasts(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2}, tallyLogic{}, room.Hooks{})
	h1, h2 := &fakeHandle{}, &fakeHandle{}
	_, err := rm.Join("alice", h1)
	require.NoError(t, err)
	_, err = rm.Join("bob", h2)
	require.NoError(t, err)

	require.NoError(t, rm.Dispatch("alice", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: 5}}))
	require.NoError(t, rm.Dispatch("bob", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: 3}}))

	assert.Equal(t, 2, h1.eventCount())
	assert.Equal(t, tallyEvent{Total: 8}, h1.lastEvent())
	assert.Equal(t, tallyEvent{Total: 8}, h2.lastEvent())
}

func TestDispatchSequenceDedup(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2}, tallyLogic{}, room.Hooks{})
	h1 := &fakeHandle{}
	_, err := rm.Join("alice", h1)
	require.NoError(t, err)
	_, err = rm.Join("bob", &fakeHandle{})
	require.NoError(t, err)

	require.NoError(t, rm.Dispatch("alice", room.Envelope[addMsg]{Seq: 2, Msg: addMsg{N: 5}}))

	// replay e seq antiga não tocam o estado
	err = rm.Dispatch("alice", room.Envelope[addMsg]{Seq: 2, Msg: addMsg{N: 5}})
	assert.ErrorIs(t, err, room.ErrInvalidSequence)
	err = rm.Dispatch("alice", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: 5}})
	assert.ErrorIs(t, err, room.ErrInvalidSequence)
	assert.Equal(t, tallyEvent{Total: 5}, h1.lastEvent())

	// seq é por remetente: bob começa do zero dele
	require.NoError(t, rm.Dispatch("bob", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: 1}}))
	assert.Equal(t, tallyEvent{Total: 6}, h1.lastEvent())
}

func TestDispatchValidation(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2}, tallyLogic{}, room.Hooks{})
	h1 := &fakeHandle{}
	_, err := rm.Join("alice", h1)
	require.NoError(t, err)
	_, err = rm.Join("bob", &fakeHandle{})
	require.NoError(t, err)

	err = rm.Dispatch("alice", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: -1}})
	assert.EqualError(t, err, "negative add")
	assert.Zero(t, h1.eventCount())

	err = rm.Dispatch("mallory", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: 1}})
	assert.ErrorIs(t, err, room.ErrNotInRoom)
}

func TestDispatchBeforeStart(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2}, tallyLogic{}, room.Hooks{})
	_, err := rm.Join("alice", &fakeHandle{})
	require.NoError(t, err)

	err = rm.Dispatch("alice", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: 1}})
	assert.ErrorIs(t, err, room.ErrRoomNotActive)
}

func TestFinishImmediateClose(t *testing.T) {
	var finished, closed int
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2}, tallyLogic{limit: 10}, room.Hooks{
		OnFinished: func() { finished++ },
		OnClosed:   func() { closed++ },
	})
	_, err := rm.Join("alice", &fakeHandle{})
	require.NoError(t, err)
	_, err = rm.Join("bob", &fakeHandle{})
	require.NoError(t, err)

	require.NoError(t, rm.Dispatch("alice", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: 10}}))

	// DrainWindow zero fecha junto com o fim do jogo
	assert.Equal(t, room.StatusClosed, rm.Status())
	assert.Equal(t, 1, finished)
	assert.Equal(t, 1, closed)
}

func TestFinishDrainWindow(t *testing.T) {
	closedCh := make(chan struct{})
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2, DrainWindow: 30 * time.Millisecond}, tallyLogic{limit: 1}, room.Hooks{
		OnClosed: func() { close(closedCh) },
	})
	_, err := rm.Join("alice", &fakeHandle{})
	require.NoError(t, err)
	_, err = rm.Join("bob", &fakeHandle{})
	require.NoError(t, err)

	require.NoError(t, rm.Dispatch("alice", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: 1}}))
	assert.Equal(t, room.StatusFinished, rm.Status())

	select {
	case <-closedCh:
	case <-time.After(time.Second):
		t.Fatal("room never closed after drain window")
	}
	assert.Equal(t, room.StatusClosed, rm.Status())
}

func TestLeaveFreesSlotWhileWaiting(t *testing.T) {
	var left []protocol.PlayerID
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2}, tallyLogic{}, room.Hooks{
		OnLeave: func(p protocol.PlayerID) { left = append(left, p) },
	})
	_, err := rm.Join("alice", &fakeHandle{})
	require.NoError(t, err)
	require.NoError(t, rm.Leave("alice"))
	assert.Equal(t, []protocol.PlayerID{"alice"}, left)
	assert.ErrorIs(t, rm.Leave("alice"), room.ErrNotInRoom)

	// o slot liberado volta a ser o primeiro livre
	slot, err := rm.Join("carol", &fakeHandle{})
	require.NoError(t, err)
	assert.Equal(t, 0, slot)
}

func TestLeaveActiveEndsGame(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2, EndOnLeave: true, DrainWindow: time.Minute}, tallyLogic{}, room.Hooks{})
	_, err := rm.Join("alice", &fakeHandle{})
	require.NoError(t, err)
	_, err = rm.Join("bob", &fakeHandle{})
	require.NoError(t, err)

	require.NoError(t, rm.Leave("alice"))
	assert.Equal(t, room.StatusFinished, rm.Status())
}

func TestProcessTickDrainsQueueThenTicks(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2}, tickingTally{}, room.Hooks{})
	h1 := &fakeHandle{}
	_, err := rm.Join("alice", h1)
	require.NoError(t, err)
	_, err = rm.Join("bob", &fakeHandle{})
	require.NoError(t, err)

	rm.Enqueue("alice", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: 10}})
	rm.Enqueue("bob", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: 5}})
	rm.ProcessTick(10 * time.Millisecond)

	// 10 + 5 das jogadas, +1 do tick, nesta ordem
	assert.Equal(t, uint64(1), rm.Ticks())
	assert.Equal(t, tallyEvent{Total: 16}, h1.lastEvent())
}

func TestProcessTickRejectsViaHandle(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2}, tickingTally{}, room.Hooks{})
	h1 := &fakeHandle{}
	_, err := rm.Join("alice", h1)
	require.NoError(t, err)
	_, err = rm.Join("bob", &fakeHandle{})
	require.NoError(t, err)

	rm.Enqueue("alice", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: -3}})
	rm.ProcessTick(10 * time.Millisecond)

	require.Len(t, h1.rejects, 1)
	assert.EqualError(t, h1.rejects[0], "negative add")
}

func TestProcessTickRejectsRemainderWhenGameEndsMidDrain(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2, DrainWindow: time.Minute}, tickingTally{tallyLogic{limit: 5}}, room.Hooks{})
	h1, h2 := &fakeHandle{}, &fakeHandle{}
	_, err := rm.Join("alice", h1)
	require.NoError(t, err)
	_, err = rm.Join("bob", h2)
	require.NoError(t, err)

	rm.Enqueue("alice", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: 5}}) // encerra o jogo
	rm.Enqueue("bob", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: 1}})
	rm.Enqueue("bob", room.Envelope[addMsg]{Seq: 2, Msg: addMsg{N: 1}})
	rm.ProcessTick(10 * time.Millisecond)

	// as entradas atrás do fim de jogo voltam rejeitadas, não somem
	assert.Equal(t, room.StatusFinished, rm.Status())
	require.Len(t, h2.rejects, 2)
	assert.ErrorIs(t, h2.rejects[0], room.ErrRoomNotActive)
	assert.ErrorIs(t, h2.rejects[1], room.ErrRoomNotActive)
	assert.Empty(t, h1.rejects)
}

func TestProcessTickNoopOutsideActive(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2}, tickingTally{}, room.Hooks{})
	rm.ProcessTick(10 * time.Millisecond)
	assert.Zero(t, rm.Ticks())
	assert.Equal(t, room.StatusWaiting, rm.Status())
}

func TestEnqueueDropsOldestOnOverflow(t *testing.T) {
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2, PendingLimit: 2}, tickingTally{}, room.Hooks{})
	h1 := &fakeHandle{}
	_, err := rm.Join("alice", h1)
	require.NoError(t, err)
	_, err = rm.Join("bob", &fakeHandle{})
	require.NoError(t, err)

	rm.Enqueue("alice", room.Envelope[addMsg]{Seq: 1, Msg: addMsg{N: 100}}) // descartada
	rm.Enqueue("alice", room.Envelope[addMsg]{Seq: 2, Msg: addMsg{N: 10}})
	rm.Enqueue("alice", room.Envelope[addMsg]{Seq: 3, Msg: addMsg{N: 1}})
	rm.ProcessTick(10 * time.Millisecond)

	// 10 + 1 + tick
	assert.Equal(t, tallyEvent{Total: 12}, h1.lastEvent())
}

func TestCloseIdempotent(t *testing.T) {
	var closed int
	rm := newTestRoom(t, room.Config{MinPlayers: 2, MaxPlayers: 2}, tallyLogic{}, room.Hooks{
		OnClosed: func() { closed++ },
	})
	rm.Close()
	rm.Close()
	assert.Equal(t, room.StatusClosed, rm.Status())
	assert.Equal(t, 1, closed)

	_, err := rm.Join("alice", &fakeHandle{})
	assert.ErrorIs(t, err, room.ErrWrongState)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "waiting", room.StatusWaiting.String())
	assert.Equal(t, "active", room.StatusActive.String())
	assert.Equal(t, "finished", room.StatusFinished.String())
	assert.Equal(t, "closed", room.StatusClosed.String())
}
