package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"quadra/session"
)

func TestOutboxFIFO(t *testing.T) {
	o := session.NewOutbox(4, session.DropOldest)
	assert.Zero(t, o.Len())
	assert.Nil(t, o.Peek())

	o.Push([]byte("a"))
	o.Push([]byte("b"))
	assert.Equal(t, 2, o.Len())
	assert.Equal(t, []byte("a"), o.Peek())

	o.Pop()
	assert.Equal(t, []byte("b"), o.Peek())
	o.Pop()
	assert.Zero(t, o.Len())
	o.Pop() // Pop em vazio é inofensivo
}

func TestOutboxDropOldest(t *testing.T) {
	o := session.NewOutbox(2, session.DropOldest)
	assert.False(t, o.Push([]byte("a")))
	assert.False(t, o.Push([]byte("b")))
	assert.True(t, o.Push([]byte("c")))

	assert.Equal(t, 2, o.Len())
	assert.Equal(t, []byte("b"), o.Peek())
	assert.Equal(t, uint64(1), o.Dropped())
}

func TestOutboxDefaults(t *testing.T) {
	o := session.NewOutbox(0, session.ForceDisconnect)
	for i := 0; i < session.DefaultOutboxLimit; i++ {
		assert.False(t, o.Push([]byte{byte(i)}))
	}
	assert.True(t, o.Push([]byte("overflow")))
	assert.Equal(t, session.ForceDisconnect, o.Policy())
}
