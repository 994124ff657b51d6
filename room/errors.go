package room

import "errors"

// Erros sentinela do ciclo de vida de salas. Handlers comparam com
// errors.Is para decidir o código de erro devolvido ao cliente.
var (
	ErrBadConfig       = errors.New("invalid room config")
	ErrNotFound        = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrWrongState      = errors.New("room is not in a state that allows this")
	ErrAlreadyJoined   = errors.New("player already occupies a room")
	ErrNotInRoom       = errors.New("player is not in this room")
	ErrRoomNotActive   = errors.New("room is not active")
	ErrInvalidSequence = errors.New("stale or duplicate message sequence")
)
