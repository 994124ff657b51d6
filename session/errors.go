package session

import "errors"

// Erros sentinela da camada de sessão.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("auth token expired")
	ErrAlreadyConnected   = errors.New("player already has a live connection")
	ErrReconnectUnknown   = errors.New("unknown reconnect token")
	ErrReconnectExpired   = errors.New("reconnect window expired")
	ErrSessionNotFound    = errors.New("session not found")
	ErrOutboxOverflow     = errors.New("session outbox overflow")
)
