package session

import (
	"strings"

	"quadra/protocol"
)

// Authenticator valida credenciais e resolve a identidade estável do
// jogador. O framework não impõe esquema nenhum: token JWT, API key,
// consulta a banco — tudo cabe atrás desta interface. Erros esperados
// são ErrInvalidCredentials e ErrTokenExpired.
type Authenticator interface {
	Authenticate(credentials string) (protocol.PlayerID, error)
}

// PlainAuthenticator aceita a credencial como o próprio id do jogador.
// Serve para desenvolvimento e testes; nunca use em produção.
type PlainAuthenticator struct{}

func (PlainAuthenticator) Authenticate(credentials string) (protocol.PlayerID, error) {
	name := strings.TrimSpace(credentials)
	if name == "" {
		return "", ErrInvalidCredentials
	}
	return protocol.PlayerID(name), nil
}
