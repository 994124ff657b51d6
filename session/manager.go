package session

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"quadra/events"
	"quadra/protocol"
)

// Valores padrão do gerenciador.
const (
	DefaultGracePeriod = 30 * time.Second

	// tokenMemory é por quanto tempo um token expirado ainda é
	// reconhecido (para responder "expirou" em vez de "desconhecido").
	tokenMemory = time.Hour
)

// Config do gerenciador de sessões. Zero value usa os defaults.
type Config struct {
	// GracePeriod é a janela de reconexão depois de uma queda.
	GracePeriod time.Duration
	// OutboxLimit limita o buffer de saída por sessão.
	OutboxLimit int
	// OutboxPolicy decide o que fazer quando o outbox enche.
	OutboxPolicy Policy
}

func (c Config) withDefaults() Config {
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.OutboxLimit <= 0 {
		c.OutboxLimit = DefaultOutboxLimit
	}
	return c
}

// Manager é o dono de todas as sessões: autentica, acompanha quedas e
// expira quem não volta dentro da graça. Seguro para uso concorrente.
type Manager struct {
	cfg  Config
	auth Authenticator
	pub  *events.Publisher

	mu        sync.Mutex
	sessions  map[protocol.PlayerID]*Session
	tokens    map[string]protocol.PlayerID
	timers    map[protocol.PlayerID]*time.Timer
	expired   map[string]time.Time
	onExpired func(player protocol.PlayerID)
}

// NewManager cria um gerenciador. pub pode ser nil.
func NewManager(auth Authenticator, cfg Config, pub *events.Publisher) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		auth:     auth,
		pub:      pub,
		sessions: make(map[protocol.PlayerID]*Session),
		tokens:   make(map[string]protocol.PlayerID),
		timers:   make(map[protocol.PlayerID]*time.Timer),
		expired:  make(map[string]time.Time),
	}
}

// SetExpiryHandler registra o callback chamado quando uma sessão expira
// (o servidor usa para tirar o jogador da sala). Roda fora dos locks do
// Manager.
func (m *Manager) SetExpiryHandler(fn func(player protocol.PlayerID)) {
	m.mu.Lock()
	m.onExpired = fn
	m.mu.Unlock()
}

// Authenticate valida as credenciais e ata a conexão à sessão do
// jogador. Jogador já conectado é recusado com ErrAlreadyConnected;
// jogador na janela de graça é retomado (mesma sessão, mesmo token).
func (m *Manager) Authenticate(credentials string, conn Conn) (*Session, error) {
	player, err := m.auth.Authenticate(credentials)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if sess, ok := m.sessions[player]; ok {
		if sess.State() == StateConnected {
			m.mu.Unlock()
			return nil, ErrAlreadyConnected
		}
		m.stopGraceLocked(player)
		m.mu.Unlock()
		sess.bindConn(conn)
		log.Printf("[Session] %s re-authenticated within grace", player)
		return sess, nil
	}

	sess := newSession(player, uuid.NewString(), m.cfg.OutboxLimit, m.cfg.OutboxPolicy)
	m.sessions[player] = sess
	m.tokens[sess.Token()] = player
	m.mu.Unlock()

	sess.bindConn(conn)
	log.Printf("[Session] %s authenticated", player)
	return sess, nil
}

// Disconnect registra a queda da conexão e arma o relógio de graça. A
// sessão (e a vaga na sala) fica reservada até a graça estourar. conn
// identifica a conexão que caiu: se a sessão já estiver atada a outra
// (reconexão ganhou a corrida), a queda antiga é ignorada.
func (m *Manager) Disconnect(player protocol.PlayerID, conn Conn) error {
	m.mu.Lock()
	sess, ok := m.sessions[player]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	if conn != nil && !sess.connIs(conn) {
		m.mu.Unlock()
		return nil
	}
	sess.markDisconnected()
	m.stopGraceLocked(player)
	m.timers[player] = time.AfterFunc(m.cfg.GracePeriod, func() { m.expire(player) })
	m.mu.Unlock()

	log.Printf("[Session] %s disconnected, grace of %v started", player, m.cfg.GracePeriod)
	return nil
}

// Reconnect retoma uma sessão pelo token dentro da janela de graça. O
// outbox acumulado é descarregado na nova conexão, na ordem.
func (m *Manager) Reconnect(token string, conn Conn) (*Session, error) {
	m.mu.Lock()
	m.pruneExpiredLocked()
	player, ok := m.tokens[token]
	if !ok {
		if _, was := m.expired[token]; was {
			m.mu.Unlock()
			return nil, ErrReconnectExpired
		}
		m.mu.Unlock()
		return nil, ErrReconnectUnknown
	}
	sess := m.sessions[player]
	if sess.State() == StateConnected {
		m.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	m.stopGraceLocked(player)
	m.mu.Unlock()

	sess.bindConn(conn)
	log.Printf("[Session] %s reconnected", player)
	return sess, nil
}

// Get devolve a sessão do jogador, se existir.
func (m *Manager) Get(player protocol.PlayerID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[player]
	return sess, ok
}

// Count devolve quantas sessões existem.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown expira todas as sessões e para os relógios de graça.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for player, timer := range m.timers {
		timer.Stop()
		delete(m.timers, player)
	}
	sessions := make([]*Session, 0, len(m.sessions))
	for player, sess := range m.sessions {
		sessions = append(sessions, sess)
		delete(m.sessions, player)
		delete(m.tokens, sess.Token())
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.markExpired()
	}
	log.Printf("[Session] shut down, %d session(s) dropped", len(sessions))
}

// expire é o alvo do relógio de graça.
func (m *Manager) expire(player protocol.PlayerID) {
	m.mu.Lock()
	sess, ok := m.sessions[player]
	if !ok || sess.State() != StateDisconnected {
		// reconectou no intervalo entre o disparo e o lock
		m.mu.Unlock()
		return
	}
	sess.markExpired()
	delete(m.sessions, player)
	delete(m.timers, player)
	delete(m.tokens, sess.Token())
	m.expired[sess.Token()] = time.Now()
	onExpired := m.onExpired
	m.mu.Unlock()

	log.Printf("[Session] %s expired after grace", player)
	m.pub.Publish(events.SubjectSessionExpired, map[string]any{"player_id": player})
	if onExpired != nil {
		onExpired(player)
	}
}

func (m *Manager) stopGraceLocked(player protocol.PlayerID) {
	if timer, ok := m.timers[player]; ok {
		timer.Stop()
		delete(m.timers, player)
	}
}

func (m *Manager) pruneExpiredLocked() {
	cutoff := time.Now().Add(-tokenMemory)
	for token, at := range m.expired {
		if at.Before(cutoff) {
			delete(m.expired, token)
		}
	}
}
