// Package transport é a borda de rede: aceita WebSockets, bombeia bytes
// para dentro e para fora e entrega tudo cru para o Handler. Nenhuma
// regra de jogo ou de sessão mora aqui.
package transport

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Tempo máximo para escrever uma mensagem no socket.
	writeWait = 10 * time.Second

	// Tempo máximo sem pong antes de considerar a conexão morta.
	pongWait = 60 * time.Second

	// Cadência de pings. Precisa ser menor que pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Tamanho máximo de mensagem aceita do cliente.
	maxMessageSize = 8192

	// Capacidade do buffer de envio por conexão.
	sendBufferSize = 256
)

// ErrSendBufferFull indica cliente lento: o buffer de envio saturou.
var ErrSendBufferFull = errors.New("connection send buffer is full")

// Handler recebe os eventos crus de uma conexão. OnMessage e
// OnDisconnect rodam na goroutine de leitura da conexão, um por vez.
type Handler interface {
	OnMessage(c *Conn, data []byte)
	OnDisconnect(c *Conn)
}

// Conn embrulha um WebSocket com as duas goroutines de praxe: readPump
// entrega mensagens ao Handler, writePump serializa as escritas e mantém
// o ping/pong.
type Conn struct {
	ws      *websocket.Conn
	handler Handler

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}

	mu  sync.Mutex
	tag any // espaço para o servidor pendurar a sessão
}

func newConn(ws *websocket.Conn, handler Handler) *Conn {
	return &Conn{
		ws:      ws,
		handler: handler,
		send:    make(chan []byte, sendBufferSize),
		closed:  make(chan struct{}),
	}
}

// Send enfileira bytes para escrita. Não bloqueia: devolve
// ErrSendBufferFull quando o cliente não dá vazão e erro de conexão
// fechada depois do Close.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection is closed")
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close derruba a conexão. Idempotente; o OnDisconnect dispara via
// readPump quando a leitura falhar.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

// SetTag pendura um valor arbitrário na conexão (o servidor guarda a
// sessão autenticada aqui).
func (c *Conn) SetTag(v any) {
	c.mu.Lock()
	c.tag = v
	c.mu.Unlock()
}

// Tag devolve o valor pendurado por SetTag.
func (c *Conn) Tag() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tag
}

// RemoteAddr devolve o endereço remoto, para log.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

func (c *Conn) readPump() {
	defer func() {
		c.handler.OnDisconnect(c)
		c.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Transport] read error from %s: %v", c.RemoteAddr(), err)
			}
			return
		}
		c.handler.OnMessage(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
