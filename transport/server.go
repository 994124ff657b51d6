package transport

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restringir origens quando o deploy tiver domínio fixo
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server aceita WebSockets e entrega cada conexão para o Handler.
type Server struct {
	handler Handler
}

// NewServer cria um servidor de transporte.
func NewServer(handler Handler) *Server {
	return &Server{handler: handler}
}

// ServeWS é o http.HandlerFunc que faz o upgrade para WebSocket e
// inicia as bombas de leitura e escrita.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Transport] upgrade failed: %v", err)
		return
	}
	c := newConn(ws, s.handler)
	log.Printf("[Transport] connection from %s", c.RemoteAddr())

	go c.writePump()
	go c.readPump()
}

// Listen sobe um servidor HTTP servindo WebSockets em /ws. Bloqueia até
// o listener cair.
func (s *Server) Listen(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	log.Printf("[Transport] listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
