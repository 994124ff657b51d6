package quadra

import (
	"errors"
	"log"

	"quadra/protocol"
	"quadra/room"
	"quadra/session"
	"quadra/transport"
)

// OnMessage roteia cada envelope recebido. Conexão sem sessão só pode
// autenticar ou reconectar; o resto exige sessão atada.
func (s *Server[S, CM, SM]) OnMessage(c *transport.Conn, data []byte) {
	env, err := protocol.DecodeEnvelope(s.codec, data)
	if err != nil {
		s.sendError(c, nil, "bad_envelope", err)
		return
	}
	sess, _ := c.Tag().(*session.Session)
	if sess == nil {
		s.handleUnauthed(c, env)
		return
	}

	switch env.Type {
	case protocol.TypeJoinRoom:
		var p protocol.JoinRoom
		if err := s.codec.Unmarshal(env.Payload, &p); err != nil {
			s.sendError(c, sess, "bad_payload", err)
			return
		}
		slot, err := s.registry.JoinRoom(p.RoomID, sess.PlayerID(), s.handleFor(sess))
		if err != nil {
			s.sendError(c, sess, errorCode(err), err)
			return
		}
		sess.SetRoomID(p.RoomID)
		s.reply(c, sess, protocol.TypeRoomJoined, protocol.RoomJoined{RoomID: p.RoomID, Slot: slot})

	case protocol.TypeJoinOrCreate:
		var p protocol.JoinOrCreate
		if err := s.codec.Unmarshal(env.Payload, &p); err != nil {
			s.sendError(c, sess, "bad_payload", err)
			return
		}
		id, slot, err := s.registry.JoinOrCreate(p.Label, sess.PlayerID(), s.handleFor(sess))
		if err != nil {
			s.sendError(c, sess, errorCode(err), err)
			return
		}
		sess.SetRoomID(id)
		s.reply(c, sess, protocol.TypeRoomJoined, protocol.RoomJoined{RoomID: id, Slot: slot})

	case protocol.TypeLeaveRoom:
		sess.ClearRoomID()
		if err := s.registry.LeaveRoom(sess.PlayerID()); err != nil {
			s.sendError(c, sess, errorCode(err), err)
		}

	case protocol.TypeListRooms:
		infos := s.registry.ListJoinable()
		entries := make([]protocol.RoomListEntry, 0, len(infos))
		for _, info := range infos {
			entries = append(entries, protocol.RoomListEntry{
				RoomID:     info.ID,
				Players:    info.Players,
				MaxPlayers: info.MaxPlayers,
			})
		}
		s.reply(c, sess, protocol.TypeRoomList, protocol.RoomList{Rooms: entries})

	case protocol.TypeGame:
		var msg CM
		if err := s.codec.Unmarshal(env.Payload, &msg); err != nil {
			s.sendError(c, sess, "bad_payload", err)
			return
		}
		rm, ok := s.registry.RoomFor(sess.PlayerID())
		if !ok {
			s.sendError(c, sess, "not_in_room", room.ErrNotInRoom)
			return
		}
		in := room.Envelope[CM]{Seq: env.Seq, Msg: msg}
		if s.sched != nil {
			// modo tick: a fila preserva a ordem e drena antes do passo
			rm.Enqueue(sess.PlayerID(), in)
			return
		}
		if err := rm.Dispatch(sess.PlayerID(), in); err != nil {
			s.sendError(c, sess, errorCode(err), err)
		}

	default:
		s.sendError(c, sess, "unknown_type", errors.New("unknown message type "+env.Type))
	}
}

// handleUnauthed trata o handshake: auth ou reconnect, nada mais.
func (s *Server[S, CM, SM]) handleUnauthed(c *transport.Conn, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeAuth:
		var p protocol.Auth
		if err := s.codec.Unmarshal(env.Payload, &p); err != nil {
			s.sendError(c, nil, "bad_payload", err)
			return
		}
		if p.Version != protocol.Version {
			s.sendError(c, nil, "version_mismatch", errors.New("unsupported protocol version"))
			return
		}
		sess, err := s.sessions.Authenticate(p.Credentials, c)
		if err != nil {
			s.sendError(c, nil, errorCode(err), err)
			return
		}
		c.SetTag(sess)
		s.reply(c, sess, protocol.TypeAuthOK, protocol.AuthOK{
			PlayerID:       sess.PlayerID(),
			ReconnectToken: sess.Token(),
		})
		s.resyncRoom(sess)

	case protocol.TypeReconnect:
		var p protocol.Reconnect
		if err := s.codec.Unmarshal(env.Payload, &p); err != nil {
			s.sendError(c, nil, "bad_payload", err)
			return
		}
		sess, err := s.sessions.Reconnect(p.Token, c)
		if err != nil {
			s.sendError(c, nil, errorCode(err), err)
			return
		}
		c.SetTag(sess)
		var roomID protocol.RoomID
		if rm, ok := s.registry.RoomFor(sess.PlayerID()); ok {
			roomID = rm.ID()
		}
		s.reply(c, sess, protocol.TypeReconnectOK, protocol.ReconnectOK{
			PlayerID: sess.PlayerID(),
			RoomID:   roomID,
		})
		s.resyncRoom(sess)

	default:
		s.sendError(c, nil, "unauthenticated", errors.New("authenticate first"))
	}
}

// OnDisconnect inicia a janela de graça da sessão atada, se houver.
func (s *Server[S, CM, SM]) OnDisconnect(c *transport.Conn) {
	sess, _ := c.Tag().(*session.Session)
	if sess == nil {
		return
	}
	if err := s.sessions.Disconnect(sess.PlayerID(), c); err != nil {
		log.Printf("[Server] disconnect of %s: %v", sess.PlayerID(), err)
	}
}

// resyncRoom reapresenta o jogador à sala dele depois de voltar (estado
// atual + aviso à lógica).
func (s *Server[S, CM, SM]) resyncRoom(sess *session.Session) {
	if rm, ok := s.registry.RoomFor(sess.PlayerID()); ok {
		rm.NotifyReconnect(sess.PlayerID())
	}
}

// handleFor cria o adapter de entrega da sala para uma sessão.
func (s *Server[S, CM, SM]) handleFor(sess *session.Session) room.Handle[S, SM] {
	return &sessionHandle[S, CM, SM]{srv: s, sess: sess}
}

// sessionHandle implementa room.Handle codificando mensagens da lógica
// e empurrando pelo outbox da sessão. Nunca bloqueia e nunca chama a
// sala de volta.
type sessionHandle[S, CM, SM any] struct {
	srv  *Server[S, CM, SM]
	sess *session.Session
}

func (h *sessionHandle[S, CM, SM]) DeliverMessage(msg SM) {
	h.srv.reply(nil, h.sess, protocol.TypeGame, msg)
}

func (h *sessionHandle[S, CM, SM]) DeliverState(roomID protocol.RoomID, state S) {
	raw, err := h.srv.codec.Marshal(state)
	if err != nil {
		log.Printf("[Server] failed to marshal state snapshot: %v", err)
		return
	}
	h.srv.reply(nil, h.sess, protocol.TypeRoomState, protocol.RoomState{RoomID: roomID, State: raw})
}

func (h *sessionHandle[S, CM, SM]) Reject(err error) {
	h.srv.reply(nil, h.sess, protocol.TypeError, protocol.Error{
		Code:    errorCode(err),
		Message: err.Error(),
	})
}

// reply codifica e entrega. Com sessão, a entrega passa pelo outbox;
// sem sessão (handshake), vai direto na conexão.
func (s *Server[S, CM, SM]) reply(c *transport.Conn, sess *session.Session, msgType string, payload any) {
	var seq uint64
	if sess != nil {
		seq = sess.NextSeq()
	}
	data, err := protocol.EncodeEnvelope(s.codec, seq, msgType, payload)
	if err != nil {
		log.Printf("[Server] failed to encode %s: %v", msgType, err)
		return
	}
	if sess != nil {
		if err := sess.Send(data); err != nil {
			log.Printf("[Server] delivery to %s failed: %v", sess.PlayerID(), err)
		}
		return
	}
	if err := c.Send(data); err != nil {
		log.Printf("[Server] delivery failed: %v", err)
	}
}

func (s *Server[S, CM, SM]) sendError(c *transport.Conn, sess *session.Session, code string, err error) {
	s.reply(c, sess, protocol.TypeError, protocol.Error{Code: code, Message: err.Error()})
}

// errorCode traduz os sentinelas para os códigos do fio.
func errorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, session.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, session.ErrAlreadyConnected):
		return "already_connected"
	case errors.Is(err, session.ErrReconnectUnknown):
		return "reconnect_unknown"
	case errors.Is(err, session.ErrReconnectExpired):
		return "reconnect_expired"
	case errors.Is(err, session.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, room.ErrNotFound):
		return "room_not_found"
	case errors.Is(err, room.ErrRoomFull):
		return "room_full"
	case errors.Is(err, room.ErrAlreadyJoined):
		return "already_in_room"
	case errors.Is(err, room.ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, room.ErrRoomNotActive):
		return "room_not_active"
	case errors.Is(err, room.ErrInvalidSequence):
		return "invalid_sequence"
	case errors.Is(err, room.ErrWrongState):
		return "wrong_state"
	case errors.Is(err, room.ErrBadConfig):
		return "bad_config"
	default:
		return "rejected"
	}
}
