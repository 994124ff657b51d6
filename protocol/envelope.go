package protocol

import "encoding/json"

// Versão do protocolo. Clientes com versão diferente são rejeitados no auth.
const Version = 1

// Tipos de mensagem do sistema. O payload de cada uma é a struct
// correspondente abaixo; mensagens "game" carregam o payload do jogo
// em formato bruto, decodificado só pela lógica.
const (
	TypeAuth         = "auth"
	TypeAuthOK       = "auth_ok"
	TypeReconnect    = "reconnect"
	TypeReconnectOK  = "reconnect_ok"
	TypeJoinRoom     = "join_room"
	TypeJoinOrCreate = "join_or_create"
	TypeRoomJoined   = "room_joined"
	TypeLeaveRoom    = "leave_room"
	TypeListRooms    = "list_rooms"
	TypeRoomList     = "room_list"
	TypeRoomState    = "room_state"
	TypeGame         = "game"
	TypeError        = "error"
)

// Envelope é o envelope padrão para toda a comunicação.
// Seq é por remetente e estritamente crescente; o Payload fica em JSON
// bruto para ser decodificado depois, quando o tipo já é conhecido.
type Envelope struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Auth é a primeira mensagem que todo cliente novo manda.
type Auth struct {
	Version     int    `json:"version"`
	Credentials string `json:"credentials"`
}

// AuthOK confirma a autenticação e entrega o token de reconexão.
type AuthOK struct {
	PlayerID       PlayerID `json:"player_id"`
	ReconnectToken string   `json:"reconnect_token"`
}

// Reconnect retoma uma sessão existente dentro da janela de graça.
type Reconnect struct {
	Token string `json:"token"`
}

// ReconnectOK confirma a retomada da sessão.
type ReconnectOK struct {
	PlayerID PlayerID `json:"player_id"`
	RoomID   RoomID   `json:"room_id,omitempty"`
}

// JoinRoom pede entrada em uma sala específica.
type JoinRoom struct {
	RoomID RoomID `json:"room_id"`
}

// JoinOrCreate pede uma sala compatível com o label, criando se preciso.
type JoinOrCreate struct {
	Label string `json:"label"`
}

// RoomJoined confirma a entrada e informa o slot reservado.
type RoomJoined struct {
	RoomID RoomID `json:"room_id"`
	Slot   int    `json:"slot"`
}

// RoomListEntry resume uma sala em listagens. Só identificadores
// copiáveis saem daqui, nunca handles vivos.
type RoomListEntry struct {
	RoomID     RoomID `json:"room_id"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
}

// RoomList é a resposta de list_rooms.
type RoomList struct {
	Rooms []RoomListEntry `json:"rooms"`
}

// RoomState carrega um snapshot do estado do jogo (bytes do codec).
type RoomState struct {
	RoomID RoomID          `json:"room_id"`
	State  json.RawMessage `json:"state"`
}

// Error é a rejeição explícita devolvida à sessão de origem.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
