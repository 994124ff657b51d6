package protocol

import (
	"encoding/json"
	"fmt"
)

// Codec converte structs em bytes e de volta. O resto do framework não
// se importa com o formato; quem quiser um codec binário implementa a
// interface e injeta no servidor.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec é o codec padrão. JSON é legível e fácil de depurar no
// DevTools do navegador; para produção dá para trocar sem mexer em nada.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// DecodeEnvelope lê um Envelope de bytes crus vindos do transporte.
func DecodeEnvelope(c Codec, data []byte) (Envelope, error) {
	var env Envelope
	if err := c.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// EncodeEnvelope monta e serializa um Envelope pronto para envio.
func EncodeEnvelope(c Codec, seq uint64, msgType string, payload any) ([]byte, error) {
	raw, err := c.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return c.Marshal(Envelope{Seq: seq, Type: msgType, Payload: raw})
}
