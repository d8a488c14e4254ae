package consensus

import (
	"encoding/json"

	"github.com/cerera/internal/cerera/message"
)

// JSONCodec is the default Codec: block/tx/config persistence elsewhere
// in the repo is plain JSON, kept here for the consensus envelope too.
type JSONCodec struct{}

func (JSONCodec) Encode(env *message.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (JSONCodec) Decode(b []byte) (*message.Envelope, error) {
	var env message.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
