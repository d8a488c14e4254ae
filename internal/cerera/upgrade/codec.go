package upgrade

import "encoding/json"

// JSONCodec is the default wire encoding, matching consensus.JSONCodec's
// choice of plain JSON for gossiped structures.
type JSONCodec struct{}

func (JSONCodec) Encode(p *Proposal) ([]byte, error) {
	return json.Marshal(p)
}

func (JSONCodec) Decode(b []byte) (*Proposal, error) {
	var p Proposal
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
