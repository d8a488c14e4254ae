package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// encodeUnicastFrame lays out a unicast message as
// [uint16 topic length][topic][payload], so a single stream protocol
// can carry envelopes for any topic without a handshake.
func encodeUnicastFrame(topic string, payload []byte) []byte {
	buf := make([]byte, 2+len(topic)+len(payload))
	binary.BigEndian.PutUint16(buf[:2], uint16(len(topic)))
	copy(buf[2:2+len(topic)], topic)
	copy(buf[2+len(topic):], payload)
	return buf
}

func decodeUnicastFrame(r io.Reader) (topic string, payload []byte, err error) {
	var lenBuf [2]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return "", nil, fmt.Errorf("read topic length: %w", err)
	}
	topicLen := binary.BigEndian.Uint16(lenBuf[:])
	topicBuf := make([]byte, topicLen)
	if _, err = io.ReadFull(r, topicBuf); err != nil {
		return "", nil, fmt.Errorf("read topic: %w", err)
	}
	payload, err = io.ReadAll(r)
	if err != nil {
		return "", nil, fmt.Errorf("read payload: %w", err)
	}
	return string(topicBuf), payload, nil
}
