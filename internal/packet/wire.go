// Copyright 2025 James Ross
package packet

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// wireForm mirrors Packet field-for-field; it exists separately so gob's
// encoding is stable regardless of how Packet's exported shape evolves, and
// so Priority round-trips as a plain integer.
type wireForm struct {
	ID                uint64
	SourceAgent       uint32
	DestinationServer uint32
	PayloadSize       uint32
	Priority          int32
	CreatedAtMicros   int64
	Data              []byte
}

// Marshal serializes a Packet to a length-prefixed binary frame: a 4-byte
// big-endian length header followed by a gob-encoded body. The length
// prefix lets a TCP reader know exactly how many bytes to buffer before
// decoding, standing in for the "length-implicit" framing of the original
// wire format while staying idiomatic Go.
func Marshal(p Packet) ([]byte, error) {
	var body bytes.Buffer
	wf := wireForm{
		ID:                uint64(p.ID),
		SourceAgent:       p.SourceAgent,
		DestinationServer: p.DestinationServer,
		PayloadSize:       p.PayloadSize,
		Priority:          int32(p.Priority),
		CreatedAtMicros:   p.CreatedAtMicros,
		Data:              p.Data,
	}
	if err := gob.NewEncoder(&body).Encode(wf); err != nil {
		return nil, fmt.Errorf("marshal packet: %w", err)
	}
	frame := make([]byte, 4+body.Len())
	binary.BigEndian.PutUint32(frame[:4], uint32(body.Len()))
	copy(frame[4:], body.Bytes())
	return frame, nil
}

// WriteTo writes a Marshal-ed frame to w.
func WriteTo(w io.Writer, p Packet) error {
	frame, err := Marshal(p)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadFrom reads one length-prefixed frame from r and decodes it into a
// Packet.
func ReadFrom(r io.Reader) (Packet, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Packet{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Packet{}, err
	}
	var wf wireForm
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&wf); err != nil {
		return Packet{}, fmt.Errorf("unmarshal packet: %w", err)
	}
	return Packet{
		ID:                ID(wf.ID),
		SourceAgent:       wf.SourceAgent,
		DestinationServer: wf.DestinationServer,
		PayloadSize:       wf.PayloadSize,
		Priority:          Priority(wf.Priority),
		CreatedAtMicros:   wf.CreatedAtMicros,
		Data:              wf.Data,
	}, nil
}
