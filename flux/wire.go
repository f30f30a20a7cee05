package flux

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeWire writes fm to w in the shared Fluxmap wire format used by
// both transport clients (streaming a freshly captured track) and the
// capture store (persisting one to replay later): a little-endian
// uint64 duration in nanoseconds, a little-endian uint32 byte count,
// then the raw encoded interval-byte sequence itself.
//
// The duration field is redundant with the encoded bytes (a reader
// could recompute it) but lets a consumer size buffers and sanity
// check a capture without decoding it first.
func EncodeWire(w io.Writer, fm *Fluxmap) error {
	var header [12]byte
	binary.LittleEndian.PutUint64(header[0:8], fm.Duration())
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(fm.Bytes())))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("flux: write wire header: %w", err)
	}
	if _, err := w.Write(fm.Bytes()); err != nil {
		return fmt.Errorf("flux: write wire body: %w", err)
	}
	return nil
}

// DecodeWire reads a Fluxmap previously written by EncodeWire.
func DecodeWire(r io.Reader) (*Fluxmap, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("flux: read wire header: %w", err)
	}
	declaredDuration := binary.LittleEndian.Uint64(header[0:8])
	byteCount := binary.LittleEndian.Uint32(header[8:12])

	body := make([]byte, byteCount)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("flux: read wire body: %w", err)
	}

	fm, err := FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("flux: decode wire body: %w", err)
	}
	if fm.Duration() != declaredDuration {
		return nil, fmt.Errorf("flux: wire duration %d ns does not match decoded body %d ns", declaredDuration, fm.Duration())
	}
	return fm, nil
}
