// Package record defines the Record type a format decoder's bit-scan
// stage produces: one raw framed chunk of a track's bitstream (a
// sector header, a data block, an index mark) before it has been
// interpreted into sector content.
package record

// Record is one marker-delimited chunk of decoded bit-cell data
// found while scanning a track's bitstream. Position is the bit-cell
// offset (within the track's decoded bit stream) where the record's
// marker began, used to tell a trailing data record from a spurious
// match and to report where a bad record was found.
type Record struct {
	Marker   byte
	Payload  []byte
	Position int
}

// New returns a Record for the given marker, payload and bit
// position.
func New(marker byte, payload []byte, position int) Record {
	return Record{Marker: marker, Payload: payload, Position: position}
}
