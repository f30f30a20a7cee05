// Package ibm implements the IBM PC floppy format: MFM-encoded
// sectors framed by IDAM (ID address mark) and DAM (data address
// mark) records, each protected by a CRC-16/CCITT checksum.
package ibm

import (
	"github.com/fluxengine/fluxcore/crc16"
	"github.com/fluxengine/fluxcore/record"
	"github.com/fluxengine/fluxcore/sector"
	"github.com/fluxengine/fluxcore/trackreader"
)

const (
	sectorSize = 512

	markerIDAM = 0xfe
	markerDAM1 = 0xf8
	markerDAM2 = 0xfb

	idamLen = 6 // cylinder, head, sector, size, crcHi, crcLo

	// defaultSizeCode is assumed for a DAM encountered before any IDAM
	// has been seen (a torn leading record at the start of a capture).
	defaultSizeCode = 2
)

// dataSizeForCode converts an IDAM size code into its data byte
// count: 128, 256, 512, 1024, ... for codes 0, 1, 2, 3, ...
func dataSizeForCode(code byte) int {
	return 128 << code
}

// Decoder implements trackreader.FormatDecoder for the IBM PC format.
type Decoder struct {
	// SectorsPerTrack is how many sectors this format expects on every
	// track/side; 0 means "no fixed expectation" (ExpectedSectors
	// returns nil).
	SectorsPerTrack int
}

var _ trackreader.FormatDecoder = Decoder{}

func init() {
	trackreader.Register("ibm", Decoder{SectorsPerTrack: 18})
}

// bitReader walks an unpacked MFM half-bit cell stream the way
// mfm.Reader walked a packed byte buffer: readHalfBit consumes one
// raw cell, readBit consumes a clock/data cell pair and returns the
// data half.
type bitReader struct {
	bits []bool
	pos  int
}

func (r *bitReader) readHalfBit() (int, bool) {
	if r.pos >= len(r.bits) {
		return 0, false
	}
	bit := 0
	if r.bits[r.pos] {
		bit = 1
	}
	r.pos++
	return bit, true
}

func (r *bitReader) readBit() (int, bool) {
	if _, ok := r.readHalfBit(); !ok {
		return 0, false
	}
	return r.readHalfBit()
}

func (r *bitReader) readByte() (byte, bool) {
	var result byte
	for i := 0; i < 8; i++ {
		bit, ok := r.readBit()
		if !ok {
			return 0, false
		}
		result = (result << 1) | byte(bit)
	}
	return result, true
}

// scan looks for the next IBM sync mark (history register carrying
// 00-A1-A1-A1 or 00-C2-C2-C2, the canonical MFM missing-clock sync
// pattern), returning the tag byte immediately following it.
func (r *bitReader) scan() (int, int, bool) {
	history := uint32(0x13713713)
	for {
		startPos := r.pos
		bit, ok := r.readBit()
		if !ok {
			return 0, 0, false
		}
		history = (history<<1 | uint32(bit)) & 0xffffffff

		if history == 0xffffffff {
			if _, ok := r.readHalfBit(); !ok {
				return 0, 0, false
			}
			history = 0
			continue
		}
		if history == 0x00a1a1a1 || history == 0x00c2c2c2 {
			tag, ok := r.readByte()
			if !ok {
				return 0, 0, false
			}
			return int(tag), startPos, true
		}
	}
}

// DecodeBitsToRecords scans bits for IDAM and DAM markers and frames
// each into a record, matching the way mfm.Reader's
// ReadSectorIBMPC/CountSectorsIBMPC walked a track looking for the
// same two tags.
func (d Decoder) DecodeBitsToRecords(bits []bool) []record.Record {
	r := &bitReader{bits: bits}
	var records []record.Record

	// lastSizeCode tracks the most recently observed IDAM's size code,
	// so a following DAM is framed with that sector's actual data
	// length rather than an assumed constant.
	lastSizeCode := byte(defaultSizeCode)

	for {
		tag, pos, ok := r.scan()
		if !ok {
			return records
		}

		switch tag {
		case markerIDAM:
			payload := make([]byte, idamLen)
			complete := true
			for i := range payload {
				b, ok := r.readByte()
				if !ok {
					complete = false
					break
				}
				payload[i] = b
			}
			if complete {
				records = append(records, record.New(markerIDAM, payload, pos))
				lastSizeCode = payload[3]
			}

		case markerDAM1, markerDAM2:
			payload := make([]byte, dataSizeForCode(lastSizeCode)+2)
			complete := true
			for i := range payload {
				b, ok := r.readByte()
				if !ok {
					complete = false
					break
				}
				payload[i] = b
			}
			if complete {
				records = append(records, record.New(byte(tag), payload, pos))
			}

		default:
			// Not a marker we track; keep scanning.
		}
	}
}

// ParseRecordsToSectors pairs each IDAM with the DAM record that
// follows it and verifies both checksums, carrying the IDAM's sector
// context (cylinder/head/sector/size) onto the resulting sector.Sector.
func (d Decoder) ParseRecordsToSectors(records []record.Record) []sector.Sector {
	var sectors []sector.Sector

	for i := 0; i < len(records); i++ {
		idam := records[i]
		if idam.Marker != markerIDAM || len(idam.Payload) != idamLen {
			continue
		}

		cylinder, head, num, sizeCode := idam.Payload[0], idam.Payload[1], idam.Payload[2], idam.Payload[3]
		headerCRC := uint16(idam.Payload[4])<<8 | uint16(idam.Payload[5])

		myHeaderCRC := crc16.IBM([]byte{0xa1, 0xa1, 0xa1, markerIDAM, cylinder, head, num, sizeCode})
		if myHeaderCRC != headerCRC {
			continue
		}

		dataSize := dataSizeForCode(sizeCode)

		if i+1 >= len(records) {
			// Header with no following data record at all: the
			// retry loop treats this as an absent sector, not a
			// Missing one; the aggregator is the only place that
			// synthesizes Missing.
			continue
		}
		dam := records[i+1]
		if dam.Marker != markerDAM1 && dam.Marker != markerDAM2 {
			continue
		}
		if len(dam.Payload) != dataSize+2 {
			continue
		}

		data := dam.Payload[:dataSize]
		dataCRC := uint16(dam.Payload[dataSize])<<8 | uint16(dam.Payload[dataSize+1])
		myDataCRC := crc16.IBM(append([]byte{0xa1, 0xa1, 0xa1, dam.Marker}, data...))

		status := sector.OK
		if myDataCRC != dataCRC {
			status = sector.BadChecksum
		}

		sectors = append(sectors, sector.Sector{
			Track:  int(cylinder),
			Side:   int(head),
			Number: int(num),
			Size:   dataSize,
			Data:   append([]byte(nil), data...),
			Status: status,
		})
		i++ // consume the paired DAM record too
	}

	return sectors
}

// ExpectedSectors reports 0..SectorsPerTrack-1 when SectorsPerTrack is
// set, or nil otherwise.
func (d Decoder) ExpectedSectors(track, side int) []int {
	if d.SectorsPerTrack <= 0 {
		return nil
	}
	out := make([]int, d.SectorsPerTrack)
	for i := range out {
		out[i] = i
	}
	return out
}
