// Package brother implements the Brother-220 floppy format: a GCR
// (group code recording) encoding with no separate clock track, where
// every on-disk byte is drawn from a restricted, self-clocking set of
// "group codes" (see codes.go) and sectors are framed by a header
// record (track/side/sector + checksum) followed by a data record
// (payload + checksum).
package brother

import (
	"github.com/fluxengine/fluxcore/record"
	"github.com/fluxengine/fluxcore/sector"
	"github.com/fluxengine/fluxcore/trackreader"
)

const (
	dataSize = 256

	headerTag = 0xaa
	dataTag   = 0x55

	headerPayloadLen = 4 // track, side, sector, checksum
	dataPayloadLen   = dataSize + 1
)

// Decoder implements trackreader.FormatDecoder for the Brother-220
// format.
type Decoder struct {
	SectorsPerTrack int
}

var _ trackreader.FormatDecoder = Decoder{}

func init() {
	trackreader.Register("brother", Decoder{SectorsPerTrack: 10})
}

// bitReader walks a raw (unclocked) bit-cell stream a byte at a time;
// unlike IBM's MFM bitReader there's no half-bit clock cell to skip,
// since GCR's run-length limits are what keeps the stream
// self-clocking.
type bitReader struct {
	bits []bool
	pos  int
}

func (r *bitReader) readBit() (int, bool) {
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

// scanSync looks for the reserved all-ones syncByte pattern, checked
// one bit at a time so it's found regardless of byte alignment.
func (r *bitReader) scanSync() (int, bool) {
	history := byte(0)
	for {
		bit, ok := r.readBit()
		if !ok {
			return 0, false
		}
		history = (history << 1) | byte(bit)
		if history == syncByte {
			return r.pos, true
		}
	}
}

func readN(r *bitReader, n int) ([]byte, bool) {
	out := make([]byte, n)
	for i := range out {
		b, ok := r.readByte()
		if !ok {
			return nil, false
		}
		out[i] = b
	}
	return out, true
}

// DecodeBitsToRecords scans for the sync mark, reads the following
// tag byte, and frames a header or data record accordingly.
func (d Decoder) DecodeBitsToRecords(bits []bool) []record.Record {
	r := &bitReader{bits: bits}
	var records []record.Record

	for {
		pos, ok := r.scanSync()
		if !ok {
			return records
		}
		tag, ok := r.readByte()
		if !ok {
			return records
		}

		switch tag {
		case headerTag:
			payload, ok := readN(r, groupsForPayload(headerPayloadLen))
			if ok {
				records = append(records, record.New(headerTag, payload, pos))
			}
		case dataTag:
			payload, ok := readN(r, groupsForPayload(dataPayloadLen))
			if ok {
				records = append(records, record.New(dataTag, payload, pos))
			}
		}
	}
}

func checksum8(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// ParseRecordsToSectors pairs each header record with the following
// data record, decoding both through the group-code table and
// verifying the additive checksum each carries.
func (d Decoder) ParseRecordsToSectors(records []record.Record) []sector.Sector {
	var sectors []sector.Sector

	for i := 0; i < len(records); i++ {
		header := records[i]
		if header.Marker != headerTag {
			continue
		}
		headerPayload, ok := decodeGroups(header.Payload, headerPayloadLen)
		if !ok {
			continue
		}
		track, side, num, checksum := headerPayload[0], headerPayload[1], headerPayload[2], headerPayload[3]
		if checksum8([]byte{track, side, num}) != checksum {
			continue
		}

		if i+1 >= len(records) || records[i+1].Marker != dataTag {
			// Header with no following data record: the retry loop
			// treats this as an absent sector, not a Missing one;
			// the aggregator is the only place that synthesizes
			// Missing.
			continue
		}

		dataRecord := records[i+1]
		dataPayload, ok := decodeGroups(dataRecord.Payload, dataPayloadLen)
		if !ok {
			sectors = append(sectors, sector.Sector{
				Track: int(track), Side: int(side), Number: int(num),
				Size: dataSize, Status: sector.BadChecksum,
			})
			i++
			continue
		}

		data := dataPayload[:dataSize]
		storedChecksum := dataPayload[dataSize]

		status := sector.OK
		if checksum8(data) != storedChecksum {
			status = sector.BadChecksum
		}

		sectors = append(sectors, sector.Sector{
			Track:  int(track),
			Side:   int(side),
			Number: int(num),
			Size:   dataSize,
			Data:   append([]byte(nil), data...),
			Status: status,
		})
		i++
	}

	return sectors
}

// ExpectedSectors reports 0..SectorsPerTrack-1.
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
