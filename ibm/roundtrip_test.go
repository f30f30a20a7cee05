package ibm

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/fluxengine/fluxcore/flux"
	"github.com/fluxengine/fluxcore/sector"
)

// bitsToFluxmap turns a half-bit cell stream into a Fluxmap the way a
// real MFM write head would: one flux transition per '1' cell, with
// however many cell periods of silence between transitions folded
// into a single interval. Each transition is placed at its cell's
// absolute time rounded to the nearest tick, so tick rounding never
// accumulates across the track.
func bitsToFluxmap(bits []bool, periodNs uint64) *flux.Fluxmap {
	fm := flux.New()
	var elapsedNs, emittedTicks uint64
	for _, bit := range bits {
		elapsedNs += periodNs
		if bit {
			ticks := (elapsedNs + flux.TickNs/2) / flux.TickNs
			fm.AppendInterval(uint32(ticks - emittedTicks))
			emittedTicks = ticks
		}
	}
	if total := (elapsedNs + flux.TickNs/2) / flux.TickNs; total > emittedTicks {
		fm.AppendInterval(uint32(total - emittedTicks))
	}
	return fm
}

func randomSectorData(seed int64, n int) []byte {
	rng := rand.New(rand.NewSource(seed))
	data := make([]byte, n)
	rng.Read(data)
	return data
}

func TestIBMRoundTrip(t *testing.T) {
	const (
		cylinder        = 5
		head            = 1
		sectorsPerTrack = 9
		bitPeriodNs     = 2000 // MFM half-bit cell period
	)

	sectors := make([][]byte, sectorsPerTrack)
	for i := range sectors {
		sectors[i] = randomSectorData(int64(1000+i), sectorSize)
	}

	writer := NewWriter(0)
	bits := writer.EncodeTrack(sectors, cylinder, head, sectorsPerTrack)

	fm := bitsToFluxmap(bits, bitPeriodNs)
	decodedBits := flux.DecodeBits(fm, bitPeriodNs)

	decoder := Decoder{SectorsPerTrack: sectorsPerTrack}
	records := decoder.DecodeBitsToRecords(decodedBits)
	got := decoder.ParseRecordsToSectors(records)

	if len(got) != sectorsPerTrack {
		t.Fatalf("decoded %d sectors, want %d", len(got), sectorsPerTrack)
	}

	bySector := make(map[int]sector.Sector)
	for _, s := range got {
		bySector[s.Number] = s
	}

	for i := 0; i < sectorsPerTrack; i++ {
		s, ok := bySector[i]
		if !ok {
			t.Fatalf("sector %d missing from decode", i)
		}
		if s.Status != sector.OK {
			t.Fatalf("sector %d status = %v, want OK", i, s.Status)
		}
		if s.Track != cylinder || s.Side != head {
			t.Fatalf("sector %d: track/side = %d/%d, want %d/%d", i, s.Track, s.Side, cylinder, head)
		}
		if !bytes.Equal(s.Data, sectors[i]) {
			t.Fatalf("sector %d data mismatch", i)
		}
	}
}

func TestIBMDetectsBadChecksum(t *testing.T) {
	const bitPeriodNs = 2000
	sectors := [][]byte{randomSectorData(42, sectorSize)}

	writer := NewWriter(0)
	bits := writer.EncodeTrack(sectors, 0, 0, 1)

	// Flip a data bit inside the first sector's payload region to
	// corrupt it without disturbing the sync markers. The payload
	// starts after gap, IDAM record, gap, sync and DAM mark bytes,
	// 16 half-bit cells per byte; the flip is the data cell of a bit
	// in payload byte 100.
	corrupted := append([]bool(nil), bits...)
	const payloadStart = (130 + 15 + 7 + 22 + 15 + 1) * 16
	flip := payloadStart + 16*100 + 1
	corrupted[flip] = !corrupted[flip]

	fm := bitsToFluxmap(corrupted, bitPeriodNs)
	decodedBits := flux.DecodeBits(fm, bitPeriodNs)

	decoder := Decoder{SectorsPerTrack: 1}
	records := decoder.DecodeBitsToRecords(decodedBits)
	got := decoder.ParseRecordsToSectors(records)

	if len(got) != 1 {
		t.Fatalf("decoded %d sectors, want 1", len(got))
	}
	if got[0].Status != sector.BadChecksum {
		t.Fatalf("status = %v, want BadChecksum", got[0].Status)
	}
}

func TestExpectedSectors(t *testing.T) {
	d := Decoder{SectorsPerTrack: 18}
	got := d.ExpectedSectors(0, 0)
	if len(got) != 18 || got[0] != 0 || got[17] != 17 {
		t.Fatalf("ExpectedSectors = %v", got)
	}

	none := Decoder{}
	if got := none.ExpectedSectors(0, 0); got != nil {
		t.Fatalf("ExpectedSectors with SectorsPerTrack=0 = %v, want nil", got)
	}
}
