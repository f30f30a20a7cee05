package amiga

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/fluxengine/fluxcore/flux"
	"github.com/fluxengine/fluxcore/sector"
)

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

func randomData(seed int64, n int) []byte {
	rng := rand.New(rand.NewSource(seed))
	data := make([]byte, n)
	rng.Read(data)
	return data
}

func TestAmigaRoundTrip(t *testing.T) {
	const (
		combinedTrack   = 7 // cylinder 3, side 1
		sectorsPerTrack = 3
		periodNs        = 2000
	)

	sectors := make([][]byte, sectorsPerTrack)
	for i := range sectors {
		sectors[i] = randomData(int64(2000+i), sectorSize)
	}

	writer := NewWriter()
	bits := writer.EncodeTrack(sectors, combinedTrack, sectorsPerTrack)

	fm := bitsToFluxmap(bits, periodNs)
	decodedBits := flux.DecodeBits(fm, periodNs)

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
			t.Fatalf("sector %d missing", i)
		}
		if s.Status != sector.OK {
			t.Fatalf("sector %d status = %v, want OK", i, s.Status)
		}
		if s.Track != combinedTrack/2 || s.Side != combinedTrack%2 {
			t.Fatalf("sector %d: track/side = %d/%d, want %d/%d", i, s.Track, s.Side, combinedTrack/2, combinedTrack%2)
		}
		if !bytes.Equal(s.Data, sectors[i]) {
			t.Fatalf("sector %d data mismatch", i)
		}
	}
}

func TestUnshuffleShuffleRoundTrip(t *testing.T) {
	words := []uint32{0, 0xffffffff, 0x12345678, 0xdeadbeef, 0x00ff00ff}
	for _, w := range words {
		odd, even := shuffle(w)
		got := unshuffle(odd, even)
		if got != w {
			t.Fatalf("shuffle/unshuffle(%#08x) = %#08x", w, got)
		}
	}
}
