// Package flux implements the Fluxmap: a compact, append-only record
// of the time between consecutive magnetic flux transitions read off
// a floppy disk, along with the deterministic operations built on top
// of it (clock period estimation, bit-cell decode, write precompensation,
// and the on-disk/on-wire encoding used to move a captured track between
// a transport client and the capture store).
package flux

import "fmt"

// TickNs is the duration, in nanoseconds, of one flux sample tick:
// the module's fixed internal normalization unit, nominally 83ns
// (83.3ns rounded to the nearest whole nanosecond, since every tick
// computation in this package is integer arithmetic). Callers that
// capture at a different rate (any real capture board's own sample
// clock) rescale to this resolution before appending intervals; see
// scaleTicks in the transport packages.
const TickNs = 83

// Fluxmap holds a sequence of flux transition intervals for a single
// disk revolution (or partial revolution) on one track/side.
//
// Intervals are stored both as an append-only encoded byte sequence
// (the wire/storage representation, using a zero byte as a
// continuation marker for intervals too long to fit one byte) and as
// a decoded tick-count slice used by the clock estimator and bit
// decoder. Every interval is strictly positive; appending a
// zero-length interval is a programming error and panics, matching
// the class invariant a capture driver must already guarantee.
type Fluxmap struct {
	encoded    []byte
	intervals  []uint32
	totalTicks uint64
}

// New returns an empty Fluxmap.
func New() *Fluxmap {
	return &Fluxmap{}
}

// AppendInterval appends one flux transition interval, given in
// ticks. Panics if ticks is zero: every transition takes a non-zero
// amount of time to occur.
func (f *Fluxmap) AppendInterval(ticks uint32) {
	if ticks == 0 {
		panic("flux: zero-length interval")
	}
	remaining := ticks
	for remaining > 255 {
		f.encoded = append(f.encoded, 0)
		remaining -= 255
	}
	f.encoded = append(f.encoded, byte(remaining))
	f.intervals = append(f.intervals, ticks)
	f.totalTicks += uint64(ticks)
}

// AppendIntervals appends each interval in order.
func (f *Fluxmap) AppendIntervals(ticks []uint32) {
	for _, t := range ticks {
		f.AppendInterval(t)
	}
}

// Intervals returns the decoded tick counts, one per flux transition,
// in capture order. The returned slice must not be modified.
func (f *Fluxmap) Intervals() []uint32 {
	return f.intervals
}

// Ticks returns the total duration of the fluxmap in ticks.
func (f *Fluxmap) Ticks() uint64 {
	return f.totalTicks
}

// Duration returns the total duration of the fluxmap in nanoseconds.
func (f *Fluxmap) Duration() uint64 {
	return f.totalTicks * TickNs
}

// Bytes returns the encoded interval-byte sequence, as it would be
// written to the wire format or the capture store.
func (f *Fluxmap) Bytes() []byte {
	return f.encoded
}

// Len returns the number of decoded transitions.
func (f *Fluxmap) Len() int {
	return len(f.intervals)
}

// decodeBytes rebuilds the interval/totalTicks fields from an encoded
// byte sequence, used by DecodeWire and by the capture store when it
// replays a previously-written fluxmap.
func decodeBytes(encoded []byte) (intervals []uint32, totalTicks uint64, err error) {
	var acc uint32
	sawByte := false
	for _, b := range encoded {
		sawByte = true
		if b == 0 {
			acc += 255
			continue
		}
		acc += uint32(b)
		intervals = append(intervals, acc)
		totalTicks += uint64(acc)
		acc = 0
	}
	if sawByte && acc != 0 {
		return nil, 0, fmt.Errorf("flux: encoded byte sequence ends mid-interval")
	}
	return intervals, totalTicks, nil
}

// FromBytes reconstructs a Fluxmap from a previously encoded interval
// byte sequence (as produced by Bytes).
func FromBytes(encoded []byte) (*Fluxmap, error) {
	intervals, totalTicks, err := decodeBytes(encoded)
	if err != nil {
		return nil, err
	}
	out := &Fluxmap{
		encoded:    append([]byte(nil), encoded...),
		intervals:  intervals,
		totalTicks: totalTicks,
	}
	return out, nil
}
