package trackreader

import (
	"fmt"

	"github.com/fluxengine/fluxcore/flux"
	"github.com/fluxengine/fluxcore/sector"
	"github.com/fluxengine/fluxcore/sectorset"
)

// Transport is the subset of a flux device a track reader needs:
// positioning the heads and capturing one revolution of flux. A
// transport implementation (USB capture board, serial-tunneled
// capture dongle, or a capture-store replay) supplies this.
type Transport interface {
	Seek(track int) error
	Read(track, side int) (*flux.Fluxmap, error)
	Recalibrate() error
}

// outcome tags what EVALUATE decided to do next, replacing the
// original driver's "goto retry" with named control-flow states.
type outcome int

const (
	outcomeContinue outcome = iota // an expected sector is still missing or bad
	outcomeDone                    // every expected sector is OK, or none is expected
)

// Reader drives the READ -> DECODE -> MERGE -> EVALUATE ->
// RECALIBRATE/DONE loop for one (track, side) coordinate.
type Reader struct {
	Transport Transport
	Decoder   FormatDecoder
	// ClockDivisor divides the flux.EstimateClock result to arrive at
	// the bit-cell clock DecodeBits should sample at. MFM-family
	// formats pass 2 here (the bit clock is half the flux-transition
	// clock); a format whose bit cells equal flux-transition cells
	// passes 1. The divide always happens at this call site, never
	// inside flux.EstimateClock itself.
	ClockDivisor uint64
	// NominalClockPeriodNs is the drive's configured flux-transition
	// clock period, used only as a fallback when flux.EstimateClock
	// finds nothing to estimate from (a blank or noise-only capture).
	// It never overrides a real histogram estimate.
	NominalClockPeriodNs uint64
	MaxRetries           int
}

// Result reports what happened reading one track.
type Result struct {
	Attempts    int
	HasFailures bool
}

// ReadTrack reads track/side, retrying (with a recalibrate between
// attempts) until every sector FormatDecoder.ExpectedSectors names is
// present with sector.OK status, or MaxRetries is exhausted. Every
// sector observed along the way, good or bad, is merged into set.
func (r *Reader) ReadTrack(track, side int, set *sectorset.SectorSet) (Result, error) {
	var res Result

	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1

		if err := r.Transport.Seek(track); err != nil {
			return res, fmt.Errorf("trackreader: seek track %d: %w", track, err)
		}

		fm, err := r.Transport.Read(track, side)
		if err != nil {
			return res, fmt.Errorf("trackreader: read track %d side %d: %w", track, side, err)
		}

		clockPeriod := flux.EstimateClock(fm)
		if clockPeriod == 0 {
			clockPeriod = r.NominalClockPeriodNs
		}
		if clockPeriod == 0 {
			// No transitions at all, and no configured fallback;
			// nothing to decode this attempt.
			if r.giveUp(attempt) {
				res.HasFailures = true
				return res, nil
			}
			if err := r.Transport.Recalibrate(); err != nil {
				return res, fmt.Errorf("trackreader: recalibrate: %w", err)
			}
			continue
		}
		bitPeriod := clockPeriod / r.divisor()
		bits := flux.DecodeBits(fm, bitPeriod)

		records := r.Decoder.DecodeBitsToRecords(bits)
		sectors := r.Decoder.ParseRecordsToSectors(records)

		for _, sec := range sectors {
			sec.Track, sec.Side = track, side
			set.Insert(sec)
		}

		if r.evaluate(track, side, set) == outcomeDone {
			return res, nil
		}
		if r.giveUp(attempt) {
			// Exhausted retries and still missing/bad sectors: this
			// is a genuine failure, not a clean finish.
			res.HasFailures = true
			return res, nil
		}

		if err := r.Transport.Recalibrate(); err != nil {
			return res, fmt.Errorf("trackreader: recalibrate: %w", err)
		}
	}
}

func (r *Reader) divisor() uint64 {
	if r.ClockDivisor == 0 {
		return 1
	}
	return r.ClockDivisor
}

func (r *Reader) giveUp(attempt int) bool {
	return attempt >= r.MaxRetries
}

// evaluate reports whether every sector the format expects on this
// track/side is present in set with sector.OK status.
func (r *Reader) evaluate(track, side int, set *sectorset.SectorSet) outcome {
	expected := r.Decoder.ExpectedSectors(track, side)
	if expected == nil {
		// No fixed expectation: one successful read is as good as it
		// gets for this format.
		return outcomeDone
	}
	for _, num := range expected {
		sec, ok := set.Get(track, side, num)
		if !ok || sec.Status != sector.OK {
			return outcomeContinue
		}
	}
	return outcomeDone
}
