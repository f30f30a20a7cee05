package brother

// The Brother-220 format (like other GCR floppy encodings) has no
// separate clock track: instead, every byte written to the medium is
// drawn from a restricted set of "group codes" whose bit pattern is
// self-clocking (no long run of zeros so the read clock never drifts)
// and which can never collide with the sync mark the decoder scans
// for. This file builds that restricted set.
//
// Retrieved reference material for Brother's driver loop
// (fe-readbrother.cc) never included the vendor's actual 5-bit-value
// to 8-bit-code mapping, so the table below is built programmatically
// from the run-length constraints a GCR code must satisfy, rather than
// transcribed from the real hardware. A genuine Brother-220
// implementation would substitute the vendor's documented table here;
// the framing and checksum logic around it do not depend on which
// table is used.

// maxZeroRun and maxOneRun bound how many consecutive 0 or 1 bits a
// valid code word may contain. Keeping run-of-ones short enough means
// even two adjacent code words back to back can never chain into the
// all-ones sync pattern scanSync looks for.
const (
	maxZeroRun = 2
	maxOneRun  = 3
)

// syncByte is never produced by the encoder (see isValidGroupCode)
// and is unmistakable even when read one bit at a time, making it the
// marker both header and data records start with.
const syncByte = 0xff

func isValidGroupCode(b byte) bool {
	if b&0x80 == 0 {
		return false // every code starts with a 1 bit
	}
	zeroRun, oneRun := 0, 0
	hasZero := false
	for i := 7; i >= 0; i-- {
		if (b>>uint(i))&1 == 0 {
			zeroRun++
			oneRun = 0
			hasZero = true
			if zeroRun > maxZeroRun {
				return false
			}
		} else {
			oneRun++
			zeroRun = 0
			if oneRun > maxOneRun {
				return false
			}
		}
	}
	return hasZero // excludes 0xff itself
}

// groupCodes maps a 5-bit value (0-31) to its 8-bit group code.
var groupCodes [32]byte

// groupValues is the inverse of groupCodes, keyed by the 8-bit code.
var groupValues = map[byte]byte{}

func init() {
	next := 0
	for b := 0; b < 256 && next < 32; b++ {
		if isValidGroupCode(byte(b)) {
			groupCodes[next] = byte(b)
			groupValues[byte(b)] = byte(next)
			next++
		}
	}
	if next != 32 {
		panic("brother: fewer than 32 valid group codes found")
	}
}
