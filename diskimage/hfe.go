package diskimage

import (
	"encoding/binary"
	"fmt"
	"os"
)

// HFE v1 constants, following the HxC Floppy Emulator raw bitstream
// image format: a fixed 512-byte header block, a 512-byte track
// offset table, then one block-aligned region per track holding both
// sides' bitstreams interleaved 256 bytes at a time.
const (
	hfeV1Signature = "HXCPICFE"
	hfeBlockSize   = 512

	encISOIBMMFM = 0
	encAmigaMFM  = 1

	ifmGenericShugartDD = 7
)

// Track holds one cylinder's bit-cell stream for each side, MSB-first
// (the same ordering flux.DecodeBits and the ibm/amiga writers use).
type Track struct {
	Side0 []bool
	Side1 []bool
}

// byteBitsInverter reverses bit order within a byte: HFE hardware
// reads bitstreams LSB-first, the opposite of how this module's
// writers build them MSB-first.
var byteBitsInverter [256]byte

func init() {
	for i := 0; i < 256; i++ {
		var inverted byte
		for j := 0; j < 8; j++ {
			if i&(1<<uint(j)) != 0 {
				inverted |= 1 << uint(7-j)
			}
		}
		byteBitsInverter[i] = inverted
	}
}

func packBitsLSBFirst(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	for i, b := range out {
		out[i] = byteBitsInverter[b]
	}
	return out
}

func unpackBitsLSBFirst(data []byte) []bool {
	bits := make([]bool, 0, len(data)*8)
	for _, b := range data {
		b = byteBitsInverter[b]
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>uint(i))&1 == 1)
		}
	}
	return bits
}

// WriteHFE writes an HFE v1 image: tracks[i] holds cylinder i's two
// sides. encoding should be encISOIBMMFM or encAmigaMFM.
func WriteHFE(path string, tracks []Track, bitRateKbps, rpm uint16, encoding byte) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("diskimage: create %s: %w", path, err)
	}
	defer file.Close()

	numSides := byte(1)
	for _, t := range tracks {
		if len(t.Side1) > 0 {
			numSides = 2
			break
		}
	}

	header := make([]byte, hfeBlockSize)
	for i := range header {
		header[i] = 0xff
	}
	copy(header[0:8], hfeV1Signature)
	header[8] = 0 // format revision
	header[9] = byte(len(tracks))
	header[10] = numSides
	header[11] = encoding
	binary.LittleEndian.PutUint16(header[12:14], bitRateKbps)
	binary.LittleEndian.PutUint16(header[14:16], rpm)
	header[16] = ifmGenericShugartDD
	header[17] = 0 // not write protected
	binary.LittleEndian.PutUint16(header[18:20], 1)
	header[20] = 1 // write allowed
	header[21] = 0 // double step
	header[22] = encoding
	header[23] = encoding
	header[24] = encoding
	header[25] = encoding
	if _, err := file.Write(header); err != nil {
		return fmt.Errorf("diskimage: write header: %w", err)
	}

	packedTracks := make([][2][]byte, len(tracks))
	for i, t := range tracks {
		packedTracks[i][0] = packBitsLSBFirst(t.Side0)
		if numSides > 1 {
			packedTracks[i][1] = packBitsLSBFirst(t.Side1)
		} else {
			packedTracks[i][1] = packedTracks[i][0]
		}
	}

	type offsetLen struct {
		offset uint16
		length uint16
	}
	offsets := make([]offsetLen, len(tracks))
	pos := uint16(2) // blocks 0,1 are header + track list
	for i, pt := range packedTracks {
		maxLen := len(pt[0])
		if len(pt[1]) > maxLen {
			maxLen = len(pt[1])
		}
		byteLen := maxLen * 2
		blockLen := byteLen
		if blockLen%hfeBlockSize != 0 {
			blockLen = (blockLen/hfeBlockSize + 1) * hfeBlockSize
		}
		offsets[i] = offsetLen{offset: pos, length: uint16(blockLen)}
		pos += uint16(blockLen / hfeBlockSize)
	}

	trackList := make([]byte, hfeBlockSize)
	for i := range trackList {
		trackList[i] = 0xff
	}
	for i, o := range offsets {
		off := i * 4
		binary.LittleEndian.PutUint16(trackList[off:off+2], o.offset)
		binary.LittleEndian.PutUint16(trackList[off+2:off+4], o.length)
	}
	if _, err := file.Write(trackList); err != nil {
		return fmt.Errorf("diskimage: write track list: %w", err)
	}

	for i, pt := range packedTracks {
		blockLen := int(offsets[i].length)
		side0Buf := make([]byte, blockLen/2)
		side1Buf := make([]byte, blockLen/2)
		copy(side0Buf, pt[0])
		copy(side1Buf, pt[1])

		trackBuf := make([]byte, blockLen)
		for k := 0; k < blockLen/hfeBlockSize; k++ {
			for j := 0; j < 256; j++ {
				trackBuf[k*hfeBlockSize+j] = side0Buf[k*256+j]
				trackBuf[k*hfeBlockSize+j+256] = side1Buf[k*256+j]
			}
		}
		if _, err := file.Write(trackBuf); err != nil {
			return fmt.Errorf("diskimage: write track %d: %w", i, err)
		}
	}

	return nil
}

// ReadHFE reads back an HFE v1 image written by WriteHFE.
func ReadHFE(path string) ([]Track, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("diskimage: open %s: %w", path, err)
	}
	defer file.Close()

	header := make([]byte, hfeBlockSize)
	if _, err := fullRead(file, header); err != nil {
		return nil, fmt.Errorf("diskimage: read header: %w", err)
	}
	sig := string(header[0:8])
	if sig != hfeV1Signature {
		return nil, fmt.Errorf("diskimage: unsupported HFE signature %q", sig)
	}
	numTracks := int(header[9])
	numSides := header[10]

	trackList := make([]byte, hfeBlockSize)
	if _, err := fullRead(file, trackList); err != nil {
		return nil, fmt.Errorf("diskimage: read track list: %w", err)
	}

	tracks := make([]Track, numTracks)
	for i := 0; i < numTracks; i++ {
		off := i * 4
		offsetBlocks := binary.LittleEndian.Uint16(trackList[off : off+2])
		length := binary.LittleEndian.Uint16(trackList[off+2 : off+4])

		if _, err := file.Seek(int64(offsetBlocks)*hfeBlockSize, 0); err != nil {
			return nil, fmt.Errorf("diskimage: seek track %d: %w", i, err)
		}
		trackBuf := make([]byte, length)
		if _, err := fullRead(file, trackBuf); err != nil {
			return nil, fmt.Errorf("diskimage: read track %d: %w", i, err)
		}

		side0 := make([]byte, int(length)/2)
		side1 := make([]byte, int(length)/2)
		for k := 0; k < int(length)/hfeBlockSize; k++ {
			for j := 0; j < 256; j++ {
				side0[k*256+j] = trackBuf[k*hfeBlockSize+j]
				side1[k*256+j] = trackBuf[k*hfeBlockSize+j+256]
			}
		}

		tracks[i].Side0 = unpackBitsLSBFirst(side0)
		if numSides > 1 {
			tracks[i].Side1 = unpackBitsLSBFirst(side1)
		}
	}

	return tracks, nil
}

func fullRead(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
