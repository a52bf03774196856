// Copyright © 2018 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package meta2bseek

// offsets used to peel bytes off a uint64 most-significant-first.
var byteOffsets = []uint8{56, 48, 40, 32, 24, 16, 8, 0}

func byteLength(n uint64) uint8 {
	switch {
	case n < 1<<8:
		return 1
	case n < 1<<16:
		return 2
	case n < 1<<24:
		return 3
	case n < 1<<32:
		return 4
	case n < 1<<40:
		return 5
	case n < 1<<48:
		return 6
	case n < 1<<56:
		return 7
	default:
		return 8
	}
}

// ctrlPairLengths maps a 6-bit control byte to the byte lengths of the two
// values it describes, (len1-1)<<3 | (len2-1).
var ctrlPairLengths [64][2]uint8

func init() {
	for l1 := uint8(1); l1 <= 8; l1++ {
		for l2 := uint8(1); l2 <= 8; l2++ {
			ctrl := ((l1 - 1) << 3) | (l2 - 1)
			ctrlPairLengths[ctrl] = [2]uint8{l1, l2}
		}
	}
}

// putVarintPair group-varint-encodes two uint64s into buf, returning the
// control byte and the number of bytes written.
func putVarintPair(buf []byte, v1, v2 uint64) (ctrl byte, n int) {
	l1 := byteLength(v1)
	ctrl = byte(l1 - 1)
	for _, off := range byteOffsets[8-l1:] {
		buf[n] = byte(v1 >> off)
		n++
	}
	l2 := byteLength(v2)
	ctrl <<= 3
	ctrl |= byte(l2 - 1)
	for _, off := range byteOffsets[8-l2:] {
		buf[n] = byte(v2 >> off)
		n++
	}
	return
}

// varintPair decodes two uint64s previously written by putVarintPair.
func varintPair(ctrl byte, buf []byte) (values [2]uint64, n int) {
	lens := ctrlPairLengths[ctrl]
	if len(buf) < int(lens[0])+int(lens[1]) {
		return values, 0
	}
	for i := 0; i < 2; i++ {
		for j := uint8(0); j < lens[i]; j++ {
			values[i] = values[i]<<8 | uint64(buf[n])
			n++
		}
	}
	return
}

// encodePositionDeltas group-varint-packs a sorted marker position stream
// as successive deltas, two at a time, for the on-disk genome index (§4.G).
// Positions must be strictly increasing; the first delta is taken against 0.
func encodePositionDeltas(positions []uint32) []byte {
	out := make([]byte, 0, len(positions)*2+len(positions)/2+1)
	var prev uint64
	buf := make([]byte, 16)
	for i := 0; i < len(positions); i += 2 {
		d1 := uint64(positions[i]) - prev
		prev = uint64(positions[i])
		var d2 uint64
		if i+1 < len(positions) {
			d2 = uint64(positions[i+1]) - prev
			prev = uint64(positions[i+1])
		}
		ctrl, n := putVarintPair(buf, d1, d2)
		out = append(out, ctrl)
		out = append(out, buf[:n]...)
	}
	return out
}

// decodePositionDeltas reverses encodePositionDeltas, reconstructing exactly
// count positions.
func decodePositionDeltas(data []byte, count int) []uint32 {
	positions := make([]uint32, 0, count)
	var prev uint64
	off := 0
	for len(positions) < count {
		ctrl := data[off]
		off++
		vals, n := varintPair(ctrl, data[off:])
		off += n
		prev += vals[0]
		positions = append(positions, uint32(prev))
		if len(positions) < count {
			prev += vals[1]
			positions = append(positions, uint32(prev))
		}
	}
	return positions
}
