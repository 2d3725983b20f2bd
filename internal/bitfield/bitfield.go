// Package bitfield reads and writes packed integer fields at sub-byte
// offsets in DV bitstream buffers. Bits are numbered MSB-first within
// each byte, matching the transmission order of the format.
package bitfield

import (
	"errors"
	"fmt"
)

var (
	ErrBounds = errors.New("bit field extends past buffer end")
	ErrRange  = errors.New("value does not fit in declared bit width")
	ErrWidth  = errors.New("bit width must be between 1 and 32")
)

// ReadUint extracts an unsigned integer of width bits starting at bitOff.
func ReadUint(buf []byte, bitOff, width int) (uint32, error) {
	if width < 1 || width > 32 {
		return 0, fmt.Errorf("%w: %d", ErrWidth, width)
	}
	if bitOff < 0 || bitOff+width > len(buf)*8 {
		return 0, fmt.Errorf("%w: offset %d width %d buffer %d bytes", ErrBounds, bitOff, width, len(buf))
	}
	var v uint32
	for i := 0; i < width; i++ {
		pos := bitOff + i
		bit := (buf[pos/8] >> (7 - uint(pos%8))) & 1
		v = v<<1 | uint32(bit)
	}
	return v, nil
}

// ReadBool extracts a single bit as a boolean.
func ReadBool(buf []byte, bitOff int) (bool, error) {
	v, err := ReadUint(buf, bitOff, 1)
	return v == 1, err
}

// ReadInt extracts a signed two's-complement integer of width bits.
func ReadInt(buf []byte, bitOff, width int) (int32, error) {
	v, err := ReadUint(buf, bitOff, width)
	if err != nil {
		return 0, err
	}
	if width < 32 && v&(1<<uint(width-1)) != 0 {
		return int32(v | ^uint32(0)<<uint(width)), nil
	}
	return int32(v), nil
}

// WriteUint stores value into width bits starting at bitOff. The write is
// atomic at field granularity: on any error the buffer is unchanged.
func WriteUint(buf []byte, bitOff, width int, value uint32) error {
	if width < 1 || width > 32 {
		return fmt.Errorf("%w: %d", ErrWidth, width)
	}
	if bitOff < 0 || bitOff+width > len(buf)*8 {
		return fmt.Errorf("%w: offset %d width %d buffer %d bytes", ErrBounds, bitOff, width, len(buf))
	}
	if width < 32 && value >= 1<<uint(width) {
		return fmt.Errorf("%w: value 0x%X width %d", ErrRange, value, width)
	}
	for i := 0; i < width; i++ {
		pos := bitOff + i
		mask := byte(1) << (7 - uint(pos%8))
		if value&(1<<uint(width-1-i)) != 0 {
			buf[pos/8] |= mask
		} else {
			buf[pos/8] &^= mask
		}
	}
	return nil
}

// WriteBool stores a single bit.
func WriteBool(buf []byte, bitOff int, value bool) error {
	var v uint32
	if value {
		v = 1
	}
	return WriteUint(buf, bitOff, 1, v)
}
