package dif

import (
	"errors"
	"fmt"
	"strings"
)

// BlockSize is the size of every DIF block in bytes, for both 525/60 and
// 625/50 systems.
const BlockSize = 80

// IDSize is the length of the DIF block identity header.
const IDSize = 3

// PayloadSize is the number of payload bytes following the block ID.
const PayloadSize = BlockSize - IDSize

const (
	headerBlocksPerSequence  = 1
	subcodeBlocksPerSequence = 2
	vauxBlocksPerSequence    = 3
	audioBlocksPerSequence   = 9
	videoBlocksPerSequence   = 135

	// BlocksPerSequence is the total DIF block count in one DIF sequence.
	BlocksPerSequence = headerBlocksPerSequence + subcodeBlocksPerSequence +
		vauxBlocksPerSequence + audioBlocksPerSequence + videoBlocksPerSequence
)

// Standard selects the video system, which fixes the per-frame block layout.
type Standard uint8

const (
	NTSC Standard = iota // 525 lines, 60 fields, 10 DIF sequences per frame
	PAL                  // 625 lines, 50 fields, 12 DIF sequences per frame
)

var ErrUnknownStandard = errors.New("unknown video standard")

// ParseStandard maps a config/CLI string to a Standard.
func ParseStandard(s string) (Standard, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NTSC", "525-60", "525/60":
		return NTSC, nil
	case "PAL", "SECAM", "625-50", "625/50":
		return PAL, nil
	default:
		return NTSC, fmt.Errorf("%w: %q", ErrUnknownStandard, s)
	}
}

func (s Standard) String() string {
	if s == PAL {
		return "PAL"
	}
	return "NTSC"
}

// Sequences returns the number of DIF sequences per frame.
func (s Standard) Sequences() int {
	if s == PAL {
		return 12
	}
	return 10
}

// FrameBlocks returns the total DIF block count per frame.
func (s Standard) FrameBlocks() int {
	return s.Sequences() * BlocksPerSequence
}

// FrameBytes returns the byte size of one complete frame.
func (s Standard) FrameBytes() int {
	return s.FrameBlocks() * BlockSize
}

// FieldCount returns the fields-per-frame value recorded in source packs.
func (s Standard) FieldCount() int {
	if s == PAL {
		return 50
	}
	return 60
}

// MaxFrameNumber returns the largest legal timecode frame number.
func (s Standard) MaxFrameNumber() int {
	if s == PAL {
		return 24
	}
	return 29
}

// SectionType is the DIF block section discriminator.
type SectionType uint8

const (
	SectionHeader  SectionType = 0
	SectionSubcode SectionType = 1
	SectionVAUX    SectionType = 2
	SectionAudio   SectionType = 3
	SectionVideo   SectionType = 4
)

func (t SectionType) String() string {
	switch t {
	case SectionHeader:
		return "header"
	case SectionSubcode:
		return "subcode"
	case SectionVAUX:
		return "vaux"
	case SectionAudio:
		return "audio"
	case SectionVideo:
		return "video"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// BlocksPerSequenceOf returns how many blocks of the section appear in one
// DIF sequence, or 0 for an unknown section.
func BlocksPerSequenceOf(t SectionType) int {
	switch t {
	case SectionHeader:
		return headerBlocksPerSequence
	case SectionSubcode:
		return subcodeBlocksPerSequence
	case SectionVAUX:
		return vauxBlocksPerSequence
	case SectionAudio:
		return audioBlocksPerSequence
	case SectionVideo:
		return videoBlocksPerSequence
	default:
		return 0
	}
}

// Identity places one block inside a frame: which DIF sequence it belongs
// to, which section it is, and its block number within that section.
type Identity struct {
	Seq    uint8
	Type   SectionType
	Number uint8
}

func (id Identity) String() string {
	return fmt.Sprintf("seq %d %s %d", id.Seq, id.Type, id.Number)
}

// Valid reports whether the identity addresses a slot that exists in a
// frame of the given standard.
func (id Identity) Valid(std Standard) bool {
	if int(id.Seq) >= std.Sequences() {
		return false
	}
	per := BlocksPerSequenceOf(id.Type)
	return per > 0 && int(id.Number) < per
}

// SlotIndex maps the identity to its position in stream order within one
// frame. Within a sequence the transmission order is one header block, two
// subcode blocks, three VAUX blocks, then nine groups of one audio block
// followed by fifteen video blocks.
func (id Identity) SlotIndex() int {
	base := int(id.Seq) * BlocksPerSequence
	switch id.Type {
	case SectionHeader:
		return base
	case SectionSubcode:
		return base + 1 + int(id.Number)
	case SectionVAUX:
		return base + 3 + int(id.Number)
	case SectionAudio:
		return base + 6 + int(id.Number)*16
	case SectionVideo:
		return base + 6 + (int(id.Number)/15)*16 + 1 + int(id.Number)%15
	default:
		return -1
	}
}

// IdentityAt is the inverse of SlotIndex: it reconstructs the identity of
// the slot at the given in-frame position.
func IdentityAt(slot int) Identity {
	seq := slot / BlocksPerSequence
	pos := slot % BlocksPerSequence
	id := Identity{Seq: uint8(seq)}
	switch {
	case pos == 0:
		id.Type = SectionHeader
	case pos < 3:
		id.Type = SectionSubcode
		id.Number = uint8(pos - 1)
	case pos < 6:
		id.Type = SectionVAUX
		id.Number = uint8(pos - 3)
	default:
		group := (pos - 6) / 16
		within := (pos - 6) % 16
		if within == 0 {
			id.Type = SectionAudio
			id.Number = uint8(group)
		} else {
			id.Type = SectionVideo
			id.Number = uint8(group*15 + within - 1)
		}
	}
	return id
}
