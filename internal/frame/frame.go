// Package frame groups decoded DIF blocks into whole video frames and
// exposes the redundant metadata copies that validation and repair work on.
package frame

import (
	"example.com/dvgate/internal/dif"
)

// SlotState describes one block position of an assembled frame.
type SlotState uint8

const (
	// SlotMissing marks a slot the layout expects but the stream never
	// delivered.
	SlotMissing SlotState = iota
	// SlotFilled marks a slot holding a decoded block.
	SlotFilled
	// SlotUnreadable marks a slot whose bytes arrived but could not be
	// typed (unknown discriminator or truncated block).
	SlotUnreadable
)

func (s SlotState) String() string {
	switch s {
	case SlotFilled:
		return "filled"
	case SlotUnreadable:
		return "unreadable"
	default:
		return "missing"
	}
}

// Slot is one block position. When the stream delivers several blocks with
// the same identity, the first is kept as primary and the rest are retained
// as duplicates; duplicates are redundancy the repair stage votes with.
type Slot struct {
	State      SlotState
	Block      *dif.Block
	Duplicates []*dif.Block
}

// Frame is one complete logical video frame. Every slot is either filled,
// unreadable, or explicitly missing; a frame is never partially indexed.
type Frame struct {
	Standard dif.Standard
	Number   int   // zero-based position in the output sequence
	Offset   int64 // stream offset of the first byte observed for this frame
	Seq      uint8 // rolling frame counter from the DIF ID arbitrary bits, 0xF when unused

	Slots []Slot

	// Unplaced counts unreadable blocks that arrived when no unfilled slot
	// remained to attribute them to.
	Unplaced int
}

func newFrame(std dif.Standard, number int, offset int64) *Frame {
	return &Frame{
		Standard: std,
		Number:   number,
		Offset:   offset,
		Seq:      0xF,
		Slots:    make([]Slot, std.FrameBlocks()),
	}
}

// Slot returns the slot addressed by the identity, or nil when the
// identity does not exist in this frame's layout.
func (f *Frame) Slot(id dif.Identity) *Slot {
	if !id.Valid(f.Standard) {
		return nil
	}
	return &f.Slots[id.SlotIndex()]
}

// MissingCount returns how many expected slots of the section were never
// delivered. Unreadable slots count as missing for structural purposes.
func (f *Frame) MissingCount(t dif.SectionType) int {
	n := 0
	for i := range f.Slots {
		if f.Slots[i].State == SlotFilled {
			continue
		}
		if dif.IdentityAt(i).Type == t {
			n++
		}
	}
	return n
}

// FilledCount returns how many slots hold a decoded block.
func (f *Frame) FilledCount() int {
	n := 0
	for i := range f.Slots {
		if f.Slots[i].State == SlotFilled {
			n++
		}
	}
	return n
}

// PackSample is one occurrence of a metadata pack somewhere in the frame,
// tagged with where it came from so violations can reference both sides
// of a disagreement.
type PackSample struct {
	Block     dif.Identity
	PackIndex int // SSYB index or pack index within the block
	Duplicate bool
	ParityOK  bool // subcode samples: sync block ID parity verdict
	Pack      dif.Pack
}

// EachBlock visits every decoded block in slot order, duplicates after
// their primary.
func (f *Frame) EachBlock(fn func(b *dif.Block, dup bool)) {
	for i := range f.Slots {
		s := &f.Slots[i]
		if s.State != SlotFilled {
			continue
		}
		fn(s.Block, false)
		for _, d := range s.Duplicates {
			fn(d, true)
		}
	}
}

// PackCopies collects every occurrence of the given pack types across the
// whole frame, duplicates included.
func (f *Frame) PackCopies(types ...dif.PackType) []PackSample {
	wanted := func(t dif.PackType) bool {
		for _, w := range types {
			if w == t {
				return true
			}
		}
		return false
	}
	var out []PackSample
	f.EachBlock(func(b *dif.Block, dup bool) {
		switch {
		case b.Subcode != nil:
			for i, sb := range b.Subcode.SSYBs {
				if wanted(sb.Pack.Type) {
					out = append(out, PackSample{
						Block: b.ID, PackIndex: i, Duplicate: dup,
						ParityOK: sb.ParityOK, Pack: sb.Pack,
					})
				}
			}
		case b.VAUX != nil:
			for i, p := range b.VAUX.Packs {
				if wanted(p.Type) {
					out = append(out, PackSample{
						Block: b.ID, PackIndex: i, Duplicate: dup,
						ParityOK: true, Pack: p,
					})
				}
			}
		case b.Audio != nil:
			if wanted(b.Audio.Pack.Type) {
				out = append(out, PackSample{
					Block: b.ID, Duplicate: dup,
					ParityOK: true, Pack: b.Audio.Pack,
				})
			}
		}
	})
	return out
}

// TimecodeCopies returns every title timecode occurrence in the frame.
func (f *Frame) TimecodeCopies() []PackSample {
	return f.PackCopies(dif.PackTitleTimecode)
}

// RecDateCopies returns every recording date occurrence, VAUX and AAUX.
func (f *Frame) RecDateCopies() []PackSample {
	return f.PackCopies(dif.PackVAUXRecDate, dif.PackAAUXRecDate)
}

// RecTimeCopies returns every recording time occurrence, VAUX and AAUX.
func (f *Frame) RecTimeCopies() []PackSample {
	return f.PackCopies(dif.PackVAUXRecTime, dif.PackAAUXRecTime)
}

// AudioPayload concatenates the raw PCM bytes of all audio blocks in
// stream order. Missing audio blocks contribute zero bytes and their
// identities are returned separately so the caller can account for gaps.
func (f *Frame) AudioPayload() ([]byte, []dif.Identity) {
	var gaps []dif.Identity
	out := make([]byte, 0, f.Standard.Sequences()*9*dif.AudioDataSize)
	for i := range f.Slots {
		id := dif.IdentityAt(i)
		if id.Type != dif.SectionAudio {
			continue
		}
		s := &f.Slots[i]
		if s.State == SlotFilled && s.Block.Audio != nil {
			out = append(out, s.Block.Audio.Data...)
		} else {
			out = append(out, make([]byte, dif.AudioDataSize)...)
			gaps = append(gaps, id)
		}
	}
	return out, gaps
}

// VideoPayload concatenates the raw compressed video bytes of all video
// blocks in stream order, zero-filling missing blocks.
func (f *Frame) VideoPayload() ([]byte, []dif.Identity) {
	var gaps []dif.Identity
	out := make([]byte, 0, f.Standard.Sequences()*135*dif.PayloadSize)
	for i := range f.Slots {
		id := dif.IdentityAt(i)
		if id.Type != dif.SectionVideo {
			continue
		}
		s := &f.Slots[i]
		if s.State == SlotFilled && s.Block.Video != nil {
			out = append(out, s.Block.Video.Data...)
		} else {
			out = append(out, make([]byte, dif.PayloadSize)...)
			gaps = append(gaps, id)
		}
	}
	return out, gaps
}
