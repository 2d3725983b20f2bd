package frame

import (
	"example.com/dvgate/internal/dif"
)

// Assembler groups decoded blocks into frames. It tolerates arbitrary
// block reordering within one frame, retains duplicates, and closes the
// current frame when its expected count is reached or when a block that
// can only belong to the next frame arrives. It never merges blocks
// across two frame counters.
type Assembler struct {
	std dif.Standard

	cur      *Frame
	nextNum  int
	lastSlot int
}

// NewAssembler returns an assembler for the given video standard.
func NewAssembler(std dif.Standard) *Assembler {
	return &Assembler{std: std, lastSlot: -1}
}

// boundary reports whether the incoming block must open a new frame.
func (a *Assembler) boundary(b *dif.Block) bool {
	if a.cur == nil {
		return false
	}
	// A changed rolling frame counter is an unconditional boundary.
	if a.cur.Seq != 0xF && b.Arb != 0xF && b.Arb != a.cur.Seq {
		return true
	}
	// A header block for the first DIF sequence re-arriving means the
	// source moved on without delivering the rest of the current frame.
	if b.ID.Type == dif.SectionHeader && b.ID.Seq == 0 {
		if s := a.cur.Slot(b.ID); s != nil && s.State == SlotFilled {
			return true
		}
	}
	return false
}

// Add places one decoded block. When the block closes the frame it
// belonged to, or forces the previous frame shut, that completed frame is
// returned; otherwise the return is nil.
func (a *Assembler) Add(b *dif.Block, offset int64) *Frame {
	var done *Frame
	if a.boundary(b) {
		done = a.finish()
	}
	if a.cur == nil {
		a.cur = newFrame(a.std, a.nextNum, offset)
		a.nextNum++
	}
	if a.cur.Seq == 0xF && b.Arb != 0xF {
		a.cur.Seq = b.Arb
	}
	slot := a.cur.Slot(b.ID)
	if slot == nil {
		// Identity points outside the layout; the decoder flagged it and
		// the block cannot be placed.
		return done
	}
	a.lastSlot = b.ID.SlotIndex()
	if slot.State == SlotFilled {
		slot.Duplicates = append(slot.Duplicates, b)
	} else {
		slot.State = SlotFilled
		slot.Block = b
	}
	if done == nil && a.cur.FilledCount() == a.std.FrameBlocks() {
		done = a.finish()
	}
	return done
}

// AddUnreadable records a block whose bytes arrived in sequence but could
// not be typed. Its stream position still occupies a slot, so the first
// unfilled slot after the last placed block is marked unreadable rather
// than the block being dropped silently. When every remaining slot is
// already filled the event is counted on the frame instead.
func (a *Assembler) AddUnreadable(offset int64) {
	if a.cur == nil {
		a.cur = newFrame(a.std, a.nextNum, offset)
		a.nextNum++
		a.lastSlot = -1
	}
	for next := a.lastSlot + 1; next < len(a.cur.Slots); next++ {
		if a.cur.Slots[next].State == SlotMissing {
			a.cur.Slots[next].State = SlotUnreadable
			a.lastSlot = next
			return
		}
	}
	a.cur.Unplaced++
}

// Flush closes and returns the partially accumulated frame, if any. Used
// at end of stream.
func (a *Assembler) Flush() *Frame {
	return a.finish()
}

func (a *Assembler) finish() *Frame {
	f := a.cur
	a.cur = nil
	a.lastSlot = -1
	return f
}
