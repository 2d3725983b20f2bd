// Package samples builds deterministic synthetic DV captures for tests
// and documentation. The generated frames are clean: every block present,
// parity intact, and all redundant metadata copies in agreement, so any
// defect a test wants is injected by mutating the block list before
// serializing.
package samples

import (
	"example.com/dvgate/internal/dif"
)

// Options selects what metadata the generated frame carries. Nil fields
// stay absent on tape (no-information packs).
type Options struct {
	Seq      uint8 // rolling frame counter for the ID arbitrary bits
	Timecode *dif.Timecode
	RecDate  *dif.RecDate
	RecTime  *dif.Timecode // defaults to Timecode when nil
}

// DefaultTimecode is the timecode the one-frame helpers start from.
var DefaultTimecode = dif.Timecode{Hour: 0, Minute: 0, Second: 10, Frame: 0}

// DefaultRecDate is a date whose weekday matches, so clean frames pass
// every calendar rule.
var DefaultRecDate = dif.RecDate{
	Year: 2001, Month: 7, Day: 4,
	Weekday: 3, TZOffsetMinutes: -1, Reserved: 0x3,
}

// Blocks builds every DIF block of one frame in stream order.
func Blocks(std dif.Standard, opt Options) []*dif.Block {
	recTime := opt.RecTime
	if recTime == nil {
		recTime = opt.Timecode
	}
	out := make([]*dif.Block, 0, std.FrameBlocks())
	for slot := 0; slot < std.FrameBlocks(); slot++ {
		id := dif.IdentityAt(slot)
		b := dif.NewBlock(id, std)
		b.Arb = opt.Seq
		switch id.Type {
		case dif.SectionSubcode:
			if opt.Timecode != nil {
				tc := *opt.Timecode
				b.Subcode.SSYBs[3].Pack = dif.Pack{
					Type: dif.PackTitleTimecode, Timecode: &tc,
				}
			}
		case dif.SectionVAUX:
			b.VAUX.Packs[0] = vauxSource(std)
			if opt.RecDate != nil {
				d := *opt.RecDate
				b.VAUX.Packs[1] = dif.Pack{Type: dif.PackVAUXRecDate, Date: &d}
			}
			if recTime != nil {
				tc := *recTime
				b.VAUX.Packs[2] = dif.Pack{Type: dif.PackVAUXRecTime, Timecode: &tc}
			}
		case dif.SectionAudio:
			switch id.Number % 3 {
			case 0:
				b.Audio.Pack = aauxSource(std)
			case 1:
				if opt.RecDate != nil {
					d := *opt.RecDate
					b.Audio.Pack = dif.Pack{Type: dif.PackAAUXRecDate, Date: &d}
				}
			case 2:
				if recTime != nil {
					tc := *recTime
					b.Audio.Pack = dif.Pack{Type: dif.PackAAUXRecTime, Timecode: &tc}
				}
			}
		}
		out = append(out, b)
	}
	return out
}

// Serialize writes the blocks back to their 80-byte wire form in order.
func Serialize(std dif.Standard, blocks []*dif.Block) []byte {
	out := make([]byte, 0, len(blocks)*dif.BlockSize)
	for _, b := range blocks {
		out = append(out, b.Encode(std)...)
	}
	return out
}

// Frame builds and serializes one clean frame.
func Frame(std dif.Standard, opt Options) []byte {
	return Serialize(std, Blocks(std, opt))
}

// Stream builds a capture of consecutive clean frames with a running
// timecode and rolling frame counter.
func Stream(std dif.Standard, frames int) []byte {
	tc := DefaultTimecode
	date := DefaultRecDate
	var out []byte
	for i := 0; i < frames; i++ {
		cur := tc
		out = append(out, Frame(std, Options{
			Seq:      uint8(i % 12),
			Timecode: &cur,
			RecDate:  &date,
		})...)
		tc = NextTimecode(tc, std)
	}
	return out
}

// NextTimecode advances a timecode by one frame using plain wraparound
// counting.
func NextTimecode(tc dif.Timecode, std dif.Standard) dif.Timecode {
	tc.Frame++
	if tc.Frame > std.MaxFrameNumber() {
		tc.Frame = 0
		tc.Second++
		if tc.Second > 59 {
			tc.Second = 0
			tc.Minute++
			if tc.Minute > 59 {
				tc.Minute = 0
				tc.Hour = (tc.Hour + 1) % 24
			}
		}
	}
	return tc
}

// vauxSource builds a VAUX source pack matching the system. Only the
// field count and source type bits are interpreted downstream; the
// remaining bits stay at their recorded-reserved values.
func vauxSource(std dif.Standard) dif.Pack {
	pc3 := uint8(0xC0)
	fields := 60
	if std == dif.PAL {
		pc3 |= 0x20
		fields = 50
	}
	return dif.Pack{
		Type:   dif.PackVAUXSource,
		Raw:    [4]byte{0xFF, 0xFF, pc3, 0xFF},
		Source: &dif.SourceInfo{FieldCount: fields},
	}
}

// aauxSource builds an AAUX source pack declaring locked 16-bit audio at
// 48 kHz with the system's field count.
func aauxSource(std dif.Standard) dif.Pack {
	pc3 := uint8(0xC0)
	fields := 60
	if std == dif.PAL {
		pc3 |= 0x20
		fields = 50
	}
	return dif.Pack{
		Type:   dif.PackAAUXSource,
		Raw:    [4]byte{0xC0, 0x90, pc3, 0xC0},
		Source: &dif.SourceInfo{FieldCount: fields, SampleRate: 48000},
	}
}
