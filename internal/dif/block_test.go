package dif

import (
	"errors"
	"testing"
)

func TestIdentitySlotRoundTrip(t *testing.T) {
	for _, std := range []Standard{NTSC, PAL} {
		for slot := 0; slot < std.FrameBlocks(); slot++ {
			id := IdentityAt(slot)
			if !id.Valid(std) {
				t.Fatalf("%s slot %d: identity %s not valid", std, slot, id)
			}
			if got := id.SlotIndex(); got != slot {
				t.Fatalf("%s slot %d: round-trip gave %d (%s)", std, slot, got, id)
			}
		}
	}
}

func TestSectionCountsPerSequence(t *testing.T) {
	counts := map[SectionType]int{}
	for slot := 0; slot < BlocksPerSequence; slot++ {
		counts[IdentityAt(slot).Type]++
	}
	want := map[SectionType]int{
		SectionHeader:  1,
		SectionSubcode: 2,
		SectionVAUX:    3,
		SectionAudio:   9,
		SectionVideo:   135,
	}
	for sec, n := range want {
		if counts[sec] != n {
			t.Errorf("%s: %d blocks per sequence, want %d", sec, counts[sec], n)
		}
	}
}

func TestParseID(t *testing.T) {
	id, arb, fsc, err := ParseID([]byte{0x5A, 0x3F, 0x07})
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	if id.Type != SectionVAUX || id.Seq != 3 || id.Number != 7 {
		t.Fatalf("identity %+v", id)
	}
	if arb != 0xA {
		t.Fatalf("arb = 0x%X", arb)
	}
	if !fsc {
		t.Fatal("fsc bit should be set")
	}

	if _, _, _, err := ParseID([]byte{0xBF, 0x07, 0x00}); !errors.Is(err, ErrUnknownBlockType) {
		t.Fatalf("section 5 should be unknown, got %v", err)
	}
}

func TestPlausibleID(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
		std  Standard
		want bool
	}{
		{"valid header", []byte{0x1F, 0x07, 0x00}, NTSC, true},
		{"reserved bit clear", []byte{0x0F, 0x07, 0x00}, NTSC, false},
		{"low bits clear", []byte{0x1F, 0x00, 0x00}, NTSC, false},
		{"unknown section", []byte{0xBF, 0x07, 0x00}, NTSC, false},
		{"sequence out of range for ntsc", []byte{0x1F, 0xB7, 0x00}, NTSC, false},
		{"sequence in range for pal", []byte{0x1F, 0xB7, 0x00}, PAL, true},
		{"short", []byte{0x1F, 0x07}, NTSC, false},
	}
	for _, c := range cases {
		if got := PlausibleID(c.raw, c.std); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestNewBlockRoundTrip(t *testing.T) {
	for _, std := range []Standard{NTSC, PAL} {
		ids := []Identity{
			{Seq: 0, Type: SectionHeader, Number: 0},
			{Seq: 1, Type: SectionSubcode, Number: 1},
			{Seq: 2, Type: SectionVAUX, Number: 2},
			{Seq: 3, Type: SectionAudio, Number: 8},
			{Seq: 4, Type: SectionVideo, Number: 134},
		}
		for _, id := range ids {
			b := NewBlock(id, std)
			if b.ID != id {
				t.Fatalf("%s: identity %s, want %s", std, b.ID, id)
			}
			if len(b.Errs) != 0 {
				t.Fatalf("%s %s: fresh block has errors: %v", std, id, b.Errs)
			}
			wire := b.Encode(std)
			for i, have := range wire {
				if have != b.Raw[i] {
					t.Fatalf("%s %s: byte %d differs after encode: 0x%02X vs 0x%02X",
						std, id, i, have, b.Raw[i])
				}
			}
		}
	}
}

func TestNewBlockHeaderSystem(t *testing.T) {
	ntsc := NewBlock(Identity{Type: SectionHeader}, NTSC)
	if ntsc.Header == nil || ntsc.Header.DSF {
		t.Fatalf("ntsc header: %+v", ntsc.Header)
	}
	pal := NewBlock(Identity{Type: SectionHeader}, PAL)
	if pal.Header == nil || !pal.Header.DSF {
		t.Fatalf("pal header: %+v", pal.Header)
	}
}

func TestDecodeBlockSubcodeParity(t *testing.T) {
	b := NewBlock(Identity{Seq: 0, Type: SectionSubcode, Number: 0}, NTSC)
	raw := b.Encode(NTSC)
	// Corrupt the stored parity byte of sync block 2.
	raw[IDSize+2*8+2] ^= 0x01
	got, err := DecodeBlock(raw, NTSC)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if got.Subcode.SSYBs[2].ParityOK {
		t.Fatal("sync block 2 parity should fail")
	}
	if got.Subcode.SSYBs[1].ParityOK == false {
		t.Fatal("sync block 1 parity should hold")
	}
	if len(got.Errs) == 0 {
		t.Fatal("parity mismatch should be recorded on the block")
	}
	// The corrupted byte must survive a re-encode untouched.
	wire := got.Encode(NTSC)
	if wire[IDSize+2*8+2] != raw[IDSize+2*8+2] {
		t.Fatal("stored parity byte must round-trip as recorded")
	}
}

func TestDecodeBlockUnknownType(t *testing.T) {
	raw := make([]byte, BlockSize)
	raw[0] = 0xFF
	if _, err := DecodeBlock(raw, NTSC); !errors.Is(err, ErrUnknownBlockType) {
		t.Fatalf("got %v", err)
	}
}

func TestDecodeBlockShort(t *testing.T) {
	if _, err := DecodeBlock(make([]byte, 40), NTSC); !errors.Is(err, ErrShortBlock) {
		t.Fatalf("got %v", err)
	}
}

func TestDetectStandard(t *testing.T) {
	ntsc := NewBlock(Identity{Type: SectionHeader}, NTSC).Encode(NTSC)
	pal := NewBlock(Identity{Type: SectionHeader}, PAL).Encode(PAL)
	if std, err := DetectStandard(ntsc); err != nil || std != NTSC {
		t.Fatalf("ntsc: %v %v", std, err)
	}
	if std, err := DetectStandard(pal); err != nil || std != PAL {
		t.Fatalf("pal: %v %v", std, err)
	}
	video := NewBlock(Identity{Type: SectionVideo, Number: 3}, NTSC).Encode(NTSC)
	if _, err := DetectStandard(video); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("video-only probe: %v", err)
	}
	probe := append(append([]byte{}, video...), pal...)
	if std, err := DetectStandard(probe); err != nil || std != PAL {
		t.Fatalf("mixed probe: %v %v", std, err)
	}
}
