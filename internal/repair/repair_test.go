package repair_test

import (
	"testing"

	"example.com/dvgate/internal/dif"
	"example.com/dvgate/internal/frame"
	"example.com/dvgate/internal/repair"
	"example.com/dvgate/internal/samples"
)

func assemble(t *testing.T, std dif.Standard, blocks []*dif.Block) *frame.Frame {
	t.Helper()
	asm := frame.NewAssembler(std)
	var done *frame.Frame
	for _, b := range blocks {
		if f := asm.Add(b, 0); f != nil {
			done = f
		}
	}
	if done == nil {
		done = asm.Flush()
	}
	if done == nil {
		t.Fatal("no frame assembled")
	}
	return done
}

func field(t *testing.T, out *repair.Outcome, name string) repair.FieldResolution {
	t.Helper()
	for _, f := range out.Fields {
		if f.Field == name {
			return f
		}
	}
	t.Fatalf("no resolution for %q in %+v", name, out.Fields)
	return repair.FieldResolution{}
}

func TestCleanFrameAllTrusted(t *testing.T) {
	tc := samples.DefaultTimecode
	date := samples.DefaultRecDate
	f := assemble(t, dif.NTSC, samples.Blocks(dif.NTSC, samples.Options{Timecode: &tc, RecDate: &date}))
	out := repair.Repair(f, dif.NTSC, nil)
	for _, res := range out.Fields {
		if res.Verdict != repair.Trusted {
			t.Fatalf("%s: %+v", res.Field, res)
		}
		if len(res.Discarded) != 0 {
			t.Fatalf("%s discarded copies on a clean frame", res.Field)
		}
	}
	tcRes := field(t, out, "timecode")
	if tcRes.Copies != 50 || tcRes.Value != tc.String() {
		t.Fatalf("timecode resolution: %+v", tcRes)
	}
	for sec, v := range out.Sections {
		if v != repair.Trusted {
			t.Fatalf("section %s: %s", sec, v)
		}
	}
}

func TestAbsentMetadataStaysAbsent(t *testing.T) {
	f := assemble(t, dif.NTSC, samples.Blocks(dif.NTSC, samples.Options{}))
	out := repair.Repair(f, dif.NTSC, nil)
	for _, res := range out.Fields {
		if res.Verdict != repair.Trusted || res.Copies != 0 || res.Value != "" {
			t.Fatalf("%s: %+v", res.Field, res)
		}
	}
	if n := len(f.TimecodeCopies()); n != 0 {
		t.Fatalf("repair wrote %d timecode copies into an empty frame", n)
	}
}

func TestRecTimeRepairedFromSubcode(t *testing.T) {
	tc := samples.DefaultTimecode
	date := samples.DefaultRecDate
	// The recording time copies carry a frame number the system cannot
	// produce, so only the title timecode is internally valid.
	bad := dif.Timecode{Hour: 0, Minute: 0, Second: 10, Frame: 45}
	f := assemble(t, dif.NTSC, samples.Blocks(dif.NTSC, samples.Options{
		Timecode: &tc, RecDate: &date, RecTime: &bad,
	}))
	out := repair.Repair(f, dif.NTSC, nil)

	tcRes := field(t, out, "timecode")
	if tcRes.Verdict != repair.Repaired || tcRes.Source != dif.SectionSubcode {
		t.Fatalf("timecode: %+v", tcRes)
	}
	if tcRes.Value != tc.String() || len(tcRes.Discarded) != 30 {
		t.Fatalf("timecode: %+v", tcRes)
	}

	// The adopted title timecode settled the VAUX copy, so the recording
	// time group then repairs the AAUX copies from VAUX.
	rtRes := field(t, out, "recording time")
	if rtRes.Verdict != repair.Repaired || rtRes.Source != dif.SectionVAUX {
		t.Fatalf("recording time: %+v", rtRes)
	}
	if len(rtRes.Discarded) != 30 {
		t.Fatalf("recording time: %+v", rtRes)
	}

	for _, s := range f.RecTimeCopies() {
		if got := s.Pack.Timecode.String(); got != tc.String() {
			t.Fatalf("%s still carries %s", s.Block, got)
		}
	}
	if out.Sections[dif.SectionVAUX] != repair.Repaired ||
		out.Sections[dif.SectionAudio] != repair.Repaired {
		t.Fatalf("sections: %+v", out.Sections)
	}
	if out.Sections[dif.SectionSubcode] != repair.Trusted {
		t.Fatalf("sections: %+v", out.Sections)
	}
}

func TestTieFallsToAuthoritySection(t *testing.T) {
	blocks := samples.Blocks(dif.NTSC, samples.Options{})
	a := dif.Timecode{Hour: 1, Minute: 2, Second: 3, Frame: 4}
	b := dif.Timecode{Hour: 1, Minute: 2, Second: 3, Frame: 5}
	setSubcode, setVAUX := false, false
	for _, blk := range blocks {
		if blk.Subcode != nil && !setSubcode {
			blk.Subcode.SSYBs[3].Pack = dif.Pack{Type: dif.PackTitleTimecode, Timecode: &a}
			setSubcode = true
		}
		if blk.VAUX != nil && !setVAUX {
			blk.VAUX.Packs[2] = dif.Pack{Type: dif.PackVAUXRecTime, Timecode: &b}
			setVAUX = true
		}
	}
	f := assemble(t, dif.NTSC, blocks)
	out := repair.Repair(f, dif.NTSC, nil)
	res := field(t, out, "timecode")
	if res.Verdict != repair.Repaired || res.Value != a.String() || res.Source != dif.SectionSubcode {
		t.Fatalf("timecode: %+v", res)
	}
	if len(res.Discarded) != 1 {
		t.Fatalf("timecode: %+v", res)
	}
	// The overruled VAUX copy now reads the adopted value.
	copies := f.PackCopies(dif.PackVAUXRecTime)
	if len(copies) != 1 || copies[0].Pack.Timecode.String() != a.String() {
		t.Fatalf("vaux copy after repair: %+v", copies)
	}
}

func TestMajorityOverridesAuthority(t *testing.T) {
	tc := samples.DefaultTimecode
	other := dif.Timecode{Hour: 0, Minute: 0, Second: 11, Frame: 5}
	date := samples.DefaultRecDate
	// 20 valid title copies against 30 valid VAUX recording time copies:
	// the majority wins even though the subcode section outranks VAUX.
	f := assemble(t, dif.NTSC, samples.Blocks(dif.NTSC, samples.Options{
		Timecode: &tc, RecDate: &date, RecTime: &other,
	}))
	out := repair.Repair(f, dif.NTSC, nil)
	res := field(t, out, "timecode")
	if res.Verdict != repair.Repaired || res.Value != other.String() || res.Source != dif.SectionVAUX {
		t.Fatalf("timecode: %+v", res)
	}
	if res.Copies != 50 || len(res.Discarded) != 20 {
		t.Fatalf("timecode: %+v", res)
	}
	for _, s := range f.TimecodeCopies() {
		if s.Pack.Timecode.String() != other.String() {
			t.Fatalf("title copy still carries %s", s.Pack.Timecode)
		}
		if s.Pack.Type != dif.PackTitleTimecode {
			t.Fatalf("rewrite changed the pack type to %s", s.Pack.Type)
		}
	}
}

func TestDropFrameTitleCopiesLoseOnPAL(t *testing.T) {
	df := dif.Timecode{Hour: 1, Minute: 0, Second: 0, Frame: 10, DropFrame: true}
	clean := dif.Timecode{Hour: 1, Minute: 0, Second: 0, Frame: 11}
	date := samples.DefaultRecDate
	// Drop frame counting does not exist in a 625/50 recording, so the
	// flagged title copies never enter arbitration and the clean VAUX
	// recording time wins despite the subcode section outranking it.
	f := assemble(t, dif.PAL, samples.Blocks(dif.PAL, samples.Options{
		Timecode: &df, RecDate: &date, RecTime: &clean,
	}))
	out := repair.Repair(f, dif.PAL, nil)
	res := field(t, out, "timecode")
	if res.Verdict != repair.Repaired || res.Value != clean.String() || res.Source != dif.SectionVAUX {
		t.Fatalf("timecode: %+v", res)
	}
	if len(res.Discarded) != 24 {
		t.Fatalf("timecode: %+v", res)
	}
	for _, s := range f.TimecodeCopies() {
		if s.Pack.Timecode.DropFrame || s.Pack.Timecode.String() != clean.String() {
			t.Fatalf("title copy after repair: %+v", s.Pack.Timecode)
		}
	}
	rtRes := field(t, out, "recording time")
	if rtRes.Verdict != repair.Trusted {
		t.Fatalf("recording time: %+v", rtRes)
	}
}

func TestUnrecoverableDateRetainsOriginals(t *testing.T) {
	tc := samples.DefaultTimecode
	date := samples.DefaultRecDate
	date.Weekday = 5 // does not match 2001-07-04
	f := assemble(t, dif.NTSC, samples.Blocks(dif.NTSC, samples.Options{Timecode: &tc, RecDate: &date}))
	out := repair.Repair(f, dif.NTSC, nil)
	res := field(t, out, "recording date")
	if res.Verdict != repair.Unrecoverable || res.Value != "" {
		t.Fatalf("recording date: %+v", res)
	}
	if res.Copies != 60 || len(res.Discarded) != 60 {
		t.Fatalf("recording date: %+v", res)
	}
	// The flagged originals stay on the frame untouched.
	for _, s := range f.RecDateCopies() {
		d := s.Pack.Date
		if d == nil || d.Weekday != 5 || d.Day != date.Day {
			t.Fatalf("original date copy altered: %+v", s.Pack)
		}
	}
	if out.Sections[dif.SectionVAUX] != repair.Unrecoverable ||
		out.Sections[dif.SectionAudio] != repair.Unrecoverable {
		t.Fatalf("sections: %+v", out.Sections)
	}
}

func TestMissingBlocksMarkSectionUnrecoverable(t *testing.T) {
	tc := samples.DefaultTimecode
	date := samples.DefaultRecDate
	skip := dif.Identity{Seq: 1, Type: dif.SectionAudio, Number: 0}
	var blocks []*dif.Block
	for _, b := range samples.Blocks(dif.NTSC, samples.Options{Timecode: &tc, RecDate: &date}) {
		if b.ID == skip {
			continue
		}
		blocks = append(blocks, b)
	}
	f := assemble(t, dif.NTSC, blocks)
	out := repair.Repair(f, dif.NTSC, nil)
	if out.Sections[dif.SectionAudio] != repair.Unrecoverable {
		t.Fatalf("sections: %+v", out.Sections)
	}
	if out.Sections[dif.SectionVideo] != repair.Trusted {
		t.Fatalf("sections: %+v", out.Sections)
	}
	// The surviving copies still agree, so no field needed arbitration.
	for _, res := range out.Fields {
		if res.Verdict != repair.Trusted {
			t.Fatalf("%s: %+v", res.Field, res)
		}
	}
}
