package rules

import (
	"fmt"
	"time"

	"example.com/dvgate/internal/dif"
	"example.com/dvgate/internal/frame"
)

func (e *Engine) RegisterBuiltins() {
	e.Register("CheckMissingSection", CheckMissingSection)
	e.Register("CheckUnreadable", CheckUnreadable)
	e.Register("CheckHeaderSystem", CheckHeaderSystem)
	e.Register("CheckPackFields", CheckPackFields)
	e.Register("CheckSyncParity", CheckSyncParity)
	e.Register("CheckTimecodeRange", CheckTimecodeRange)
	e.Register("CheckDateRange", CheckDateRange)
	e.Register("CheckTimecodeAgreement", CheckTimecodeAgreement)
	e.Register("CheckDateAgreement", CheckDateAgreement)
	e.Register("CheckRecTimeAgreement", CheckRecTimeAgreement)
	e.Register("CheckSourceSystem", CheckSourceSystem)
	e.Register("CheckSampleRate", CheckSampleRate)
}

// DefaultRulePack is the built-in rule set. A custom pack loaded from disk
// can reorder, drop, or retune severities, but the check functions come
// from the registry either way.
func DefaultRulePack() RulePack {
	rp := RulePack{
		RulePackId: "dv-default",
		Version:    "1.0",
		Profile:    "default",
	}
	refs := func(s string) []string { return []string{s} }
	rp.Rules = []Rule{
		{RuleId: "DV-STRUCT-HEADER", Name: "header blocks present", Scope: "frame", Severity: ERROR,
			CheckFunc: "CheckMissingSection", Params: map[string]any{"section": "header"},
			Refs: refs("IEC 61834-2 11.4"), Message: "missing header blocks"},
		{RuleId: "DV-STRUCT-SUBCODE", Name: "subcode blocks present", Scope: "frame", Severity: ERROR,
			CheckFunc: "CheckMissingSection", Params: map[string]any{"section": "subcode"},
			Refs: refs("IEC 61834-2 11.4"), Message: "missing subcode blocks"},
		{RuleId: "DV-STRUCT-VAUX", Name: "vaux blocks present", Scope: "frame", Severity: WARN,
			CheckFunc: "CheckMissingSection", Params: map[string]any{"section": "vaux"},
			Refs: refs("IEC 61834-2 11.4"), Message: "missing vaux blocks"},
		{RuleId: "DV-STRUCT-AUDIO", Name: "audio blocks present", Scope: "frame", Severity: WARN,
			CheckFunc: "CheckMissingSection", Params: map[string]any{"section": "audio"},
			Refs: refs("IEC 61834-2 11.4"), Message: "missing audio blocks"},
		{RuleId: "DV-STRUCT-VIDEO", Name: "video blocks present", Scope: "frame", Severity: WARN,
			CheckFunc: "CheckMissingSection", Params: map[string]any{"section": "video"},
			Refs: refs("IEC 61834-2 11.4"), Message: "missing video blocks"},
		{RuleId: "DV-STRUCT-UNREADABLE", Name: "undecodable blocks", Scope: "frame", Severity: WARN,
			CheckFunc: "CheckUnreadable", Refs: refs("IEC 61834-2 11.2"),
			Message: "blocks with undecodable identity"},
		{RuleId: "DV-HDR-SYSTEM", Name: "header system flag", Scope: "section", Severity: ERROR,
			CheckFunc: "CheckHeaderSystem", Refs: refs("IEC 61834-2 11.4.1"),
			Message: "header DSF does not match the configured system"},
		{RuleId: "DV-PACK-FIELDS", Name: "pack field encoding", Scope: "pack", Severity: WARN,
			CheckFunc: "CheckPackFields", Refs: refs("IEC 61834-4"),
			Message: "pack carries reserved or malformed field values"},
		{RuleId: "DV-SC-PARITY", Name: "subcode sync block parity", Scope: "section", Severity: WARN,
			CheckFunc: "CheckSyncParity", Refs: refs("IEC 61834-2 11.4.2"),
			Message: "sync block ID parity mismatch"},
		{RuleId: "DV-TC-RANGE", Name: "timecode field ranges", Scope: "pack", Severity: ERROR,
			CheckFunc: "CheckTimecodeRange", Refs: refs("IEC 61834-4 4.4"),
			Message: "timecode field out of range"},
		{RuleId: "DV-DATE-RANGE", Name: "recording date validity", Scope: "pack", Severity: ERROR,
			CheckFunc: "CheckDateRange", Refs: refs("IEC 61834-4 9.3"),
			Message: "recording date is not a valid calendar date"},
		{RuleId: "DV-TC-AGREE", Name: "timecode copies agree", Scope: "frame", Severity: WARN,
			CheckFunc: "CheckTimecodeAgreement", Refs: refs("IEC 61834-4 4.4"),
			Message: "timecode copies disagree"},
		{RuleId: "DV-DATE-AGREE", Name: "recording date copies agree", Scope: "frame", Severity: WARN,
			CheckFunc: "CheckDateAgreement", Refs: refs("IEC 61834-4 9.3"),
			Message: "recording date copies disagree"},
		{RuleId: "DV-TIME-AGREE", Name: "recording time copies agree", Scope: "frame", Severity: WARN,
			CheckFunc: "CheckRecTimeAgreement", Refs: refs("IEC 61834-4 9.4"),
			Message: "recording time copies disagree"},
		{RuleId: "DV-SRC-SYSTEM", Name: "source field count", Scope: "pack", Severity: ERROR,
			CheckFunc: "CheckSourceSystem", Refs: refs("IEC 61834-4 8.1"),
			Message: "source pack field count does not match the configured system"},
		{RuleId: "DV-SRC-RATE", Name: "audio sample rate", Scope: "pack", Severity: WARN,
			CheckFunc: "CheckSampleRate", Refs: refs("IEC 61834-4 8.1"),
			Message: "audio source pack carries a reserved sample rate"},
	}
	return rp
}

// NewDefaultEngine builds an engine over the default pack with all
// builtin checks registered.
func NewDefaultEngine() *Engine {
	e := NewEngine(DefaultRulePack())
	e.RegisterBuiltins()
	return e
}

func sectionParam(rule Rule) (dif.SectionType, bool) {
	s, _ := rule.Params["section"].(string)
	switch s {
	case "header":
		return dif.SectionHeader, true
	case "subcode":
		return dif.SectionSubcode, true
	case "vaux":
		return dif.SectionVAUX, true
	case "audio":
		return dif.SectionAudio, true
	case "video":
		return dif.SectionVideo, true
	}
	return 0, false
}

func CheckMissingSection(ctx *Context, rule Rule) []Diagnostic {
	sec, ok := sectionParam(rule)
	if !ok {
		return []Diagnostic{{Severity: WARN, Message: "rule has no usable section parameter"}}
	}
	n := ctx.Frame.MissingCount(sec)
	if n == 0 {
		return nil
	}
	expected := ctx.Standard.Sequences() * dif.BlocksPerSequenceOf(sec)
	return []Diagnostic{{
		Ts:      time.Now(),
		Message: fmt.Sprintf("%d of %d %s blocks missing", n, expected, sec),
	}}
}

func CheckUnreadable(ctx *Context, rule Rule) []Diagnostic {
	var out []Diagnostic
	for i := range ctx.Frame.Slots {
		if ctx.Frame.Slots[i].State != frame.SlotUnreadable {
			continue
		}
		out = append(out, Diagnostic{
			Block:   dif.IdentityAt(i).String(),
			Message: "block bytes present but identity undecodable",
		})
	}
	if ctx.Frame.Unplaced > 0 {
		out = append(out, Diagnostic{
			Message: fmt.Sprintf("%d undecodable blocks with no free slot to attribute", ctx.Frame.Unplaced),
		})
	}
	return out
}

func CheckHeaderSystem(ctx *Context, rule Rule) []Diagnostic {
	wantDSF := ctx.Standard == dif.PAL
	var out []Diagnostic
	for i := range ctx.Frame.Slots {
		s := &ctx.Frame.Slots[i]
		if s.State != frame.SlotFilled || s.Block.Header == nil {
			continue
		}
		if s.Block.Header.DSF != wantDSF {
			out = append(out, Diagnostic{
				Block:   s.Block.ID.String(),
				Message: fmt.Sprintf("header DSF=%v but the stream is parsed as %s", s.Block.Header.DSF, ctx.Standard),
			})
		}
	}
	return out
}

func CheckPackFields(ctx *Context, rule Rule) []Diagnostic {
	var out []Diagnostic
	for _, s := range all(ctx.Frame) {
		if !s.Pack.Malformed() {
			continue
		}
		for _, e := range s.Pack.Errs {
			out = append(out, Diagnostic{
				Block:   s.Block.String(),
				Message: fmt.Sprintf("%s pack %d: %s", s.Pack.Type, s.PackIndex, e),
			})
		}
	}
	return out
}

// all collects every pack occurrence in the frame. NoInfo packs carry
// nothing to check and are skipped.
func all(f *frame.Frame) []frame.PackSample {
	return f.PackCopies(
		dif.PackTitleTimecode, dif.PackTitleBinaryGroup,
		dif.PackAAUXSource, dif.PackAAUXSourceControl,
		dif.PackAAUXRecDate, dif.PackAAUXRecTime, dif.PackAAUXBinaryGroup,
		dif.PackVAUXSource, dif.PackVAUXSourceControl,
		dif.PackVAUXRecDate, dif.PackVAUXRecTime, dif.PackVAUXBinaryGroup,
	)
}

func CheckSyncParity(ctx *Context, rule Rule) []Diagnostic {
	var out []Diagnostic
	ctx.Frame.EachBlock(func(b *dif.Block, dup bool) {
		if b.Subcode == nil {
			return
		}
		for i := range b.Subcode.SSYBs {
			sb := &b.Subcode.SSYBs[i]
			if sb.ParityOK {
				continue
			}
			out = append(out, Diagnostic{
				Block: b.ID.String(),
				Message: fmt.Sprintf("sync block %d stored parity 0x%02X, expected 0x%02X",
					i, sb.Parity, dif.IDParity(sb.ID0, sb.ID1)),
			})
		}
	})
	return out
}

func CheckTimecodeRange(ctx *Context, rule Rule) []Diagnostic {
	var out []Diagnostic
	copies := ctx.Frame.PackCopies(dif.PackTitleTimecode, dif.PackAAUXRecTime, dif.PackVAUXRecTime)
	for _, s := range copies {
		tc := s.Pack.Timecode
		if tc == nil || !tc.HasTime() {
			continue
		}
		bad := func(msg string) {
			out = append(out, Diagnostic{
				Block:   s.Block.String(),
				Message: fmt.Sprintf("%s pack %d: %s", s.Pack.Type, s.PackIndex, msg),
				Values:  []string{tc.String()},
			})
		}
		if tc.Hour > 23 {
			bad(fmt.Sprintf("hour %d is out of range", tc.Hour))
		}
		if tc.Minute > 59 {
			bad(fmt.Sprintf("minute %d is out of range", tc.Minute))
		}
		if tc.Second > 59 {
			bad(fmt.Sprintf("second %d is out of range", tc.Second))
		}
		if tc.Frame > ctx.Standard.MaxFrameNumber() {
			bad(fmt.Sprintf("frame number %d exceeds %d", tc.Frame, ctx.Standard.MaxFrameNumber()))
		}
		if tc.DropFrame && ctx.Standard == dif.PAL && s.Pack.Type == dif.PackTitleTimecode {
			bad("drop frame flag set in a 625/50 title timecode")
		}
		// Drop frame counting skips frames 0 and 1 at the start of each
		// minute that is not a multiple of ten.
		if tc.DropFrame && ctx.Standard == dif.NTSC &&
			tc.Frame >= 0 && tc.Frame < 2 && tc.Second == 0 && tc.Minute%10 != 0 {
			bad(fmt.Sprintf("timecode %s does not exist under drop frame counting", tc))
		}
	}
	return out
}

// TimecodeValid reports whether a present timecode satisfies every field
// range constraint for the given system. Absent timecodes are not valid.
func TimecodeValid(tc *dif.Timecode, std dif.Standard) bool {
	if tc == nil || !tc.HasTime() {
		return false
	}
	if tc.Hour > 23 || tc.Minute > 59 || tc.Second > 59 {
		return false
	}
	if tc.Frame > std.MaxFrameNumber() {
		return false
	}
	if tc.DropFrame && std == dif.NTSC &&
		tc.Frame >= 0 && tc.Frame < 2 && tc.Second == 0 && tc.Minute%10 != 0 {
		return false
	}
	return true
}

// DateValid reports whether a present recording date names a real
// calendar day, with the weekday matching when one is recorded.
func DateValid(d *dif.RecDate) bool {
	if d == nil || !d.HasDate() {
		return false
	}
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	if t.Year() != d.Year || int(t.Month()) != d.Month || t.Day() != d.Day {
		return false
	}
	if d.Weekday >= 0 && int(t.Weekday()) != d.Weekday {
		return false
	}
	return true
}

func CheckDateRange(ctx *Context, rule Rule) []Diagnostic {
	var out []Diagnostic
	for _, s := range ctx.Frame.RecDateCopies() {
		d := s.Pack.Date
		if d == nil || !d.HasDate() || s.Pack.Malformed() {
			continue
		}
		bad := func(msg string) {
			out = append(out, Diagnostic{
				Block:   s.Block.String(),
				Message: fmt.Sprintf("%s pack %d: %s", s.Pack.Type, s.PackIndex, msg),
				Values:  []string{d.String()},
			})
		}
		t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
		if t.Year() != d.Year || int(t.Month()) != d.Month || t.Day() != d.Day {
			bad(fmt.Sprintf("%s is not a valid calendar date", d))
		} else if d.Weekday >= 0 && int(t.Weekday()) != d.Weekday {
			bad(fmt.Sprintf("weekday %d does not match %s (%s)", d.Weekday, d, t.Weekday()))
		}
	}
	return out
}

func agreement(samples []frame.PackSample, render func(frame.PackSample) string, what string) []Diagnostic {
	values := make(map[string][]string)
	var order []string
	for _, s := range samples {
		v := render(s)
		if v == "" {
			continue
		}
		if _, ok := values[v]; !ok {
			order = append(order, v)
		}
		values[v] = append(values[v], describeSample(s, v))
	}
	if len(order) <= 1 {
		return nil
	}
	var details []string
	for _, v := range order {
		details = append(details, values[v]...)
	}
	return []Diagnostic{{
		Message: fmt.Sprintf("%d distinct %s values across redundant copies", len(order), what),
		Values:  details,
	}}
}

func renderTime(s frame.PackSample) string {
	if s.Pack.Timecode == nil || !s.Pack.Timecode.HasTime() {
		return ""
	}
	return s.Pack.Timecode.String()
}

func renderDate(s frame.PackSample) string {
	if s.Pack.Date == nil || !s.Pack.Date.HasDate() {
		return ""
	}
	return s.Pack.Date.String()
}

// CheckTimecodeAgreement compares the title timecode held in the subcode
// section against the recording time copies the VAUX section carries.
func CheckTimecodeAgreement(ctx *Context, rule Rule) []Diagnostic {
	samples := ctx.Frame.PackCopies(dif.PackTitleTimecode, dif.PackVAUXRecTime)
	return agreement(samples, renderTime, "timecode")
}

func CheckDateAgreement(ctx *Context, rule Rule) []Diagnostic {
	return agreement(ctx.Frame.RecDateCopies(), renderDate, "recording date")
}

func CheckRecTimeAgreement(ctx *Context, rule Rule) []Diagnostic {
	return agreement(ctx.Frame.RecTimeCopies(), renderTime, "recording time")
}

func CheckSourceSystem(ctx *Context, rule Rule) []Diagnostic {
	var out []Diagnostic
	for _, s := range ctx.Frame.PackCopies(dif.PackAAUXSource, dif.PackVAUXSource) {
		src := s.Pack.Source
		if src == nil || src.FieldCount == 0 {
			continue
		}
		if src.FieldCount != ctx.Standard.FieldCount() {
			out = append(out, Diagnostic{
				Block: s.Block.String(),
				Message: fmt.Sprintf("%s pack declares %d fields but the stream is parsed as %s (%d)",
					s.Pack.Type, src.FieldCount, ctx.Standard, ctx.Standard.FieldCount()),
			})
		}
	}
	return out
}

func CheckSampleRate(ctx *Context, rule Rule) []Diagnostic {
	var out []Diagnostic
	for _, s := range ctx.Frame.PackCopies(dif.PackAAUXSource) {
		src := s.Pack.Source
		if src == nil || src.SampleRate != 0 {
			continue
		}
		out = append(out, Diagnostic{
			Block:   s.Block.String(),
			Message: "aaux source pack carries a reserved sample rate code",
		})
	}
	return out
}
