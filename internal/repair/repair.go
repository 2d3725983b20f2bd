// Package repair resolves disagreements between the redundant metadata
// copies a frame carries. It only ever promotes values that already exist
// somewhere in the frame; missing content is reported, never synthesized.
package repair

import (
	"fmt"

	"example.com/dvgate/internal/dif"
	"example.com/dvgate/internal/frame"
	"example.com/dvgate/internal/rules"
)

type Verdict uint8

const (
	// Trusted means every present copy was internally valid and agreed.
	Trusted Verdict = iota
	// Repaired means at least one copy was discarded or overwritten in
	// favor of a value adopted from another copy.
	Repaired
	// Unrecoverable means no internally valid copy exists; the flagged
	// originals are retained untouched.
	Unrecoverable
)

func (v Verdict) String() string {
	switch v {
	case Trusted:
		return "trusted"
	case Repaired:
		return "repaired"
	case Unrecoverable:
		return "unrecoverable"
	default:
		return fmt.Sprintf("verdict(%d)", uint8(v))
	}
}

// FieldResolution records how one metadata field was arbitrated.
type FieldResolution struct {
	Field   string
	Verdict Verdict
	Value   string // adopted canonical value, "" when absent everywhere

	// Source is the section the adopted value came from, meaningful for
	// Repaired verdicts.
	Source dif.SectionType

	Copies    int      // present copies considered
	Discarded []string // copies overruled by the adopted value

	touched []dif.SectionType // sections holding a discarded copy
}

// Outcome is the result of validating and repairing one frame.
type Outcome struct {
	Frame       *frame.Frame
	Diagnostics []rules.Diagnostic
	Fields      []FieldResolution
	Sections    map[dif.SectionType]Verdict
}

// fieldSpec describes one arbitration group: which pack types hold copies
// of the field and which sections outrank which on a tie.
type fieldSpec struct {
	name      string
	types     []dif.PackType
	authority []dif.SectionType
	render    func(frame.PackSample) string
	valid     func(frame.PackSample, dif.Standard) bool
}

func timeValue(s frame.PackSample) string {
	if s.Pack.Timecode == nil || !s.Pack.Timecode.HasTime() {
		return ""
	}
	return s.Pack.Timecode.String()
}

func dateValue(s frame.PackSample) string {
	if s.Pack.Date == nil || !s.Pack.Date.HasDate() {
		return ""
	}
	return s.Pack.Date.String()
}

// A copy is internally valid when its pack decoded without field errors,
// its sync block parity held (subcode copies), and its decoded fields
// pass the range rules on their own. The drop frame flag disqualifies a
// 625/50 title copy the same way the range rule flags it.
func timeValid(s frame.PackSample, std dif.Standard) bool {
	if s.Pack.Malformed() || !s.ParityOK || !rules.TimecodeValid(s.Pack.Timecode, std) {
		return false
	}
	if std == dif.PAL && s.Pack.Type == dif.PackTitleTimecode && s.Pack.Timecode.DropFrame {
		return false
	}
	return true
}

func dateValid(s frame.PackSample, std dif.Standard) bool {
	return !s.Pack.Malformed() && s.ParityOK && rules.DateValid(s.Pack.Date)
}

// Arbitration order matters: the timecode group is resolved first so that
// an adopted title timecode settles the VAUX copy before the recording
// time group compares it against the AAUX copy.
func fieldSpecs() []fieldSpec {
	return []fieldSpec{
		{
			name:      "timecode",
			types:     []dif.PackType{dif.PackTitleTimecode, dif.PackVAUXRecTime},
			authority: []dif.SectionType{dif.SectionSubcode, dif.SectionVAUX},
			render:    timeValue,
			valid:     timeValid,
		},
		{
			name:      "recording date",
			types:     []dif.PackType{dif.PackVAUXRecDate, dif.PackAAUXRecDate},
			authority: []dif.SectionType{dif.SectionVAUX, dif.SectionAudio},
			render:    dateValue,
			valid:     dateValid,
		},
		{
			name:      "recording time",
			types:     []dif.PackType{dif.PackVAUXRecTime, dif.PackAAUXRecTime},
			authority: []dif.SectionType{dif.SectionVAUX, dif.SectionAudio},
			render:    timeValue,
			valid:     timeValid,
		},
	}
}

// Repair arbitrates every redundant metadata field of the frame, rewrites
// overruled copies in place, and returns the outcome together with the
// retained diagnostics.
func Repair(f *frame.Frame, std dif.Standard, diags []rules.Diagnostic) *Outcome {
	out := &Outcome{
		Frame:       f,
		Diagnostics: diags,
		Sections:    make(map[dif.SectionType]Verdict),
	}
	for t := dif.SectionHeader; t <= dif.SectionVideo; t++ {
		out.Sections[t] = Trusted
		if f.MissingCount(t) > 0 {
			out.Sections[t] = Unrecoverable
		}
	}
	for _, spec := range fieldSpecs() {
		res := arbitrate(f, std, spec)
		out.Fields = append(out.Fields, res)
		if res.Verdict == Repaired {
			apply(f, std, spec, res)
		}
		noteSections(out.Sections, res)
	}
	return out
}

type candidate struct {
	sample frame.PackSample
	value  string
	valid  bool
}

func arbitrate(f *frame.Frame, std dif.Standard, spec fieldSpec) FieldResolution {
	res := FieldResolution{Field: spec.name, Verdict: Trusted}
	samples := f.PackCopies(spec.types...)

	var present []candidate
	for _, s := range samples {
		v := spec.render(s)
		if v == "" {
			continue
		}
		present = append(present, candidate{s, v, spec.valid(s, std)})
	}
	res.Copies = len(present)
	if len(present) == 0 {
		return res
	}

	votes := make(map[string]int)
	var order []string
	for _, c := range present {
		if !c.valid {
			continue
		}
		if votes[c.value] == 0 {
			order = append(order, c.value)
		}
		votes[c.value]++
	}

	if len(order) == 0 {
		res.Verdict = Unrecoverable
		for _, c := range present {
			res.Discarded = append(res.Discarded, describe(c.sample, c.value))
			res.touched = appendSection(res.touched, c.sample.Block.Type)
		}
		return res
	}

	// Majority vote among the internally valid copies, duplicates
	// included. Ties fall to the copy from the most authoritative
	// section.
	winner := order[0]
	for _, v := range order[1:] {
		if votes[v] > votes[winner] {
			winner = v
		}
	}
	tied := []string{}
	for _, v := range order {
		if votes[v] == votes[winner] {
			tied = append(tied, v)
		}
	}
	if len(tied) > 1 {
		winner = breakTie(present, spec.authority, tied)
	}

	res.Value = winner
	for _, sec := range spec.authority {
		found := false
		for _, c := range present {
			if c.valid && c.value == winner && c.sample.Block.Type == sec {
				res.Source = sec
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	for _, c := range present {
		if c.value != winner {
			res.Discarded = append(res.Discarded, describe(c.sample, c.value))
			res.touched = appendSection(res.touched, c.sample.Block.Type)
		}
	}
	if len(res.Discarded) > 0 {
		res.Verdict = Repaired
	}
	return res
}

func appendSection(secs []dif.SectionType, s dif.SectionType) []dif.SectionType {
	for _, have := range secs {
		if have == s {
			return secs
		}
	}
	return append(secs, s)
}

func breakTie(present []candidate, authority []dif.SectionType, tied []string) string {
	inTie := func(v string) bool {
		for _, t := range tied {
			if t == v {
				return true
			}
		}
		return false
	}
	for _, sec := range authority {
		for _, c := range present {
			if c.valid && c.sample.Block.Type == sec && inTie(c.value) {
				return c.value
			}
		}
	}
	return tied[0]
}

func describe(s frame.PackSample, value string) string {
	tag := ""
	if s.Duplicate {
		tag = " (duplicate)"
	}
	return fmt.Sprintf("%s pack %d%s: %s", s.Block, s.PackIndex, tag, value)
}

// apply rewrites every copy of the field that does not carry the adopted
// value. The replacement keeps the pack type of the slot it lands in.
func apply(f *frame.Frame, std dif.Standard, spec fieldSpec, res FieldResolution) {
	var adoptedTC *dif.Timecode
	var adoptedDate *dif.RecDate
	f.EachBlock(func(b *dif.Block, dup bool) {
		for _, s := range blockSamples(b, spec.types) {
			if spec.render(*s) == res.Value {
				if adoptedTC == nil && s.Pack.Timecode != nil {
					adoptedTC = s.Pack.Timecode
				}
				if adoptedDate == nil && s.Pack.Date != nil {
					adoptedDate = s.Pack.Date
				}
			}
		}
	})
	if adoptedTC == nil && adoptedDate == nil {
		return
	}
	f.EachBlock(func(b *dif.Block, dup bool) {
		for _, s := range blockSamples(b, spec.types) {
			// Copies with no recorded value stay absent; repair never
			// invents data that was not on the tape.
			if v := spec.render(*s); v == "" || v == res.Value {
				continue
			}
			p := packOf(b, s.PackIndex)
			if p == nil {
				continue
			}
			rewritten := dif.Pack{Type: p.Type}
			if adoptedTC != nil {
				tc := *adoptedTC
				rewritten.Timecode = &tc
			} else {
				d := *adoptedDate
				rewritten.Date = &d
			}
			body := rewritten.Encode(std)
			copy(rewritten.Raw[:], body[1:])
			*p = rewritten
		}
	})
}

// blockSamples collects the pack occurrences of the wanted types inside a
// single block, mirroring the frame-level PackCopies indexing.
func blockSamples(b *dif.Block, types []dif.PackType) []*frame.PackSample {
	wanted := func(t dif.PackType) bool {
		for _, w := range types {
			if w == t {
				return true
			}
		}
		return false
	}
	var out []*frame.PackSample
	add := func(idx int, parityOK bool, p dif.Pack) {
		out = append(out, &frame.PackSample{
			Block: b.ID, PackIndex: idx, ParityOK: parityOK, Pack: p,
		})
	}
	switch {
	case b.Subcode != nil:
		for i := range b.Subcode.SSYBs {
			sb := &b.Subcode.SSYBs[i]
			if wanted(sb.Pack.Type) {
				add(i, sb.ParityOK, sb.Pack)
			}
		}
	case b.VAUX != nil:
		for i := range b.VAUX.Packs {
			if wanted(b.VAUX.Packs[i].Type) {
				add(i, true, b.VAUX.Packs[i])
			}
		}
	case b.Audio != nil:
		if wanted(b.Audio.Pack.Type) {
			add(0, true, b.Audio.Pack)
		}
	}
	return out
}

// packOf returns a mutable pointer to the pack at the given index inside
// the block, following the same indexing as blockSamples.
func packOf(b *dif.Block, idx int) *dif.Pack {
	switch {
	case b.Subcode != nil:
		if idx >= 0 && idx < len(b.Subcode.SSYBs) {
			return &b.Subcode.SSYBs[idx].Pack
		}
	case b.VAUX != nil:
		if idx >= 0 && idx < len(b.VAUX.Packs) {
			return &b.VAUX.Packs[idx]
		}
	case b.Audio != nil:
		if idx == 0 {
			return &b.Audio.Pack
		}
	}
	return nil
}

func noteSections(sections map[dif.SectionType]Verdict, res FieldResolution) {
	if res.Verdict == Trusted {
		return
	}
	for _, sec := range res.touched {
		if res.Verdict > sections[sec] {
			sections[sec] = res.Verdict
		}
	}
}
