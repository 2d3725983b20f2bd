package dif

import (
	"fmt"

	"example.com/dvgate/internal/bitfield"
)

// PackType identifies a 5-byte pack by its header byte.
type PackType uint8

const (
	PackTitleTimecode     PackType = 0x13
	PackTitleBinaryGroup  PackType = 0x14
	PackAAUXSource        PackType = 0x50
	PackAAUXSourceControl PackType = 0x51
	PackAAUXRecDate       PackType = 0x52
	PackAAUXRecTime       PackType = 0x53
	PackAAUXBinaryGroup   PackType = 0x54
	PackVAUXSource        PackType = 0x60
	PackVAUXSourceControl PackType = 0x61
	PackVAUXRecDate       PackType = 0x62
	PackVAUXRecTime       PackType = 0x63
	PackVAUXBinaryGroup   PackType = 0x64
	PackNoInfo            PackType = 0xFF
)

func (t PackType) String() string {
	switch t {
	case PackTitleTimecode:
		return "title timecode"
	case PackTitleBinaryGroup:
		return "title binary group"
	case PackAAUXSource:
		return "aaux source"
	case PackAAUXSourceControl:
		return "aaux source control"
	case PackAAUXRecDate:
		return "aaux rec date"
	case PackAAUXRecTime:
		return "aaux rec time"
	case PackAAUXBinaryGroup:
		return "aaux binary group"
	case PackVAUXSource:
		return "vaux source"
	case PackVAUXSourceControl:
		return "vaux source control"
	case PackVAUXRecDate:
		return "vaux rec date"
	case PackVAUXRecTime:
		return "vaux rec time"
	case PackVAUXBinaryGroup:
		return "vaux binary group"
	case PackNoInfo:
		return "no info"
	default:
		return fmt.Sprintf("unknown(0x%02X)", uint8(t))
	}
}

// Pack is one decoded 5-byte pack. The raw body bytes are always retained
// so that a malformed pack still re-encodes bit-exactly; Errs lists any
// fields whose raw bits encode a reserved or illegal value.
type Pack struct {
	Type PackType
	Raw  [4]byte

	Timecode *Timecode   // title timecode and rec time packs
	Date     *RecDate    // rec date packs
	Source   *SourceInfo // AAUX/VAUX source packs

	Errs []string
}

// Malformed reports whether any field of the pack failed decoding.
func (p *Pack) Malformed() bool { return len(p.Errs) > 0 }

// Timecode is the content of a title timecode or recording time pack.
// Absent BCD fields (all bits set on tape) are represented as -1; the hour,
// minute and second fields are either all present or all absent, while the
// frame number may be absent on its own.
type Timecode struct {
	Hour   int
	Minute int
	Second int
	Frame  int

	DropFrame          bool
	ColorFrame         bool
	PolarityCorrection bool
	BinaryGroupFlag    uint8 // 3 bits
}

// HasTime reports whether the hour/minute/second part is present.
func (tc *Timecode) HasTime() bool { return tc.Hour >= 0 }

func (tc *Timecode) String() string {
	if tc == nil || !tc.HasTime() {
		return "--:--:--"
	}
	if tc.Frame < 0 {
		return fmt.Sprintf("%02d:%02d:%02d", tc.Hour, tc.Minute, tc.Second)
	}
	sep := ":"
	if tc.DropFrame {
		sep = ";"
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%02d", tc.Hour, tc.Minute, tc.Second, sep, tc.Frame)
}

// RecDate is the content of a recording date pack. The year is stored on
// tape as two BCD digits; 75 is the rollover threshold, so decoded years
// fall in 1975 through 2074. TZOffsetMinutes is minutes east of GMT in
// half-hour steps, or -1 when no time zone is recorded.
type RecDate struct {
	Year  int // -1 or four-digit year
	Month int
	Day   int

	Weekday         int // 0=Sunday .. 6=Saturday, -1 when absent
	TZOffsetMinutes int
	DST             bool  // meaningful only when TZOffsetMinutes >= 0
	Reserved        uint8 // 2 bits, normally 0x3
}

// HasDate reports whether the year/month/day part is present.
func (d *RecDate) HasDate() bool { return d.Year >= 0 }

func (d *RecDate) String() string {
	if d == nil || !d.HasDate() {
		return "----------"
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// SourceInfo carries the subset of the AAUX/VAUX source packs that the
// validator cross-checks against the configured standard.
type SourceInfo struct {
	FieldCount int   // 50 or 60
	SourceType uint8 // 5 bits
	SampleRate int   // Hz, audio packs only; 0 when not applicable or reserved
}

// DecodePack interprets one 5-byte pack. The standard is needed because
// the 525/60 and 625/50 systems lay out the timecode flag bits differently.
func DecodePack(raw []byte, std Standard) Pack {
	p := Pack{Type: PackType(raw[0])}
	copy(p.Raw[:], raw[1:5])
	switch p.Type {
	case PackTitleTimecode, PackAAUXRecTime, PackVAUXRecTime:
		p.Timecode = decodeTimecode(p.Raw[:], std, &p.Errs)
	case PackAAUXRecDate, PackVAUXRecDate:
		p.Date = decodeRecDate(p.Raw[:], &p.Errs)
	case PackAAUXSource:
		p.Source = decodeAAUXSource(p.Raw[:], &p.Errs)
	case PackVAUXSource:
		p.Source = decodeVAUXSource(p.Raw[:])
	}
	return p
}

// Encode serializes the pack back to its 5-byte wire form. Structured
// bodies are rebuilt from their decoded fields; packs that carry raw-only
// or malformed content round-trip their retained bytes unchanged.
func (p *Pack) Encode(std Standard) [5]byte {
	var out [5]byte
	out[0] = uint8(p.Type)
	switch {
	case p.Malformed():
		copy(out[1:], p.Raw[:])
	case p.Timecode != nil:
		body := encodeTimecode(p.Timecode, std)
		copy(out[1:], body[:])
	case p.Date != nil:
		body := encodeRecDate(p.Date)
		copy(out[1:], body[:])
	default:
		copy(out[1:], p.Raw[:])
	}
	return out
}

// fromBCD converts a split BCD value. All bits set means "no information"
// and maps to -1. tensWidth distinguishes the absent sentinel from a
// plain out-of-range digit.
func fromBCD(tens, units uint32, tensWidth int) (int, bool) {
	if tens == 1<<uint(tensWidth)-1 && units == 0xF {
		return -1, true
	}
	if tens > 9 || units > 9 {
		return 0, false
	}
	return int(tens*10 + units), true
}

func mustRead(raw []byte, bitOff, width int) uint32 {
	v, err := bitfield.ReadUint(raw, bitOff, width)
	if err != nil {
		// Pack bodies are always 4 bytes; field offsets are static.
		panic(err)
	}
	return v
}

func mustWrite(raw []byte, bitOff, width int, v uint32) {
	if err := bitfield.WriteUint(raw, bitOff, width, v); err != nil {
		panic(err)
	}
}

// Bit offsets below are MSB-first within the 4 pack body bytes PC1..PC4.

func decodeTimecode(raw []byte, std Standard, errs *[]string) *Timecode {
	tc := &Timecode{}
	tc.ColorFrame = mustRead(raw, 0, 1) == 1
	tc.DropFrame = mustRead(raw, 1, 1) == 1

	frame, ok := fromBCD(mustRead(raw, 2, 2), mustRead(raw, 4, 4), 2)
	if !ok {
		*errs = append(*errs, "frame number is not a valid BCD value")
	}
	second, ok := fromBCD(mustRead(raw, 9, 3), mustRead(raw, 12, 4), 3)
	if !ok {
		*errs = append(*errs, "second is not a valid BCD value")
	}
	minute, ok := fromBCD(mustRead(raw, 17, 3), mustRead(raw, 20, 4), 3)
	if !ok {
		*errs = append(*errs, "minute is not a valid BCD value")
	}
	hour, ok := fromBCD(mustRead(raw, 26, 2), mustRead(raw, 28, 4), 2)
	if !ok {
		*errs = append(*errs, "hour is not a valid BCD value")
	}

	// The h/m/s group must be fully present or fully absent, and a frame
	// number cannot stand alone.
	present := hour >= 0 || minute >= 0 || second >= 0
	absent := hour < 0 || minute < 0 || second < 0
	if present && absent {
		*errs = append(*errs, "hour/minute/second must be fully present or fully absent")
	}
	if !present && frame >= 0 {
		*errs = append(*errs, "frame number cannot be given without the rest of the time")
	}
	tc.Hour, tc.Minute, tc.Second, tc.Frame = hour, minute, second, frame
	if !present {
		tc.Hour, tc.Minute, tc.Second, tc.Frame = -1, -1, -1, -1
	}

	// The polarity correction and binary group flag bits sit in different
	// positions for the two systems.
	switch std {
	case PAL:
		tc.PolarityCorrection = mustRead(raw, 24, 1) == 1
		tc.BinaryGroupFlag = uint8(mustRead(raw, 8, 1) | mustRead(raw, 25, 1)<<1 | mustRead(raw, 16, 1)<<2)
	default:
		tc.PolarityCorrection = mustRead(raw, 8, 1) == 1
		tc.BinaryGroupFlag = uint8(mustRead(raw, 16, 1) | mustRead(raw, 25, 1)<<1 | mustRead(raw, 24, 1)<<2)
	}
	return tc
}

func encodeTimecode(tc *Timecode, std Standard) [4]byte {
	var out [4]byte
	raw := out[:]
	writeBCD := func(tensOff, tensWidth, unitsOff, value int) {
		if value < 0 {
			mustWrite(raw, tensOff, tensWidth, 1<<uint(tensWidth)-1)
			mustWrite(raw, unitsOff, 4, 0xF)
			return
		}
		mustWrite(raw, tensOff, tensWidth, uint32(value/10))
		mustWrite(raw, unitsOff, 4, uint32(value%10))
	}
	cf, pc := uint32(0), uint32(0)
	if tc.ColorFrame {
		cf = 1
	}
	if tc.PolarityCorrection {
		pc = 1
	}
	df := uint32(1)
	if tc.HasTime() && !tc.DropFrame {
		df = 0
	}
	mustWrite(raw, 0, 1, cf)
	mustWrite(raw, 1, 1, df)
	writeBCD(2, 2, 4, tc.Frame)
	writeBCD(9, 3, 12, tc.Second)
	writeBCD(17, 3, 20, tc.Minute)
	writeBCD(26, 2, 28, tc.Hour)
	bgf := uint32(tc.BinaryGroupFlag)
	switch std {
	case PAL:
		mustWrite(raw, 24, 1, pc)
		mustWrite(raw, 8, 1, bgf&1)
		mustWrite(raw, 25, 1, bgf>>1&1)
		mustWrite(raw, 16, 1, bgf>>2&1)
	default:
		mustWrite(raw, 8, 1, pc)
		mustWrite(raw, 16, 1, bgf&1)
		mustWrite(raw, 25, 1, bgf>>1&1)
		mustWrite(raw, 24, 1, bgf>>2&1)
	}
	return out
}

func decodeRecDate(raw []byte, errs *[]string) *RecDate {
	d := &RecDate{}
	tzHour, ok := fromBCD(mustRead(raw, 2, 2), mustRead(raw, 4, 4), 2)
	if !ok {
		*errs = append(*errs, "time zone hour is not a valid BCD value")
	}
	day, ok := fromBCD(mustRead(raw, 10, 2), mustRead(raw, 12, 4), 2)
	if !ok {
		*errs = append(*errs, "day is not a valid BCD value")
	}
	month, ok := fromBCD(mustRead(raw, 19, 1), mustRead(raw, 20, 4), 1)
	if !ok {
		*errs = append(*errs, "month is not a valid BCD value")
	}
	year, ok := fromBCD(mustRead(raw, 24, 4), mustRead(raw, 28, 4), 4)
	if !ok {
		*errs = append(*errs, "year is not a valid BCD value")
	}

	d.Reserved = uint8(mustRead(raw, 8, 2))
	if wd := mustRead(raw, 16, 3); wd == 7 {
		d.Weekday = -1
	} else {
		d.Weekday = int(wd)
	}

	d.TZOffsetMinutes = -1
	if tzHour >= 0 {
		// The half-hour bit is inverted on tape.
		half := 30
		if mustRead(raw, 1, 1) == 1 {
			half = 0
		}
		if tzHour > 23 {
			*errs = append(*errs, fmt.Sprintf("time zone hour %d is out of range", tzHour))
		} else {
			d.TZOffsetMinutes = tzHour*60 + half
			d.DST = mustRead(raw, 0, 1) == 0
		}
	}

	// The date group must be fully present or fully absent.
	present := year >= 0 || month >= 0 || day >= 0
	absent := year < 0 || month < 0 || day < 0
	if present && absent {
		*errs = append(*errs, "year/month/day must be fully present or fully absent")
	}
	if present && !absent {
		d.Year = 1900 + year
		if year < 75 {
			d.Year = 2000 + year
		}
		d.Month, d.Day = month, day
		if month < 1 || month > 12 {
			*errs = append(*errs, fmt.Sprintf("month %d is out of range", month))
		}
		if day < 1 || day > 31 {
			*errs = append(*errs, fmt.Sprintf("day %d is out of range", day))
		}
	} else {
		d.Year, d.Month, d.Day = -1, -1, -1
	}
	return d
}

func encodeRecDate(d *RecDate) [4]byte {
	var out [4]byte
	raw := out[:]
	writeBCD := func(tensOff, tensWidth, unitsOff, value int) {
		if value < 0 {
			mustWrite(raw, tensOff, tensWidth, 1<<uint(tensWidth)-1)
			mustWrite(raw, unitsOff, 4, 0xF)
			return
		}
		mustWrite(raw, tensOff, tensWidth, uint32(value/10))
		mustWrite(raw, unitsOff, 4, uint32(value%10))
	}
	if d.TZOffsetMinutes >= 0 {
		writeBCD(2, 2, 4, d.TZOffsetMinutes/60)
		tm := uint32(1)
		if d.TZOffsetMinutes%60 != 0 {
			tm = 0
		}
		mustWrite(raw, 1, 1, tm)
		ds := uint32(1)
		if d.DST {
			ds = 0
		}
		mustWrite(raw, 0, 1, ds)
	} else {
		writeBCD(2, 2, 4, -1)
		mustWrite(raw, 1, 1, 1)
		mustWrite(raw, 0, 1, 1)
	}
	writeBCD(10, 2, 12, d.Day)
	mustWrite(raw, 8, 2, uint32(d.Reserved))
	writeBCD(19, 1, 20, d.Month)
	if d.Weekday < 0 {
		mustWrite(raw, 16, 3, 7)
	} else {
		mustWrite(raw, 16, 3, uint32(d.Weekday))
	}
	if d.Year < 0 {
		writeBCD(24, 4, 28, -1)
	} else {
		writeBCD(24, 4, 28, d.Year%100)
	}
	return out
}

func decodeAAUXSource(raw []byte, errs *[]string) *SourceInfo {
	src := &SourceInfo{SourceType: uint8(mustRead(raw, 19, 5))}
	if mustRead(raw, 18, 1) == 1 {
		src.FieldCount = 50
	} else {
		src.FieldCount = 60
	}
	switch mustRead(raw, 26, 3) {
	case 0x0:
		src.SampleRate = 48000
	case 0x1:
		src.SampleRate = 44100
	case 0x2:
		src.SampleRate = 32000
	default:
		*errs = append(*errs, "audio sample rate code is reserved")
	}
	return src
}

func decodeVAUXSource(raw []byte) *SourceInfo {
	src := &SourceInfo{SourceType: uint8(mustRead(raw, 19, 5))}
	if mustRead(raw, 18, 1) == 1 {
		src.FieldCount = 50
	} else {
		src.FieldCount = 60
	}
	return src
}
