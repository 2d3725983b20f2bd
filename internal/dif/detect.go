package dif

import "errors"

// ErrNoHeader is returned when a probe buffer holds no header block.
var ErrNoHeader = errors.New("no header block found in probe window")

// DetectStandard inspects the leading bytes of a capture and returns the
// system declared by the first header block found on an 80-byte boundary.
func DetectStandard(raw []byte) (Standard, error) {
	for off := 0; off+BlockSize <= len(raw); off += BlockSize {
		id, _, _, err := ParseID(raw[off:])
		if err != nil {
			continue
		}
		if id.Type != SectionHeader {
			continue
		}
		if raw[off+IDSize]&0x80 != 0 {
			return PAL, nil
		}
		return NTSC, nil
	}
	return NTSC, ErrNoHeader
}
