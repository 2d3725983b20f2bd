package dif

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownBlockType = errors.New("unknown DIF section type")
	ErrShortBlock       = errors.New("DIF block shorter than 80 bytes")
)

const (
	ssybCount = 6
	ssybSize  = 8

	vauxPacksPerBlock = 15

	// AudioDataSize is the PCM payload length in one audio block, after
	// the leading AAUX pack.
	AudioDataSize = PayloadSize - 5
)

// HeaderInfo is the decoded content of a header section block.
type HeaderInfo struct {
	DSF bool // true for 625/50 system layout
	APT uint8

	TF1, TF2, TF3 bool
	AP1, AP2, AP3 uint8
}

// SSYB is one subcode sync block: two application ID bytes, a stored
// parity byte over them, and a 5-byte pack.
type SSYB struct {
	ID0, ID1 uint8
	Parity   uint8
	ParityOK bool
	Pack     Pack
}

// IDParity computes the expected sync block parity byte.
func IDParity(id0, id1 uint8) uint8 {
	return id0 ^ id1 ^ 0xFF
}

// SubcodeInfo is the decoded content of a subcode section block.
type SubcodeInfo struct {
	SSYBs [ssybCount]SSYB
}

// VAUXInfo is the decoded content of a VAUX section block.
type VAUXInfo struct {
	Packs [vauxPacksPerBlock]Pack
}

// AudioInfo is the decoded content of an audio section block: one AAUX
// pack followed by raw PCM bytes. The sample bytes are not interpreted
// here; they are handed to the downstream codec as-is.
type AudioInfo struct {
	Pack Pack
	Data []byte
}

// VideoInfo holds the raw compressed macroblock payload of a video block.
type VideoInfo struct {
	Data []byte
}

// Block is one decoded DIF block. Exactly one of the section pointers is
// set, matching ID.Type. The raw bytes are retained so any block, valid
// or flagged, re-encodes bit-exactly.
type Block struct {
	ID  Identity
	Arb uint8 // ID0 arbitrary bits; a rolling frame counter on some decks, 0xF when unused
	FSC bool

	Raw [BlockSize]byte

	Header  *HeaderInfo
	Subcode *SubcodeInfo
	VAUX    *VAUXInfo
	Audio   *AudioInfo
	Video   *VideoInfo

	Errs []string
}

// ParseID interprets the 3-byte DIF block identity header. It fails only
// when the section discriminator has no defined mapping.
func ParseID(raw []byte) (Identity, uint8, bool, error) {
	if len(raw) < IDSize {
		return Identity{}, 0, false, ErrShortBlock
	}
	sct := SectionType(raw[0] >> 5)
	if sct > SectionVideo {
		return Identity{}, 0, false, fmt.Errorf("%w: %d", ErrUnknownBlockType, sct)
	}
	id := Identity{
		Seq:    raw[1] >> 4,
		Type:   sct,
		Number: raw[2],
	}
	arb := raw[0] & 0x0F
	fsc := raw[1]&0x08 != 0
	return id, arb, fsc, nil
}

// PlausibleID reports whether the bytes look like a DIF block ID for the
// given standard: known section type, reserved bits set, and an identity
// that addresses a real frame slot. Used during resynchronization.
func PlausibleID(raw []byte, std Standard) bool {
	if len(raw) < IDSize {
		return false
	}
	if raw[0]&0x10 == 0 || raw[1]&0x07 != 0x07 {
		return false
	}
	id, _, _, err := ParseID(raw)
	if err != nil {
		return false
	}
	return id.Valid(std)
}

// DecodeBlock interprets one 80-byte DIF block. A hard error is returned
// only when the block cannot be typed at all; field-level problems are
// recorded in Block.Errs with the raw bits retained.
func DecodeBlock(raw []byte, std Standard) (*Block, error) {
	if len(raw) < BlockSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortBlock, len(raw))
	}
	id, arb, fsc, err := ParseID(raw)
	if err != nil {
		return nil, err
	}
	b := &Block{ID: id, Arb: arb, FSC: fsc}
	copy(b.Raw[:], raw[:BlockSize])
	if !id.Valid(std) {
		b.Errs = append(b.Errs, fmt.Sprintf("block identity %s does not address a %s frame slot", id, std))
	}
	payload := b.Raw[IDSize:]
	switch id.Type {
	case SectionHeader:
		b.Header = decodeHeaderSection(payload)
	case SectionSubcode:
		b.Subcode = decodeSubcodeSection(payload, std, &b.Errs)
	case SectionVAUX:
		b.VAUX = decodeVAUXSection(payload, std, &b.Errs)
	case SectionAudio:
		b.Audio = decodeAudioSection(payload, std, &b.Errs)
	case SectionVideo:
		b.Video = &VideoInfo{Data: payload}
	}
	return b, nil
}

func decodeHeaderSection(payload []byte) *HeaderInfo {
	h := &HeaderInfo{}
	h.DSF = payload[0]&0x80 != 0
	h.APT = payload[1] & 0x07
	h.TF1 = payload[2]&0x80 != 0
	h.AP1 = payload[2] & 0x07
	h.TF2 = payload[3]&0x80 != 0
	h.AP2 = payload[3] & 0x07
	h.TF3 = payload[4]&0x80 != 0
	h.AP3 = payload[4] & 0x07
	return h
}

func decodeSubcodeSection(payload []byte, std Standard, errs *[]string) *SubcodeInfo {
	sc := &SubcodeInfo{}
	for i := 0; i < ssybCount; i++ {
		raw := payload[i*ssybSize : (i+1)*ssybSize]
		sb := SSYB{ID0: raw[0], ID1: raw[1], Parity: raw[2]}
		sb.ParityOK = sb.Parity == IDParity(sb.ID0, sb.ID1)
		if !sb.ParityOK {
			*errs = append(*errs, fmt.Sprintf("sync block %d parity mismatch: stored 0x%02X, computed 0x%02X",
				i, sb.Parity, IDParity(sb.ID0, sb.ID1)))
		}
		sb.Pack = DecodePack(raw[3:8], std)
		for _, e := range sb.Pack.Errs {
			*errs = append(*errs, fmt.Sprintf("sync block %d %s pack: %s", i, sb.Pack.Type, e))
		}
		sc.SSYBs[i] = sb
	}
	return sc
}

func decodeVAUXSection(payload []byte, std Standard, errs *[]string) *VAUXInfo {
	va := &VAUXInfo{}
	for i := 0; i < vauxPacksPerBlock; i++ {
		va.Packs[i] = DecodePack(payload[i*5:(i+1)*5], std)
		for _, e := range va.Packs[i].Errs {
			*errs = append(*errs, fmt.Sprintf("vaux pack %d %s: %s", i, va.Packs[i].Type, e))
		}
	}
	return va
}

func decodeAudioSection(payload []byte, std Standard, errs *[]string) *AudioInfo {
	au := &AudioInfo{Data: payload[5:]}
	au.Pack = DecodePack(payload[:5], std)
	for _, e := range au.Pack.Errs {
		*errs = append(*errs, fmt.Sprintf("aaux %s pack: %s", au.Pack.Type, e))
	}
	return au
}

// Encode serializes the block back to 80 bytes. Reserved and opaque areas
// come from the retained raw bytes; structured fields are re-written so an
// edited block serializes consistently.
func (b *Block) Encode(std Standard) []byte {
	out := make([]byte, BlockSize)
	copy(out, b.Raw[:])
	out[0] = uint8(b.ID.Type)<<5 | 0x10 | b.Arb&0x0F
	out[1] = b.ID.Seq<<4 | 0x07
	if b.FSC {
		out[1] |= 0x08
	}
	out[2] = b.ID.Number
	payload := out[IDSize:]
	switch {
	case b.Header != nil:
		encodeHeaderSection(b.Header, payload)
	case b.Subcode != nil:
		for i, sb := range b.Subcode.SSYBs {
			raw := payload[i*ssybSize : (i+1)*ssybSize]
			raw[0], raw[1], raw[2] = sb.ID0, sb.ID1, sb.Parity
			pack := sb.Pack.Encode(std)
			copy(raw[3:], pack[:])
		}
	case b.VAUX != nil:
		for i, p := range b.VAUX.Packs {
			pack := p.Encode(std)
			copy(payload[i*5:], pack[:])
		}
	case b.Audio != nil:
		pack := b.Audio.Pack.Encode(std)
		copy(payload[:5], pack[:])
		copy(payload[5:], b.Audio.Data)
	case b.Video != nil:
		copy(payload, b.Video.Data)
	}
	return out
}

func encodeHeaderSection(h *HeaderInfo, payload []byte) {
	setFlag := func(idx int, on bool, mask uint8) {
		if on {
			payload[idx] |= mask
		} else {
			payload[idx] &^= mask
		}
	}
	setFlag(0, h.DSF, 0x80)
	payload[1] = payload[1]&^0x07 | h.APT&0x07
	setFlag(2, h.TF1, 0x80)
	payload[2] = payload[2]&^0x07 | h.AP1&0x07
	setFlag(3, h.TF2, 0x80)
	payload[3] = payload[3]&^0x07 | h.AP2&0x07
	setFlag(4, h.TF3, 0x80)
	payload[4] = payload[4]&^0x07 | h.AP3&0x07
}
