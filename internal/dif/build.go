package dif

// NewBlock returns a well-formed blank block of the given identity: a
// valid ID, no-information packs everywhere, and reserved areas set to
// all ones the way a clean deck records them.
func NewBlock(id Identity, std Standard) *Block {
	raw := make([]byte, BlockSize)
	for i := range raw {
		raw[i] = 0xFF
	}
	raw[0] = uint8(id.Type)<<5 | 0x1F
	raw[1] = id.Seq<<4 | 0x07
	raw[2] = id.Number
	if id.Type == SectionHeader {
		if std == PAL {
			raw[3] = 0xBF
		} else {
			raw[3] = 0x3F
		}
		raw[4], raw[5], raw[6], raw[7] = 0x78, 0x78, 0x78, 0x78
	}
	b, err := DecodeBlock(raw, std)
	if err != nil {
		panic(err)
	}
	return b
}
