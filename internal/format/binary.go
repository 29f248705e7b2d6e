package format

// BinaryDecoder passes the raw payload through unchanged. Size is the raw
// byte length, the same "omit framing" rule applied trivially since there
// is no framing to strip.
type BinaryDecoder struct{}

func (BinaryDecoder) Decode(raw []byte) (any, int, error) {
	return raw, len(raw), nil
}
