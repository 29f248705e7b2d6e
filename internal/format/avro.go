package format

// AvroDecoder is a named placeholder. No repo in the retrieved pack
// imports a Go Avro library, so this decodes nothing and always reports
// ErrUnsupportedFormat; a real implementation needs a schema registry
// client this system has no grounding for.
type AvroDecoder struct{}

func (AvroDecoder) Decode([]byte) (any, int, error) {
	return nil, 0, ErrUnsupportedFormat
}
