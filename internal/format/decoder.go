// Package format decodes the raw bytes a broker.Message carries into the
// generic value the record factory wraps into a ConsumerRecord. Decoders
// are the embedded-format collaborator the consumer engine never inspects
// directly — it only calls Decoder.Decode and uses the size it reports.
package format

import "errors"

// ErrUnsupportedFormat is returned by ForName for an unknown format name,
// and by a decoder that recognizes its embedded format but does not
// implement it (AvroDecoder).
var ErrUnsupportedFormat = errors.New("format: unsupported embedded format")

// Decoder turns a raw payload into a value plus the proxy's accounting
// size for it. The size is what response byte-budget checks use; it need
// not equal len(raw) once framing/decoding changes the byte count (e.g.
// JSON re-marshaled compactly).
type Decoder interface {
	Decode(raw []byte) (value any, size int, err error)
}

// Name identifies one of the embedded formats a consumer instance can
// request at creation time.
type Name string

const (
	Binary Name = "binary"
	JSON   Name = "json"
	Avro   Name = "avro"
)

// ForName returns the Decoder for name, or ErrUnsupportedFormat if name is
// unknown. Avro resolves without error to AvroDecoder, whose Decode always
// fails with ErrUnsupportedFormat.
func ForName(name Name) (Decoder, error) {
	switch name {
	case Binary:
		return BinaryDecoder{}, nil
	case JSON:
		return JSONDecoder{}, nil
	case Avro:
		return AvroDecoder{}, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}
