package format

import "encoding/json"

// JSONDecoder unmarshals raw into a generic any (map/slice/scalar), then
// re-marshals it compactly to get a stable size figure independent of the
// original payload's whitespace.
type JSONDecoder struct{}

func (JSONDecoder) Decode(raw []byte) (any, int, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, 0, err
	}
	compact, err := json.Marshal(value)
	if err != nil {
		return nil, 0, err
	}
	return value, len(compact), nil
}
