package store

import "github.com/golang/snappy"

// encodeBody snappy-compresses a message body before it is handed to the
// underlying log store, the way a real broker would compress the wire
// payload it persists.
func encodeBody(body []byte) []byte {
	if len(body) == 0 {
		return body
	}
	return snappy.Encode(nil, body)
}

// decodeBody reverses encodeBody. Bodies appended through this package are
// always snappy frames, so any decode failure is a corrupt-store bug, not a
// caller error.
func decodeBody(encoded []byte) ([]byte, error) {
	if len(encoded) == 0 {
		return encoded, nil
	}
	return snappy.Decode(nil, encoded)
}
