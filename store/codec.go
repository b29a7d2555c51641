package store

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/warp/shop-ledger/ledger"
)

// ErrCorrupt is returned for a blob that is neither valid base64 nor JSON,
// or whose payload is not valid UTF-8.
var ErrCorrupt = errors.New("corrupt document blob")

// Encode serializes a document as base64 over its UTF-8 JSON. The base64
// layer keeps the blob ASCII-only whatever script the shop's data is in.
func Encode(doc *ledger.Document) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// Decode returns the JSON payload of a blob. Plain JSON (an older export,
// or a hand-edited file) is accepted as is.
func Decode(blob []byte) ([]byte, error) {
	blob = bytes.TrimSpace(blob)
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrCorrupt)
	}
	raw := blob
	if blob[0] != '{' {
		raw = make([]byte, base64.StdEncoding.DecodedLen(len(blob)))
		n, err := base64.StdEncoding.Decode(raw, blob)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		raw = raw[:n]
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: payload is not UTF-8", ErrCorrupt)
	}
	return raw, nil
}

// probe decodes a payload loosely, numbers kept exact, to read its version
// and, for legacy documents, to feed migration.
func probe(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: not an object", ErrCorrupt)
	}
	return m, nil
}
