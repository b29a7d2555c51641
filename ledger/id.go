package ledger

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mathrand "math/rand"
	"strconv"
	"strings"
	"time"
)

const (
	timePartLen   = 9
	randomPartLen = 8
)

// generateID is swapped in tests to simulate a broken generator.
var generateID = NewID

// NewID returns a sortable id: a base-36 millisecond timestamp followed by a
// base-36 random suffix, prefixed with "<prefix>_" or just "_".
// Uniqueness is probabilistic; no registry is kept.
func NewID(prefix string) string {
	ts := pad36(strconv.FormatInt(time.Now().UnixMilli(), 36), timePartLen)
	return prefix + "_" + ts + randomSuffix()
}

func randomSuffix() string {
	var b [8]byte
	var n uint64
	if _, err := rand.Read(b[:]); err == nil {
		n = binary.BigEndian.Uint64(b[:])
	} else {
		n = mathrand.Uint64()
	}
	s := strconv.FormatUint(n, 36)
	if len(s) > randomPartLen {
		s = s[len(s)-randomPartLen:]
	}
	return pad36(s, randomPartLen)
}

func pad36(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// ensureID keeps a non-blank id, otherwise generates one. If the generator
// yields nothing it falls back to a nanosecond + random composite, so the
// result is never empty.
func ensureID(prefix, id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	if id = generateID(prefix); strings.TrimSpace(id) != "" {
		return id
	}
	return fmt.Sprintf("%s_%s%s",
		prefix,
		strconv.FormatInt(time.Now().UnixNano(), 36),
		strconv.FormatUint(mathrand.Uint64(), 36))
}

// unusedID is ensureID with a collision check: an id already taken in the
// target collection is replaced by a generated one.
func unusedID(prefix, id string, taken func(string) bool) string {
	id = ensureID(prefix, id)
	for taken(id) {
		id = ensureID(prefix, "")
	}
	return id
}
