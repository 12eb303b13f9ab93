package nodekind

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// jsonClone deep-copies v through a JSON round-trip.
func jsonClone[T any](v T) T {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// jsonFingerprint produces a stable content hash of v's normalized JSON
// encoding, prefixed with kind so two kinds never collide even if their
// settings happen to serialize identically.
func jsonFingerprint(kind string, v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(kind)
	}
	sum := sha256.Sum256(append([]byte(kind+":"), data...))
	return hex.EncodeToString(sum[:])
}
