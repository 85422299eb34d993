package cache

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/sha3"
)

// GenerateCacheKey creates a unique cache key for a call.
// Params that differ only in object key order or whitespace share a key.
func GenerateCacheKey(method string, params json.RawMessage) string {
	hash := sha3.Sum256(normalizeParams(params))
	return method + ":" + hex.EncodeToString(hash[:12])
}

// normalizeParams re-encodes params so equal values hash equally
func normalizeParams(params json.RawMessage) []byte {
	if len(params) == 0 {
		return []byte("null")
	}

	dec := json.NewDecoder(bytes.NewReader(params))
	dec.UseNumber()

	var data interface{}
	if err := dec.Decode(&data); err != nil {
		return params
	}

	// encoding/json writes map keys sorted
	result, err := json.Marshal(data)
	if err != nil {
		return params
	}
	return result
}
