package store

import "sync"

// keyPool provides reusable byte slices for building database keys.
var keyPool = sync.Pool{
	New: func() any {
		// Prefix, "idx:", index name, a 64-char checksum and a job ID fit.
		return make([]byte, 0, 192)
	},
}

// buildKey constructs a database key from its parts using a pooled buffer.
// Callers MUST call releaseKey when done with the key.
func buildKey(parts ...string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0]
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

// buildIndexKey constructs prefix + "idx:" + name + ":" + value (+ ":" + id).
// Callers MUST call releaseKey when done with the key.
func buildIndexKey(prefix, name, value string, id ...string) []byte {
	key := buildKey(prefix, "idx:", name, ":", value)
	for _, s := range id {
		key = append(key, ':')
		key = append(key, s...)
	}
	return key
}

// releaseKey returns a key buffer to the pool. The slice must not be used afterwards.
func releaseKey(key []byte) {
	if cap(key) <= 512 {
		keyPool.Put(key[:0]) //nolint:staticcheck // slices are reused by value
	}
}
