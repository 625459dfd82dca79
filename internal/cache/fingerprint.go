package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"bulkpress/internal/models"
	"bulkpress/internal/validation"
)

// Fingerprint derives the cache key for a stage call. The readable
// stage and keyword slug lead the key so patterns such as "content:*" or
// "research:coffee-*" select entries for invalidation; the digest covers the
// exact stage, keyword and request bytes.
func Fingerprint(stage models.Stage, keyword string, input []byte) string {
	h := sha256.New()
	writeField := func(data []byte) {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(data)))
		h.Write(length[:])
		h.Write(data)
	}
	writeField([]byte(stage))
	writeField([]byte(keyword))
	writeField(input)

	return string(stage) + ":" + validation.Slug(keyword) + ":" + hex.EncodeToString(h.Sum(nil))
}
