package topology

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ContentHash returns the hex SHA-256 of the JSON encoding of v.
func ContentHash(v any) string {
	return contentHash(v)
}

func contentHash(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only plain data structs are hashed; a marshal failure is a programming error.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
