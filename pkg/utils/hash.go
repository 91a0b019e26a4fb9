package utils

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// HashString returns the hex SHA-256 of the input. Used for cache keys and
// idempotency request hashes.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", sum)
}

// HashRequestBody produces a stable hash of a JSON request body by
// re-marshalling with sorted keys, so that key order in the wire payload
// does not change the idempotency hash.
func HashRequestBody(body map[string]interface{}) string {
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, body[k])
	}

	data, err := json.Marshal(ordered)
	if err != nil {
		return HashString(fmt.Sprintf("%v", body))
	}
	return HashString(string(data))
}
