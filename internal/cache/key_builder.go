package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// BuildResultKey hashes everything that determines the upstream reply at
// temperature 0: model, instruction and prompt. The prompt is hashed
// verbatim; whitespace differences produce different keys.
func BuildResultKey(model, instruction, prompt, versionID string) ResultKey {
	modelID := strings.TrimSpace(model)

	h := sha256.New()
	for _, part := range []string{modelID, instruction, prompt} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}

	return ResultKey{
		ModelID:   modelID,
		VersionID: strings.TrimSpace(versionID),
		Hash:      hex.EncodeToString(h.Sum(nil)),
	}
}
