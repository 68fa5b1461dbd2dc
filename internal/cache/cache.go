package cache

import (
	"context"
	"fmt"
	"time"
)

// ResultKey identifies one conversion result. Hash is sha256 over the
// model, system instruction and prompt.
type ResultKey struct {
	ModelID   string
	VersionID string
	Hash      string
}

// String converts the structured key into the final string used in Redis/map.
func (k ResultKey) String() string {
	// result:<MODEL_ID>:<VERSION_ID>:<HASH_HEX>
	return fmt.Sprintf("result:%s:%s:%s", k.ModelID, k.VersionID, k.Hash)
}

// ResultCache stores encoded conversion results.
// Implemented by a no-op (default), memory (dev) and Redis (prod).
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (Nop) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}
