package settings

import (
	"context"

	"github.com/nerrad567/solar-control-core/internal/value"
)

// Publisher sends one value to a bus topic. *command.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, v value.Value) error
}

// PublishAll sends every key of set to topic(key), in key order, and
// returns how many keys failed. A failed key is logged and never stops
// the remaining keys.
func PublishAll(ctx context.Context, p Publisher, set Set, topic func(key string) string, logger Logger) int {
	if logger == nil {
		logger = noopLogger{}
	}

	failed := 0
	for _, key := range set.keys {
		t := topic(key)
		if err := p.Publish(ctx, t, set.vals[key]); err != nil {
			failed++
			logger.Warn("setting publish failed", "key", key, "topic", t, "error", err)
		}
	}
	return failed
}
