package ratelimit

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Store is the shared counter backend. Each Eval runs one script atomically,
// so concurrent checks from any number of processes never lose updates.
type Store interface {
	// Available reports whether the store is currently considered reachable.
	Available() bool

	// Eval runs script against keys and returns its integer array reply.
	Eval(ctx context.Context, script *Script, keys []string, args ...interface{}) ([]int64, error)

	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	Stats(ctx context.Context) (StoreStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Script is a named Lua program. The body is loaded once per connection and
// invoked by SHA afterwards.
type Script struct {
	Name string
	lua  *redis.Script
}

// NewScript compiles src under name.
func NewScript(name, src string) *Script {
	return &Script{Name: name, lua: redis.NewScript(src)}
}

// Run executes the script on any go-redis client.
func (s *Script) Run(ctx context.Context, c redis.Scripter, keys []string, args ...interface{}) ([]int64, error) {
	return s.lua.Run(ctx, c, keys, args...).Int64Slice()
}
