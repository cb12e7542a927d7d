package cache

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// UsedCommitmentsKey is the redis set holding accepted commitments
const UsedCommitmentsKey = "proof:used_commitments"

// Replay remembers commitments the contract has already accepted. Entries
// are never removed: a used commitment stays used.
type Replay interface {
	Seen(ctx context.Context, commitment string) (bool, error)
	Mark(ctx context.Context, commitment string) error
}

// Memory is a process-local Replay
type Memory struct {
	c *gocache.Cache
}

// NewMemory creates a new in-memory replay cache
func NewMemory() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, 0)}
}

func (m *Memory) Seen(_ context.Context, commitment string) (bool, error) {
	_, ok := m.c.Get(commitment)
	return ok, nil
}

func (m *Memory) Mark(_ context.Context, commitment string) error {
	m.c.Set(commitment, struct{}{}, gocache.NoExpiration)
	return nil
}

// Redis shares the replay set between service instances
type Redis struct {
	client *redis.Client
}

// NewRedis creates a new redis-backed replay cache
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Seen(ctx context.Context, commitment string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, UsedCommitmentsKey, commitment).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check commitment: %w", err)
	}
	return ok, nil
}

func (r *Redis) Mark(ctx context.Context, commitment string) error {
	if err := r.client.SAdd(ctx, UsedCommitmentsKey, commitment).Err(); err != nil {
		return fmt.Errorf("failed to mark commitment: %w", err)
	}
	return nil
}
