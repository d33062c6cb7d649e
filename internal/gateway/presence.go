package gateway

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Presence tracks which users are connected to the feed. A user with several
// connections stays present until the last one leaves.
type Presence interface {
	Join(ctx context.Context, user string) error
	Leave(ctx context.Context, user string) error
	Members(ctx context.Context) ([]string, error)
}

type memoryPresence struct {
	mu    sync.Mutex
	conns map[string]int
}

func NewMemoryPresence() Presence {
	return &memoryPresence{conns: make(map[string]int)}
}

func (p *memoryPresence) Join(_ context.Context, user string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[user]++
	return nil
}

func (p *memoryPresence) Leave(_ context.Context, user string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns[user] <= 1 {
		delete(p.conns, user)
		return nil
	}
	p.conns[user]--
	return nil
}

func (p *memoryPresence) Members(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.conns))
	for u := range p.conns {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

// redisPresence keeps per-user connection counts in a hash shared by all
// gateway instances.
type redisPresence struct {
	rdb *redis.Client
	key string
}

func NewRedisPresence(rdb *redis.Client, feed string) Presence {
	return &redisPresence{rdb: rdb, key: "feed:" + feed + ":users"}
}

func (p *redisPresence) Join(ctx context.Context, user string) error {
	return p.rdb.HIncrBy(ctx, p.key, user, 1).Err()
}

func (p *redisPresence) Leave(ctx context.Context, user string) error {
	n, err := p.rdb.HIncrBy(ctx, p.key, user, -1).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return p.rdb.HDel(ctx, p.key, user).Err()
	}
	return nil
}

func (p *redisPresence) Members(ctx context.Context) ([]string, error) {
	counts, err := p.rdb.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(counts))
	for u, raw := range counts {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out, nil
}
