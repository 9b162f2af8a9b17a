// Package journal records signups whose account exists without a profile
// so reconciliation can finish or undo them later.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Key is the Redis hash holding orphaned signups by uid.
const Key = "signup:orphans"

// Memory is a process-local journal.
type Memory struct {
	mu      sync.Mutex
	entries map[string]domain.OrphanedSignup
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]domain.OrphanedSignup)}
}

// Record stores or replaces the entry for o.UID.
func (m *Memory) Record(_ context.Context, o domain.OrphanedSignup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[o.UID] = o
	return nil
}

// List returns entries oldest first.
func (m *Memory) List(_ context.Context) ([]domain.OrphanedSignup, error) {
	m.mu.Lock()
	out := make([]domain.OrphanedSignup, 0, len(m.entries))
	for _, o := range m.entries {
		out = append(out, o)
	}
	m.mu.Unlock()

	sortOldestFirst(out)
	return out, nil
}

func (m *Memory) Remove(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, uid)
	return nil
}

// Redis keeps the journal in a hash so every replica can reconcile it.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a Redis-backed journal under Key.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, key: Key}
}

func (r *Redis) Record(ctx context.Context, o domain.OrphanedSignup) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode orphan: %w", err)
	}
	if err := r.client.HSet(ctx, r.key, o.UID, raw).Err(); err != nil {
		return fmt.Errorf("record orphan %s: %w", o.UID, err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context) ([]domain.OrphanedSignup, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}

	out := make([]domain.OrphanedSignup, 0, len(all))
	for uid, raw := range all {
		var o domain.OrphanedSignup
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("decode orphan %s: %w", uid, err)
		}
		out = append(out, o)
	}
	sortOldestFirst(out)
	return out, nil
}

func (r *Redis) Remove(ctx context.Context, uid string) error {
	if err := r.client.HDel(ctx, r.key, uid).Err(); err != nil {
		return fmt.Errorf("remove orphan %s: %w", uid, err)
	}
	return nil
}

func sortOldestFirst(entries []domain.OrphanedSignup) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RecordedAt.Before(entries[j].RecordedAt)
	})
}
