package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Progress is an advisory status for a document being generated. It drives
// a loading indicator and is never used for correctness decisions.
type Progress struct {
	Percent   int       `json:"percent"`
	Label     string    `json:"label"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressStore records the latest progress per contract. Concurrent
// generations for the same contract overwrite each other; the last writer
// wins.
type ProgressStore interface {
	Set(ctx context.Context, contractID int64, p Progress) error
	Get(ctx context.Context, contractID int64) (Progress, bool, error)
	Clear(ctx context.Context, contractID int64) error
}

// MemoryProgress keeps progress in process memory. Entries expire after ttl.
type MemoryProgress struct {
	mu      sync.Mutex
	entries map[int64]Progress
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryProgress(ttl time.Duration) *MemoryProgress {
	return &MemoryProgress{
		entries: make(map[int64]Progress),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryProgress) Set(_ context.Context, contractID int64, p Progress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = m.now()
	}
	m.mu.Lock()
	m.entries[contractID] = p
	m.mu.Unlock()
	return nil
}

func (m *MemoryProgress) Get(_ context.Context, contractID int64) (Progress, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.entries[contractID]
	if !ok {
		return Progress{}, false, nil
	}
	if m.ttl > 0 && m.now().Sub(p.UpdatedAt) > m.ttl {
		delete(m.entries, contractID)
		return Progress{}, false, nil
	}
	return p, true, nil
}

func (m *MemoryProgress) Clear(_ context.Context, contractID int64) error {
	m.mu.Lock()
	delete(m.entries, contractID)
	m.mu.Unlock()
	return nil
}

// Prune drops expired entries and returns how many were removed.
func (m *MemoryProgress) Prune() int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	cutoff := m.now().Add(-m.ttl)
	for id, p := range m.entries {
		if p.UpdatedAt.Before(cutoff) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// RedisProgress shares progress between instances through Redis.
type RedisProgress struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProgress(client *redis.Client, ttl time.Duration) *RedisProgress {
	return &RedisProgress{client: client, ttl: ttl}
}

func progressKey(contractID int64) string {
	return fmt.Sprintf("progress:%d", contractID)
}

func (r *RedisProgress) Set(ctx context.Context, contractID int64, p Progress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := r.client.Set(ctx, progressKey(contractID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set progress: %w", err)
	}
	return nil
}

func (r *RedisProgress) Get(ctx context.Context, contractID int64) (Progress, bool, error) {
	data, err := r.client.Get(ctx, progressKey(contractID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Progress{}, false, nil
	}
	if err != nil {
		return Progress{}, false, fmt.Errorf("redis get progress: %w", err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return Progress{}, false, fmt.Errorf("unmarshal progress: %w", err)
	}
	return p, true, nil
}

func (r *RedisProgress) Clear(ctx context.Context, contractID int64) error {
	if err := r.client.Del(ctx, progressKey(contractID)).Err(); err != nil {
		return fmt.Errorf("redis clear progress: %w", err)
	}
	return nil
}

// Publisher delivers a message to everyone watching a contract.
type Publisher interface {
	Publish(contractID int64, msg []byte)
}

// Broadcaster forwards every update to live subscribers after storing it.
type Broadcaster struct {
	ProgressStore
	pub Publisher
}

func NewBroadcaster(store ProgressStore, pub Publisher) *Broadcaster {
	return &Broadcaster{ProgressStore: store, pub: pub}
}

func (b *Broadcaster) Set(ctx context.Context, contractID int64, p Progress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	if err := b.ProgressStore.Set(ctx, contractID, p); err != nil {
		return err
	}
	msg, err := json.Marshal(struct {
		Type       string `json:"type"`
		ContractID int64  `json:"contract_id"`
		Progress
	}{"progress", contractID, p})
	if err != nil {
		return fmt.Errorf("marshal progress message: %w", err)
	}
	b.pub.Publish(contractID, msg)
	return nil
}
