package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ayusman/kalam/internal/config"
	"github.com/ayusman/kalam/internal/models"
)

// presenceTTL bounds how long a room's membership outlives its last update.
const presenceTTL = 24 * time.Hour

// Presence records who is in which room. The hub keeps live connections;
// Presence is what the HTTP API reports and what survives across relay
// instances sharing a redis.
type Presence interface {
	Add(ctx context.Context, room string, m models.Member) error
	Remove(ctx context.Context, room, id string) error
	Members(ctx context.Context, room string) ([]models.Member, error)
	Close() error
}

// MemoryPresence keeps membership in process.
type MemoryPresence struct {
	mu    sync.RWMutex
	rooms map[string]map[string]models.Member
}

// NewMemoryPresence creates an empty MemoryPresence.
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{rooms: make(map[string]map[string]models.Member)}
}

func (p *MemoryPresence) Add(_ context.Context, room string, m models.Member) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	members, ok := p.rooms[room]
	if !ok {
		members = make(map[string]models.Member)
		p.rooms[room] = members
	}
	members[m.ID] = m
	return nil
}

func (p *MemoryPresence) Remove(_ context.Context, room, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.rooms[room], id)
	if len(p.rooms[room]) == 0 {
		delete(p.rooms, room)
	}
	return nil
}

func (p *MemoryPresence) Members(_ context.Context, room string) ([]models.Member, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.Member, 0, len(p.rooms[room]))
	for _, m := range p.rooms[room] {
		out = append(out, m)
	}
	sortMembers(out)
	return out, nil
}

func (p *MemoryPresence) Close() error { return nil }

// RedisPresence keeps membership in redis: a set of peer ids per room and a
// hash of their display names, both expiring after presenceTTL.
type RedisPresence struct {
	client *redis.Client
}

// NewRedisPresence connects to redis and verifies the connection.
func NewRedisPresence(ctx context.Context, cfg config.RedisConfig) (*RedisPresence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisPresence{client: client}, nil
}

func peersKey(room string) string { return "room:" + room + ":peers" }
func namesKey(room string) string { return "room:" + room + ":names" }

func (p *RedisPresence) Add(ctx context.Context, room string, m models.Member) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, peersKey(room), m.ID)
		pipe.Expire(ctx, peersKey(room), presenceTTL)
		if m.Name != "" {
			pipe.HSet(ctx, namesKey(room), m.ID, m.Name)
			pipe.Expire(ctx, namesKey(room), presenceTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add %s to room %s: %w", m.ID, room, err)
	}
	return nil
}

func (p *RedisPresence) Remove(ctx context.Context, room, id string) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, peersKey(room), id)
		pipe.HDel(ctx, namesKey(room), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove %s from room %s: %w", id, room, err)
	}
	return nil
}

func (p *RedisPresence) Members(ctx context.Context, room string) ([]models.Member, error) {
	ids, err := p.client.SMembers(ctx, peersKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("list room %s: %w", room, err)
	}
	names, err := p.client.HGetAll(ctx, namesKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("list names in room %s: %w", room, err)
	}

	out := make([]models.Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Member{ID: id, Name: names[id]})
	}
	sortMembers(out)
	return out, nil
}

func (p *RedisPresence) Close() error {
	return p.client.Close()
}

func sortMembers(ms []models.Member) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })
}
