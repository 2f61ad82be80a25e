package messaging

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// hashStore is the part of redis a Namespace needs. A missing field
// returns redis.Nil.
type hashStore interface {
	HGet(ctx context.Context, key, field string) (string, error)
	HSetAll(ctx context.Context, key string, fields map[string]string) error
}

type redisHashStore struct {
	client *redis.Client
}

func (s redisHashStore) HGet(ctx context.Context, key, field string) (string, error) {
	return s.client.HGet(ctx, key, field).Result()
}

// HSetAll sets every field in one MULTI/EXEC.
func (s redisHashStore) HSetAll(ctx context.Context, key string, fields map[string]string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range fields {
			pipe.HSet(ctx, key, k, v)
		}
		return nil
	})
	return err
}

// Namespace is a key-value store kept in one redis hash. Sets are staged
// locally and become visible to other readers on Commit.
type Namespace struct {
	store  hashStore
	hash   string
	mu     sync.Mutex
	staged map[string]string
}

func newNamespace(store hashStore, hash string) *Namespace {
	return &Namespace{
		store:  store,
		hash:   hash,
		staged: make(map[string]string),
	}
}

func (n *Namespace) get(key string) (string, bool, error) {
	n.mu.Lock()
	v, ok := n.staged[key]
	n.mu.Unlock()
	if ok {
		return v, true, nil
	}

	v, err := n.store.HGet(context.Background(), n.hash, key)
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s from %s: %w", key, n.hash, err)
	}
	return v, true, nil
}

func (n *Namespace) GetU8(key string) (uint8, bool, error) {
	v, ok, err := n.get(key)
	if err != nil || !ok {
		return 0, false, err
	}
	u, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, false, fmt.Errorf("%s in %s is not a u8: %q", key, n.hash, v)
	}
	return uint8(u), true, nil
}

func (n *Namespace) SetU8(key string, value uint8) error {
	return n.SetString(key, strconv.Itoa(int(value)))
}

func (n *Namespace) GetString(key string) (string, bool, error) {
	return n.get(key)
}

func (n *Namespace) SetString(key, value string) error {
	n.mu.Lock()
	n.staged[key] = value
	n.mu.Unlock()
	return nil
}

// Commit writes all staged sets in one transaction. Staged values are
// kept on failure so a later Commit can retry them.
func (n *Namespace) Commit() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.staged) == 0 {
		return nil
	}

	if err := n.store.HSetAll(context.Background(), n.hash, n.staged); err != nil {
		return fmt.Errorf("failed to commit %s: %w", n.hash, err)
	}
	n.staged = make(map[string]string)
	return nil
}
