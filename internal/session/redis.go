package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists sessions in redis. Turns live in a list under
// session:<id>:turns and expiry is handled server-side via EXPIRE, so
// Sweep has nothing to collect.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s): %w", addr, err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func metaKey(id string) string  { return "session:" + id + ":meta" }
func turnsKey(id string) string { return "session:" + id + ":turns" }

func (s *RedisStore) GetOrCreate(ctx context.Context, id string) (Session, error) {
	if id != "" {
		raw, err := s.client.Get(ctx, metaKey(id)).Result()
		if err == nil {
			var sess Session
			if err := json.Unmarshal([]byte(raw), &sess); err != nil {
				return Session{}, fmt.Errorf("corrupt session meta for %s: %w", id, err)
			}
			items, err := s.client.LRange(ctx, turnsKey(id), 0, -1).Result()
			if err != nil {
				return Session{}, err
			}
			for _, item := range items {
				var turn Turn
				if err := json.Unmarshal([]byte(item), &turn); err != nil {
					return Session{}, fmt.Errorf("corrupt turn in session %s: %w", id, err)
				}
				sess.Turns = append(sess.Turns, turn)
			}
			s.refresh(ctx, id)
			return sess, nil
		}
		if err != redis.Nil {
			return Session{}, err
		}
	}

	if id == "" {
		id = uuid.NewString()
	}
	sess := Session{ID: id, CreatedAt: time.Now().UTC()}
	meta, err := json.Marshal(sess)
	if err != nil {
		return Session{}, err
	}
	if err := s.client.Set(ctx, metaKey(id), meta, s.ttl).Err(); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *RedisStore) AppendTurns(ctx context.Context, id string, turns ...Turn) error {
	key := turnsKey(id)
	for _, turn := range turns {
		raw, err := json.Marshal(turn)
		if err != nil {
			return err
		}
		if err := s.client.RPush(ctx, key, raw).Err(); err != nil {
			return err
		}
	}
	s.refresh(ctx, id)
	return nil
}

func (s *RedisStore) refresh(ctx context.Context, id string) {
	s.client.Expire(ctx, metaKey(id), s.ttl)
	s.client.Expire(ctx, turnsKey(id), s.ttl)
}

// Sweep is a no-op: redis expires sessions server-side.
func (s *RedisStore) Sweep(context.Context) (int, error) { return 0, nil }

func (s *RedisStore) Close() error { return s.client.Close() }
