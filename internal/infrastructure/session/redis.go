package session

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "loansphere:bulk:"

// RedisStore shares sessions between API replicas. Sessions are gob encoded
// so int and float cells keep their types.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect builds a client from a redis:// URL or a host:port address.
func Connect(addr, password string, db int) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}), nil
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, session *domain.BulkSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("save session: empty id")
	}
	raw, err := encodeSession(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+session.ID, raw, s.ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrTemporary, "save session", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.BulkSession, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("id=%s", id))
		}
		return nil, domain.WrapError(domain.ErrTemporary, "get session", err)
	}
	session, err := decodeSession(raw)
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return session, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeSession(session *domain.BulkSession) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(session); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSession(raw []byte) (*domain.BulkSession, error) {
	var session domain.BulkSession
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}
