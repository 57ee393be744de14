package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

// RedisSender appends payloads as JSON to a Redis list, for consumers that
// BLPOP records.
type RedisSender struct {
	pool *redis.Pool
	list string
}

func timeoutDialOptions(password string) []redis.DialOption {
	opts := []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
	if password != "" {
		opts = append(opts, redis.DialPassword(password))
	}
	return opts
}

// NewRedisSender builds a list sink on addr.
func NewRedisSender(addr, password, list string) (*RedisSender, error) {
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	return NewRedisSenderWithPool(&redis.Pool{
		MaxIdle:     5,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr, timeoutDialOptions(password)...)
		},
	}, list)
}

// NewRedisSenderWithPool builds a list sink over an existing pool.
func NewRedisSenderWithPool(pool *redis.Pool, list string) (*RedisSender, error) {
	if list == "" {
		return nil, errors.New("redis list required")
	}
	return &RedisSender{pool: pool, list: list}, nil
}

func (s *RedisSender) Send(ctx context.Context, payload Payload) error {
	return s.SendBatch(ctx, []Payload{payload})
}

// SendBatch pushes every payload with a single RPUSH.
func (s *RedisSender) SendBatch(ctx context.Context, payloads []Payload) error {
	args := redis.Args{}.Add(s.list)
	for _, p := range payloads {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		args = args.Add(b)
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis conn: %w", err)
	}
	defer conn.Close()

	if _, err := redis.Int(conn.Do("RPUSH", args...)); err != nil {
		return fmt.Errorf("redis rpush %s: %w", s.list, err)
	}
	return nil
}

// Close releases pooled connections.
func (s *RedisSender) Close() error {
	return s.pool.Close()
}
