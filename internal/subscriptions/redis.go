// Package subscriptions keeps browser push subscriptions in Redis, for
// deployments where devices register against a different service than the
// one owning the care database.
//
// Layout: one hash per user ("<ns>:user:<id>") mapping endpoint URI to the
// JSON subscription, plus an owner hash ("<ns>:owner") mapping endpoint URI to
// user ID so an endpoint belongs to one user at a time.
package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/albapepper/carebeat/internal/push"
)

const defaultNamespace = "carebeat:push"

// RedisStore implements push.EndpointResolver over Redis.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
	logger    *slog.Logger
}

// NewRedisStore wraps client. An empty namespace uses the default prefix.
func NewRedisStore(client redis.UniversalClient, namespace string, logger *slog.Logger) *RedisStore {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &RedisStore{client: client, namespace: namespace, logger: logger}
}

// Dial parses a redis:// URL and verifies the server answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) userKey(userID string) string { return s.namespace + ":user:" + userID }
func (s *RedisStore) ownerKey() string             { return s.namespace + ":owner" }

// EndpointsFor returns every stored endpoint of userID. Entries that no
// longer decode are skipped.
func (s *RedisStore) EndpointsFor(ctx context.Context, userID string) ([]push.Endpoint, error) {
	raw, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get push subscriptions: %w", err)
	}

	eps := make([]push.Endpoint, 0, len(raw))
	for uri, value := range raw {
		var ep push.Endpoint
		if err := json.Unmarshal([]byte(value), &ep); err != nil {
			s.logger.Warn("skipping undecodable push subscription", "user_id", userID, "error", err)
			continue
		}
		ep.URI = uri
		eps = append(eps, ep)
	}
	return eps, nil
}

// SaveSubscription stores ep for userID, moving it away from any previous
// owner.
func (s *RedisStore) SaveSubscription(ctx context.Context, userID string, ep push.Endpoint) error {
	value, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("encode push subscription: %w", err)
	}

	prev, err := s.client.HGet(ctx, s.ownerKey(), ep.URI).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get subscription owner: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != "" && prev != userID {
			pipe.HDel(ctx, s.userKey(prev), ep.URI)
		}
		pipe.HSet(ctx, s.userKey(userID), ep.URI, value)
		pipe.HSet(ctx, s.ownerKey(), ep.URI, userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save push subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes one endpoint of userID.
func (s *RedisStore) DeleteSubscription(ctx context.Context, userID, endpoint string) error {
	owner, err := s.client.HGet(ctx, s.ownerKey(), endpoint).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get subscription owner: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.userKey(userID), endpoint)
		if owner == userID {
			pipe.HDel(ctx, s.ownerKey(), endpoint)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}
