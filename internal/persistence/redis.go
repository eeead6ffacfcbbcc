package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisStore persists TunnelRegistration records as JSON strings in Redis,
// plus two secondary index keys (by apiKey, by agentId) pointing back at
// the tunnelId — written atomically in one pipeline so the primary record
// and both indices never drift apart.
type redisStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedis(client *redis.Client, keyPrefix string) Store {
	return &redisStore{client: client, keyPrefix: keyPrefix}
}

func (s *redisStore) tunnelKey(tunnelID string) string { return s.keyPrefix + "tunnel:" + tunnelID }
func (s *redisStore) apiKeyIndexKey(apiKey string) string {
	return s.keyPrefix + "tunnel-by-api-key:" + apiKey
}
func (s *redisStore) agentIndexKey(agentID string) string {
	return s.keyPrefix + "tunnel-by-agent-id:" + agentID
}

func (s *redisStore) SaveTunnel(ctx context.Context, reg TunnelRegistration) error {
	raw, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshal tunnel registration: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tunnelKey(reg.TunnelID), raw, 0)
		pipe.Set(ctx, s.apiKeyIndexKey(reg.APIKey), reg.TunnelID, 0)
		pipe.Set(ctx, s.agentIndexKey(reg.AgentID), reg.TunnelID, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save tunnel registration: %w", err)
	}
	return nil
}

func (s *redisStore) GetTunnel(ctx context.Context, tunnelID string) (TunnelRegistration, error) {
	raw, err := s.client.Get(ctx, s.tunnelKey(tunnelID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return TunnelRegistration{}, ErrNotFound
	}
	if err != nil {
		return TunnelRegistration{}, fmt.Errorf("get tunnel registration: %w", err)
	}
	var reg TunnelRegistration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return TunnelRegistration{}, fmt.Errorf("decode tunnel registration: %w", err)
	}
	return reg, nil
}

func (s *redisStore) UpdateTunnelStatus(ctx context.Context, tunnelID, status string) error {
	reg, err := s.GetTunnel(ctx, tunnelID)
	if err != nil {
		return err
	}
	reg.Status = status
	raw, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshal tunnel registration: %w", err)
	}
	if err := s.client.Set(ctx, s.tunnelKey(tunnelID), raw, 0).Err(); err != nil {
		return fmt.Errorf("update tunnel status: %w", err)
	}
	return nil
}

func (s *redisStore) DeleteTunnel(ctx context.Context, tunnelID string) error {
	reg, err := s.GetTunnel(ctx, tunnelID)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.tunnelKey(tunnelID))
		pipe.Del(ctx, s.apiKeyIndexKey(reg.APIKey))
		pipe.Del(ctx, s.agentIndexKey(reg.AgentID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete tunnel registration: %w", err)
	}
	return nil
}
