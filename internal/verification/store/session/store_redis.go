package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"veriflow/internal/verification/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix  = "kyc:session:"
	providerKeyPrefix = "kyc:session:provider:"
	requestKeyPrefix  = "kyc:session:request:"
	pendingReviewKey  = "kyc:session:pending-review"
	openSessionsKey   = "kyc:session:open"
)

// RedisStore persists sessions in Redis. Sessions are stored as JSON blobs
// with secondary indexes for provider-id lookup, latest-per-request lookup,
// the pending-review queue, and the open-session set scored by creation time.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Insert(ctx context.Context, session *models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	// Provider session ids are unique; SETNX on the index is the conflict check.
	reserved, err := s.client.SetNX(ctx, providerKeyPrefix+session.ProviderSessionID, session.ID.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("reserve provider session id: %w", err)
	}
	if !reserved {
		return sentinel.ErrConflict
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+session.ID.String(), payload, 0)
	pipe.Set(ctx, requestKeyPrefix+session.RequestID.String(), session.ID.String(), 0)
	pipe.ZAdd(ctx, openSessionsKey, redis.Z{
		Score:  float64(session.CreatedAt.UnixMilli()),
		Member: session.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, session *models.Session) error {
	exists, err := s.client.Exists(ctx, sessionKeyPrefix+session.ID.String()).Result()
	if err != nil {
		return fmt.Errorf("check session exists: %w", err)
	}
	if exists == 0 {
		return sentinel.ErrNotFound
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+session.ID.String(), payload, 0)
	if session.Status.IsTerminal() {
		pipe.ZRem(ctx, openSessionsKey, session.ID.String())
	}
	if session.Status == models.StatusCompleted && session.VerificationResult == models.ResultPendingReview {
		pipe.ZAdd(ctx, pendingReviewKey, redis.Z{
			Score:  float64(session.UpdatedAt.UnixMilli()),
			Member: session.ID.String(),
		})
	} else {
		pipe.ZRem(ctx, pendingReviewKey, session.ID.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	return s.getSession(ctx, sessionID.String())
}

func (s *RedisStore) FindByProviderSessionID(ctx context.Context, providerSessionID string) (*models.Session, error) {
	sessionID, err := s.client.Get(ctx, providerKeyPrefix+providerSessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve provider session id: %w", err)
	}
	return s.getSession(ctx, sessionID)
}

func (s *RedisStore) FindLatestByRequestID(ctx context.Context, requestID id.RequestID) (*models.Session, error) {
	sessionID, err := s.client.Get(ctx, requestKeyPrefix+requestID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve latest session for request: %w", err)
	}
	return s.getSession(ctx, sessionID)
}

func (s *RedisStore) ListPendingReview(ctx context.Context) ([]*models.Session, error) {
	return s.listByIndex(ctx, pendingReviewKey, "-inf", "+inf")
}

func (s *RedisStore) ListInProgressBefore(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	// Exclusive upper bound keeps sessions created exactly at the cutoff open.
	max := fmt.Sprintf("(%d", cutoff.UnixMilli())
	return s.listByIndex(ctx, openSessionsKey, "-inf", max)
}

func (s *RedisStore) listByIndex(ctx context.Context, key, min, max string) ([]*models.Session, error) {
	sessionIDs, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: max}).Result()
	if err != nil {
		return nil, fmt.Errorf("range session index %s: %w", key, err)
	}
	out := make([]*models.Session, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		session, err := s.getSession(ctx, sessionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			// Index entry outlived the session record; skip rather than fail.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

func (s *RedisStore) getSession(ctx context.Context, sessionID string) (*models.Session, error) {
	payload, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return &session, nil
}
