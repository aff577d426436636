package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	tokenPrefix = "session:"
	userPrefix  = "session:user:"
)

type repository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRepository stores sessions in Redis. Each session key expires with the
// session; a per-user set indexes the tokens for DeleteByUserID.
func NewRepository(client *redis.Client, ttl time.Duration) *repository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &repository{client: client, ttl: ttl}
}

func (r *repository) Create(ctx context.Context, userID uuid.UUID) (*Session, error) {
	token, err := generateSecureToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &Session{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: now.Add(r.ttl),
		CreatedAt: now,
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}

	userKey := userPrefix + userID.String()
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenPrefix+token, payload, r.ttl)
		pipe.SAdd(ctx, userKey, token)
		pipe.Expire(ctx, userKey, r.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	return session, nil
}

// GetByToken retrieves a session by token and validates it's not expired
func (r *repository) GetByToken(ctx context.Context, token string) (*Session, error) {
	payload, err := r.client.Get(ctx, tokenPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	session.Token = token

	if time.Now().After(session.ExpiresAt) {
		return nil, ErrExpiredSession
	}

	return &session, nil
}

// Delete removes a session (logout)
func (r *repository) Delete(ctx context.Context, token string) error {
	sess, err := r.GetByToken(ctx, token)
	if errors.Is(err, ErrInvalidSession) || errors.Is(err, ErrExpiredSession) {
		return r.client.Del(ctx, tokenPrefix+token).Err()
	}
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tokenPrefix+token)
		pipe.SRem(ctx, userPrefix+sess.UserID.String(), token)
		return nil
	})
	return err
}

// DeleteByUserID removes all sessions for a user
func (r *repository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	userKey := userPrefix + userID.String()
	tokens, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, tokenPrefix+token)
	}
	keys = append(keys, userKey)
	return r.client.Del(ctx, keys...).Err()
}

func generateSecureToken() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
