package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

const (
	sessionKeyPrefix    = "infographic:session:" // Hash with session data: infographic:session:{id}
	sessionEventsSuffix = ":events"              // List of JSON events: infographic:session:{id}:events
	ownerSessionsPrefix = "infographic:owner:"   // Sorted set of session IDs: infographic:owner:{owner}:sessions
	defaultPageSize     = 20
	maxPageSize         = 100
	maxTxRetries        = 5
)

// RedisSessionStore handles Redis operations for sessions
type RedisSessionStore struct {
	client *redis.Client
	now    func() time.Time
}

var _ domain.SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore creates a new RedisSessionStore
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, now: time.Now}
}

// Create stores a new session and fails with domain.ErrSessionExists if the
// id is taken.
func (r *RedisSessionStore) Create(ctx context.Context, owner, sessionID string, state map[string]any) (*domain.Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if state == nil {
		state = map[string]any{}
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session state: %w", err)
	}

	now := r.now().UTC()
	key := r.sessionKey(sessionID)

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrSessionExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]any{
				"owner":            owner,
				"state":            stateJSON,
				"created_at":       now.Format(time.RFC3339Nano),
				"last_update_time": now.Format(time.RFC3339Nano),
			})
			pipe.ZAdd(ctx, r.ownerKey(owner), redis.Z{Score: 0, Member: sessionID})
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExists) || errors.Is(err, redis.TxFailedErr) {
			return nil, domain.ErrSessionExists
		}
		return nil, unavailable("create session", err)
	}

	return &domain.Session{
		ID:             sessionID,
		Owner:          owner,
		State:          state,
		Events:         []domain.Event{},
		CreatedAt:      now,
		LastUpdateTime: now,
	}, nil
}

// Get retrieves a session with its events.
func (r *RedisSessionStore) Get(ctx context.Context, owner, sessionID string) (*domain.Session, error) {
	pipe := r.client.Pipeline()
	hash := pipe.HGetAll(ctx, r.sessionKey(sessionID))
	events := pipe.LRange(ctx, r.eventsKey(sessionID), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("get session", err)
	}

	session, err := decodeSession(sessionID, hash.Val())
	if err != nil {
		return nil, err
	}
	if session.Owner != owner {
		return nil, domain.ErrPermissionDenied
	}

	for _, raw := range events.Val() {
		var ev domain.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session event: %w", err)
		}
		session.Events = append(session.Events, ev)
	}
	return session, nil
}

// UpdateState replaces the session state.
func (r *RedisSessionStore) UpdateState(ctx context.Context, owner, sessionID string, state map[string]any) (*domain.Session, error) {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session state: %w", err)
	}

	key := r.sessionKey(sessionID)
	now := r.now().UTC()

	err = r.watch(ctx, key, func(tx *redis.Tx) error {
		if err := r.checkOwner(ctx, tx, key, owner); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "state", stateJSON, "last_update_time", now.Format(time.RFC3339Nano))
			return nil
		})
		return err
	})
	if err != nil {
		return nil, mapErr("update session state", err)
	}

	return r.Get(ctx, owner, sessionID)
}

// Delete removes a session and its events.
func (r *RedisSessionStore) Delete(ctx context.Context, owner, sessionID string) error {
	key := r.sessionKey(sessionID)

	err := r.watch(ctx, key, func(tx *redis.Tx) error {
		if err := r.checkOwner(ctx, tx, key, owner); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, r.eventsKey(sessionID))
			pipe.ZRem(ctx, r.ownerKey(owner), sessionID)
			return nil
		})
		return err
	})
	if err != nil {
		return mapErr("delete session", err)
	}
	return nil
}

// List returns the owner's sessions ordered by id, without events. The page
// token is the last id of the previous page.
func (r *RedisSessionStore) List(ctx context.Context, owner string, pageSize int, pageToken string) ([]*domain.Session, string, error) {
	pageSize = clampPageSize(pageSize)

	lo := "-"
	if pageToken != "" {
		lo = "(" + pageToken
	}
	ids, err := r.client.ZRangeByLex(ctx, r.ownerKey(owner), &redis.ZRangeBy{
		Min:   lo,
		Max:   "+",
		Count: int64(pageSize),
	}).Result()
	if err != nil {
		return nil, "", unavailable("list sessions", err)
	}
	if len(ids) == 0 {
		return []*domain.Session{}, "", nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, "", unavailable("list sessions", err)
	}

	sessions := make([]*domain.Session, 0, len(ids))
	for i, id := range ids {
		s, err := decodeSession(id, cmds[i].Val())
		if errors.Is(err, domain.ErrSessionNotFound) {
			// index entry outlived its session
			continue
		}
		if err != nil {
			return nil, "", err
		}
		sessions = append(sessions, s)
	}

	next := ""
	if len(ids) == pageSize {
		next = ids[len(ids)-1]
	}
	return sessions, next, nil
}

// AppendEvent atomically appends event and bumps last_update_time.
func (r *RedisSessionStore) AppendEvent(ctx context.Context, session *domain.Session, event domain.Event) (domain.Event, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now().UTC()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return domain.Event{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	key := r.sessionKey(session.ID)
	err = r.watch(ctx, key, func(tx *redis.Tx) error {
		if err := r.checkOwner(ctx, tx, key, session.Owner); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, r.eventsKey(session.ID), eventJSON)
			pipe.HSet(ctx, key, "last_update_time", event.Timestamp.Format(time.RFC3339Nano))
			return nil
		})
		return err
	})
	if err != nil {
		return domain.Event{}, mapErr("append event", err)
	}

	session.Events = append(session.Events, event)
	session.LastUpdateTime = event.Timestamp
	return event, nil
}

// watch runs fn in an optimistic transaction on key, retrying when a
// concurrent writer touched the key first.
func (r *RedisSessionStore) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = r.client.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (r *RedisSessionStore) checkOwner(ctx context.Context, tx *redis.Tx, key, owner string) error {
	got, err := tx.HGet(ctx, key, "owner").Result()
	if errors.Is(err, redis.Nil) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	if got != owner {
		return domain.ErrPermissionDenied
	}
	return nil
}

func (r *RedisSessionStore) sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func (r *RedisSessionStore) eventsKey(id string) string {
	return sessionKeyPrefix + id + sessionEventsSuffix
}

func (r *RedisSessionStore) ownerKey(owner string) string {
	return ownerSessionsPrefix + owner + ":sessions"
}

func decodeSession(id string, fields map[string]string) (*domain.Session, error) {
	if len(fields) == 0 {
		return nil, domain.ErrSessionNotFound
	}

	s := &domain.Session{ID: id, Owner: fields["owner"], Events: []domain.Event{}}
	if raw := fields["state"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.State); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
		}
	}
	if s.State == nil {
		s.State = map[string]any{}
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	s.LastUpdateTime, _ = time.Parse(time.RFC3339Nano, fields["last_update_time"])
	return s, nil
}

// mapErr keeps the domain sentinels and marks everything else as a
// persistence failure.
func mapErr(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, domain.ErrSessionExists):
		return err
	}
	return unavailable(op, err)
}

func unavailable(op string, err error) error {
	return domain.Wrap(domain.CategoryPersistence, "failed to "+op, err)
}

func clampPageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
