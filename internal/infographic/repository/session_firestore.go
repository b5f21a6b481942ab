package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

const sessionsCollection = "infographic_sessions"

// FirestoreSessionStore keeps one document per session with its events in a
// subcollection.
type FirestoreSessionStore struct {
	client *firestore.Client
	now    func() time.Time
}

var _ domain.SessionStore = (*FirestoreSessionStore)(nil)

func NewFirestoreSessionStore(client *firestore.Client) *FirestoreSessionStore {
	return &FirestoreSessionStore{client: client, now: time.Now}
}

type sessionDoc struct {
	Owner          string         `firestore:"owner"`
	State          map[string]any `firestore:"state"`
	CreatedAt      time.Time      `firestore:"created_at"`
	LastUpdateTime time.Time      `firestore:"last_update_time"`
}

func (s *FirestoreSessionStore) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection(sessionsCollection)
}

func (s *FirestoreSessionStore) sessionRef(id string) *firestore.DocumentRef {
	return s.sessionsCol().Doc(id)
}

func (s *FirestoreSessionStore) eventsCol(id string) *firestore.CollectionRef {
	return s.sessionRef(id).Collection("events")
}

func (s *FirestoreSessionStore) Create(ctx context.Context, owner, sessionID string, state map[string]any) (*domain.Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if state == nil {
		state = map[string]any{}
	}
	now := s.now().UTC()

	_, err := s.sessionRef(sessionID).Create(ctx, sessionDoc{
		Owner:          owner,
		State:          state,
		CreatedAt:      now,
		LastUpdateTime: now,
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
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

func (s *FirestoreSessionStore) Get(ctx context.Context, owner, sessionID string) (*domain.Session, error) {
	doc, err := s.load(ctx, nil, owner, sessionID)
	if err != nil {
		return nil, err
	}

	session := toSession(sessionID, doc)
	iter := s.eventsCol(sessionID).OrderBy("timestamp", firestore.Asc).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, unavailable("list session events", err)
		}
		var ev domain.Event
		if err := snap.DataTo(&ev); err != nil {
			return nil, fmt.Errorf("firestore decode event: %w", err)
		}
		session.Events = append(session.Events, ev)
	}
	return session, nil
}

func (s *FirestoreSessionStore) UpdateState(ctx context.Context, owner, sessionID string, state map[string]any) (*domain.Session, error) {
	now := s.now().UTC()
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := s.load(ctx, tx, owner, sessionID); err != nil {
			return err
		}
		return tx.Update(s.sessionRef(sessionID), []firestore.Update{
			{Path: "state", Value: state},
			{Path: "last_update_time", Value: now},
		})
	})
	if err != nil {
		return nil, mapErr("update session state", err)
	}
	return s.Get(ctx, owner, sessionID)
}

// Delete removes a session and its events. Events are removed with a bulk
// writer because a transaction holds at most 500 writes.
func (s *FirestoreSessionStore) Delete(ctx context.Context, owner, sessionID string) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := s.load(ctx, tx, owner, sessionID)
		return err
	})
	if err != nil {
		return mapErr("delete session", err)
	}

	if err := s.deleteEvents(ctx, sessionID); err != nil {
		return mapErr("delete session events", err)
	}

	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := s.load(ctx, tx, owner, sessionID); err != nil {
			return err
		}
		return tx.Delete(s.sessionRef(sessionID))
	})
	if err != nil {
		return mapErr("delete session", err)
	}
	return nil
}

func (s *FirestoreSessionStore) deleteEvents(ctx context.Context, sessionID string) error {
	bw := s.client.BulkWriter(ctx)
	iter := s.eventsCol(sessionID).Documents(ctx)
	defer iter.Stop()

	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bw.End()
			return err
		}
		job, err := bw.Delete(doc.Ref)
		if err != nil {
			bw.End()
			return err
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return err
		}
	}
	return nil
}

// List pages through the owner's sessions ordered by document id. The
// equality filter plus id ordering needs no composite index.
func (s *FirestoreSessionStore) List(ctx context.Context, owner string, pageSize int, pageToken string) ([]*domain.Session, string, error) {
	pageSize = clampPageSize(pageSize)

	q := s.sessionsCol().
		Where("owner", "==", owner).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize)
	if pageToken != "" {
		q = q.StartAfter(pageToken)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	sessions := []*domain.Session{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, "", unavailable("list sessions", err)
		}
		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, "", fmt.Errorf("firestore decode session: %w", err)
		}
		sessions = append(sessions, toSession(snap.Ref.ID, &doc))
	}

	next := ""
	if len(sessions) == pageSize {
		next = sessions[len(sessions)-1].ID
	}
	return sessions, next, nil
}

// AppendEvent writes the event and bumps last_update_time in one transaction.
func (s *FirestoreSessionStore) AppendEvent(ctx context.Context, session *domain.Session, event domain.Event) (domain.Event, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := s.load(ctx, tx, session.Owner, session.ID); err != nil {
			return err
		}
		if err := tx.Create(s.eventsCol(session.ID).Doc(event.ID), event); err != nil {
			return err
		}
		return tx.Update(s.sessionRef(session.ID), []firestore.Update{
			{Path: "last_update_time", Value: event.Timestamp},
		})
	})
	if err != nil {
		return domain.Event{}, mapErr("append event", err)
	}

	session.Events = append(session.Events, event)
	session.LastUpdateTime = event.Timestamp
	return event, nil
}

// load reads the session document, inside tx when given, and checks owner.
func (s *FirestoreSessionStore) load(ctx context.Context, tx *firestore.Transaction, owner, sessionID string) (*sessionDoc, error) {
	var (
		snap *firestore.DocumentSnapshot
		err  error
	)
	if tx != nil {
		snap, err = tx.Get(s.sessionRef(sessionID))
	} else {
		snap, err = s.sessionRef(sessionID).Get(ctx)
	}
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrSessionNotFound
		}
		return nil, unavailable("get session", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore decode session: %w", err)
	}
	if doc.Owner != owner {
		return nil, domain.ErrPermissionDenied
	}
	return &doc, nil
}

func toSession(id string, doc *sessionDoc) *domain.Session {
	state := doc.State
	if state == nil {
		state = map[string]any{}
	}
	return &domain.Session{
		ID:             id,
		Owner:          doc.Owner,
		State:          state,
		Events:         []domain.Event{},
		CreatedAt:      doc.CreatedAt,
		LastUpdateTime: doc.LastUpdateTime,
	}
}
