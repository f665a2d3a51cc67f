// Package services implements the durable session store on top of Ent.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/growbal/discovery/ent"
	"github.com/growbal/discovery/ent/chatsession"
	"github.com/growbal/discovery/ent/message"
	"github.com/growbal/discovery/pkg/models"
)

// titleMaxLen is the cap for session titles derived from the first message.
const titleMaxLen = 60

// SessionService manages chat session lifecycle and the per-session
// append-only message log.
type SessionService struct {
	client *ent.Client
}

// NewSessionService creates a new SessionService
func NewSessionService(client *ent.Client) *SessionService {
	return &SessionService{client: client}
}

// GetOrCreate resolves a session for the request, creating one only when
// needed. Resolution order:
//  1. explicit SessionID that exists (ownership-checked when OwnerID given)
//  2. the active session for (owner_id, country, service_type), if any
//  3. a freshly created session
//
// The tuple lookup and insert run in one transaction with a row lock, backed
// by a partial unique index, so two concurrent calls for the same tuple
// cannot both create a session.
func (s *SessionService) GetOrCreate(ctx context.Context, req models.GetOrCreateSessionRequest) (*ent.ChatSession, bool, error) {
	if req.Country == "" {
		return nil, false, NewValidationError("country", "required")
	}
	if req.ServiceType == "" {
		return nil, false, NewValidationError("service_type", "required")
	}

	var (
		session *ent.ChatSession
		created bool
	)
	err := retryTransient(ctx, func() error {
		var err error
		session, created, err = s.getOrCreateTx(ctx, req)
		return err
	})
	return session, created, err
}

func (s *SessionService) getOrCreateTx(ctx context.Context, req models.GetOrCreateSessionRequest) (*ent.ChatSession, bool, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. Explicit session id
	if req.SessionID != "" {
		session, err := tx.ChatSession.Query().
			Where(chatsession.IDEQ(req.SessionID)).
			Only(ctx)
		switch {
		case err == nil:
			if req.OwnerID != nil && session.OwnerID != nil && *session.OwnerID != *req.OwnerID {
				return nil, false, ErrForbidden
			}
			if err := tx.Commit(); err != nil {
				return nil, false, fmt.Errorf("failed to commit: %w", err)
			}
			return session, false, nil
		case !ent.IsNotFound(err):
			return nil, false, fmt.Errorf("failed to look up session: %w", err)
		}
		// Unknown id falls through to the tuple lookup.
	}

	// 2. Active session for the tuple (owned sessions only — anonymous
	// sessions are never shared between requests).
	if req.OwnerID != nil {
		session, err := tx.ChatSession.Query().
			Where(
				chatsession.OwnerIDEQ(*req.OwnerID),
				chatsession.CountryEQ(req.Country),
				chatsession.ServiceTypeEQ(req.ServiceType),
				chatsession.Active(true),
			).
			ForUpdate().
			First(ctx)
		switch {
		case err == nil:
			if err := tx.Commit(); err != nil {
				return nil, false, fmt.Errorf("failed to commit: %w", err)
			}
			return session, false, nil
		case !ent.IsNotFound(err):
			return nil, false, fmt.Errorf("failed to look up active session: %w", err)
		}
	}

	// 3. Create
	builder := tx.ChatSession.Create().
		SetID(uuid.New().String()).
		SetCountry(req.Country).
		SetServiceType(req.ServiceType).
		SetTitle(fmt.Sprintf("%s in %s", req.ServiceType, req.Country)).
		SetActive(true)
	if req.OwnerID != nil {
		builder.SetOwnerID(*req.OwnerID)
	}

	session, err := builder.Save(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit: %w", err)
	}
	return session, true, nil
}

// Get retrieves a session by ID.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*ent.ChatSession, error) {
	session, err := s.client.ChatSession.Query().
		Where(chatsession.IDEQ(sessionID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// GetOwned retrieves a session and verifies ownership. A nil ownerID skips
// the check (trusted internal callers).
func (s *SessionService) GetOwned(ctx context.Context, sessionID string, ownerID *int) (*ent.ChatSession, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ownerID != nil && session.OwnerID != nil && *session.OwnerID != *ownerID {
		return nil, ErrForbidden
	}
	return session, nil
}

// AppendMessage appends one message to the session log, assigning the next
// session-scoped seq and touching last_activity. Fails with ErrNotFound for
// a missing session and ErrSessionClosed for a deactivated one.
func (s *SessionService) AppendMessage(ctx context.Context, req models.AppendMessageRequest) (*ent.Message, error) {
	if req.SessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	if req.Role != models.RoleUser && req.Role != models.RoleAssistant {
		return nil, NewValidationError("role", "must be user or assistant")
	}
	if req.Content == "" {
		return nil, NewValidationError("content", "required")
	}

	var msg *ent.Message
	err := retryTransient(ctx, func() error {
		var err error
		msg, err = s.appendMessageTx(ctx, req)
		return err
	})
	return msg, err
}

func (s *SessionService) appendMessageTx(ctx context.Context, req models.AppendMessageRequest) (*ent.Message, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock the session row — this serializes seq assignment per session.
	session, err := tx.ChatSession.Query().
		Where(chatsession.IDEQ(req.SessionID)).
		ForUpdate().
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	if !session.Active {
		return nil, ErrSessionClosed
	}

	// Idempotent retry: return the original message for a repeated key.
	if req.IdempotencyKey != "" {
		existing, err := tx.Message.Query().
			Where(
				message.SessionIDEQ(req.SessionID),
				message.IdempotencyKeyEQ(req.IdempotencyKey),
			).
			First(ctx)
		if err == nil {
			if commitErr := tx.Commit(); commitErr != nil {
				return nil, fmt.Errorf("failed to commit: %w", commitErr)
			}
			return existing, nil
		}
		if !ent.IsNotFound(err) {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
	}

	nextSeq := 1
	last, err := tx.Message.Query().
		Where(message.SessionIDEQ(req.SessionID)).
		Order(ent.Desc(message.FieldSeq)).
		First(ctx)
	switch {
	case err == nil:
		nextSeq = last.Seq + 1
	case !ent.IsNotFound(err):
		return nil, fmt.Errorf("failed to read last seq: %w", err)
	}

	builder := tx.Message.Create().
		SetID(uuid.New().String()).
		SetSessionID(req.SessionID).
		SetSeq(nextSeq).
		SetRole(message.Role(req.Role)).
		SetContent(req.Content)
	if req.IdempotencyKey != "" {
		builder.SetIdempotencyKey(req.IdempotencyKey)
	}
	msg, err := builder.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	update := tx.ChatSession.UpdateOneID(req.SessionID).
		SetLastActivity(time.Now())
	// The first user message supplies a better sidebar title than the
	// "<service> in <country>" placeholder.
	if req.Role == models.RoleUser && nextSeq == 1 {
		update.SetTitle(deriveTitle(req.Content))
	}
	if err := update.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return msg, nil
}

// History returns the most recent messages of a session in ascending seq
// order. limit <= 0 returns the full log.
func (s *SessionService) History(ctx context.Context, sessionID string, limit int) ([]*ent.Message, error) {
	query := s.client.Message.Query().
		Where(message.SessionIDEQ(sessionID)).
		Order(ent.Desc(message.FieldSeq))
	if limit > 0 {
		query = query.Limit(limit)
	}
	msgs, err := query.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	// Reverse to ascending order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// HistoryAsTurns groups the session log into (user, assistant) pairs in
// order. Unmatched user messages (no assistant reply yet) are dropped.
func (s *SessionService) HistoryAsTurns(ctx context.Context, sessionID string) ([]models.Turn, error) {
	msgs, err := s.History(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}

	turns := make([]models.Turn, 0, len(msgs)/2)
	var pendingUser *ent.Message
	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleUser:
			pendingUser = msg
		case message.RoleAssistant:
			if pendingUser != nil {
				turns = append(turns, models.Turn{
					UserContent:      pendingUser.Content,
					AssistantContent: msg.Content,
					CreatedAt:        pendingUser.CreatedAt,
				})
				pendingUser = nil
			}
		}
	}
	return turns, nil
}

// ListForOwner returns the owner's sessions ordered by last activity,
// newest first.
func (s *SessionService) ListForOwner(ctx context.Context, ownerID int, activeOnly bool) ([]*ent.ChatSession, error) {
	query := s.client.ChatSession.Query().
		Where(chatsession.OwnerIDEQ(ownerID))
	if activeOnly {
		query = query.Where(chatsession.Active(true))
	}
	sessions, err := query.
		Order(ent.Desc(chatsession.FieldLastActivity)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Touch updates last_activity without appending a message.
func (s *SessionService) Touch(ctx context.Context, sessionID string) error {
	err := s.client.ChatSession.UpdateOneID(sessionID).
		SetLastActivity(time.Now()).
		Exec(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// DeactivateOlderThan flips active=false on sessions idle for longer than
// the given duration. Returns the number of sessions deactivated.
// Idempotent: a second sweep only counts sessions that aged in between.
func (s *SessionService) DeactivateOlderThan(ctx context.Context, idle time.Duration) (int, error) {
	threshold := time.Now().Add(-idle)

	count, err := s.client.ChatSession.Update().
		Where(
			chatsession.Active(true),
			chatsession.LastActivityLT(threshold),
		).
		SetActive(false).
		Save(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate stale sessions: %w", err)
	}
	return count, nil
}

// deriveTitle trims the first user message into a sidebar label.
func deriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if len(title) > titleMaxLen {
		title = strings.TrimSpace(title[:titleMaxLen])
	}
	return title
}
