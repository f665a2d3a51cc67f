package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/growbal/discovery/pkg/models"
	testdb "github.com/growbal/discovery/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestSessionService_GetOrCreate(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewSessionService(client.Client)
	ctx := context.Background()

	t.Run("creates new session with placeholder title", func(t *testing.T) {
		session, created, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			OwnerID:     intPtr(1),
			Country:     "UAE",
			ServiceType: "Tax Services",
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEmpty(t, session.ID)
		assert.Equal(t, "UAE", session.Country)
		assert.Equal(t, "Tax Services", session.ServiceType)
		assert.Equal(t, "Tax Services in UAE", session.Title)
		assert.True(t, session.Active)
		require.NotNil(t, session.OwnerID)
		assert.Equal(t, 1, *session.OwnerID)
	})

	t.Run("reuses active session for the same tuple", func(t *testing.T) {
		req := models.GetOrCreateSessionRequest{
			OwnerID:     intPtr(2),
			Country:     "UAE",
			ServiceType: "Legal Services",
		}
		first, created, err := service.GetOrCreate(ctx, req)
		require.NoError(t, err)
		require.True(t, created)

		second, created, err := service.GetOrCreate(ctx, req)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("different tuple gets a different session", func(t *testing.T) {
		a, _, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			OwnerID: intPtr(3), Country: "UAE", ServiceType: "Tax Services",
		})
		require.NoError(t, err)
		b, _, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			OwnerID: intPtr(3), Country: "Saudi Arabia", ServiceType: "Tax Services",
		})
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("explicit session id returns existing session", func(t *testing.T) {
		created, _, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			OwnerID: intPtr(4), Country: "UAE", ServiceType: "Tax Services",
		})
		require.NoError(t, err)

		got, wasCreated, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			SessionID: created.ID,
			OwnerID:   intPtr(4),
			Country:   "UAE", ServiceType: "Tax Services",
		})
		require.NoError(t, err)
		assert.False(t, wasCreated)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("unknown session id falls back to tuple resolution", func(t *testing.T) {
		session, created, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			SessionID:   uuid.New().String(),
			OwnerID:     intPtr(5),
			Country:     "Qatar",
			ServiceType: "Tax Services",
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEmpty(t, session.ID)
	})

	t.Run("rejects session id owned by another user", func(t *testing.T) {
		session, _, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			OwnerID: intPtr(6), Country: "UAE", ServiceType: "Audit Services",
		})
		require.NoError(t, err)

		_, _, err = service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			SessionID: session.ID,
			OwnerID:   intPtr(7),
			Country:   "UAE", ServiceType: "Audit Services",
		})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("anonymous requests always create fresh sessions", func(t *testing.T) {
		req := models.GetOrCreateSessionRequest{Country: "UAE", ServiceType: "Visa Services"}
		a, createdA, err := service.GetOrCreate(ctx, req)
		require.NoError(t, err)
		b, createdB, err := service.GetOrCreate(ctx, req)
		require.NoError(t, err)
		assert.True(t, createdA)
		assert.True(t, createdB)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("validates required fields", func(t *testing.T) {
		_, _, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{ServiceType: "Tax Services"})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		_, _, err = service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{Country: "UAE"})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("concurrent calls for the same tuple create one session", func(t *testing.T) {
		req := models.GetOrCreateSessionRequest{
			OwnerID: intPtr(8), Country: "UAE", ServiceType: "Company Formation",
		}

		const workers = 8
		ids := make([]string, workers)
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func(i int) {
				defer wg.Done()
				session, _, err := service.GetOrCreate(ctx, req)
				if err == nil {
					ids[i] = session.ID
				}
			}(i)
		}
		wg.Wait()

		unique := map[string]bool{}
		for _, id := range ids {
			if id != "" {
				unique[id] = true
			}
		}
		assert.Len(t, unique, 1)
	})
}

func TestSessionService_AppendMessage(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewSessionService(client.Client)
	ctx := context.Background()

	newSession := func(t *testing.T, owner int) string {
		session, _, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			OwnerID:     intPtr(owner),
			Country:     "UAE",
			ServiceType: "Tax Services",
		})
		require.NoError(t, err)
		return session.ID
	}

	t.Run("assigns monotonic seq starting at 1", func(t *testing.T) {
		sessionID := newSession(t, 10)

		for i := 1; i <= 3; i++ {
			msg, err := service.AppendMessage(ctx, models.AppendMessageRequest{
				SessionID: sessionID,
				Role:      models.RoleUser,
				Content:   fmt.Sprintf("message %d", i),
			})
			require.NoError(t, err)
			assert.Equal(t, i, msg.Seq)
		}
	})

	t.Run("first user message becomes the session title", func(t *testing.T) {
		sessionID := newSession(t, 11)

		_, err := service.AppendMessage(ctx, models.AppendMessageRequest{
			SessionID: sessionID,
			Role:      models.RoleUser,
			Content:   "I need a VAT consultant in Dubai",
		})
		require.NoError(t, err)

		session, err := service.Get(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "I need a VAT consultant in Dubai", session.Title)
	})

	t.Run("long first message is trimmed to 60 chars", func(t *testing.T) {
		sessionID := newSession(t, 12)

		long := "I am looking for a highly experienced corporate tax advisory firm in the UAE free zones"
		_, err := service.AppendMessage(ctx, models.AppendMessageRequest{
			SessionID: sessionID,
			Role:      models.RoleUser,
			Content:   long,
		})
		require.NoError(t, err)

		session, err := service.Get(ctx, sessionID)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(session.Title), 60)
		assert.Equal(t, long[:len(session.Title)], session.Title)
	})

	t.Run("touches last_activity", func(t *testing.T) {
		sessionID := newSession(t, 13)
		before, err := service.Get(ctx, sessionID)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		_, err = service.AppendMessage(ctx, models.AppendMessageRequest{
			SessionID: sessionID,
			Role:      models.RoleUser,
			Content:   "hello",
		})
		require.NoError(t, err)

		after, err := service.Get(ctx, sessionID)
		require.NoError(t, err)
		assert.True(t, after.LastActivity.After(before.LastActivity))
	})

	t.Run("idempotency key returns the original message", func(t *testing.T) {
		sessionID := newSession(t, 14)

		req := models.AppendMessageRequest{
			SessionID:      sessionID,
			Role:           models.RoleUser,
			Content:        "find me an auditor",
			IdempotencyKey: uuid.New().String(),
		}
		first, err := service.AppendMessage(ctx, req)
		require.NoError(t, err)
		second, err := service.AppendMessage(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.Seq, second.Seq)

		history, err := service.History(ctx, sessionID, 0)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("rejects appends to a deactivated session", func(t *testing.T) {
		sessionID := newSession(t, 15)

		err := client.ChatSession.UpdateOneID(sessionID).SetActive(false).Exec(ctx)
		require.NoError(t, err)

		_, err = service.AppendMessage(ctx, models.AppendMessageRequest{
			SessionID: sessionID,
			Role:      models.RoleUser,
			Content:   "too late",
		})
		assert.ErrorIs(t, err, ErrSessionClosed)
	})

	t.Run("unknown session returns not found", func(t *testing.T) {
		_, err := service.AppendMessage(ctx, models.AppendMessageRequest{
			SessionID: uuid.New().String(),
			Role:      models.RoleUser,
			Content:   "hello",
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("validates input", func(t *testing.T) {
		sessionID := newSession(t, 16)

		tests := []struct {
			name string
			req  models.AppendMessageRequest
		}{
			{"missing session_id", models.AppendMessageRequest{Role: models.RoleUser, Content: "x"}},
			{"bad role", models.AppendMessageRequest{SessionID: sessionID, Role: "system", Content: "x"}},
			{"empty content", models.AppendMessageRequest{SessionID: sessionID, Role: models.RoleUser}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := service.AppendMessage(ctx, tt.req)
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
			})
		}
	})

	t.Run("concurrent appends never collide on seq", func(t *testing.T) {
		sessionID := newSession(t, 17)

		const workers = 10
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func(i int) {
				defer wg.Done()
				_, err := service.AppendMessage(ctx, models.AppendMessageRequest{
					SessionID: sessionID,
					Role:      models.RoleUser,
					Content:   fmt.Sprintf("concurrent %d", i),
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		history, err := service.History(ctx, sessionID, 0)
		require.NoError(t, err)
		require.Len(t, history, workers)
		for i, msg := range history {
			assert.Equal(t, i+1, msg.Seq)
		}
	})
}

func TestSessionService_History(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewSessionService(client.Client)
	ctx := context.Background()

	seed := func(t *testing.T, owner int, contents ...[2]string) string {
		session, _, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			OwnerID:     intPtr(owner),
			Country:     "UAE",
			ServiceType: "Tax Services",
		})
		require.NoError(t, err)
		for _, pair := range contents {
			_, err := service.AppendMessage(ctx, models.AppendMessageRequest{
				SessionID: session.ID, Role: pair[0], Content: pair[1],
			})
			require.NoError(t, err)
		}
		return session.ID
	}

	t.Run("returns messages in ascending seq order", func(t *testing.T) {
		sessionID := seed(t, 20,
			[2]string{models.RoleUser, "q1"},
			[2]string{models.RoleAssistant, "a1"},
			[2]string{models.RoleUser, "q2"},
		)

		history, err := service.History(ctx, sessionID, 0)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "q1", history[0].Content)
		assert.Equal(t, "a1", history[1].Content)
		assert.Equal(t, "q2", history[2].Content)
	})

	t.Run("limit keeps the most recent messages", func(t *testing.T) {
		sessionID := seed(t, 21,
			[2]string{models.RoleUser, "q1"},
			[2]string{models.RoleAssistant, "a1"},
			[2]string{models.RoleUser, "q2"},
			[2]string{models.RoleAssistant, "a2"},
		)

		history, err := service.History(ctx, sessionID, 2)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "q2", history[0].Content)
		assert.Equal(t, "a2", history[1].Content)
	})

	t.Run("turns pair user and assistant messages", func(t *testing.T) {
		sessionID := seed(t, 22,
			[2]string{models.RoleUser, "q1"},
			[2]string{models.RoleAssistant, "a1"},
			[2]string{models.RoleUser, "q2"},
			[2]string{models.RoleAssistant, "a2"},
			[2]string{models.RoleUser, "unanswered"},
		)

		turns, err := service.HistoryAsTurns(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.Equal(t, "q1", turns[0].UserContent)
		assert.Equal(t, "a1", turns[0].AssistantContent)
		assert.Equal(t, "q2", turns[1].UserContent)
		assert.Equal(t, "a2", turns[1].AssistantContent)
	})

	t.Run("empty session yields no turns", func(t *testing.T) {
		sessionID := seed(t, 23)
		turns, err := service.HistoryAsTurns(ctx, sessionID)
		require.NoError(t, err)
		assert.Empty(t, turns)
	})
}

func TestSessionService_Lifecycle(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewSessionService(client.Client)
	ctx := context.Background()

	t.Run("list for owner orders by last activity", func(t *testing.T) {
		first, _, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			OwnerID: intPtr(30), Country: "UAE", ServiceType: "Tax Services",
		})
		require.NoError(t, err)
		second, _, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			OwnerID: intPtr(30), Country: "Qatar", ServiceType: "Tax Services",
		})
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, service.Touch(ctx, first.ID))

		sessions, err := service.ListForOwner(ctx, 30, false)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, first.ID, sessions[0].ID)
		assert.Equal(t, second.ID, sessions[1].ID)
	})

	t.Run("deactivates only stale sessions", func(t *testing.T) {
		stale, _, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			OwnerID: intPtr(31), Country: "UAE", ServiceType: "Tax Services",
		})
		require.NoError(t, err)
		fresh, _, err := service.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
			OwnerID: intPtr(31), Country: "Qatar", ServiceType: "Tax Services",
		})
		require.NoError(t, err)

		// Age the stale session past the cutoff.
		err = client.ChatSession.UpdateOneID(stale.ID).
			SetLastActivity(time.Now().Add(-200 * time.Hour)).
			Exec(ctx)
		require.NoError(t, err)

		count, err := service.DeactivateOlderThan(ctx, 168*time.Hour)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, 1)

		got, err := service.Get(ctx, stale.ID)
		require.NoError(t, err)
		assert.False(t, got.Active)

		got, err = service.Get(ctx, fresh.ID)
		require.NoError(t, err)
		assert.True(t, got.Active)

		// Second sweep finds nothing new for this owner's sessions.
		countAgain, err := service.DeactivateOlderThan(ctx, 168*time.Hour)
		require.NoError(t, err)
		assert.LessOrEqual(t, countAgain, count)
	})

	t.Run("after deactivation the tuple lookup creates a new session", func(t *testing.T) {
		req := models.GetOrCreateSessionRequest{
			OwnerID: intPtr(32), Country: "UAE", ServiceType: "Tax Services",
		}
		old, _, err := service.GetOrCreate(ctx, req)
		require.NoError(t, err)

		err = client.ChatSession.UpdateOneID(old.ID).SetActive(false).Exec(ctx)
		require.NoError(t, err)

		replacement, created, err := service.GetOrCreate(ctx, req)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, old.ID, replacement.ID)
	})

	t.Run("touch on unknown session returns not found", func(t *testing.T) {
		err := service.Touch(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
