package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/growbal/discovery/ent/chatsession"
	"github.com/growbal/discovery/pkg/models"
	"github.com/growbal/discovery/pkg/services"
	testdb "github.com/growbal/discovery/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestService_Sweep(t *testing.T) {
	client := testdb.NewTestClient(t)
	sessions := services.NewSessionService(client.Client)
	ctx := context.Background()

	stale, _, err := sessions.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
		OwnerID: intPtr(1), Country: "UAE", ServiceType: "Tax Services",
	})
	require.NoError(t, err)
	fresh, _, err := sessions.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
		OwnerID: intPtr(2), Country: "Qatar", ServiceType: "Legal Services",
	})
	require.NoError(t, err)

	// Age the stale session past the cutoff.
	require.NoError(t, client.ChatSession.UpdateOneID(stale.ID).
		SetLastActivity(time.Now().Add(-200*time.Hour)).
		Exec(ctx))

	svc := NewService(sessions, 168*time.Hour, time.Hour)
	svc.Sweep(ctx)

	staleAfter, err := client.ChatSession.Query().
		Where(chatsession.IDEQ(stale.ID)).Only(ctx)
	require.NoError(t, err)
	assert.False(t, staleAfter.Active)

	freshAfter, err := client.ChatSession.Query().
		Where(chatsession.IDEQ(fresh.ID)).Only(ctx)
	require.NoError(t, err)
	assert.True(t, freshAfter.Active)

	// Idempotent: a second pass changes nothing.
	svc.Sweep(ctx)
	staleAgain, err := client.ChatSession.Query().
		Where(chatsession.IDEQ(stale.ID)).Only(ctx)
	require.NoError(t, err)
	assert.False(t, staleAgain.Active)
}

func TestService_StartStop(t *testing.T) {
	client := testdb.NewTestClient(t)
	sessions := services.NewSessionService(client.Client)
	ctx := context.Background()

	stale, _, err := sessions.GetOrCreate(ctx, models.GetOrCreateSessionRequest{
		OwnerID: intPtr(1), Country: "UAE", ServiceType: "Tax Services",
	})
	require.NoError(t, err)
	require.NoError(t, client.ChatSession.UpdateOneID(stale.ID).
		SetLastActivity(time.Now().Add(-200*time.Hour)).
		Exec(ctx))

	// The initial sweep runs on Start, before the first tick.
	svc := NewService(sessions, 168*time.Hour, time.Hour)
	svc.Start(ctx)

	require.Eventually(t, func() bool {
		got, err := client.ChatSession.Query().
			Where(chatsession.IDEQ(stale.ID)).Only(ctx)
		return err == nil && !got.Active
	}, 5*time.Second, 50*time.Millisecond)

	svc.Stop()

	// Stop is idempotent.
	svc.Stop()
}
