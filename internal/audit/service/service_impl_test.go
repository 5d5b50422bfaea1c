package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/audit/domain"
	"github.com/fixtrack/fixtrack/internal/audit/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newAuditService(t *testing.T) (domain.Service, *snowflake.Node) {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.AuditEvent{}))

	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: genID,
		Repo:  repository.Provide(),
	})
	t.Cleanup(svc.Flush)
	return svc, genID
}

func TestPublishPersistsAfterFlush(t *testing.T) {
	svc, genID := newAuditService(t)
	ctx := context.Background()
	ticketID := genID.Generate()
	actorID := genID.Generate()

	svc.Publish(ctx, domain.Event{
		TicketID:  ticketID,
		ActorID:   actorID,
		ActorName: "dana",
		ActorType: domain.ActorTypeUser,
		Action:    "timer.start",
		Result:    domain.ResultSuccess,
		Metadata:  map[string]any{"owner_id": actorID.String()},
	})
	svc.Flush()

	resp, err := svc.List(ctx, domain.ListRequest{TicketID: ticketID.String()})
	require.NoError(t, err)
	require.Len(t, resp.AuditEvents, 1)

	event := resp.AuditEvents[0]
	assert.Equal(t, "timer.start", event.Action)
	assert.Equal(t, string(domain.ActorTypeUser), event.ActorType)
	assert.Equal(t, "dana", event.ActorName)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, actorID.String(), *event.ActorID)
	assert.Equal(t, actorID.String(), event.Metadata["owner_id"])
}

func TestPublishDropsActionlessEvents(t *testing.T) {
	svc, genID := newAuditService(t)
	ctx := context.Background()
	ticketID := genID.Generate()

	svc.Publish(ctx, domain.Event{TicketID: ticketID})
	svc.Flush()

	resp, err := svc.List(ctx, domain.ListRequest{TicketID: ticketID.String()})
	require.NoError(t, err)
	assert.Empty(t, resp.AuditEvents)
}

func TestListFiltersByAction(t *testing.T) {
	svc, genID := newAuditService(t)
	ctx := context.Background()
	ticketID := genID.Generate()

	svc.Publish(ctx, domain.Event{TicketID: ticketID, Action: "timer.start"})
	svc.Publish(ctx, domain.Event{TicketID: ticketID, Action: "timer.stop"})
	svc.Flush()

	resp, err := svc.List(ctx, domain.ListRequest{TicketID: ticketID.String(), Action: "timer.stop"})
	require.NoError(t, err)
	require.Len(t, resp.AuditEvents, 1)
	assert.Equal(t, "timer.stop", resp.AuditEvents[0].Action)
}

func TestListRejectsInvertedTimeRange(t *testing.T) {
	svc, _ := newAuditService(t)

	end := time.Now().UTC()
	start := end.Add(time.Hour)
	_, err := svc.List(context.Background(), domain.ListRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)
}

func TestListRejectsBadTicketID(t *testing.T) {
	svc, _ := newAuditService(t)

	_, err := svc.List(context.Background(), domain.ListRequest{TicketID: "garbage"})
	assert.ErrorIs(t, err, domain.ErrInvalidTicket)
}
