package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-auth-service/internal/model"
	"go-auth-service/internal/repository/memory"
	"go-auth-service/pkg/apierror"
)

func TestAuditServiceLogAndQuery(t *testing.T) {
	t.Parallel()

	store := memory.NewAuditLog()
	svc := NewAuditService(store)
	clock := &testClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc.now = clock.Now

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	actor := model.AuditActor{UserID: "u-1", Email: "jane@x.com", IP: "10.0.0.1"}
	svc.Log(ctx, model.AuditActionSignup, actor, model.AuditStatusSuccess, "")
	clock.Advance(time.Minute)
	svc.Log(ctx, model.AuditActionSignin, actor, model.AuditStatusFailure, "Invalid email or password")
	svc.Log(ctx, model.AuditActionSignin, model.AuditActor{UserID: "u-2"}, model.AuditStatusSuccess, "")

	items, meta, err := svc.Query(context.Background(), model.AuditQuery{UserID: "u-1"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 2, meta.Total)
	require.Equal(t, model.AuditActionSignin, items[0].Action, "newest first")

	items, _, err = svc.Query(context.Background(), model.AuditQuery{UserID: "u-1", Action: " SIGNUP "})
	require.NoError(t, err)
	require.Len(t, items, 1)
}

type brokenAuditStore struct{}

func (brokenAuditStore) Log(context.Context, model.AuditEntry) error {
	return errors.New("disk full")
}

func (brokenAuditStore) Query(context.Context, model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	return nil, model.Meta{}, errors.New("relation does not exist")
}

func TestAuditServiceFailures(t *testing.T) {
	t.Parallel()

	svc := NewAuditService(brokenAuditStore{})
	require.NotPanics(t, func() {
		svc.Log(context.Background(), model.AuditActionSignin, model.AuditActor{}, model.AuditStatusSuccess, "")
	})

	_, _, err := svc.Query(context.Background(), model.AuditQuery{UserID: "u-1"})
	requireAPIError(t, err, apierror.CodeInternal)

	var nilSvc *AuditService
	require.NotPanics(t, func() {
		nilSvc.Log(context.Background(), model.AuditActionSignin, model.AuditActor{}, model.AuditStatusSuccess, "")
	})
}
