package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/lms-portal/core/session"
	"github.com/trezcool/lms-portal/tests"
)

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(testutil.PrepareDB(t), time.Hour)
	now := time.Now()
	repo.nowFunc = func() time.Time { return now }

	_, err := repo.Load(ctx, "tab-1")
	assert.Equal(t, session.ErrRecordNotFound, err)

	rec := session.Record{Token: "jwt", User: `{"id":1,"name":"Ada","email":"","role":"ADMIN"}`}
	require.NoError(t, repo.Save(ctx, "tab-1", rec))
	got, err := repo.Load(ctx, "tab-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// upsert
	rec2 := session.Record{Token: "jwt2", User: `{"id":2,"name":"Sam","email":"","role":"STUDENT"}`}
	require.NoError(t, repo.Save(ctx, "tab-1", rec2))
	got, err = repo.Load(ctx, "tab-1")
	require.NoError(t, err)
	assert.Equal(t, rec2, got)

	// scoped per tab
	_, err = repo.Load(ctx, "tab-2")
	assert.Equal(t, session.ErrRecordNotFound, err)

	require.NoError(t, repo.Remove(ctx, "tab-1"))
	require.NoError(t, repo.Remove(ctx, "tab-1"))
	_, err = repo.Load(ctx, "tab-1")
	assert.Equal(t, session.ErrRecordNotFound, err)
}

func TestSessionRepository_expiry(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(testutil.PrepareDB(t), time.Minute)
	now := time.Now()
	repo.nowFunc = func() time.Time { return now }

	require.NoError(t, repo.Save(ctx, "old", session.Record{Token: "a", User: "{}"}))
	now = now.Add(30 * time.Second)
	require.NoError(t, repo.Save(ctx, "new", session.Record{Token: "b", User: "{}"}))
	now = now.Add(45 * time.Second)

	_, err := repo.Load(ctx, "old")
	assert.Equal(t, session.ErrRecordNotFound, err)
	_, err = repo.Load(ctx, "new")
	assert.NoError(t, err)

	n, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
