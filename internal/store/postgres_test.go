package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPostgresStore connects to TEST_POSTGRES_URL. Unlike the SQLite store it
// keeps a real connection pool, so writers actually overlap.
func newPostgresStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	s, err := NewStore("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresConcurrentUpsertsLeaveOneRow(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	userID := "pg-" + uuid.New().String()
	t.Cleanup(func() { _, _ = s.DeleteGrantsForUser(context.Background(), userID) })

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.UpsertGrant(ctx, &models.EntitlementGrant{
				UserID:    userID,
				ProductID: 7,
				Locator:   fmt.Sprintf("L%d", i),
				Status:    models.GrantStatusGranted,
				GrantedAt: time.Now().UTC(),
			}))
		}(i)
	}
	wg.Wait()

	grants, err := s.ListGrants(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestPostgresRevokeWinsOverConcurrentRefresh(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	userID := "pg-" + uuid.New().String()
	t.Cleanup(func() { _, _ = s.DeleteGrantsForUser(context.Background(), userID) })

	require.NoError(t, s.UpsertGrant(ctx, &models.EntitlementGrant{
		UserID: userID, ProductID: 7, Locator: "fallback:7", Status: models.GrantStatusGranted, GrantedAt: time.Now().UTC(),
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.UpsertGrantUnlessRevoked(ctx, &models.EntitlementGrant{
				UserID:    userID,
				ProductID: 7,
				Locator:   fmt.Sprintf("L%d", i),
				Status:    models.GrantStatusGranted,
				GrantedAt: time.Now().UTC(),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.UpdateGrantStatus(ctx, userID, 7, models.GrantStatusRevoked)
		assert.NoError(t, err)
	}()
	wg.Wait()

	g, err := s.GetGrant(ctx, userID, 7)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, models.GrantStatusRevoked, g.Status)
}
