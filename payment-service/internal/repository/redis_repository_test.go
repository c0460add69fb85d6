package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_shop/payment-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisRepository instance
func setupTestRedis(t *testing.T) (*RedisRepository, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	repo := NewRedisRepository(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return repo, mr, cleanup
}

func newTestPayment(id, userID string, status domain.Status, created time.Time) *domain.Payment {
	return &domain.Payment{
		ID:        id,
		OrderID:   "ORDER-" + id,
		UserID:    userID,
		Amount:    decimal.RequireFromString("19.99"),
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestSaveAndFindByID(t *testing.T) {
	repo, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	created := time.Date(2026, 10, 14, 12, 0, 0, 123, time.UTC)
	p := newTestPayment("p1", "u1", domain.StatusPending, created)

	require.NoError(t, repo.Save(ctx, p))

	assert.Equal(t, "PENDING", mr.HGet("payment:p1", "status"))
	assert.Equal(t, "19.99", mr.HGet("payment:p1", "amount"))

	got, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "ORDER-p1", got.OrderID)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, p.Amount.Equal(got.Amount))
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.True(t, created.Equal(got.CreatedAt))
}

func TestFindByID_NotFound(t *testing.T) {
	repo, _, cleanup := setupTestRedis(t)
	defer cleanup()

	got, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	assert.Nil(t, got)
}

func TestFindByID_CorruptHash(t *testing.T) {
	repo, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	mr.HSet("payment:bad", "amount", "lots", "createdAt", "x", "updatedAt", "x")

	_, err := repo.FindByID(context.Background(), "bad")
	assert.ErrorContains(t, err, "decode amount")
}

func TestIndexesFollowUpdates(t *testing.T) {
	repo, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()
	p := newTestPayment("p1", "u1", domain.StatusPending, now)
	require.NoError(t, repo.Save(ctx, p))

	p.Status = domain.StatusSuccess
	p.UserID = "u2"
	require.NoError(t, repo.Save(ctx, p))

	pending, err := repo.FindByStatus(ctx, domain.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	success, err := repo.FindByStatus(ctx, domain.StatusSuccess)
	require.NoError(t, err)
	require.Len(t, success, 1)
	assert.Equal(t, "p1", success[0].ID)

	byOld, err := repo.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, byOld)

	byNew, err := repo.FindByUserID(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, byNew, 1)

	members, err := mr.Members("payment:status:SUCCESS")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, members)
}

func TestFindAll_OrderedByCreation(t *testing.T) {
	repo, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.Save(ctx, newTestPayment("b", "u1", domain.StatusPending, now)))
	require.NoError(t, repo.Save(ctx, newTestPayment("a", "u1", domain.StatusFailed, now.Add(-time.Minute))))

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

func TestFindAll_Empty(t *testing.T) {
	repo, _, cleanup := setupTestRedis(t)
	defer cleanup()

	all, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestFindAll_SkipsDanglingIndexEntries(t *testing.T) {
	repo, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, newTestPayment("p1", "u1", domain.StatusPending, time.Now())))
	_, err := mr.SAdd("payment:index", "ghost")
	require.NoError(t, err)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDelete(t *testing.T) {
	repo, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, newTestPayment("p1", "u1", domain.StatusPending, time.Now())))

	require.NoError(t, repo.Delete(ctx, "p1"))
	assert.False(t, mr.Exists("payment:p1"))
	assert.False(t, mr.Exists("payment:user:u1"))
	assert.False(t, mr.Exists("payment:status:PENDING"))

	// deleting again is not an error
	assert.NoError(t, repo.Delete(ctx, "p1"))
}

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "payment:abc", paymentKey("abc"))
	assert.Equal(t, "payment:user:7", userKey("7"))
	assert.Equal(t, "payment:status:FAILED", statusKey("FAILED"))
}

func TestSave_ConcurrentStatusUpdatesKeepIndexConsistent(t *testing.T) {
	repo, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	created := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("p%d", i)
		require.NoError(t, repo.Save(ctx, newTestPayment(id, "u1", domain.StatusPending, created)))

		var wg sync.WaitGroup
		for _, st := range []domain.Status{domain.StatusSuccess, domain.StatusFailed} {
			wg.Add(1)
			go func(st domain.Status) {
				defer wg.Done()
				assert.NoError(t, repo.Save(ctx, newTestPayment(id, "u1", st, created)))
			}(st)
		}
		wg.Wait()
	}

	success, err := repo.FindByStatus(ctx, domain.StatusSuccess)
	require.NoError(t, err)
	failed, err := repo.FindByStatus(ctx, domain.StatusFailed)
	require.NoError(t, err)
	pending, err := repo.FindByStatus(ctx, domain.StatusPending)
	require.NoError(t, err)

	for _, p := range success {
		assert.Equal(t, domain.StatusSuccess, p.Status, p.ID)
	}
	for _, p := range failed {
		assert.Equal(t, domain.StatusFailed, p.Status, p.ID)
	}
	assert.Empty(t, pending)
	assert.Len(t, append(success, failed...), 50)
}

func TestFindByStatus_SkipsStaleIndexEntries(t *testing.T) {
	repo, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	created := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, newTestPayment("p1", "u1", domain.StatusFailed, created)))

	// leftover membership from an index written by an older client
	_, err := mr.SAdd("payment:status:SUCCESS", "p1")
	require.NoError(t, err)
	_, err = mr.SAdd("payment:user:u2", "p1")
	require.NoError(t, err)

	success, err := repo.FindByStatus(ctx, domain.StatusSuccess)
	require.NoError(t, err)
	assert.Empty(t, success)

	byUser, err := repo.FindByUserID(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, byUser)

	failed, err := repo.FindByStatus(ctx, domain.StatusFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}
