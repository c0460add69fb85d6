package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fjod/go_shop/payment-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	fieldOrderID   = "orderId"
	fieldUserID    = "userId"
	fieldAmount    = "amount"
	fieldStatus    = "status"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"

	indexKey = "payment:index"

	maxTxRetries = 50
)

// RedisRepository stores each payment as a flat hash plus secondary index
// sets for listing by user and by status.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) Save(ctx context.Context, p *domain.Payment) error {
	key := paymentKey(p.ID)

	err := r.watch(ctx, key, func(tx *redis.Tx) error {
		prev, err := tx.HMGet(ctx, key, fieldUserID, fieldStatus).Result()
		if err != nil {
			return fmt.Errorf("redis hmget failed: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]interface{}{
				fieldOrderID:   p.OrderID,
				fieldUserID:    p.UserID,
				fieldAmount:    p.Amount.String(),
				fieldStatus:    string(p.Status),
				fieldCreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
				fieldUpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339Nano),
			})
			pipe.SAdd(ctx, indexKey, p.ID)

			if oldUser, ok := prev[0].(string); ok && oldUser != p.UserID {
				pipe.SRem(ctx, userKey(oldUser), p.ID)
			}
			pipe.SAdd(ctx, userKey(p.UserID), p.ID)

			if oldStatus, ok := prev[1].(string); ok && oldStatus != string(p.Status) {
				pipe.SRem(ctx, statusKey(oldStatus), p.ID)
			}
			pipe.SAdd(ctx, statusKey(string(p.Status)), p.ID)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("redis save payment failed: %w", err)
	}
	return nil
}

func (r *RedisRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	fields, err := r.client.HGetAll(ctx, paymentKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrPaymentNotFound
	}
	return decodePayment(id, fields)
}

func (r *RedisRepository) FindAll(ctx context.Context) ([]*domain.Payment, error) {
	return r.loadSet(ctx, indexKey, nil)
}

func (r *RedisRepository) FindByUserID(ctx context.Context, userID string) ([]*domain.Payment, error) {
	return r.loadSet(ctx, userKey(userID), func(p *domain.Payment) bool {
		return p.UserID == userID
	})
}

func (r *RedisRepository) FindByStatus(ctx context.Context, status domain.Status) ([]*domain.Payment, error) {
	return r.loadSet(ctx, statusKey(string(status)), func(p *domain.Payment) bool {
		return p.Status == status
	})
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	key := paymentKey(id)

	err := r.watch(ctx, key, func(tx *redis.Tx) error {
		prev, err := tx.HMGet(ctx, key, fieldUserID, fieldStatus).Result()
		if err != nil {
			return fmt.Errorf("redis hmget failed: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, indexKey, id)
			if user, ok := prev[0].(string); ok {
				pipe.SRem(ctx, userKey(user), id)
			}
			if status, ok := prev[1].(string); ok {
				pipe.SRem(ctx, statusKey(status), id)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("redis delete payment failed: %w", err)
	}
	return nil
}

// watch runs fn under WATCH on key and retries when another client
// changed the key before EXEC, so index sets follow the hash they index.
func (r *RedisRepository) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = r.client.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// loadSet fetches every payment whose id is in the set, oldest first.
// Ids whose hash is gone, or that keep rejects, are skipped.
func (r *RedisRepository) loadSet(ctx context.Context, setKey string, keep func(*domain.Payment) bool) ([]*domain.Payment, error) {
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}

	payments := make([]*domain.Payment, 0, len(ids))
	if len(ids) == 0 {
		return payments, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, paymentKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		p, err := decodePayment(ids[i], fields)
		if err != nil {
			return nil, err
		}
		if keep != nil && !keep(p) {
			continue
		}
		payments = append(payments, p)
	}

	sort.Slice(payments, func(i, j int) bool {
		if payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].ID < payments[j].ID
		}
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
	return payments, nil
}

func decodePayment(id string, fields map[string]string) (*domain.Payment, error) {
	amount, err := decimal.NewFromString(fields[fieldAmount])
	if err != nil {
		return nil, fmt.Errorf("decode amount of payment %s: %w", id, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("decode createdAt of payment %s: %w", id, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt])
	if err != nil {
		return nil, fmt.Errorf("decode updatedAt of payment %s: %w", id, err)
	}

	return &domain.Payment{
		ID:        id,
		OrderID:   fields[fieldOrderID],
		UserID:    fields[fieldUserID],
		Amount:    amount,
		Status:    domain.Status(fields[fieldStatus]),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func paymentKey(id string) string {
	return fmt.Sprintf("payment:%s", id)
}

func userKey(userID string) string {
	return fmt.Sprintf("payment:user:%s", userID)
}

func statusKey(status string) string {
	return fmt.Sprintf("payment:status:%s", status)
}
