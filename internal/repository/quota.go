package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aman-churiwal/loadmon/internal/models"
	"github.com/aman-churiwal/loadmon/internal/ratelimit"
	"github.com/aman-churiwal/loadmon/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuotaRepository is the database-backed ratelimit.Store.
type QuotaRepository struct {
	db *storage.Database
}

func NewQuotaRepository(db *storage.Database) *QuotaRepository {
	return &QuotaRepository{db: db}
}

func (r *QuotaRepository) Get(ctx context.Context, address string) (*ratelimit.Record, error) {
	var rec models.QuotaRecord
	err := r.db.DB.WithContext(ctx).
		Where("address = ?", address).
		First(&rec).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return toRecord(rec), nil
}

// Maximum seed-and-update rounds when a sweep deletes the record mid-admit
const maxAdmitAttempts = 3

var errQuotaSwept = errors.New("quota record removed during admit")

// Admit runs as an insert-if-absent followed by one conditional update, so
// concurrent attempts from the same address cannot both pass a stale count.
// A sweep committed between the two statements sends it back to the insert.
func (r *QuotaRepository) Admit(ctx context.Context, address string, now time.Time, policy ratelimit.Policy) (ratelimit.Decision, error) {
	var decision ratelimit.Decision

	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		for attempt := 0; attempt < maxAdmitAttempts; attempt++ {
			decision, err = admitOnce(tx, address, now, policy)
			if !errors.Is(err, errQuotaSwept) {
				return err
			}
		}
		return err
	})

	return decision, err
}

func admitOnce(tx *gorm.DB, address string, now time.Time, policy ratelimit.Policy) (ratelimit.Decision, error) {
	nowMs := now.UnixMilli()
	cutoff := nowMs - policy.Window.Milliseconds() // expired when window_start <= cutoff

	seed := models.QuotaRecord{
		Address:       address,
		RequestCount:  0,
		WindowStartMs: nowMs,
		LastRequestMs: nowMs,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return ratelimit.Decision{}, err
	}

	updates := map[string]interface{}{
		"request_count":   gorm.Expr("request_count + 1"),
		"last_request_ms": nowMs,
	}
	if policy.ResetExpired {
		updates["request_count"] = gorm.Expr("CASE WHEN window_start_ms <= ? THEN 1 ELSE request_count + 1 END", cutoff)
		updates["window_start_ms"] = gorm.Expr("CASE WHEN window_start_ms <= ? THEN ? ELSE window_start_ms END", cutoff, nowMs)
	}

	res := tx.Model(&models.QuotaRecord{}).
		Where("address = ? AND (request_count < ? OR window_start_ms <= ?)", address, policy.Limit, cutoff).
		Updates(updates)
	if res.Error != nil {
		return ratelimit.Decision{}, res.Error
	}

	var rec models.QuotaRecord
	err := tx.Where("address = ?", address).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ratelimit.Decision{}, errQuotaSwept
	}
	if err != nil {
		return ratelimit.Decision{}, err
	}

	return ratelimit.Decision{
		Allowed:     res.RowsAffected == 1,
		Count:       rec.RequestCount,
		WindowStart: time.UnixMilli(rec.WindowStartMs).UTC(),
	}, nil
}

func (r *QuotaRepository) Release(ctx context.Context, address string) error {
	return r.db.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Where("address = ? AND request_count <= ?", address, 1).
			Delete(&models.QuotaRecord{})
		if res.Error != nil || res.RowsAffected > 0 {
			return res.Error
		}

		return tx.Model(&models.QuotaRecord{}).
			Where("address = ? AND request_count > ?", address, 1).
			Update("request_count", gorm.Expr("request_count - 1")).Error
	})
}

func (r *QuotaRepository) Sweep(ctx context.Context) (int64, error) {
	var removed int64

	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.QuotaRecord{})
		removed = res.RowsAffected
		return res.Error
	})

	return removed, err
}

func toRecord(rec models.QuotaRecord) *ratelimit.Record {
	return &ratelimit.Record{
		Address:      rec.Address,
		RequestCount: rec.RequestCount,
		WindowStart:  time.UnixMilli(rec.WindowStartMs).UTC(),
		LastRequest:  time.UnixMilli(rec.LastRequestMs).UTC(),
	}
}
