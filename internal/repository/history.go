package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aman-churiwal/loadmon/internal/models"
	"github.com/aman-churiwal/loadmon/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Number of samples retained per node
const MaxSamplesPerNode = 40

// HistoryRepository keeps each node's current load and its most recent samples.
//
// Retention is decided by the sample's own timestamp, not by arrival order: a
// late sample that is older than the 40 newest ones is dropped immediately.
type HistoryRepository struct {
	db *storage.Database
}

func NewHistoryRepository(db *storage.Database) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Overwrites the node's current load
func (r *HistoryRepository) SetCurrent(ctx context.Context, nodeID uint, value int) error {
	return r.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := r.lockNode(tx, nodeID); err != nil {
			return err
		}
		return setCurrent(tx, nodeID, value)
	})
}

// Inserts a sample and prunes the node's series back to MaxSamplesPerNode
func (r *HistoryRepository) Append(ctx context.Context, nodeID uint, value int, at time.Time) error {
	return r.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := r.lockNode(tx, nodeID); err != nil {
			return err
		}
		return appendAndPrune(tx, nodeID, value, at)
	})
}

// Sets the current load and appends the sample in one transaction
func (r *HistoryRepository) Record(ctx context.Context, nodeID uint, value int, at time.Time) error {
	return r.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := r.lockNode(tx, nodeID); err != nil {
			return err
		}
		if err := setCurrent(tx, nodeID, value); err != nil {
			return err
		}
		return appendAndPrune(tx, nodeID, value, at)
	})
}

// Returns the node's samples recorded at or after since, oldest first
func (r *HistoryRepository) Recent(ctx context.Context, nodeID uint, since time.Time) ([]models.LoadSample, error) {
	var samples []models.LoadSample
	err := r.db.DB.WithContext(ctx).
		Where("node_id = ? AND recorded_at_ms >= ?", nodeID, since.UnixMilli()).
		Order("recorded_at_ms ASC").
		Order("id ASC").
		Find(&samples).Error

	return samples, err
}

func (r *HistoryRepository) Count(ctx context.Context, nodeID uint) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.LoadSample{}).
		Where("node_id = ?", nodeID).
		Count(&count).Error

	return count, err
}

// Serialises writers of one node's series for the rest of the transaction.
// SQLite runs with a single connection, so the row lock is only needed elsewhere.
func (r *HistoryRepository) lockNode(tx *gorm.DB, nodeID uint) error {
	q := tx.Model(&models.Node{}).Select("id").Where("id = ?", nodeID)
	if r.db.Driver() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var node models.Node
	err := q.First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNodeNotFound
	}

	return err
}

func setCurrent(tx *gorm.DB, nodeID uint, value int) error {
	return tx.Model(&models.Node{}).
		Where("id = ?", nodeID).
		Update("current_load", value).Error
}

func appendAndPrune(tx *gorm.DB, nodeID uint, value int, at time.Time) error {
	sample := models.LoadSample{
		NodeID:       nodeID,
		LoadValue:    value,
		RecordedAtMs: at.UnixMilli(),
	}
	if err := tx.Create(&sample).Error; err != nil {
		return err
	}

	keep := tx.Model(&models.LoadSample{}).
		Select("id").
		Where("node_id = ?", nodeID).
		Order("recorded_at_ms DESC").
		Order("id DESC").
		Limit(MaxSamplesPerNode)

	return tx.Where("node_id = ? AND id NOT IN (?)", nodeID, keep).
		Delete(&models.LoadSample{}).Error
}
