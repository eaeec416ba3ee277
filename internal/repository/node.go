package repository

import (
	"context"
	"errors"

	"github.com/aman-churiwal/loadmon/internal/models"
	"github.com/aman-churiwal/loadmon/internal/storage"
	"gorm.io/gorm"
)

// ErrNodeNotFound is returned when a node id does not exist
var ErrNodeNotFound = errors.New("node not found")

type NodeRepository struct {
	db *storage.Database
}

func NewNodeRepository(db *storage.Database) *NodeRepository {
	return &NodeRepository{db: db}
}

func (r *NodeRepository) Create(ctx context.Context, node *models.Node) error {
	return r.db.DB.WithContext(ctx).Create(node).Error
}

func (r *NodeRepository) FindByID(ctx context.Context, id uint) (*models.Node, error) {
	var node models.Node
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&node).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &node, err
}

// Returns the node only if it accepts registrations
func (r *NodeRepository) FindAvailable(ctx context.Context, id uint) (*models.Node, error) {
	var node models.Node
	err := r.db.DB.WithContext(ctx).
		Where("id = ? AND is_available = ?", id, true).
		First(&node).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &node, err
}

func (r *NodeRepository) ListAvailable(ctx context.Context) ([]models.Node, error) {
	var nodes []models.Node
	err := r.db.DB.WithContext(ctx).
		Where("is_available = ?", true).
		Order("id ASC").
		Find(&nodes).Error

	return nodes, err
}
