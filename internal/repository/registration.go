package repository

import (
	"context"

	"github.com/aman-churiwal/loadmon/internal/models"
	"github.com/aman-churiwal/loadmon/internal/storage"
)

type RegistrationRepository struct {
	db *storage.Database
}

func NewRegistrationRepository(db *storage.Database) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	return r.db.DB.WithContext(ctx).Create(reg).Error
}

func (r *RegistrationRepository) CountByAddress(ctx context.Context, address string) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.Registration{}).
		Where("request_ip = ?", address).
		Count(&count).Error

	return count, err
}
