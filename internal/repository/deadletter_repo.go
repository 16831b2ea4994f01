package repository

import (
	"context"
	"errors"

	"github.com/acadnotify/notify-engine/internal/domain"
	"gorm.io/gorm"
)

type DeadLetterRepository interface {
	Create(ctx context.Context, d *domain.DeadLetter) error
	GetByID(ctx context.Context, id string) (*domain.DeadLetter, error)
	List(ctx context.Context, page, pageSize int) ([]domain.DeadLetter, int64, error)
	ListUnreprocessed(ctx context.Context, limit int) ([]domain.DeadLetter, error)
	MarkReprocessed(ctx context.Context, id string) error
}

type GormDeadLetterRepo struct {
	db *gorm.DB
}

func NewGormDeadLetterRepo(db *gorm.DB) *GormDeadLetterRepo {
	return &GormDeadLetterRepo{db: db}
}

func (r *GormDeadLetterRepo) Create(ctx context.Context, d *domain.DeadLetter) error {
	model := deadLetterModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *deadLetterModelToDomain(model)
	}
	return nil
}

func (r *GormDeadLetterRepo) GetByID(ctx context.Context, id string) (*domain.DeadLetter, error) {
	var model DeadLetterModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deadLetterModelToDomain(&model), nil
}

func (r *GormDeadLetterRepo) List(ctx context.Context, page, pageSize int) ([]domain.DeadLetter, int64, error) {
	query := r.db.WithContext(ctx).Model(&DeadLetterModel{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = max(page, 1)
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []DeadLetterModel
	err := query.
		Order("enqueued_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	entries := make([]domain.DeadLetter, 0, len(models))
	for i := range models {
		entries = append(entries, *deadLetterModelToDomain(&models[i]))
	}

	return entries, total, nil
}

func (r *GormDeadLetterRepo) ListUnreprocessed(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	if limit < 1 {
		limit = 100
	}

	var models []DeadLetterModel
	err := r.db.WithContext(ctx).
		Where("reprocessed = ?", false).
		Order("enqueued_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]domain.DeadLetter, 0, len(models))
	for i := range models {
		entries = append(entries, *deadLetterModelToDomain(&models[i]))
	}

	return entries, nil
}

func (r *GormDeadLetterRepo) MarkReprocessed(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&DeadLetterModel{}).
		Where("id = ?", id).
		Update("reprocessed", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
