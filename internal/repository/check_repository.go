// Package repository はチェック履歴のデータアクセス層を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gpg-expire-warner/internal/domain"
)

// CheckRunModel はcheck_runsテーブルのモデル。
type CheckRunModel struct {
	ID           string            `gorm:"type:char(36);primaryKey"`
	CheckedAt    time.Time         `gorm:"not null"`
	WarnDays     int64             `gorm:"not null"`
	TargetCount  int               `gorm:"not null"`
	FlaggedCount int               `gorm:"not null"`
	FlaggedKeys  []FlaggedKeyModel `gorm:"foreignKey:CheckRunID"`
}

// TableName はテーブル名を返す。
func (CheckRunModel) TableName() string {
	return "check_runs"
}

// FlaggedKeyModel はflagged_keysテーブルのモデル。
type FlaggedKeyModel struct {
	ID                 string `gorm:"type:char(36);primaryKey"`
	CheckRunID         string `gorm:"type:char(36);not null;index:idx_flagged_keys_check_run"`
	Position           int    `gorm:"not null;index:idx_flagged_keys_check_run"`
	Fingerprint        string `gorm:"type:char(40);not null"`
	PrimaryFingerprint string `gorm:"type:char(40);not null"`
	Days               int64  `gorm:"not null"`
}

// TableName はテーブル名を返す。
func (FlaggedKeyModel) TableName() string {
	return "flagged_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *CheckRunModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *FlaggedKeyModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *CheckRunModel) toDomain() *domain.CheckRun {
	run := &domain.CheckRun{
		ID:          m.ID,
		CheckedAt:   m.CheckedAt.UTC(),
		WarnDays:    m.WarnDays,
		TargetCount: m.TargetCount,
		Flagged:     make([]domain.ExpiringKey, len(m.FlaggedKeys)),
	}
	for i, k := range m.FlaggedKeys {
		run.Flagged[i] = domain.ExpiringKey{
			Fingerprint: domain.KeyID(k.Fingerprint),
			Primary:     domain.KeyID(k.PrimaryFingerprint),
			Days:        k.Days,
		}
	}
	return run
}

// CheckRepository はチェック履歴の永続化を提供する。
type CheckRepository struct {
	db *gorm.DB
}

// NewCheckRepository は新しいCheckRepositoryを生成する。
func NewCheckRepository(db *gorm.DB) *CheckRepository {
	return &CheckRepository{db: db}
}

// Create はチェック結果と警告対象の鍵を1トランザクションで保存する。
// run.IDが空の場合は採番した値を設定する。
func (r *CheckRepository) Create(ctx context.Context, run *domain.CheckRun) error {
	model := &CheckRunModel{
		ID:           run.ID,
		CheckedAt:    run.CheckedAt.UTC(),
		WarnDays:     run.WarnDays,
		TargetCount:  run.TargetCount,
		FlaggedCount: len(run.Flagged),
		FlaggedKeys:  make([]FlaggedKeyModel, len(run.Flagged)),
	}
	for i, k := range run.Flagged {
		model.FlaggedKeys[i] = FlaggedKeyModel{
			Position:           i,
			Fingerprint:        k.Fingerprint.String(),
			PrimaryFingerprint: k.Primary.String(),
			Days:               k.Days,
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create check run",
			"operation", "create_check_run",
			"flagged", len(run.Flagged),
			"error", err,
		)
		return err
	}
	run.ID = model.ID
	return nil
}

// FindByID は指定されたIDのチェック結果を取得する。存在しない場合は ErrCheckNotFound。
func (r *CheckRepository) FindByID(ctx context.Context, id string) (*domain.CheckRun, error) {
	var model CheckRunModel
	err := r.db.WithContext(ctx).
		Preload("FlaggedKeys", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCheckNotFound
		}
		slog.ErrorContext(ctx, "failed to find check run",
			"operation", "find_by_id",
			"check_id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindRecent は新しい順に最大limit件のチェック結果を取得する。
func (r *CheckRepository) FindRecent(ctx context.Context, limit int) ([]*domain.CheckRun, error) {
	var models []CheckRunModel
	err := r.db.WithContext(ctx).
		Preload("FlaggedKeys", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("checked_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find recent check runs",
			"operation", "find_recent",
			"limit", limit,
			"error", err,
		)
		return nil, err
	}

	runs := make([]*domain.CheckRun, len(models))
	for i := range models {
		runs[i] = models[i].toDomain()
	}
	return runs, nil
}
