package repository

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"gpg-expire-warner/internal/domain"
	"gpg-expire-warner/migrations"
)

const (
	primaryFpr = "1111111111111111111111111111111111111111"
	subkeyFpr  = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
)

// setupTestDB は埋め込みマイグレーションを適用したインメモリSQLiteデータベースを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// :memory: は接続ごとに別DBになるため1接続に固定する
	sqlDB.SetMaxOpenConns(1)

	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}
		if err := db.Exec(string(data)).Error; err != nil {
			t.Fatalf("failed to apply %s: %v", name, err)
		}
	}
	return db
}

func TestCheckRepository_CreateAndFindByID(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckRepository(setupTestDB(t))

	checkedAt := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	run := &domain.CheckRun{
		CheckedAt:   checkedAt,
		WarnDays:    7,
		TargetCount: 2,
		Flagged: []domain.ExpiringKey{
			{Fingerprint: primaryFpr, Primary: primaryFpr, Days: 5},
			{Fingerprint: subkeyFpr, Primary: primaryFpr, Days: 1},
		},
	}
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected ID to be assigned")
	}

	got, err := repo.FindByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if !got.CheckedAt.Equal(checkedAt) {
		t.Errorf("want checked_at %v, got %v", checkedAt, got.CheckedAt)
	}
	if got.WarnDays != 7 || got.TargetCount != 2 {
		t.Errorf("want warn_days 7 target_count 2, got %d %d", got.WarnDays, got.TargetCount)
	}
	if len(got.Flagged) != 2 {
		t.Fatalf("want 2 flagged keys, got %d", len(got.Flagged))
	}
	if got.Flagged[0].Fingerprint != primaryFpr || got.Flagged[1].Fingerprint != subkeyFpr {
		t.Errorf("flagged keys out of order: %+v", got.Flagged)
	}
	if got.Flagged[1].Primary != primaryFpr || got.Flagged[1].Days != 1 {
		t.Errorf("unexpected subkey entry: %+v", got.Flagged[1])
	}
}

func TestCheckRepository_FindByID_NotFound(t *testing.T) {
	repo := NewCheckRepository(setupTestDB(t))

	_, err := repo.FindByID(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, domain.ErrCheckNotFound) {
		t.Errorf("want ErrCheckNotFound, got %v", err)
	}
}

func TestCheckRepository_FindRecent(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckRepository(setupTestDB(t))

	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &domain.CheckRun{CheckedAt: base.AddDate(0, 0, i), WarnDays: int64(i)}
		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	runs, err := repo.FindRecent(ctx, 2)
	if err != nil {
		t.Fatalf("FindRecent failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("want 2 runs, got %d", len(runs))
	}
	if runs[0].WarnDays != 2 || runs[1].WarnDays != 1 {
		t.Errorf("want newest first, got warn_days %d, %d", runs[0].WarnDays, runs[1].WarnDays)
	}
	if len(runs[0].Flagged) != 0 {
		t.Errorf("want no flagged keys, got %d", len(runs[0].Flagged))
	}
}

func TestMigrationRepository_EnsureTableAndFind(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	repo := NewMigrationRepository(db)

	if err := repo.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	if err := db.Create(&SchemaMigrationModel{Version: "001"}).Error; err != nil {
		t.Fatalf("failed to insert migration: %v", err)
	}

	applied, err := repo.IsMigrationApplied(ctx, "001")
	if err != nil {
		t.Fatalf("IsMigrationApplied failed: %v", err)
	}
	if !applied {
		t.Error("expected 001 to be applied")
	}
	applied, err = repo.IsMigrationApplied(ctx, "002")
	if err != nil {
		t.Fatalf("IsMigrationApplied failed: %v", err)
	}
	if applied {
		t.Error("expected 002 to be pending")
	}

	all, err := repo.FindAllApplied(ctx)
	if err != nil {
		t.Fatalf("FindAllApplied failed: %v", err)
	}
	if len(all) != 1 || all[0].Version != "001" || all[0].Status != domain.MigrationStatusApplied {
		t.Errorf("unexpected applied migrations: %+v", all)
	}
}
