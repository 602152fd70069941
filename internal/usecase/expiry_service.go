// Package usecase は期限チェックと期限延長のユースケースを実装する。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gpg-expire-warner/internal/domain"
	"gpg-expire-warner/internal/keylist"
	"gpg-expire-warner/internal/middleware"
)

// ErrHistoryDisabled は履歴ストアが設定されていない場合のエラー。
var ErrHistoryDisabled = errors.New("check history store is not configured")

// GPG はgpgサブプロセス呼び出しのインターフェース。
type GPG interface {
	ListKeys(ctx context.Context, ids []domain.KeyID) (string, error)
	QuickSetExpire(ctx context.Context, primary domain.KeyID, expire string, subkeys []domain.KeyID) error
}

// CheckRepository はチェック履歴の永続化インターフェース。
type CheckRepository interface {
	Create(ctx context.Context, run *domain.CheckRun) error
	FindByID(ctx context.Context, id string) (*domain.CheckRun, error)
	FindRecent(ctx context.Context, limit int) ([]*domain.CheckRun, error)
}

// CheckRequest は期限チェックの入力。
type CheckRequest struct {
	// Keys はチェック対象のフィンガープリント。gpgの一覧取得もこの鍵に絞る。
	Keys []domain.KeyID
	// All が真の場合はキーリング内の全鍵を対象にする。Keysは無視する。
	All bool
	// WarnDays はこの日数以内に期限を迎える鍵を警告対象にする。
	WarnDays int64
}

// ExpiryService は期限チェックと期限延長を提供する。
// gpgはキーリングへのアクセスを直列化するため、呼び出しは常に1本ずつ行う。
type ExpiryService struct {
	gpg    GPG
	repo   CheckRepository
	now    func() time.Time
	tracer trace.Tracer
	mu     sync.Mutex
}

// NewExpiryService は新しいExpiryServiceを生成する。repoがnilの場合は履歴を保存しない。
func NewExpiryService(gpg GPG, repo CheckRepository) *ExpiryService {
	return &ExpiryService{
		gpg:    gpg,
		repo:   repo,
		now:    time.Now,
		tracer: otel.Tracer("gpg-expire-warner/usecase"),
	}
}

// WithClock は基準時刻の取得関数を差し替える。
func (s *ExpiryService) WithClock(now func() time.Time) *ExpiryService {
	s.now = now
	return s
}

// Check はgpgから鍵一覧を1度だけ取得し、警告対象の鍵を判定する。
// 構造の解析に失敗した場合は部分的な結果を返さない。
func (s *ExpiryService) Check(ctx context.Context, req CheckRequest) (*domain.CheckResult, error) {
	ctx, span := s.tracer.Start(ctx, "expiry.check",
		trace.WithAttributes(
			attribute.Int64("check.warn_days", req.WarnDays),
			attribute.Bool("check.all", req.All),
			attribute.Int("check.key_count", len(req.Keys)),
		))
	defer span.End()

	var listIDs []domain.KeyID
	if !req.All {
		listIDs = req.Keys
	}

	s.mu.Lock()
	output, err := s.gpg.ListKeys(ctx, listIDs)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}

	inv, err := keylist.Parse(output)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse gpg key listing",
			"operation", "check",
			"error", err,
		)
		return nil, fmt.Errorf("parsing key listing: %w", err)
	}

	targets := domain.NewKeyIDSet(req.Keys)
	if req.All {
		targets = domain.NewKeyIDSet(inv.Fingerprints())
	}

	checkedAt := s.now().UTC()
	run := &domain.CheckRun{
		CheckedAt:   checkedAt,
		WarnDays:    req.WarnDays,
		TargetCount: len(targets),
		Flagged:     SelectExpiring(inv, targets, checkedAt.Unix(), req.WarnDays),
	}

	if s.repo != nil {
		if err := s.repo.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("recording check run: %w", err)
		}
	}

	span.SetAttributes(attribute.Int("check.flagged", len(run.Flagged)))
	for _, k := range run.Flagged {
		middleware.WriteAuditLog(ctx, "CHECK_EXPIRY", k.Fingerprint.String(), k.Primary.String(), "FLAGGED",
			slog.Int64("days", k.Days))
	}
	slog.InfoContext(ctx, "expiry check completed",
		"operation", "check",
		"check_id", run.ID,
		"targets", run.TargetCount,
		"flagged", len(run.Flagged),
	)

	return &domain.CheckResult{Run: run, Inventory: inv}, nil
}

// ApplyExtensions は計画された期限延長をインベントリ順に1件ずつ実行する。
// 失敗した時点で残りを中止し、それまでに適用済みのリクエストとエラーを返す。適用済みの変更は戻さない。
func (s *ExpiryService) ApplyExtensions(ctx context.Context, plan []domain.ExtensionRequest, expire string) ([]domain.ExtensionRequest, error) {
	ctx, span := s.tracer.Start(ctx, "expiry.extend",
		trace.WithAttributes(attribute.Int("extend.requests", len(plan))))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	applied := make([]domain.ExtensionRequest, 0, len(plan))
	for _, req := range plan {
		operation := "EXTEND_SUBKEYS"
		if req.IsPrimary() {
			operation = "EXTEND_PRIMARY"
		}

		if err := s.gpg.QuickSetExpire(ctx, req.Primary, expire, req.Subkeys); err != nil {
			auditExtension(ctx, operation, req, expire, "FAILED")
			if req.IsPrimary() {
				return applied, fmt.Errorf("%w: main key %s: %w", domain.ErrExtensionFailed, req.Primary, err)
			}
			return applied, fmt.Errorf("%w: subkeys %v of %s: %w", domain.ErrExtensionFailed, req.Subkeys, req.Primary, err)
		}

		auditExtension(ctx, operation, req, expire, "SUCCESS")
		applied = append(applied, req)
	}
	return applied, nil
}

// auditExtension は1回のgpg呼び出しで期限を更新した鍵ごとに監査ログを出力する。
func auditExtension(ctx context.Context, operation string, req domain.ExtensionRequest, expire, result string) {
	targets := req.Subkeys
	if req.IsPrimary() {
		targets = []domain.KeyID{req.Primary}
	}
	for _, id := range targets {
		middleware.WriteAuditLog(ctx, operation, id.String(), req.Primary.String(), result,
			slog.String("expire", expire))
	}
}

// GetCheck は保存済みのチェック結果を取得する。
func (s *ExpiryService) GetCheck(ctx context.Context, id string) (*domain.CheckRun, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	run, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrCheckNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("finding check run: %w", err)
	}
	return run, nil
}

// ListChecks は新しい順に最大limit件のチェック結果を取得する。
func (s *ExpiryService) ListChecks(ctx context.Context, limit int) ([]*domain.CheckRun, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	runs, err := s.repo.FindRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("finding check runs: %w", err)
	}
	return runs, nil
}
