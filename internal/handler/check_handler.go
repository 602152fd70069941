// Package handler は期限チェックのHTTPハンドラを提供する。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gpg-expire-warner/internal/domain"
	"gpg-expire-warner/internal/usecase"
	"gpg-expire-warner/pkg/httputil"
)

const (
	defaultWarnDays  = 14
	defaultListLimit = 20
	maxListLimit     = 200
)

// ExpiryChecker はハンドラが利用するユースケースのインターフェース。
type ExpiryChecker interface {
	Check(ctx context.Context, req usecase.CheckRequest) (*domain.CheckResult, error)
	GetCheck(ctx context.Context, id string) (*domain.CheckRun, error)
	ListChecks(ctx context.Context, limit int) ([]*domain.CheckRun, error)
}

// CheckHandler はHTTPハンドラを提供する。期限延長はHTTPからは行わない。
type CheckHandler struct {
	service ExpiryChecker
}

// NewCheckHandler は新しいCheckHandlerを生成する。
func NewCheckHandler(service ExpiryChecker) *CheckHandler {
	return &CheckHandler{service: service}
}

// ExpiringKeyResponse は警告対象の鍵のレスポンス形式。
type ExpiringKeyResponse struct {
	Fingerprint string `json:"fingerprint"`
	Primary     string `json:"primary"`
	Days        int64  `json:"days"`
}

// CheckRunResponse はチェック結果のレスポンス形式。
type CheckRunResponse struct {
	CheckID     string                `json:"check_id"`
	CheckedAt   string                `json:"checked_at"`
	WarnDays    int64                 `json:"warn_days"`
	TargetCount int                   `json:"target_count"`
	Keys        []ExpiringKeyResponse `json:"keys"`
}

// CheckRunListResponse はチェック履歴一覧のレスポンス形式。
type CheckRunListResponse struct {
	Checks []CheckRunResponse `json:"checks"`
}

func toCheckRunResponse(run *domain.CheckRun) CheckRunResponse {
	resp := CheckRunResponse{
		CheckID:     run.ID,
		CheckedAt:   run.CheckedAt.Format(time.RFC3339),
		WarnDays:    run.WarnDays,
		TargetCount: run.TargetCount,
		Keys:        make([]ExpiringKeyResponse, len(run.Flagged)),
	}
	for i, k := range run.Flagged {
		resp.Keys[i] = ExpiringKeyResponse{
			Fingerprint: k.Fingerprint.String(),
			Primary:     k.Primary.String(),
			Days:        k.Days,
		}
	}
	return resp
}

func parseWarnDays(s string) (int64, error) {
	if s == "" {
		return defaultWarnDays, nil
	}
	days, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, domain.ErrInvalidWarnDays
	}
	return days, nil
}

// CheckExpiring は鍵一覧を取得して期限切れ間近の鍵を返す。
// GET /v1/keys/expiring?days=N&key=FPR&key=FPR または ?all=true
func (h *CheckHandler) CheckExpiring(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	warnDays, err := parseWarnDays(q.Get("days"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_DAYS", "days must be an integer")
		return
	}

	keys, err := domain.ParseKeyIDs(q["key"])
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_KEY_ID", "key must be exactly 40 uppercase hex characters")
		return
	}

	all := q.Get("all") == "true"
	if !all && len(keys) == 0 {
		httputil.Error(w, http.StatusBadRequest, "NO_KEYS", "at least one key or all=true is required")
		return
	}

	result, err := h.service.Check(r.Context(), usecase.CheckRequest{Keys: keys, All: all, WarnDays: warnDays})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrGPGFailed), errors.Is(err, domain.ErrInvalidEncoding):
			httputil.Error(w, http.StatusBadGateway, "GPG_FAILED", "gpg key listing failed")
		case errors.Is(err, domain.ErrMalformedRecord), errors.Is(err, domain.ErrUnexpectedRecord),
			errors.Is(err, domain.ErrDanglingRecord), errors.Is(err, domain.ErrInvalidKeyID):
			httputil.Error(w, http.StatusBadGateway, "GPG_OUTPUT_INVALID", "gpg key listing could not be parsed")
		default:
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, toCheckRunResponse(result.Run))
}

// ListChecks はチェック履歴を新しい順に返す。
func (h *CheckHandler) ListChecks(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxListLimit {
			httputil.Error(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	runs, err := h.service.ListChecks(r.Context(), limit)
	if err != nil {
		if errors.Is(err, usecase.ErrHistoryDisabled) {
			httputil.Error(w, http.StatusServiceUnavailable, "HISTORY_DISABLED", "check history is not configured")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	resp := CheckRunListResponse{Checks: make([]CheckRunResponse, len(runs))}
	for i, run := range runs {
		resp.Checks[i] = toCheckRunResponse(run)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// GetCheck は指定されたチェック結果を返す。
func (h *CheckHandler) GetCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "check_id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_CHECK_ID", "invalid check ID format")
		return
	}

	run, err := h.service.GetCheck(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrCheckNotFound) {
			httputil.Error(w, http.StatusNotFound, "CHECK_NOT_FOUND", "check run not found")
			return
		}
		if errors.Is(err, usecase.ErrHistoryDisabled) {
			httputil.Error(w, http.StatusServiceUnavailable, "HISTORY_DISABLED", "check history is not configured")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, toCheckRunResponse(run))
}
