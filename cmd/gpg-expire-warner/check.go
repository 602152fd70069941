package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gpg-expire-warner/config"
	"gpg-expire-warner/internal/domain"
	"gpg-expire-warner/internal/infra"
	"gpg-expire-warner/internal/repository"
	"gpg-expire-warner/internal/usecase"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// checkOptions はルートコマンドのフラグと引数。
type checkOptions struct {
	warnDays   int64
	daysSet    bool
	keys       []string
	all        bool
	expire     string
	configPath string
	homedir    string
	record     bool
	output     string
}

// resolve はフラグとプロファイルを合成してチェック要求を組み立てる。フラグが優先される。
func (o *checkOptions) resolve(profile *config.Profile) (usecase.CheckRequest, string, error) {
	var req usecase.CheckRequest

	switch {
	case o.daysSet:
		req.WarnDays = o.warnDays
	case profile.WarnDays != nil:
		req.WarnDays = *profile.WarnDays
	default:
		return req, "", fmt.Errorf("%w: --days is required (or set warn_days in the profile)", domain.ErrInvalidWarnDays)
	}

	rawKeys := o.keys
	if len(rawKeys) == 0 {
		rawKeys = profile.Keys
	}
	keys, err := domain.ParseKeyIDs(rawKeys)
	if err != nil {
		return req, "", err
	}
	req.Keys = keys
	req.All = o.all
	if !req.All && len(req.Keys) == 0 {
		return req, "", errors.New("no keys given: pass KEY arguments, set keys in the profile, or use --all")
	}

	expire := o.expire
	if expire == "" {
		expire = profile.Expire
	}

	if o.output != outputText && o.output != outputJSON {
		return req, "", fmt.Errorf("unsupported output format %q", o.output)
	}
	return req, expire, nil
}

// runCheck は期限チェックを行い、必要なら期限を延長する。
func runCheck(cmd *cobra.Command, cfg *config.Config, opts *checkOptions) error {
	ctx := cmd.Context()
	stdout := cmd.OutOrStdout()

	profile, err := config.LoadProfile(opts.configPath)
	if err != nil {
		return &exitCodeError{code: exitFatal, err: fmt.Errorf("failed to load profile: %w", err)}
	}
	req, expire, err := opts.resolve(profile)
	if err != nil {
		return &exitCodeError{code: exitFatal, err: err}
	}

	homedir := opts.homedir
	if homedir == "" {
		homedir = cfg.GNUPGHome
	}
	gpg := infra.NewGPGClient(cfg.GPGBinary,
		infra.WithHomedir(homedir),
		infra.WithTerminal(os.Stdin, cmd.ErrOrStderr()),
	)

	var repo usecase.CheckRepository
	if opts.record {
		db, err := openHistoryDB(ctx, cfg)
		if err != nil {
			return &exitCodeError{code: exitFatal, err: err}
		}
		repo = repository.NewCheckRepository(db)
	}

	service := usecase.NewExpiryService(gpg, repo)
	result, err := service.Check(ctx, req)
	if err != nil {
		return &exitCodeError{code: exitFatal, err: err}
	}

	if err := writeReport(stdout, opts.output, result.Run); err != nil {
		return &exitCodeError{code: exitFatal, err: err}
	}

	if !result.Run.HasFlagged() {
		return nil
	}
	if expire == "" {
		return &exitCodeError{code: exitFlagged}
	}

	// JSON出力時は標準出力をレポートのみに保つ
	progress := stdout
	if opts.output == outputJSON {
		progress = cmd.ErrOrStderr()
	}

	plan := usecase.PlanExtensions(result.Inventory, result.Run.Flagged)
	for _, step := range plan {
		// 延長は1件ずつ、実行前に出力してから行う
		printExtension(progress, step, expire)
		if _, err := service.ApplyExtensions(ctx, []domain.ExtensionRequest{step}, expire); err != nil {
			return &exitCodeError{code: exitFlagged, err: err}
		}
	}
	return nil
}

func printExtension(w io.Writer, step domain.ExtensionRequest, expire string) {
	if step.IsPrimary() {
		fmt.Fprintf(w, "Setting expiry to %s for main key: %s\n", expire, step.Primary)
		return
	}
	ids := make([]string, len(step.Subkeys))
	for i, id := range step.Subkeys {
		ids[i] = id.String()
	}
	fmt.Fprintf(w, "Setting expiry to %s for subkeys: %s\n", expire, strings.Join(ids, ", "))
}

// flaggedKeyJSON は --output json の1件分。
type flaggedKeyJSON struct {
	Fingerprint string `json:"fingerprint"`
	Primary     string `json:"primary"`
	Days        int64  `json:"days"`
}

type reportJSON struct {
	CheckID  string           `json:"check_id,omitempty"`
	WarnDays int64            `json:"warn_days"`
	Keys     []flaggedKeyJSON `json:"keys"`
}

// writeReport は警告対象の鍵を出力する。警告対象が無い場合のテキスト出力は空。
func writeReport(w io.Writer, format string, run *domain.CheckRun) error {
	if format == outputJSON {
		report := reportJSON{
			CheckID:  run.ID,
			WarnDays: run.WarnDays,
			Keys:     make([]flaggedKeyJSON, len(run.Flagged)),
		}
		for i, k := range run.Flagged {
			report.Keys[i] = flaggedKeyJSON{
				Fingerprint: k.Fingerprint.String(),
				Primary:     k.Primary.String(),
				Days:        k.Days,
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if !run.HasFlagged() {
		return nil
	}
	fmt.Fprintln(w, "The following GPG keys will expire soon:")
	for _, k := range run.Flagged {
		fmt.Fprintf(w, "%s: %d days\n", k.Fingerprint, k.Days)
	}
	return nil
}
