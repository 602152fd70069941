package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gpg-expire-warner/config"
	"gpg-expire-warner/internal/repository"
	"gpg-expire-warner/internal/usecase"
)

// newHistoryCmd は保存済みのチェック結果を一覧表示する。
func newHistoryCmd(cfg *config.Config) *cobra.Command {
	var limit int
	var checkID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded check runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}

			db, err := openHistoryDB(ctx, cfg)
			if err != nil {
				return err
			}
			service := usecase.NewExpiryService(nil, repository.NewCheckRepository(db))

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)

			if checkID != "" {
				run, err := service.GetCheck(ctx, checkID)
				if err != nil {
					return fmt.Errorf("failed to get check run: %w", err)
				}
				fmt.Fprintln(w, "FINGERPRINT\tPRIMARY\tDAYS")
				for _, k := range run.Flagged {
					fmt.Fprintf(w, "%s\t%s\t%d\n", k.Fingerprint, k.Primary, k.Days)
				}
				return w.Flush()
			}

			runs, err := service.ListChecks(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list check runs: %w", err)
			}
			fmt.Fprintln(w, "CHECK ID\tCHECKED AT\tWARN DAYS\tTARGETS\tFLAGGED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
					run.ID,
					run.CheckedAt.Format("2006-01-02 15:04:05"),
					run.WarnDays,
					run.TargetCount,
					len(run.Flagged),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	cmd.Flags().StringVar(&checkID, "id", "", "Show the flagged keys of one check run")
	return cmd
}
