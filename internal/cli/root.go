// Package cli implements memberpayctl, the operator tool for one-shot
// reconciliation runs and job-trigger tokens.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"memberpay/internal/app"
	"memberpay/internal/pkg/logger"
	"memberpay/internal/platform/auth"
	"memberpay/internal/platform/config"
	"memberpay/internal/platform/secrets"
)

type options struct {
	configPath string
}

// NewRootCmd builds the command tree. Reports go to the command's output
// stream as JSON; logs go to stderr.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "memberpayctl",
		Short:         "Operate the memberpay reconciliation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/config.yaml", "Path to config file")

	root.AddCommand(
		jobCmd(opts, app.JobSweep, "Confirm unpaid profiles against provider records", func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Reconciler.Sweep(ctx)
		}),
		jobCmd(opts, app.JobPurge, "Delete expired idempotency claims", func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Reconciler.Purge(ctx)
		}),
		jobCmd(opts, app.JobResync, "Refresh subscription state for every profile", func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Reconciler.Resync(ctx)
		}),
		checkCmd(opts),
		tokenCmd(opts),
	)

	return root
}

func load(opts *options) (*config.Config, secrets.Provider, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	v, err := config.Viper(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	cfg.Logging.Output = "stderr"
	logger.Init(cfg.Logging)

	return cfg, secrets.NewViperProvider(v), nil
}

func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app.App) (interface{}, error)) error {
	cfg, sp, err := load(opts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, sp)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := fn(ctx, a)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), report)
}

func jobCmd(opts *options, name, short string, run func(ctx context.Context, a *app.App) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) (interface{}, error) {
				var report interface{}
				err := a.Runner.Run(ctx, name, func(ctx context.Context) error {
					var err error
					report, err = run(ctx, a)
					return err
				})
				return report, err
			})
		},
	}
}

func checkCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check <owner-id>",
		Short: "Run the payment check for one member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) (interface{}, error) {
				res, err := a.Reconciler.CheckOwner(ctx, args[0])
				if err != nil {
					return nil, err
				}
				out := map[string]interface{}{
					"owner_id":    res.Profile.OwnerID,
					"signup_paid": res.Profile.SignupPaid,
					"outcome":     res.Outcome,
				}
				if res.Err != nil {
					out["error"] = res.Err.Error()
				}
				return out, nil
			})
		},
	}
}

func tokenCmd(opts *options) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the job trigger endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sp, err := load(opts)
			if err != nil {
				return err
			}

			secret, err := sp.GetSecret(cmd.Context(), cfg.Ops.TokenSecretName)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Ops.TokenTTL
			}

			token, err := auth.NewTokenService(secret, ttl).GenerateToken(subject, auth.ScopeJobs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "memberpayctl", "Token subject recorded in job logs")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to ops.token_ttl)")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
