package command

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/blingmoon/state-workflow/workflow"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newCheckTimeLimitCommand(r *root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-time-limit",
		Short: "Move instances whose state time limit has passed",
		Long: `Check-time-limit queries every incomplete instance that stayed in a time limited
state for longer than the limit, loads its context and moves it to the follow-up state.
With --interval the check is repeated until the process is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, err := cmd.Flags().GetDuration("interval")
			if err != nil {
				return err
			}
			cfg, err := r.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return r.runCheckTimeLimit(ctx, cmd, cfg, interval)
		},
	}
	cmd.Flags().Duration("interval", 0, "Repeat the check with this interval, 0 runs once")
	return cmd
}

func (r *root) runCheckTimeLimit(ctx context.Context, cmd *cobra.Command, cfg *Config, interval time.Duration) error {
	service, closeFn, err := r.newService(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	for {
		report, err := service.CheckTimeLimits(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checked: %d, moved: %d, failed: %d\n",
			report.Checked, len(report.Moved), len(report.Failed))
		for id, failure := range report.Failed {
			fmt.Fprintf(cmd.ErrOrStderr(), "instance %d: %v\n", id, failure)
		}
		if interval <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (r *root) newService(cfg *Config) (service workflow.WorkflowService, closeFn func(), err error) {
	db, err := gorm.Open(sqlite.Open(cfg.SqliteDSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.WithMessage(err, "open sqlite failed")
	}
	closers := make([]func() error, 0, 2)
	closeFn = func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("close resource failed", "err", err)
			}
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.WithMessage(err, "get sql db failed")
	}
	closers = append(closers, sqlDB.Close)
	defer func() {
		if err != nil {
			closeFn()
		}
	}()

	if err = workflow.AutoMigrate(db); err != nil {
		return nil, nil, errors.WithMessage(err, "migrate failed")
	}
	repo := workflow.NewInstanceRepo(db)
	loader, err := r.loaderFactory(db, repo)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "create context loader failed")
	}

	lock := workflow.NewLocalWorkflowLock()
	if cfg.LockBackend == LockBackendRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		closers = append(closers, client.Close)
		lock = workflow.NewRedisWorkflowLock(client)
	}
	service = workflow.NewWorkflowService(r.manager, repo, lock,
		workflow.WithContextLoader(loader),
		workflow.WithLockTTL(cfg.LockTTL),
	)
	return service, closeFn, nil
}
