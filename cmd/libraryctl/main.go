// libraryctl is the operator tool for the library backend.
//
// Usage (from backend directory, same DB_* env as the server):
//
//	go run ./cmd/libraryctl migrate
//	go run ./cmd/libraryctl run-job penalty-accrual
//	go run ./cmd/libraryctl outbox status
//	go run ./cmd/libraryctl outbox requeue 12 13
//	go run ./cmd/libraryctl config set PenaltyPerDay 10
//	go run ./cmd/libraryctl token --user 1 --role Staff
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DhruviKhanpara/LMS-sub001/config"
	"github.com/DhruviKhanpara/LMS-sub001/store"
	"github.com/DhruviKhanpara/LMS-sub001/workflow"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// app connects lazily so `--help` works without a database.
type app struct {
	settings config.Settings
	logger   *logrus.Logger
	db       *gorm.DB
	engine   *workflow.Engine
	stop     func()
}

func (a *app) connect(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	a.settings = settings
	config.SetLogLevel(settings.LogLevel)

	db, err := config.ConnectDatabaseWithRetry(ctx, settings)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.db = db
	return nil
}

// withEngine also connects Redis and the mail transport.
func (a *app) withEngine(ctx context.Context) (*workflow.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	if err := a.connect(ctx); err != nil {
		return nil, err
	}
	if _, err := config.ConnectRedisWithRetry(ctx, a.settings); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	var locker workflow.Locker = workflow.NoopLocker{}
	if client := config.GetRedisLock(); client != nil {
		locker = config.NewRedisLocker(client, 0)
	}
	sender, stop, err := config.NewMailSender(ctx, a.settings, a.logger)
	if err != nil {
		return nil, err
	}
	a.stop = stop
	a.engine = workflow.NewEngine(store.New(a.db), sender, locker, a.logger)
	return a.engine, nil
}

func (a *app) close() {
	if a.stop != nil {
		a.stop()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "libraryctl",
		Short:         "Operate the library backend: migrations, jobs, outbox and rule config",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(a),
		newRunJobCmd(a),
		newOutboxCmd(a),
		newConfigCmd(a),
		newTokenCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{logger: config.GetLogger()}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
