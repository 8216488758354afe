package config

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// ConnectDatabaseWithRetry connects, installs the gorm plugins and keeps retrying
// with capped exponential sleep until it succeeds or ctx is done.
func ConnectDatabaseWithRetry(ctx context.Context, s Settings) (*gorm.DB, error) {
	var attempt int
	for {
		attempt++
		conn, err := gorm.Open(mysql.Open(s.DSN()), initConfig())
		if err == nil {
			if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
				if s.DB.MaxOpenConns > 0 {
					sqlDB.SetMaxOpenConns(s.DB.MaxOpenConns)
				}
				if s.DB.MaxIdleConns >= 0 {
					sqlDB.SetMaxIdleConns(s.DB.MaxIdleConns)
				}
				if s.DB.ConnMaxLifetime > 0 {
					sqlDB.SetConnMaxLifetime(s.DB.ConnMaxLifetime)
				}
				if s.DB.ConnMaxIdleTime > 0 {
					sqlDB.SetConnMaxIdleTime(s.DB.ConnMaxIdleTime)
				}
			}

			if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
			}
			if pluginErr := conn.Use(NewActiveGuardPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install active guard plugin: %v", pluginErr)
			}
			log.Printf("connected to database (attempt=%d)", attempt)
			return conn, nil
		}

		sleep := retrySleep(attempt)
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// retrySleep is 2^attempt seconds, capped at 30s.
func retrySleep(attempt int) time.Duration {
	sleep := time.Second * time.Duration(1<<min(attempt, 5))
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	return sleep
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func initLog() logger.Interface {
	level := logger.Error
	if os.Getenv("GORM_LOG") == "info" {
		level = logger.Info
	}
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      level,
			SlowThreshold: time.Second,
		},
	)
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}
