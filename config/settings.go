package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Settings is the process configuration. Business rule parameters live in
// the configs table instead.
type Settings struct {
	Env      string `envconfig:"GO_ENV" default:"development"`
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DB struct {
		User     string `envconfig:"DB_USER" default:"root"`
		Password string `envconfig:"DB_PASSWORD"`
		Host     string `envconfig:"DB_HOST" default:"127.0.0.1"`
		Port     string `envconfig:"DB_PORT" default:"3306"`
		Name     string `envconfig:"DB_NAME" default:"library"`

		MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"50"`
		MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"25"`
		ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
		ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"1m"`
		AutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"false"`
	}

	HTTP struct {
		// comma separated; required in production, otherwise every origin is allowed
		CORSAllowedOrigins string        `envconfig:"CORS_ALLOWED_ORIGINS"`
		RateLimitEnabled   bool          `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
		RateLimitRequests  int64         `envconfig:"RATE_LIMIT_MAX_REQUESTS" default:"600"`
		RateLimitWindow    time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
		ShutdownTimeout    time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"30s"`
	}

	Redis struct {
		// empty disables distributed locks; a single instance then relies on row locks.
		Address  string `envconfig:"REDIS_ADDRESS"`
		Password string `envconfig:"REDIS_PASSWORD"`
	}

	Mail struct {
		// smtp, pubsub or log
		Transport             string  `envconfig:"MAIL_TRANSPORT" default:"log"`
		From                  string  `envconfig:"MAIL_FROM" default:"library@localhost"`
		SMTPHost              string  `envconfig:"SMTP_HOST"`
		SMTPPort              int     `envconfig:"SMTP_PORT" default:"587"`
		SMTPUser              string  `envconfig:"SMTP_USER"`
		SMTPPassword          string  `envconfig:"SMTP_PASSWORD"`
		PubSubTopic           string  `envconfig:"MAIL_PUBSUB_TOPIC" default:"library-mail"`
		// falls back to GOOGLE_CLOUD_PROJECT
		PubSubProject         string  `envconfig:"PUBSUB_PROJECT_ID"`
		// empty uses Application Default Credentials
		PubSubCredentialsJSON string  `envconfig:"PUBSUB_CREDENTIALS_JSON"`
		RatePerSecond         float64 `envconfig:"MAIL_RATE_PER_SECOND" default:"5"`
		Burst                 int     `envconfig:"MAIL_BURST" default:"5"`
	}

	Jobs struct {
		PenaltyAccrualInterval        time.Duration `envconfig:"JOB_PENALTY_ACCRUAL_INTERVAL" default:"1h"`
		HoldingAuditInterval          time.Duration `envconfig:"JOB_HOLDING_AUDIT_INTERVAL" default:"6h"`
		ReservationAllocationInterval time.Duration `envconfig:"JOB_RESERVATION_ALLOCATION_INTERVAL" default:"15m"`
		MembershipReminderInterval    time.Duration `envconfig:"JOB_MEMBERSHIP_REMINDER_INTERVAL" default:"24h"`
		Timeout                       time.Duration `envconfig:"JOB_TIMEOUT" default:"10m"`
		Disabled                      []string      `envconfig:"JOBS_DISABLED"`
	}

	Outbox struct {
		Enabled      bool          `envconfig:"OUTBOX_PROCESSOR_ENABLED" default:"true"`
		PollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1m"`
		BatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`
		LockTimeout  time.Duration `envconfig:"OUTBOX_LOCK_TIMEOUT" default:"5m"`
	}
}

// LoadSettings reads .env (when present) and the process environment.
func LoadSettings() (Settings, error) {
	_ = godotenv.Load()

	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return s, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

func (s Settings) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

// JobEnabled reports whether a scheduled job is switched on.
//
// Set via env:
// - JOBS_DISABLED="holding-audit,membership-reminder"
func (s Settings) JobEnabled(name string) bool {
	name = strings.TrimSpace(strings.ToLower(name))
	for _, d := range s.Jobs.Disabled {
		if strings.TrimSpace(strings.ToLower(d)) == name {
			return false
		}
	}
	return true
}

func (s Settings) DSN() string {
	network := "tcp"
	address := fmt.Sprintf("%s:%s", s.DB.Host, s.DB.Port)
	// Cloud SQL unix socket, e.g. DB_HOST=/cloudsql/<CONNECTION_NAME>
	if strings.HasPrefix(s.DB.Host, "/cloudsql/") {
		network = "unix"
		address = s.DB.Host
	}
	return fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true&loc=UTC",
		s.DB.User,
		s.DB.Password,
		network,
		address,
		s.DB.Name,
	)
}
