package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// config keys
const (
	KeyPenaltyPerDay                   = "PenaltyPerDay"
	KeyPenaltyIncreaseType             = "PenaltyIncreaseType"
	KeyPenaltyIncreaseValue            = "PenaltyIncreaseValue"
	KeyPenaltyIncreaseDurationInDays   = "PenaltyIncreaseDurationInDays"
	KeyExtraHoldingPenaltyPerBook      = "ExtraHoldingPenaltyPerBook"
	KeyExpiredMembershipPenaltyPerBook = "ExpiredMembershipPenaltyPerBook"
	KeyCarryOverDays                   = "CarryOverDays"
	KeyMembershipExpiryBufferDays      = "MembershipExpiryBufferDays"
	KeyMaxTransferAllocationCount      = "MaxTransferAllocationCount"
	KeyMaxRenewCount                   = "MaxRenewCount"
	KeyAllocationDueDays               = "AllocationDueDays"
	KeyBorrowDueDays                   = "BorrowDueDays"
	KeyRenewDays                       = "RenewDays"
	KeyMembershipExpiryReminderDays    = "MembershipExpiryReminderDays"
	KeyOutboxMaxRetryCount             = "OutboxMaxRetryCount"
	KeyOutboxRetryDelayMinutes         = "OutboxRetryDelayMinutes"
	KeyOutboxMaxRetryDelayMinutes      = "OutboxMaxRetryDelayMinutes"
)

var ruleConfigKeys = []string{
	KeyPenaltyPerDay, KeyPenaltyIncreaseType, KeyPenaltyIncreaseValue, KeyPenaltyIncreaseDurationInDays,
	KeyExtraHoldingPenaltyPerBook, KeyExpiredMembershipPenaltyPerBook,
	KeyCarryOverDays, KeyMembershipExpiryBufferDays,
	KeyMaxTransferAllocationCount, KeyMaxRenewCount, KeyAllocationDueDays, KeyBorrowDueDays, KeyRenewDays,
	KeyMembershipExpiryReminderDays,
	KeyOutboxMaxRetryCount, KeyOutboxRetryDelayMinutes, KeyOutboxMaxRetryDelayMinutes,
}

type IncreaseType string

const (
	IncreaseTypeAdditive       IncreaseType = "Additive"
	IncreaseTypeMultiplicative IncreaseType = "Multiplicative"
)

// RuleConfig is one consistent snapshot of the rule parameters, loaded per
// run and passed by value.
type RuleConfig struct {
	PenaltyPerDay                   decimal.Decimal
	PenaltyIncreaseType             IncreaseType
	PenaltyIncreaseValue            decimal.Decimal
	PenaltyIncreaseDurationInDays   int
	ExtraHoldingPenaltyPerBook      decimal.Decimal
	ExpiredMembershipPenaltyPerBook decimal.Decimal
	CarryOverDays                   int
	MembershipExpiryBufferDays      int
	MaxTransferAllocationCount      int
	MaxRenewCount                   int
	AllocationDueDays               int
	BorrowDueDays                   int
	RenewDays                       int
	MembershipExpiryReminderDays    int
	OutboxMaxRetryCount             int
	OutboxRetryDelay                time.Duration
	OutboxMaxRetryDelay             time.Duration
}

func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		PenaltyPerDay:                   decimal.Zero,
		PenaltyIncreaseType:             IncreaseTypeAdditive,
		PenaltyIncreaseValue:            decimal.Zero,
		PenaltyIncreaseDurationInDays:   0,
		ExtraHoldingPenaltyPerBook:      decimal.Zero,
		ExpiredMembershipPenaltyPerBook: decimal.Zero,
		CarryOverDays:                   0,
		MembershipExpiryBufferDays:      0,
		MaxTransferAllocationCount:      3,
		MaxRenewCount:                   2,
		AllocationDueDays:               3,
		BorrowDueDays:                   15,
		RenewDays:                       15,
		MembershipExpiryReminderDays:    3,
		OutboxMaxRetryCount:             5,
		OutboxRetryDelay:                time.Minute,
		OutboxMaxRetryDelay:             60 * time.Minute,
	}
}

// LateFeeRate is the tiered daily rate for LateReturnRenew penalties.
func (c RuleConfig) LateFeeRate() TieredRate {
	return TieredRate{
		Base:     c.PenaltyPerDay,
		Step:     c.PenaltyIncreaseValue,
		Interval: c.PenaltyIncreaseDurationInDays,
		Type:     c.PenaltyIncreaseType,
	}
}

// ConfigProvider is the read-only view of the configs table.
type ConfigProvider struct {
	Reader ConfigReader
}

func (p ConfigProvider) Get(ctx context.Context, key string) (string, bool, error) {
	values, err := p.Reader.GetConfigs(ctx, []string{key})
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (p ConfigProvider) GetMany(ctx context.Context, keys []string) (map[string]string, error) {
	return p.Reader.GetConfigs(ctx, keys)
}

// LoadRuleConfig reads every rule key once. Missing or malformed values fall
// back to defaults with a warning; only read failures are returned.
func LoadRuleConfig(ctx context.Context, reader ConfigReader, logger *logrus.Logger) (RuleConfig, error) {
	cfg := DefaultRuleConfig()
	values, err := ConfigProvider{Reader: reader}.GetMany(ctx, ruleConfigKeys)
	if err != nil {
		return cfg, fmt.Errorf("load rule config: %w", err)
	}

	p := ruleParser{values: values, logger: logger}
	cfg.PenaltyPerDay = p.decimal(KeyPenaltyPerDay, cfg.PenaltyPerDay)
	cfg.PenaltyIncreaseType = p.increaseType(KeyPenaltyIncreaseType, cfg.PenaltyIncreaseType)
	cfg.PenaltyIncreaseValue = p.decimal(KeyPenaltyIncreaseValue, cfg.PenaltyIncreaseValue)
	cfg.PenaltyIncreaseDurationInDays = p.int(KeyPenaltyIncreaseDurationInDays, cfg.PenaltyIncreaseDurationInDays, 0)
	cfg.ExtraHoldingPenaltyPerBook = p.decimal(KeyExtraHoldingPenaltyPerBook, cfg.ExtraHoldingPenaltyPerBook)
	cfg.ExpiredMembershipPenaltyPerBook = p.decimal(KeyExpiredMembershipPenaltyPerBook, cfg.ExpiredMembershipPenaltyPerBook)
	cfg.CarryOverDays = p.int(KeyCarryOverDays, cfg.CarryOverDays, 0)
	cfg.MembershipExpiryBufferDays = p.int(KeyMembershipExpiryBufferDays, cfg.MembershipExpiryBufferDays, 0)
	cfg.MaxTransferAllocationCount = p.int(KeyMaxTransferAllocationCount, cfg.MaxTransferAllocationCount, 1)
	cfg.MaxRenewCount = p.int(KeyMaxRenewCount, cfg.MaxRenewCount, 0)
	cfg.AllocationDueDays = p.int(KeyAllocationDueDays, cfg.AllocationDueDays, 1)
	cfg.BorrowDueDays = p.int(KeyBorrowDueDays, cfg.BorrowDueDays, 1)
	cfg.RenewDays = p.int(KeyRenewDays, cfg.RenewDays, 1)
	cfg.MembershipExpiryReminderDays = p.int(KeyMembershipExpiryReminderDays, cfg.MembershipExpiryReminderDays, 0)
	cfg.OutboxMaxRetryCount = p.int(KeyOutboxMaxRetryCount, cfg.OutboxMaxRetryCount, 0)
	cfg.OutboxRetryDelay = time.Duration(p.int(KeyOutboxRetryDelayMinutes, 1, 1)) * time.Minute
	cfg.OutboxMaxRetryDelay = time.Duration(p.int(KeyOutboxMaxRetryDelayMinutes, 60, 1)) * time.Minute
	if cfg.OutboxMaxRetryDelay < cfg.OutboxRetryDelay {
		cfg.OutboxMaxRetryDelay = cfg.OutboxRetryDelay
	}
	return cfg, nil
}

type ruleParser struct {
	values map[string]string
	logger *logrus.Logger
}

func (p ruleParser) raw(key string) (string, bool) {
	v, ok := p.values[key]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p ruleParser) warn(key, value string, fallback any) {
	if p.logger == nil {
		return
	}
	p.logger.WithFields(logrus.Fields{
		"field":    "RuleConfig",
		"key":      key,
		"value":    value,
		"fallback": fallback,
	}).Warn("malformed config value, using default")
}

func (p ruleParser) int(key string, def, minimum int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minimum {
		p.warn(key, v, def)
		return def
	}
	return n
}

func (p ruleParser) decimal(key string, def decimal.Decimal) decimal.Decimal {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		p.warn(key, v, def.String())
		return def
	}
	return d
}

func (p ruleParser) increaseType(key string, def IncreaseType) IncreaseType {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	switch {
	case strings.EqualFold(v, string(IncreaseTypeAdditive)):
		return IncreaseTypeAdditive
	case strings.EqualFold(v, string(IncreaseTypeMultiplicative)):
		return IncreaseTypeMultiplicative
	}
	p.warn(key, v, def)
	return def
}
