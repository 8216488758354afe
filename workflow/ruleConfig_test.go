package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingConfigReader struct{}

func (failingConfigReader) GetConfigs(context.Context, []string) (map[string]string, error) {
	return nil, errors.New("connection refused")
}

func TestLoadRuleConfig_Defaults(t *testing.T) {
	cfg, err := LoadRuleConfig(context.Background(), newMemStore(), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultRuleConfig(), cfg)
}

func TestLoadRuleConfig_ParsesValues(t *testing.T) {
	store := newMemStore()
	store.lateFeeConfig()
	store.setConfig(KeyCarryOverDays, "7")
	store.setConfig(KeyOutboxRetryDelayMinutes, "2")
	store.setConfig(KeyOutboxMaxRetryDelayMinutes, "30")
	store.setConfig(KeyPenaltyIncreaseType, "multiplicative")

	cfg, err := LoadRuleConfig(context.Background(), store, quietLogger())
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(cfg.PenaltyPerDay))
	assert.True(t, dec("5").Equal(cfg.PenaltyIncreaseValue))
	assert.Equal(t, 3, cfg.PenaltyIncreaseDurationInDays)
	assert.Equal(t, IncreaseTypeMultiplicative, cfg.PenaltyIncreaseType)
	assert.Equal(t, 7, cfg.CarryOverDays)
	assert.Equal(t, 2*time.Minute, cfg.OutboxRetryDelay)
	assert.Equal(t, 30*time.Minute, cfg.OutboxMaxRetryDelay)
}

func TestLoadRuleConfig_MalformedFallsBackWithWarning(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := newMemStore()
	store.setConfig(KeyPenaltyPerDay, "ten")
	store.setConfig(KeyMaxTransferAllocationCount, "0")
	store.setConfig(KeyBorrowDueDays, "-1")
	store.setConfig(KeyPenaltyIncreaseType, "Exponential")

	cfg, err := LoadRuleConfig(context.Background(), store, logger)
	require.NoError(t, err)

	def := DefaultRuleConfig()
	assert.True(t, def.PenaltyPerDay.Equal(cfg.PenaltyPerDay))
	assert.Equal(t, def.MaxTransferAllocationCount, cfg.MaxTransferAllocationCount)
	assert.Equal(t, def.BorrowDueDays, cfg.BorrowDueDays)
	assert.Equal(t, def.PenaltyIncreaseType, cfg.PenaltyIncreaseType)

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["field"] == "RuleConfig" {
			warnings++
		}
	}
	assert.Equal(t, 4, warnings)
}

func TestLoadRuleConfig_MaxDelayNotBelowBase(t *testing.T) {
	store := newMemStore()
	store.setConfig(KeyOutboxRetryDelayMinutes, "10")
	store.setConfig(KeyOutboxMaxRetryDelayMinutes, "5")

	cfg, err := LoadRuleConfig(context.Background(), store, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.OutboxMaxRetryDelay)
}

func TestLoadRuleConfig_ReadErrorPropagates(t *testing.T) {
	_, err := LoadRuleConfig(context.Background(), failingConfigReader{}, quietLogger())
	assert.ErrorContains(t, err, "connection refused")
}

func TestConfigProvider_Get(t *testing.T) {
	store := newMemStore()
	store.setConfig(KeyRenewDays, "10")
	p := ConfigProvider{Reader: store}

	v, ok, err := p.Get(context.Background(), KeyRenewDays)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "10", v)

	_, ok, err = p.Get(context.Background(), KeyBorrowDueDays)
	require.NoError(t, err)
	assert.False(t, ok)
}
