// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachscribe/coachscribe/internal/domain/model"
)

func TestPlanRegistryDefaults(t *testing.T) {
	reg, err := NewPlanRegistry("")
	require.NoError(t, err)

	free := reg.Limits(model.PlanFree)
	assert.Equal(t, 120, free.MaxMinutesPerMonth)
	assert.Equal(t, 60.0, free.MaxFileSizeMB)
	assert.Equal(t, 10, free.MaxExportsPerMonth)

	ent := reg.Limits(model.PlanEnterprise)
	assert.Equal(t, -1, ent.MaxMinutesPerMonth)
	assert.Equal(t, -1, ent.MaxExportsPerMonth)

	// Unknown plans resolve to the most restrictive tier.
	assert.Equal(t, free, reg.Limits(model.Plan("LEGACY")))
}

func TestPlanRegistryFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
FREE:
  maxMinutesPerMonth: 30
  maxFileSizeMB: 10
  maxExportsPerMonth: 2
`), 0o600))

	reg, err := NewPlanRegistry(path)
	require.NoError(t, err)

	free := reg.Limits(model.PlanFree)
	assert.Equal(t, 30, free.MaxMinutesPerMonth)
	assert.Equal(t, 10.0, free.MaxFileSizeMB)

	// Unmentioned plans keep their defaults.
	assert.Equal(t, 1200, reg.Limits(model.PlanPro).MaxMinutesPerMonth)
}

func TestPlanRegistryRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("FREE: [unclosed"), 0o600))
	_, err := NewPlanRegistry(path)
	assert.Error(t, err)

	_, err = NewPlanRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPlanRegistryWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("FREE:\n  maxMinutesPerMonth: 30\n"), 0o600))

	reg, err := NewPlanRegistry(path)
	require.NoError(t, err)
	require.Equal(t, 30, reg.Limits(model.PlanFree).MaxMinutesPerMonth)

	stop := make(chan struct{})
	defer close(stop)
	require.NoError(t, reg.Watch(path, stop))

	require.NoError(t, os.WriteFile(path, []byte("FREE:\n  maxMinutesPerMonth: 45\n"), 0o600))
	assert.Eventually(t, func() bool {
		return reg.Limits(model.PlanFree).MaxMinutesPerMonth == 45
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CS_TEST_STR", "hello")
	t.Setenv("CS_TEST_INT", "42")
	t.Setenv("CS_TEST_FLOAT", "2.5")
	t.Setenv("CS_TEST_BOOL", "true")
	t.Setenv("CS_TEST_DUR", "90s")
	t.Setenv("CS_TEST_BAD_INT", "forty")

	assert.Equal(t, "hello", ParseString("CS_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", ParseString("CS_TEST_UNSET", "fallback"))
	assert.Equal(t, 42, ParseInt("CS_TEST_INT", 7))
	assert.Equal(t, 7, ParseInt("CS_TEST_BAD_INT", 7), "unparseable values fall back")
	assert.Equal(t, 2.5, ParseFloat("CS_TEST_FLOAT", 1.0))
	assert.True(t, ParseBool("CS_TEST_BOOL", false))
	assert.Equal(t, 90*time.Second, ParseDuration("CS_TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("CS_TEST_UNSET", time.Minute))
}
