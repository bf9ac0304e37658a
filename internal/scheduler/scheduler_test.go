package scheduler

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/altafino/inbox-verifier/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(id string) *types.Config {
	cfg := &types.Config{}
	cfg.Meta.ID = id
	cfg.Scheduling.Enabled = true
	cfg.Scheduling.FrequencyEvery = "minute"
	cfg.Scheduling.FrequencyAmount = 30
	return cfg
}

func newTestScheduler(run RunFunc) *Scheduler {
	return NewScheduler(slog.New(slog.NewTextHandler(io.Discard, nil)), run)
}

func TestUpdateJobSchedules(t *testing.T) {
	s := newTestScheduler(func(cfg *types.Config) {})
	defer s.Stop()

	require.NoError(t, s.UpdateJob(testConfig("cfg-1")))
	assert.Len(t, s.jobs, 1)

	// Replacing keeps one job per configuration.
	require.NoError(t, s.UpdateJob(testConfig("cfg-1")))
	assert.Len(t, s.jobs, 1)
}

func TestUpdateJobDisabledRemoves(t *testing.T) {
	s := newTestScheduler(func(cfg *types.Config) {})
	defer s.Stop()

	require.NoError(t, s.UpdateJob(testConfig("cfg-1")))

	cfg := testConfig("cfg-1")
	cfg.Scheduling.Enabled = false
	require.NoError(t, s.UpdateJob(cfg))
	assert.Empty(t, s.jobs)
}

func TestUpdateJobInvalidFrequency(t *testing.T) {
	s := newTestScheduler(func(cfg *types.Config) {})
	defer s.Stop()

	cfg := testConfig("cfg-1")
	cfg.Scheduling.FrequencyEvery = "fortnight"
	assert.Error(t, s.UpdateJob(cfg))
}

func TestUpdateJobPastStopTimeSkips(t *testing.T) {
	s := newTestScheduler(func(cfg *types.Config) {})
	defer s.Stop()

	cfg := testConfig("cfg-1")
	cfg.Scheduling.StopAt = time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	require.NoError(t, s.UpdateJob(cfg))
	assert.Empty(t, s.jobs)
}

func TestStartNowRunsImmediately(t *testing.T) {
	ran := make(chan string, 1)
	s := newTestScheduler(func(cfg *types.Config) { ran <- cfg.Meta.ID })
	defer s.Stop()

	cfg := testConfig("cfg-1")
	cfg.Scheduling.StartNow = true
	require.NoError(t, s.UpdateJob(cfg))

	select {
	case id := <-ran:
		assert.Equal(t, "cfg-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("immediate run did not fire")
	}
}

func TestRemoveJob(t *testing.T) {
	s := newTestScheduler(func(cfg *types.Config) {})
	defer s.Stop()

	require.NoError(t, s.UpdateJob(testConfig("cfg-1")))
	s.RemoveJob("cfg-1")
	assert.Empty(t, s.jobs)
}
