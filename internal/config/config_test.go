package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	margins, err := cfg.Tuning.Margins()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSafetyMargins(), margins)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vibeweaver.yaml")
	writeFile(t, path, `
http:
  port: 9000
conductor:
  clock_interval: 20ms
  idle_timeout: 5m
  sessions: ["2f1d9c4e-8f52-4b6e-9d38-0a7c1e2b3f40"]
tuning:
  safety_margins:
    critical: 2.0
  beat_tolerance: 0.05
`)
	t.Setenv("RABBITMQ_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 20*time.Millisecond, cfg.Conductor.ClockInterval)
	assert.Equal(t, 5*time.Minute, cfg.Conductor.IdleTimeout)
	assert.Equal(t, "@every 1m", cfg.Conductor.EvictionSchedule, "default kept")
	assert.Len(t, cfg.Conductor.Sessions, 1)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.RabbitMQ.URL)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, 0.05, cfg.Tuning.BeatTolerance)

	margins, err := cfg.Tuning.Margins()
	require.NoError(t, err)
	assert.Equal(t, 2.0, margins.Margin(domain.PriorityCritical))
	assert.Equal(t, 1.2, margins.Margin(domain.PriorityHigh))
}

func TestLoad_EnvPort(t *testing.T) {
	t.Setenv("SCHED_PORT", "8181")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.HTTP.Port)

	t.Setenv("SCHED_PORT", "eighty")
	_, err = Load("")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTuning_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Tuning)
	}{
		{"unknown priority", func(tu *Tuning) { tu.SafetyMargins = map[string]float64{"urgent": 2} }},
		{"margin below one", func(tu *Tuning) { tu.SafetyMargins = map[string]float64{"low": 0.5} }},
		{"inverted margins", func(tu *Tuning) { tu.SafetyMargins = map[string]float64{"critical": 1.1, "high": 1.3} }},
		{"zero tolerance", func(tu *Tuning) { tu.BeatTolerance = 0 }},
		{"tolerance of a whole beat", func(tu *Tuning) { tu.BeatTolerance = 1 }},
		{"zero tempo", func(tu *Tuning) { tu.DefaultTempoBPM = 0 }},
		{"zero estimate", func(tu *Tuning) { tu.DefaultEstimateMs = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tuning := Default().Tuning
			tt.mutate(&tuning)
			require.ErrorIs(t, tuning.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConductorConfig_SessionIDs(t *testing.T) {
	cfg := Default()
	cfg.Conductor.Sessions = []string{"2f1d9c4e-8f52-4b6e-9d38-0a7c1e2b3f40"}

	ids, err := cfg.Conductor.SessionIDs()
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "2f1d9c4e-8f52-4b6e-9d38-0a7c1e2b3f40", ids[0].String())

	cfg.Conductor.Sessions = append(cfg.Conductor.Sessions, "main-room")
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	writeFile(t, path, "tuning: [unclosed")

	_, err := Load(path)
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestWatchTuning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vibeweaver.yaml")
	writeFile(t, path, "tuning:\n  beat_tolerance: 0.1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan Tuning, 4)
	done := make(chan error, 1)
	go func() {
		done <- WatchTuning(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)), func(tu Tuning) {
			select {
			case updates <- tu:
			default:
			}
		})
	}()

	// Даём watcher'у время подписаться на каталог
	require.Eventually(t, func() bool {
		writeFile(t, path, "tuning:\n  beat_tolerance: 0.2\n")
		select {
		case tu := <-updates:
			return tu.BeatTolerance == 0.2
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	// Соседний файл не вызывает перечитывания
	writeFile(t, filepath.Join(dir, "other.yaml"), "tuning:\n  beat_tolerance: 0.3\n")
	select {
	case tu := <-updates:
		assert.NotEqual(t, 0.3, tu.BeatTolerance)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
