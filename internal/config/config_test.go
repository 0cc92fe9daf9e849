package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "xyzplot.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadFull(t *testing.T) {
	p := writeConfig(t, `
version: 1
server:
  port: 9000
output:
  dir: /srv/out
  template: "run_%date:yyyy%"
engine:
  kind: mqtt
  poll_interval: 250ms
  timeout: 2m
  retries: 5
mqtt:
  broker: tcp://broker:1883
  topic_prefix: lab
events:
  store: sqlite
  sqlite_path: /tmp/ev.db
  instance_id: bench
sweep:
  on_failure: abort
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port())
	assert.Equal(t, "/srv/out", cfg.OutputDir())
	assert.Equal(t, EngineMQTT, cfg.EngineKind())
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Engine.Timeout)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker())
	assert.Equal(t, "lab", cfg.MQTT.TopicPrefix)
	assert.Equal(t, StoreSQLite, cfg.EventStore())
	assert.Equal(t, "bench", cfg.InstanceID())
	assert.Equal(t, "abort", cfg.Sweep.OnFailure)
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "version: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, 8188, cfg.Port())
	assert.Equal(t, "output", cfg.OutputDir())
	assert.Equal(t, EngineHTTP, cfg.EngineKind())
	assert.Equal(t, "http://127.0.0.1:8188", cfg.EngineURL())
	assert.Equal(t, StoreNone, cfg.EventStore())
	assert.Equal(t, "xyzplot", cfg.ClientID())
}

func TestLoadRejects(t *testing.T) {
	for name, body := range map[string]string{
		"version": "version: 2\n",
		"engine":  "version: 1\nengine:\n  kind: grpc\n",
		"store":   "version: 1\nevents:\n  store: redis\n",
		"yaml":    "version: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
