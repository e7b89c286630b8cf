package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Quiz struct {
		DefaultTimerSeconds int
		PresenterName       string
	}
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(p, []byte("http:\n  port: 9090\nquiz:\n  presentername: Host\n"), 0o600)
	require.NoError(t, err)

	var c testConfig
	c.Quiz.DefaultTimerSeconds = 30
	c.Quiz.PresenterName = "Presenter"

	require.NoError(t, config.Load(p, &c))

	assert.EqualValues(t, 9090, c.HTTP.Port)
	assert.Equal(t, "Host", c.Quiz.PresenterName)
	assert.Equal(t, 30, c.Quiz.DefaultTimerSeconds, "defaults should survive when the file omits a key")
}

func TestLoad_EnvOverride(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte("http:\n  port: 9090\n"), 0o600))
	t.Setenv("HTTP_PORT", "7070")

	var c testConfig
	require.NoError(t, config.Load(p, &c))

	assert.EqualValues(t, 7070, c.HTTP.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	var c testConfig
	err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), &c)
	require.Error(t, err)
}
