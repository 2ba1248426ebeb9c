package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Port    string        `env:"SAMPLE_PORT" envDefault:"8080"`
	Timeout time.Duration `env:"SAMPLE_TIMEOUT" envDefault:"5s"`
	Secret  string        `env:"SAMPLE_SECRET,notEmpty"`
}

func TestLoadParsesTagsAndDefaults(t *testing.T) {
	t.Setenv("SAMPLE_SECRET", "s3cret")
	t.Setenv("SAMPLE_TIMEOUT", "2s")

	var cfg sample
	require.NoError(t, Load(&cfg))
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, "s3cret", cfg.Secret)
}

func TestLoadRequiredMissing(t *testing.T) {
	t.Setenv("SAMPLE_SECRET", "")

	var cfg sample
	assert.Error(t, Load(&cfg))
	assert.ErrorIs(t, Load[sample](nil), ErrNilConfig)
}

func TestValidPort(t *testing.T) {
	assert.Error(t, ValidPort("99999"))
	assert.Error(t, ValidPort("http"))
	require.NoError(t, ValidPort("8080"))
}

func TestBoolAndDuration(t *testing.T) {
	t.Setenv("SAMPLE_FLAG", "Yes")
	t.Setenv("SAMPLE_WAIT", "250ms")
	t.Setenv("SAMPLE_BAD_WAIT", "soon")

	assert.True(t, Bool("SAMPLE_FLAG", false))
	assert.True(t, Bool("SAMPLE_UNSET_FLAG", true))

	d, err := Duration("SAMPLE_WAIT", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	d, err = Duration("SAMPLE_UNSET_WAIT", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	_, err = Duration("SAMPLE_BAD_WAIT", time.Second)
	assert.Error(t, err)
}
