package config

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberingConfig_LocationIsResolvedOnce(t *testing.T) {
	cfg := DefaultNumberingConfig()
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.Timezone = "America/Santiago"
	require.NoError(t, cfg.LoadLocation())
	assert.Equal(t, "America/Santiago", cfg.Location().String())

	// later edits of the name do not trigger another lookup
	cfg.Timezone = "Europe/Madrid"
	assert.Equal(t, "America/Santiago", cfg.Location().String())

	copied := cfg
	assert.Same(t, cfg.Location(), copied.Location())
}

func TestNumberingConfig_LoadLocationRejectsUnknownZone(t *testing.T) {
	cfg := DefaultNumberingConfig()
	cfg.Timezone = "Mars/Olympus_Mons"

	require.Error(t, cfg.LoadLocation())
	assert.Equal(t, time.UTC, cfg.Location())
}
