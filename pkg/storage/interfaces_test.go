package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestDefaultConfig tests the DefaultConfig function
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, 20, cfg.PostgresMaxConns)
	assert.Equal(t, 2, cfg.PostgresMinConns)
	assert.Equal(t, 10*time.Second, cfg.PostgresTimeout)
	assert.True(t, cfg.AutoMigrate)
	assert.NotEmpty(t, cfg.SQLitePath)
}

func TestFiltersZeroValueApplyNothing(t *testing.T) {
	var of OrganizationFilter
	var tf TeamFilter
	var uf UserFilter

	assert.Nil(t, of.Archived)
	assert.Nil(t, tf.Archived)
	assert.Nil(t, tf.PermissionContains)
	assert.Nil(t, tf.ObjectID)
	assert.Nil(t, uf.Active)
}
