package sysconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsServeUntilChanged(t *testing.T) {
	s := NewStore(nil)
	got := s.Get(context.Background())
	assert.Equal(t, Defaults(), got)
	assert.Equal(t, "daily", got.BackupFrequency)
	assert.Equal(t, 5, got.MaxLoginAttempts)
}

func TestSetWithoutRedisKeepsInMemoryCopy(t *testing.T) {
	s := NewStore(nil)
	want := Config{
		AutoBackupEnabled:   false,
		BackupFrequency:     "weekly",
		SessionTimeout:      60,
		MaxLoginAttempts:    3,
		NFCScanTimeout:      5,
		EnableNotifications: false,
	}
	assert.NoError(t, s.Set(context.Background(), want))
	assert.Equal(t, want, s.Get(context.Background()))
}
