package database

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/irfndi/stockdash/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisConnection(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{Enabled: true, Host: mr.Host(), Port: mustPort(t, mr)}
	client, err := NewRedisConnection(cfg, nil)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestNewRedisConnection_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr)}
	mr.Close()

	_, err := NewRedisConnection(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestRedisClient_NilSafety(t *testing.T) {
	var client *RedisClient
	assert.NotPanics(t, func() { client.Close() })
	assert.Error(t, client.HealthCheck(context.Background()))

	empty := &RedisClient{}
	assert.NotPanics(t, func() { empty.Close() })
	assert.Error(t, empty.HealthCheck(context.Background()))
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return port
}
