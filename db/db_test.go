package db

import (
	"context"
	"strings"
	"testing"

	"karaoke/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	cfg := &config.Config{
		DBUser:     "kara",
		DBPassword: "secret",
		DBHost:     "db.local",
		DBPort:     "3307",
		DBName:     "karaoke",
	}

	dsn := BuildDSN(cfg)

	assert.True(t, strings.HasPrefix(dsn, "kara:secret@tcp(db.local:3307)/karaoke?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Contains(t, dsn, "clientFoundRows=true")
}

func TestCheckRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, CheckRedis(context.Background(), client))
	assert.False(t, mr.Exists("karaoke:healthcheck"))
}

func TestCheckRedis_NilClient(t *testing.T) {
	assert.Error(t, CheckRedis(context.Background(), nil))
}
