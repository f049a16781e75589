package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"karaoke/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewObjectName(t *testing.T) {
	name := NewObjectName(PrefixAudio, "My Song.MP3")
	assert.True(t, strings.HasPrefix(name, "audio/"), name)
	assert.True(t, strings.HasSuffix(name, ".mp3"), name)
	assert.NotEqual(t, name, NewObjectName(PrefixAudio, "My Song.MP3"))

	assert.False(t, strings.Contains(NewObjectName(PrefixThumbnail, "x.verylongextension"), "."))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "3.0 MB", FormatSize(3*1024*1024))
}

func TestKindAndUsage(t *testing.T) {
	assert.Equal(t, "audio", Kind("audio/x.flac"))
	assert.Equal(t, "image", Kind("thumbnails/x.JPG"))
	assert.Equal(t, "other", Kind("notes"))

	usage := Usage([]ObjectInfo{
		{Key: "audio/a.mp3", Size: 10},
		{Key: "audio/b.m4a", Size: 5},
		{Key: "thumbnails/a.png", Size: 2},
	})
	assert.Equal(t, map[string]int64{"audio": 15, "image": 2}, usage)
}

func TestContentTypes(t *testing.T) {
	assert.Equal(t, "audio/mpeg", AudioContentType("a.mp3"))
	assert.Equal(t, "", AudioContentType("a.exe"))
	assert.Equal(t, "image/webp", ImageContentType("a.WEBP"))
	assert.Equal(t, "", ImageContentType("a.mp3"))
}

func TestBucketStats_Add(t *testing.T) {
	var b BucketStats
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	b.add(10, newer)
	b.add(5, older)
	assert.Equal(t, int64(2), b.TotalObjects)
	assert.Equal(t, int64(15), b.TotalSize)
	assert.Equal(t, newer, b.LastModified)
}

func TestNewMediaStore_Offline(t *testing.T) {
	s, err := NewMediaStore(&config.Config{MinioEndpoint: "127.0.0.1:9000", MinioBucket: "karaoke"})
	require.NoError(t, err)
	assert.Equal(t, "karaoke", s.Bucket())
	assert.Equal(t, time.Hour, s.urlTTL)
}

func TestPresign_Offline(t *testing.T) {
	// 指定 region 时签名不需要访问服务端
	s, err := NewMediaStore(&config.Config{
		MinioEndpoint:  "127.0.0.1:9000",
		MinioBucket:    "karaoke",
		MinioRegion:    "us-east-1",
		MinioAccessKey: "access",
		MinioSecretKey: "secret",
		MediaURLTTL:    10 * time.Minute,
	})
	require.NoError(t, err)

	u, err := s.Presign(context.Background(), "audio/a.mp3")
	require.NoError(t, err)
	assert.Contains(t, u, "/karaoke/audio/a.mp3")
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Contains(t, u, "X-Amz-Expires=600")
}
