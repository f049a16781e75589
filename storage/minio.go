package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"karaoke/config"
	"karaoke/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("object not found")

// 对象前缀
const (
	PrefixAudio     = "audio"
	PrefixThumbnail = "thumbnails"
)

// MediaStore 存放上传的歌曲音频与封面
type MediaStore struct {
	client *minio.Client
	bucket string
	region string
	urlTTL time.Duration
}

// NewMediaStore 创建 MinIO 客户端，不做网络请求
func NewMediaStore(cfg *config.Config) (*MediaStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}
	ttl := cfg.MediaURLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MediaStore{client: client, bucket: cfg.MinioBucket, region: cfg.MinioRegion, urlTTL: ttl}, nil
}

// Bucket returns the bucket name.
func (s *MediaStore) Bucket() string { return s.bucket }

// EnsureBucket 检查存储桶，不存在时创建
func (s *MediaStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if exists {
		logger.Info("[Storage] bucket ready", logger.String("bucket", s.bucket))
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}
	logger.Info("[Storage] bucket created", logger.String("bucket", s.bucket))
	return nil
}

// NewObjectName builds a unique object name under prefix keeping the
// extension of filename.
func NewObjectName(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 8 {
		ext = ""
	}
	return prefix + "/" + uuid.NewString() + ext
}

// Put 上传对象
func (s *MediaStore) Put(ctx context.Context, object string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, object, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", object, err)
	}
	logger.Info("[Storage] object uploaded",
		logger.String("object", object),
		logger.Int64("size", size))
	return nil
}

// Open returns a seekable reader over the object and its metadata.
func (s *MediaStore) Open(ctx context.Context, object string) (io.ReadSeekCloser, ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, mapError(object, err)
	}
	// GetObject 是惰性的，Stat 才会真正访问服务端
	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ObjectInfo{}, mapError(object, err)
	}
	return obj, toObjectInfo(st), nil
}

// Stat 获取对象元数据
func (s *MediaStore) Stat(ctx context.Context, object string) (ObjectInfo, error) {
	st, err := s.client.StatObject(ctx, s.bucket, object, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, mapError(object, err)
	}
	return toObjectInfo(st), nil
}

// Presign returns a temporary GET URL for the object.
func (s *MediaStore) Presign(ctx context.Context, object string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, object, s.urlTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("生成预签名地址失败: %w", err)
	}
	return u.String(), nil
}

// Remove 删除单个对象
func (s *MediaStore) Remove(ctx context.Context, object string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{}); err != nil {
		return mapError(object, err)
	}
	return nil
}

func mapError(object string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, object)
	}
	return fmt.Errorf("访问对象 %s 失败: %w", object, err)
}
