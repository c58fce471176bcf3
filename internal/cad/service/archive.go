package service

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/bitfantasy/paramcad/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArtifactArchiver 生成文件的归档存储
type ArtifactArchiver interface {
	// Archive 上传文件，返回对象键
	Archive(ctx context.Context, prefix string, files []string) ([]string, error)
}

// MinioArchiver 把生成文件上传到 MinIO / S3
type MinioArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinioArchiver 创建 MinIO 归档
func NewMinioArchiver(cfg config.MinIOConfig) (*MinioArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioArchiver{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket 桶不存在时创建
func (a *MinioArchiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Archive 逐个上传；任一失败即返回已上传的键和错误
func (a *MinioArchiver) Archive(ctx context.Context, prefix string, files []string) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		key := ObjectKey(prefix, f)
		_, err := a.client.FPutObject(ctx, a.bucket, key, f, minio.PutObjectOptions{
			ContentType: contentType(f),
		})
		if err != nil {
			return keys, fmt.Errorf("upload %s: %w", f, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ObjectKey 对象键：<prefix>/<文件名>
func ObjectKey(prefix, file string) string {
	return path.Join(filepath.ToSlash(prefix), filepath.Base(file))
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".step", ".stp":
		return "application/step"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".pdf":
		return "application/pdf"
	case ".dxf":
		return "image/vnd.dxf"
	}
	return "application/octet-stream"
}
