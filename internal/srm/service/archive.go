package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

// Archiver 保存已完成评估（含目录快照）供报表系统读取
type Archiver interface {
	Archive(ctx context.Context, view *EvaluationView) (string, error)
}

// ObjectPutter minio.Client 的子集
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOArchiver 以 JSON 写入 MinIO: evaluations/<supplier>/<evaluation>.json
type MinIOArchiver struct {
	client ObjectPutter
	bucket string
}

func NewMinIOArchiver(client ObjectPutter, bucket string) *MinIOArchiver {
	return &MinIOArchiver{client: client, bucket: bucket}
}

// EnsureBucket 启动时创建 bucket
func EnsureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

func (a *MinIOArchiver) Archive(ctx context.Context, view *EvaluationView) (string, error) {
	body, err := json.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("marshal evaluation: %w", err)
	}
	key := fmt.Sprintf("evaluations/%s/%s.json", view.SupplierID, view.ID)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"decision":        view.Decision,
			"catalog-version": view.CatalogVersion,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload archive: %w", err)
	}
	return key, nil
}
