// Package storage 提供了与对象存储服务（MinIO）交互的功能，用于保存待导入的原始文件。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"campus-rag-go/internal/config"
	"campus-rag-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore 封装一个存储桶内的对象读写。
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// NewObjectStore 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewObjectStore(ctx context.Context, cfg config.MinIOConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("[MinIO] 存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}
	log.Infof("[MinIO] 客户端初始化成功, bucket: %s", cfg.BucketName)
	return &ObjectStore{client: client, bucket: cfg.BucketName}, nil
}

// ObjectKey 返回原始文件在存储桶中的路径。
func ObjectKey(contentHash, fileName string) string {
	return fmt.Sprintf("uploads/%s/%s", contentHash, fileName)
}

// Put 上传一个对象。
func (s *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("上传对象失败: %w", err)
	}
	return nil
}

// Get 读取完整对象。
func (s *ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象失败: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象失败: %w", err)
	}
	return data, nil
}

// Delete 删除对象，对象不存在时不报错。
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// PresignedURL 为对象生成一个临时下载链接。
func (s *ObjectStore) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		log.Errorf("[MinIO] 生成预签名链接失败: %v", err)
		return "", err
	}
	return u.String(), nil
}
