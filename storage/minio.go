package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"AriaFM/config"
	"AriaFM/logger"
	"AriaFM/model"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio 初始化 MinIO 客户端并确认存储桶可用
func InitMinio(cfg *config.Config) error {
	logger.Info("正在连接 MinIO 服务器...",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("成功创建存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	logger.Info("MinIO 客户端初始化成功")
	return nil
}

// GetMinioClient 获取 MinIO 客户端实例
func GetMinioClient() *minio.Client {
	return minioClient
}

// objectPrefix 曲目路径带这个前缀时表示源文件在对象存储里
const objectPrefix = "minio://"

// IsObjectPath reports whether the track path points into object storage.
func IsObjectPath(path string) bool {
	return strings.HasPrefix(path, objectPrefix)
}

// ObjectSourceResolver 把对象存储里的曲目取到本地临时文件，再交给
// 编码器。本地路径原样放行。实现转码管线的 SourceResolver。
type ObjectSourceResolver struct {
	Client *minio.Client
	Bucket string
}

// NewObjectSourceResolver creates a resolver backed by the given client.
func NewObjectSourceResolver(client *minio.Client, bucket string) *ObjectSourceResolver {
	return &ObjectSourceResolver{Client: client, Bucket: bucket}
}

// Resolve 返回可直接读取的本地路径。对象存储的源先下载到临时文件，
// cleanup 负责删掉它。
func (r *ObjectSourceResolver) Resolve(ctx context.Context, track *model.Track) (string, func(), error) {
	if !IsObjectPath(track.FilePath) {
		return track.FilePath, func() {}, nil
	}

	objectName := strings.TrimPrefix(track.FilePath, objectPrefix)

	object, err := r.Client.GetObject(ctx, r.Bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return "", nil, fmt.Errorf("读取对象 %s 失败: %w", objectName, err)
	}
	defer object.Close()

	tmp, err := os.CreateTemp("", "ariafm-source-*"+filepath.Ext(objectName))
	if err != nil {
		return "", nil, fmt.Errorf("创建临时文件失败: %w", err)
	}

	if _, err := io.Copy(tmp, object); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("下载对象 %s 失败: %w", objectName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}

	logger.Debug("对象存储曲目已落地",
		logger.String("object", objectName),
		logger.String("tmpFile", tmp.Name()))

	cleanup := func() {
		if err := os.Remove(tmp.Name()); err != nil {
			logger.Warn("清理临时文件失败",
				logger.String("tmpFile", tmp.Name()),
				logger.ErrorField(err))
		}
	}
	return tmp.Name(), cleanup, nil
}
