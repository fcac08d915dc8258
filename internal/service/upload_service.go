// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"tuneflow-go/internal/config"
	"tuneflow-go/internal/model"
	"tuneflow-go/internal/repository"
	"tuneflow-go/pkg/storage"
)

// presignExpiry 预签名 URL 的有效期。
const presignExpiry = 15 * time.Minute

// UploadService 接口封装了对象存储直传的薄层：
// 签发上传/下载 URL、提供调校操作目录。对象本体不经过本服务。
type UploadService interface {
	PresignUpload(ctx context.Context, userID uint, fileName string) (storageKey, uploadURL string, err error)
	PresignModifiedUpload(ctx context.Context, fileID, fileName string) (storageKey, uploadURL string, err error)
	PresignDownload(ctx context.Context, file *model.TuningFile, modified bool) (string, error)
	ListModifications() ([]model.Modification, error)
}

// uploadService 是 UploadService 接口的实现。
type uploadService struct {
	modRepo repository.ModificationRepository
	cfg     config.MinIOConfig
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(modRepo repository.ModificationRepository, cfg config.MinIOConfig) UploadService {
	return &uploadService{modRepo: modRepo, cfg: cfg}
}

// PresignUpload 为客户的原始上传件签发直传 URL。
// 对象键按用户隔离并带随机前缀，避免同名覆盖。
func (s *uploadService) PresignUpload(_ context.Context, userID uint, fileName string) (string, string, error) {
	storageKey := fmt.Sprintf("uploads/%d/%s/%s", userID, uuid.NewString(), path.Base(fileName))
	url, err := storage.GetPresignedPutURL(s.cfg.BucketName, storageKey, presignExpiry)
	if err != nil {
		return "", "", err
	}
	return storageKey, url, nil
}

// PresignModifiedUpload 为工作人员的成品交付件签发直传 URL。
func (s *uploadService) PresignModifiedUpload(_ context.Context, fileID, fileName string) (string, string, error) {
	storageKey := fmt.Sprintf("modified/%s/%s", fileID, path.Base(fileName))
	url, err := storage.GetPresignedPutURL(s.cfg.BucketName, storageKey, presignExpiry)
	if err != nil {
		return "", "", err
	}
	return storageKey, url, nil
}

// PresignDownload 签发下载 URL。
// 成品交付件仅在文件状态为 READY 时对外可下载。
func (s *uploadService) PresignDownload(_ context.Context, file *model.TuningFile, modified bool) (string, error) {
	key := file.StorageKey
	if modified {
		if file.Status != model.FileStatusReady || file.ModifiedStorageKey == nil {
			return "", ErrFileNotReady
		}
		key = *file.ModifiedStorageKey
	}
	return storage.GetPresignedURL(s.cfg.BucketName, key, presignExpiry)
}

// ListModifications 返回调校操作目录。
func (s *uploadService) ListModifications() ([]model.Modification, error) {
	return s.modRepo.FindAll()
}
