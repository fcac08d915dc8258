// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tuneflow-go/internal/service"
	"tuneflow-go/pkg/log"
)

// UploadHandler 负责上传流程相关的 API 请求。
// 对象本体由客户端经预签名 URL 直传对象存储，服务端只签发 URL 并登记元数据。
type UploadHandler struct {
	uploadService service.UploadService
	fileService   service.FileService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService, fileService service.FileService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService, fileService: fileService}
}

// PresignRequest 定义了签发上传 URL API 的请求体结构。
type PresignRequest struct {
	FileName string `json:"fileName" binding:"required"`
}

// Presign 为客户的原始上传件签发直传 URL。
func (h *UploadHandler) Presign(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req PresignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：fileName 不能为空"})
		return
	}

	storageKey, url, err := h.uploadService.PresignUpload(c.Request.Context(), user.ID, req.FileName)
	if err != nil {
		log.Errorf("Presign: 签发上传 URL 失败, userID=%d, err=%v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "签发上传 URL 失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"storageKey": storageKey, "uploadUrl": url},
	})
}

// ConfirmRequest 定义了上传确认 API 的请求体结构。
type ConfirmRequest struct {
	FileName        string `json:"fileName" binding:"required"`
	StorageKey      string `json:"storageKey" binding:"required"`
	FileSize        int64  `json:"fileSize" binding:"required,gt=0"`
	ContentType     string `json:"contentType"`
	Comment         string `json:"comment"`
	DTCCodes        string `json:"dtcCodes"`
	ModificationIDs []uint `json:"modificationIds"`
}

// Confirm 在客户端直传完成后创建文件记录（status=RECEIVED），
// 并触发面向工作人员的新上传提醒。
func (h *UploadHandler) Confirm(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载"})
		return
	}

	file, err := h.fileService.UploadConfirmed(c.Request.Context(), service.UploadConfirmedInput{
		UserID:          user.ID,
		FileName:        req.FileName,
		StorageKey:      req.StorageKey,
		FileSize:        req.FileSize,
		ContentType:     req.ContentType,
		Comment:         req.Comment,
		DTCCodes:        req.DTCCodes,
		ModificationIDs: req.ModificationIDs,
	})
	if err != nil {
		log.Errorf("Confirm: 创建文件记录失败, userID=%d, err=%v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "创建文件记录失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": file})
}

// ListModifications 返回调校操作目录，供上传表单选择。
func (h *UploadHandler) ListModifications(c *gin.Context) {
	mods, err := h.uploadService.ListModifications()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取调校操作目录失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": mods})
}

// PresignModifiedRequest 定义了成品上传 URL API 的请求体结构。
type PresignModifiedRequest struct {
	FileName string `json:"fileName" binding:"required"`
}

// PresignModified 为工作人员的成品交付件签发直传 URL。
func (h *UploadHandler) PresignModified(c *gin.Context) {
	var req PresignModifiedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：fileName 不能为空"})
		return
	}

	storageKey, url, err := h.uploadService.PresignModifiedUpload(c.Request.Context(), c.Param("fileId"), req.FileName)
	if err != nil {
		log.Errorf("PresignModified: 签发上传 URL 失败, fileID=%s, err=%v", c.Param("fileId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "签发上传 URL 失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"storageKey": storageKey, "uploadUrl": url},
	})
}
