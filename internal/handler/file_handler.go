// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tuneflow-go/internal/model"
	"tuneflow-go/internal/service"
	"tuneflow-go/pkg/log"
)

// FileHandler 负责文件生命周期相关的 API 请求。
// 所有修改均委托给生命周期服务：这里不直接写存储。
type FileHandler struct {
	fileService   service.FileService
	uploadService service.UploadService
}

// NewFileHandler 创建一个新的 FileHandler 实例。
func NewFileHandler(fileService service.FileService, uploadService service.UploadService) *FileHandler {
	return &FileHandler{fileService: fileService, uploadService: uploadService}
}

// currentUser 从上下文取出 AuthMiddleware 注入的用户对象。
func currentUser(c *gin.Context) (*model.User, bool) {
	v, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return nil, false
	}
	user, ok := v.(*model.User)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "用户数据类型错误"})
		return nil, false
	}
	return user, true
}

// respondFileError 把生命周期服务的业务错误翻译成 HTTP 响应。
// 校验错误与未找到错误分级上报，其余按服务器错误处理。
func respondFileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": err.Error()})
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidPaymentStatus),
		errors.Is(err, service.ErrNegativePrice),
		errors.Is(err, service.ErrNotesTooLong),
		errors.Is(err, service.ErrEstimateNotPending),
		errors.Is(err, service.ErrInvalidEstimate),
		errors.Is(err, service.ErrModifiedFileMissing),
		errors.Is(err, service.ErrFileNotReady):
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error()})
	default:
		log.Errorf("文件操作失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务器内部错误"})
	}
}

// fileView 是文件记录加派生倒计时的响应视图。
type fileView struct {
	*model.TuningFile
	Countdown *service.CountdownInfo `json:"countdown,omitempty"`
}

// view 组装文件响应视图。
func (h *FileHandler) view(file *model.TuningFile) fileView {
	return fileView{TuningFile: file, Countdown: h.fileService.Countdown(file)}
}

// ListMyFiles 返回当前客户的全部文件。
func (h *FileHandler) ListMyFiles(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	files, err := h.fileService.ListByUser(user.ID)
	if err != nil {
		respondFileError(c, err)
		return
	}
	views := make([]fileView, 0, len(files))
	for i := range files {
		views = append(views, h.view(&files[i]))
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": views})
}

// GetFile 返回单个文件及其倒计时视图。客户只能访问自己的文件。
func (h *FileHandler) GetFile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	file, err := h.fileService.GetFile(c.Param("fileId"))
	if err != nil {
		respondFileError(c, err)
		return
	}
	if file.UserID != user.ID && !user.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "无权访问该文件"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.view(file)})
}

// Download 签发下载 URL。query 参数 modified=true 请求成品交付件，
// 成品仅在文件状态为 READY 时可下载。
func (h *FileHandler) Download(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	file, err := h.fileService.GetFile(c.Param("fileId"))
	if err != nil {
		respondFileError(c, err)
		return
	}
	if file.UserID != user.ID && !user.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "无权访问该文件"})
		return
	}

	modified := c.Query("modified") == "true"
	url, err := h.uploadService.PresignDownload(c.Request.Context(), file, modified)
	if err != nil {
		respondFileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"url": url}})
}

// ListAllFiles 返回全部文件，供工作人员面板使用。
func (h *FileHandler) ListAllFiles(c *gin.Context) {
	files, err := h.fileService.ListAll()
	if err != nil {
		respondFileError(c, err)
		return
	}
	views := make([]fileView, 0, len(files))
	for i := range files {
		views = append(views, h.view(&files[i]))
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": views})
}

// SetStatusRequest 定义了状态变更 API 的请求体结构。
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
	// EstimateMinutes 仅在目标状态为 PENDING 时有意义，可选。
	EstimateMinutes *int `json:"estimateMinutes"`
}

// SetStatus 处理工作人员的状态变更请求。
func (h *FileHandler) SetStatus(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：status 不能为空"})
		return
	}

	file, err := h.fileService.SetStatus(c.Request.Context(), c.Param("fileId"), req.Status, req.EstimateMinutes, actor)
	if err != nil {
		respondFileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.view(file)})
}

// SetEstimateRequest 定义了预计完成时间 API 的请求体结构。
type SetEstimateRequest struct {
	Minutes int `json:"minutes" binding:"required,gt=0"`
}

// SetEstimatedTime 在不改变状态的前提下更新倒计时窗口。
func (h *FileHandler) SetEstimatedTime(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	var req SetEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：minutes 必须为正整数"})
		return
	}
	if err := h.fileService.SetEstimatedTime(c.Request.Context(), c.Param("fileId"), req.Minutes, actor); err != nil {
		respondFileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// SetPriceRequest 定义了定价 API 的请求体结构。
type SetPriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// SetPrice 处理工作人员的定价请求。
func (h *FileHandler) SetPrice(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	var req SetPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：price 格式错误"})
		return
	}
	if err := h.fileService.SetPrice(c.Request.Context(), c.Param("fileId"), req.Price, actor); err != nil {
		respondFileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// SetPaymentStatusRequest 定义了支付状态 API 的请求体结构。
type SetPaymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus" binding:"required"`
}

// SetPaymentStatus 处理工作人员的支付状态变更请求。
func (h *FileHandler) SetPaymentStatus(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	var req SetPaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：paymentStatus 不能为空"})
		return
	}
	if err := h.fileService.SetPaymentStatus(c.Request.Context(), c.Param("fileId"), req.PaymentStatus, actor); err != nil {
		respondFileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// SetAdminNotesRequest 定义了工作人员备注 API 的请求体结构。
type SetAdminNotesRequest struct {
	Notes string `json:"notes"`
}

// SetAdminNotes 处理工作人员的备注更新请求。
func (h *FileHandler) SetAdminNotes(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	var req SetAdminNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载"})
		return
	}
	if err := h.fileService.SetAdminNotes(c.Request.Context(), c.Param("fileId"), req.Notes, actor); err != nil {
		respondFileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// AttachModifiedRequest 定义了成品登记 API 的请求体结构。
type AttachModifiedRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	StorageKey  string `json:"storageKey" binding:"required"`
	FileSize    int64  `json:"fileSize" binding:"required,gt=0"`
	ContentType string `json:"contentType"`
}

// AttachModified 登记工作人员已直传完成的成品交付件。
func (h *FileHandler) AttachModified(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	var req AttachModifiedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载"})
		return
	}
	err := h.fileService.AttachModifiedFile(c.Request.Context(), c.Param("fileId"),
		req.StorageKey, req.FileName, req.FileSize, req.ContentType, actor)
	if err != nil {
		respondFileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// AuditTrail 返回文件的完整审计记录，供工作人员查看。
func (h *FileHandler) AuditTrail(c *gin.Context) {
	entries, err := h.fileService.AuditTrail(c.Param("fileId"))
	if err != nil {
		respondFileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": entries})
}
