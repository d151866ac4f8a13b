package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"campus-rag-go/internal/middleware"
	"campus-rag-go/internal/pipeline"
	"campus-rag-go/internal/service"
	"campus-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
	maxBytes   int64
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService, maxBytes int64) *DocumentHandler {
	return &DocumentHandler{docService: docService, maxBytes: maxBytes}
}

// Upload 接收 multipart 表单中的 files 字段。async=true 时交给后台队列处理。
func (h *DocumentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respond(c, http.StatusBadRequest, "无效的上传表单", nil)
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		respond(c, http.StatusBadRequest, "No files uploaded", nil)
		return
	}

	inputs := make([]pipeline.Input, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			respond(c, http.StatusBadRequest, fmt.Sprintf("无法读取文件 %s", fh.Filename), nil)
			return
		}
		// 多读一个字节，让超限文件在校验时被识别
		data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
		_ = f.Close()
		if err != nil {
			respond(c, http.StatusBadRequest, fmt.Sprintf("无法读取文件 %s", fh.Filename), nil)
			return
		}
		inputs = append(inputs, pipeline.Input{FileName: fh.Filename, Data: data})
	}

	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
	if async {
		queued, err := h.docService.UploadAsync(c.Request.Context(), middleware.Subject(c), inputs)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, service.ErrAsyncUnavailable) {
				status = http.StatusServiceUnavailable
			}
			respond(c, status, err.Error(), nil)
			return
		}
		respond(c, http.StatusAccepted, "files queued for processing", queued)
		return
	}

	run := h.docService.Upload(c.Request.Context(), inputs)
	ok(c, fmt.Sprintf("Processed %d files: %d succeeded, %d skipped, %d failed",
		run.Summary.Total, run.Summary.Succeeded, run.Summary.Skipped, run.Summary.Failed), run)
}

// ListDocuments 列出所有已处理的文档。
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.docService.List(c.Request.Context())
	if err != nil {
		log.Error("[DocumentHandler] 获取文档列表失败", err)
		respond(c, http.StatusInternalServerError, "获取文件列表失败", nil)
		return
	}
	ok(c, "success", docs)
}

// DeleteDocument 删除某个源文件的全部向量并停用其事件。
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	fileName := c.Param("fileName")
	res, err := h.docService.Delete(c.Request.Context(), fileName)
	if err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			respond(c, http.StatusNotFound, "文件不存在", nil)
			return
		}
		log.Errorf("[DocumentHandler] 删除文档失败, file: %s, error: %v", fileName, err)
		respond(c, http.StatusInternalServerError, "删除文档失败: "+err.Error(), nil)
		return
	}
	ok(c, "删除成功", res)
}

// DownloadURL 返回原始文件的临时下载链接。
func (h *DocumentHandler) DownloadURL(c *gin.Context) {
	info, err := h.docService.DownloadURL(c.Request.Context(), c.Query("fileName"))
	switch {
	case errors.Is(err, service.ErrDocumentNotFound):
		respond(c, http.StatusNotFound, "文件不存在", nil)
	case errors.Is(err, service.ErrAsyncUnavailable):
		respond(c, http.StatusServiceUnavailable, "对象存储未配置", nil)
	case err != nil:
		respond(c, http.StatusInternalServerError, err.Error(), nil)
	default:
		ok(c, "success", info)
	}
}
