package handler

import (
	"net/http"

	"campus-rag-go/internal/service"
	"campus-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了检索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 只执行检索并返回命中的来源，不调用语言模型。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		log.Warnf("[SearchHandler] 搜索请求失败: query 参数为空")
		respond(c, http.StatusBadRequest, "无效的查询参数", nil)
		return
	}

	res, err := h.searchService.Search(c.Request.Context(), query)
	if err != nil {
		log.Errorf("[SearchHandler] 检索服务返回错误, error: %v", err)
		respond(c, http.StatusInternalServerError, "搜索失败: "+err.Error(), nil)
		return
	}
	log.Infof("[SearchHandler] 检索成功, query: '%s', 返回 %d 条结果", query, len(res.Sources))
	ok(c, "success", res)
}
