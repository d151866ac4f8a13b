// Package tika 提供了一个与 Apache Tika 服务器交互的文本提取客户端。
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"campus-rag-go/internal/config"
	"campus-rag-go/pkg/log"
)

// Client 是 Tika 服务器的客户端，实现 normalizer.Extractor。
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		serverURL:  cfg.ServerURL,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// ExtractRawText 根据扩展名推断 MIME 类型，并调用 Tika 的 /tika 接口提取纯文本。
func (c *Client) ExtractRawText(ctx context.Context, data []byte, ext string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", detectMimeType(ext))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Errorf("[Tika] 调用 Tika 失败, ext: %s, error: %v", ext, err)
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	log.Debugf("[Tika] 提取完成, ext: %s, 长度: %d", ext, len(text))
	return string(text), nil
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(ext string) string {
	if ext == ".docx" {
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}
