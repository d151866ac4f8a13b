// Package es 提供了与 Elasticsearch 交互的客户端功能，并实现基于 dense_vector 的向量索引。
package es

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"campus-rag-go/internal/config"
	"campus-rag-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端，并确保向量索引存在。
func InitES(esCfg config.ElasticsearchConfig, dims int) error {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(client, esCfg.IndexName, dims)
}

// indexMapping 返回向量索引的 mapping。相似度使用 cosine，文本字段使用标准分词器。
func indexMapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"content_hash": { "type": "keyword" },
				"file_name": { "type": "keyword" },
				"chunk_id": { "type": "integer" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"metadata": { "type": "object", "enabled": false }
			}
		}
	}`, dims)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(client *elasticsearch.Client, indexName string, dims int) error {
	res, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	created, err := client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(indexMapping(dims))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer created.Body.Close()
	if created.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, created.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功, 维度: %d", indexName, dims)
	return nil
}
