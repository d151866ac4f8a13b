package service

import (
	"context"

	"campus-rag-go/internal/retrieval"
	"campus-rag-go/pkg/log"
)

// SearchService 只执行检索，不调用语言模型。
type SearchService interface {
	Search(ctx context.Context, query string) (*retrieval.Result, error)
}

type searchService struct {
	engines EngineProvider
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(engines EngineProvider) SearchService {
	return &searchService{engines: engines}
}

func (s *searchService) Search(ctx context.Context, query string) (*retrieval.Result, error) {
	engine, err := s.engines(ctx)
	if err != nil {
		return nil, err
	}
	res, err := engine.Retrieve(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] 检索失败, query: %q, error: %v", query, err)
		return nil, err
	}
	return res, nil
}
