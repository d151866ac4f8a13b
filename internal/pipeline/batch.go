package pipeline

import (
	"context"

	"campus-rag-go/pkg/log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BatchSummary 统计一批文件的导入结果。
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// BatchResult 是一次批量导入的结果，Results 与输入顺序一致。
type BatchResult struct {
	RunID   string       `json:"runId"`
	Results []FileResult `json:"results"`
	Summary BatchSummary `json:"summary"`
}

// IngestBatch 用有界的 worker 池并发导入多个文件。单个文件失败不影响其他文件。
func (p *Processor) IngestBatch(ctx context.Context, inputs []Input) BatchResult {
	run := BatchResult{RunID: uuid.NewString(), Results: make([]FileResult, len(inputs))}
	log.Infof("[Processor] 批量导入开始, RunID: %s, 文件数: %d, workers: %d", run.RunID, len(inputs), p.workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				run.Results[i] = FileResult{Filename: in.FileName, Status: StatusError, Error: err.Error()}
				return nil
			}
			run.Results[i] = p.IngestDocument(gctx, in)
			return nil
		})
	}
	_ = g.Wait()

	run.Summary = Summarize(run.Results)
	log.Infof("[Processor] 批量导入结束, RunID: %s, 成功: %d, 跳过: %d, 失败: %d",
		run.RunID, run.Summary.Succeeded, run.Summary.Skipped, run.Summary.Failed)
	return run
}

// Summarize 汇总文件结果。
func Summarize(results []FileResult) BatchSummary {
	s := BatchSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusSkipped:
			s.Skipped++
		default:
			s.Failed++
		}
	}
	return s
}

// RemovalResult 汇总按文件名删除文档的结果。
type RemovalResult struct {
	FileName          string `json:"fileName"`
	Versions          int    `json:"versions"`
	VectorsDeleted    int64  `json:"vectorsDeleted"`
	EventsDeactivated int64  `json:"eventsDeactivated"`
}

// RemoveDocument 删除某个源文件的全部版本：删除向量、停用事件并删除处理记录。
func (p *Processor) RemoveDocument(ctx context.Context, fileName string) (RemovalResult, error) {
	res := RemovalResult{FileName: fileName}
	versions, err := p.docRepo.FindByFileName(ctx, fileName)
	if err != nil {
		return res, err
	}
	res.Versions = len(versions)

	if len(versions) > 0 {
		gw, err := p.gateway(ctx)
		if err != nil {
			return res, err
		}
		for _, v := range versions {
			n, err := gw.DeleteDocument(ctx, v.ContentHash)
			if err != nil {
				return res, err
			}
			res.VectorsDeleted += n
			if err := p.docRepo.Delete(ctx, v.ID); err != nil {
				return res, err
			}
		}
	}

	res.EventsDeactivated, err = p.eventRepo.DeactivateBySource(ctx, fileName)
	if err != nil {
		return res, err
	}
	log.Infof("[Processor] 已删除文档, FileName: %s, 版本: %d, 向量: %d, 事件: %d",
		fileName, res.Versions, res.VectorsDeleted, res.EventsDeactivated)
	return res, nil
}
