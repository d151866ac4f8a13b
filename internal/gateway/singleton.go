package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"campus-rag-go/pkg/log"

	"golang.org/x/sync/singleflight"
)

// ErrNotInitialized 表示在调用 Init 之前调用了 Get。
var ErrNotInitialized = errors.New("gateway not initialized")

// Factory 构造 Gateway，通常会建立到外部服务的连接。
type Factory func(ctx context.Context) (*Gateway, error)

var (
	mu         sync.Mutex
	factory    Factory
	instance   *Gateway
	generation uint64
	inflight   singleflight.Group
)

// Init 注册构造函数并丢弃已有实例。
func Init(f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factory = f
	instance = nil
	generation++
}

// Get 返回共享实例，首次调用时构造。并发的首次调用共享同一次构造，
// 构造期间不持有锁，等待者各自遵守自己的 ctx；构造失败不会被缓存，下一次调用会重试。
func Get(ctx context.Context) (*Gateway, error) {
	mu.Lock()
	if instance != nil {
		g := instance
		mu.Unlock()
		return g, nil
	}
	f, gen := factory, generation
	mu.Unlock()
	if f == nil {
		return nil, ErrNotInitialized
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := inflight.DoChan(fmt.Sprintf("gateway-%d", gen), func() (interface{}, error) {
		return build(buildCtx, f, gen)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Gateway), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// build 执行一次构造。构造期间 Init、Set 或 Reset 改变了状态时，结果不会写入共享实例。
func build(ctx context.Context, f Factory, gen uint64) (*Gateway, error) {
	g, err := f(ctx)
	if err != nil {
		log.Errorf("[Gateway] 初始化失败, error: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	mu.Lock()
	defer mu.Unlock()
	if generation != gen {
		log.Warnf("[Gateway] 构造期间配置已变化，丢弃本次实例")
		return g, nil
	}
	if instance == nil {
		instance = g
		log.Info("[Gateway] 初始化完成")
	}
	return instance, nil
}

// Set 直接注入实例，主要用于测试。
func Set(g *Gateway) {
	mu.Lock()
	defer mu.Unlock()
	instance = g
	generation++
}

// Reset 清除实例与构造函数。
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	factory = nil
	instance = nil
	generation++
}
