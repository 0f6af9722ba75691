// Package fetch 实现卡图的批量并发下载：有界并发 + 错峰启动。
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"cardpress/internal/domain"
	"cardpress/internal/infra/httpx"
	"cardpress/internal/infra/imgx"
)

const (
	// DefaultConcurrency 是同时在途请求数上限。
	DefaultConcurrency = 20
	// DefaultStagger 是相邻两次启动之间的错峰间隔（压住对代理的突发）。
	DefaultStagger = 50 * time.Millisecond
)

// Item 是一个待下载条目：远端 id + 期望落地的文件名。
type Item struct {
	ID       string
	Filename string
}

// Result 是单条下载产物，Index 为输入中的原始下标。
type Result struct {
	Index int
	ID    string
	Data  []byte
	MIME  string
}

// OnItem 在单条下载完成时立即回调（带原始下标），让调用方可以增量更新
// 下游状态而不必等整批。回调来自多个 goroutine，实现方自行保证并发安全。
type OnItem func(res Result)

// Batch 是一次批量下载的参数集。
type Batch struct {
	Client      *http.Client
	Endpoint    httpx.Endpoint
	Concurrency int
	Stagger     time.Duration
}

// Do 下载整批条目，返回按原始下标排列的结果。
//
// 策略：
//   - 在途请求数不超过 Concurrency；任一请求完成即放行下一条
//   - 相邻启动之间隔 Stagger
//   - 首个失败让整批中止：取消在途请求、停止后续启动，错误原样上抛
//     （已完成条目的回调在中止前已经触发过，不会回滚）
func (b Batch) Do(ctx context.Context, items []Item, onItem OnItem) ([]Result, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if b.Client == nil {
		return nil, domain.Errorf(domain.ErrCodeFetchFailed, "HTTP client 为空")
	}
	if err := b.Endpoint.Validate(); err != nil {
		return nil, domain.E(domain.ErrCodeFetchFailed, err)
	}

	conc := b.Concurrency
	if conc < 1 {
		conc = DefaultConcurrency
	}
	stagger := b.Stagger

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]Result, len(items))
	errCh := make(chan error, len(items))
	sem := make(chan struct{}, conc)

	var wg sync.WaitGroup
launch:
	for i, it := range items {
		select {
		case <-batchCtx.Done():
			break launch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(idx int, it Item) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := b.fetchOne(batchCtx, idx, it)
			if err != nil {
				errCh <- err
				cancel()
				return
			}
			// 各 goroutine 只写自己的下标位，不会相互踩踏。
			results[idx] = res
			if onItem != nil {
				onItem(res)
			}
		}(i, it)

		if stagger > 0 && i < len(items)-1 {
			select {
			case <-batchCtx.Done():
				break launch
			case <-time.After(stagger):
			}
		}
	}
	wg.Wait()

	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return nil, domain.E(domain.ErrCodeCancelled, ctx.Err())
		}
		return nil, err
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.E(domain.ErrCodeCancelled, err)
	}
	return results, nil
}

func (b Batch) fetchOne(ctx context.Context, idx int, it Item) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.Endpoint.URLFor(it.ID), nil)
	if err != nil {
		return Result{}, domain.Errorf(domain.ErrCodeFetchFailed, "构造请求失败（%s）：%v", it.ID, err)
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		return Result{}, domain.Errorf(domain.ErrCodeFetchFailed, "下载 %s 失败：%v", it.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, domain.Errorf(domain.ErrCodeFetchFailed, "下载 %s 失败：HTTP %d", it.ID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, domain.Errorf(domain.ErrCodeFetchFailed, "读取 %s 响应失败：%v", it.ID, err)
	}

	raw, err := imgx.DecodeProxyBody(body)
	if err != nil {
		return Result{}, domain.Errorf(domain.ErrCodeFetchFailed, "解码 %s 响应失败：%v", it.ID, err)
	}

	return Result{
		Index: idx,
		ID:    it.ID,
		Data:  raw,
		MIME:  imgx.SniffMIME(raw),
	}, nil
}

// String 便于日志输出。
func (i Item) String() string { return fmt.Sprintf("%s(%s)", i.ID, i.Filename) }
