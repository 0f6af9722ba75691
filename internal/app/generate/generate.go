// Package generate 是生成编排器：把整副牌切成分片、派发并行渲染 worker、
// 聚合进度、按分片下标保序拼接，并按内容哈希缓存产物。
package generate

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"cardpress/internal/app/planner"
	"cardpress/internal/domain"
	"cardpress/internal/dxf"
	"cardpress/internal/infra/cache"
	"cardpress/internal/layout"
	"cardpress/internal/pdfx"
	"cardpress/internal/render"
)

// Generator 是单属主的生成编排器。
//
// 约束：
// - 同一实例的请求严格串行：新的 Generate 无条件取消在途请求
//   （不做同键去重/单飞，历史契约如此）
// - 缓存单属主：只有编排器自己读写，生成串行化保证无并发访问
type Generator struct {
	// MaxWorkers 限制并行渲染 worker 数；零值用内置默认。
	MaxWorkers int

	// Observer 接收进度事件；可为 nil。
	Observer Observer

	mu       sync.Mutex
	store    *cache.Store
	cur      *Request
	seq      uint64
	disposed bool
}

func New() *Generator {
	return &Generator{
		MaxWorkers: planner.DefaultMaxWorkers,
		store:      cache.New(),
	}
}

// Generate 发起一次生成（异步），返回请求句柄。
//
// 流程（详见各步注释）：
//  1. 算内容哈希；命中上次缓存则直接返回完成态请求，不做任何渲染
//  2. 无条件取消仍在途的上一个请求（其最终结果被静默丢弃）
//  3. 分片 → 每片一个隔离 worker → 聚合进度 → 保序拼接 → 写缓存
func (g *Generator) Generate(cards []*domain.Card, page domain.PageSettings, opts domain.GlobalOptions) *Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	id := g.seq

	if g.disposed {
		req := newRequest(id, func() {})
		req.finish(domain.StateFailed, domain.Output{},
			domain.Errorf(domain.ErrCodeCancelled, "编排器已销毁"))
		return req
	}

	key := cache.Key(cards, page, opts)
	if out, ok := g.store.Get(key); ok {
		return completedRequest(id, out)
	}

	// 无条件取消在途请求：绝不允许同一实例的两个请求并行完成。
	if g.cur != nil && !g.cur.terminal() {
		g.cur.Cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	req := newRequest(id, cancel)
	g.cur = req

	// worker 持有自己的卡描述副本，杜绝跨 goroutine 的共享可变内存。
	owned := cloneCards(cards)

	go g.run(ctx, req, key, owned, page, opts)
	return req
}

func (g *Generator) run(ctx context.Context, req *Request, key string, cards []*domain.Card, page domain.PageSettings, opts domain.GlobalOptions) {
	started := time.Now()
	req.markRunning()

	finish := func(state string, out domain.Output, err error) {
		req.finish(state, out, err)
		if g.Observer != nil {
			g.Observer.OnDone(state, time.Since(started))
		}
	}

	chunks := planner.Plan(len(cards), g.maxWorkers())
	if len(chunks) == 0 {
		finish(domain.StateFailed, domain.Output{},
			domain.Errorf(domain.ErrCodeInvalidGeometry, "牌组为空，无可生成内容"))
		return
	}

	// 观察者看到的页数是文档真实页数：按扣除跳过槽位后的每页容量折算，
	// 背面页翻倍，逐分片求和（与各 worker 实际产出的页数一致）。
	totalPages := 0
	for _, c := range chunks {
		totalPages += chunkPages(c.Len(), opts)
	}
	if g.Observer != nil {
		g.Observer.OnStart(len(cards), totalPages, len(chunks))
	}

	// 进度聚合：worker 身份 → 最新百分比 → 均值 → 近似当前页。
	var progMu sync.Mutex
	board := newProgressBoard(len(chunks))
	onProgress := func(worker int, pct float64) {
		if g.Observer == nil {
			return
		}
		progMu.Lock()
		mean := board.update(worker, pct)
		progMu.Unlock()
		approx := int(math.Round(mean / 100 * float64(totalPages)))
		g.Observer.OnProgress(approx, totalPages)
	}

	type workerOut struct {
		res domain.RenderResult
		err error
		dur time.Duration
	}
	resCh := make(chan workerOut, len(chunks))

	for _, c := range chunks {
		go func(c planner.Chunk) {
			one := time.Now()
			res, err := render.Chunk(ctx, c.Index, cards[c.Start:c.End], page, opts,
				func(pct float64) { onProgress(c.Index, pct) })
			// 结果字节随消息传递转移所有权；worker 此后不再触碰。
			resCh <- workerOut{res: res, err: err, dur: time.Since(one)}
		}(c)
	}

	// 任一分片失败 → 整个请求失败，绝不产出部分文档。
	// 失败后仍要把其余 worker 收完（通道有缓冲，不会泄漏 goroutine）。
	results := make([]domain.RenderResult, 0, len(chunks))
	var firstErr error
	for range chunks {
		out := <-resCh
		if out.err != nil {
			if firstErr == nil {
				firstErr = out.err
				req.Cancel()
			}
			continue
		}
		results = append(results, out.res)
		if g.Observer != nil {
			g.Observer.OnChunkDone(out.res.ChunkIndex, out.res.Pages, out.dur)
		}
	}

	if firstErr != nil {
		// 失败分支自己会取消其余 worker（自致的 ctx 取消），所以终态分类
		// 只看首个错误本身：真实失败必须以 failed + 原始错误码收场。
		if domain.IsCancelled(firstErr) {
			finish(domain.StateCancelled, domain.Output{}, firstErr)
			return
		}
		if domain.Code(firstErr) == "" {
			firstErr = domain.E(domain.ErrCodeWorkerFailed, firstErr)
		}
		finish(domain.StateFailed, domain.Output{}, firstErr)
		return
	}
	if ctx.Err() != nil {
		// 被取代/被取消：结果静默丢弃，绝不写缓存。
		finish(domain.StateCancelled, domain.Output{},
			domain.E(domain.ErrCodeCancelled, ctx.Err()))
		return
	}

	// 保序拼接：按分片下标排序，与完成顺序无关。
	sort.Slice(results, func(i, j int) bool { return results[i].ChunkIndex < results[j].ChunkIndex })

	doc, pages, err := mergeResults(results, page)
	if err != nil {
		finish(domain.StateFailed, domain.Output{}, err)
		return
	}

	// 切割几何对整页槽位布局只算一次，与分片无关，天然不存在拼接问题。
	out := domain.Output{
		Document: doc,
		CutFile:  dxf.Generate(page, opts),
		Pages:    pages,
	}

	g.store.Put(key, out)
	finish(domain.StateCompleted, out, nil)
}

// mergeResults 把按分片下标排好序的结果合并为一份文档。
// 单分片直接透传字节；多分片逐一加载并追加页面。
func mergeResults(results []domain.RenderResult, page domain.PageSettings) ([]byte, int, error) {
	pages := 0
	for _, r := range results {
		pages += r.Pages
	}
	if len(results) == 1 {
		return results[0].Document, pages, nil
	}

	pageW, pageH := page.Landscape()
	m := pdfx.NewMerger(pageW, pageH)
	for _, r := range results {
		if err := m.Append(r.Document, r.Pages); err != nil {
			return nil, 0, err
		}
	}
	doc, err := m.Output()
	if err != nil {
		return nil, 0, err
	}
	return doc, pages, nil
}

// Cancel 取消当前在途请求（没有则无效果）。
func (g *Generator) Cancel() {
	g.mu.Lock()
	cur := g.cur
	g.mu.Unlock()
	if cur != nil && !cur.terminal() {
		cur.Cancel()
	}
}

// IsGenerating 判断是否有请求在途。
func (g *Generator) IsGenerating() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cur != nil && !g.cur.terminal()
}

// InvalidateCache 清空缓存（下次 Generate 必然重渲染）。
func (g *Generator) InvalidateCache() {
	g.mu.Lock()
	store := g.store
	g.mu.Unlock()
	store.Invalidate()
}

// Dispose 取消在途请求并清空缓存；之后的 Generate 一律失败。
func (g *Generator) Dispose() {
	g.Cancel()
	g.mu.Lock()
	g.disposed = true
	store := g.store
	g.mu.Unlock()
	store.Invalidate()
}

func (g *Generator) maxWorkers() int {
	if g.MaxWorkers > 0 {
		return g.MaxWorkers
	}
	return planner.DefaultMaxWorkers
}

// chunkPages 估算一个分片会渲染出的文档页数。
// 分片切分始终按满页 8 张对齐，但每页真实容量要扣除跳过槽位；
// 开启背面时每个正面页紧跟一个背面页。
func chunkPages(numCards int, opts domain.GlobalOptions) int {
	perPage := 0
	for i := 0; i < layout.SlotsPerPage; i++ {
		if !opts.SlotSkipped(i) {
			perPage++
		}
	}
	if perPage == 0 || numCards <= 0 {
		return 0
	}
	pages := (numCards + perPage - 1) / perPage
	if opts.EnableBacks {
		pages *= 2
	}
	return pages
}

// cloneCards 深拷贝卡描述（图片字节只读共享，不在拷贝范围内）。
func cloneCards(cards []*domain.Card) []*domain.Card {
	out := make([]*domain.Card, len(cards))
	for i, c := range cards {
		if c == nil {
			continue
		}
		cc := *c
		out[i] = &cc
	}
	return out
}
