package generate

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"cardpress/internal/domain"
)

var a4 = domain.PageSettings{Width: 210, Height: 297, Margin: 10}

type recordObserver struct {
	mu         sync.Mutex
	starts     int
	startPages int
	chunks     []int
	dones      []string
	maxPages   int
}

func (o *recordObserver) OnStart(totalCards, totalPages, workers int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	o.startPages = totalPages
}

func (o *recordObserver) OnChunkDone(chunkIndex, pages int, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.chunks = append(o.chunks, chunkIndex)
}

func (o *recordObserver) OnProgress(approxPage, totalPages int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if approxPage > o.maxPages {
		o.maxPages = approxPage
	}
}

func (o *recordObserver) OnDone(state string, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dones = append(o.dones, state)
}

func (o *recordObserver) startCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.starts
}

func (o *recordObserver) startPageCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startPages
}

func pngImage(t *testing.T) *domain.Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{G: 180, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("PNG 编码失败：%v", err)
	}
	return &domain.Image{Name: "img", Data: buf.Bytes()}
}

func deck(t *testing.T, n int) []*domain.Card {
	t.Helper()
	img := pngImage(t)
	out := make([]*domain.Card, n)
	for i := range out {
		out[i] = &domain.Card{ID: fmt.Sprintf("card-%03d", i), Front: img}
	}
	return out
}

func baseOpts() domain.GlobalOptions {
	return domain.GlobalOptions{
		CardWidth: 63, CardHeight: 88, OutputBleed: 1, CornerRadius: 2.5,
		SkipSlots: map[int]struct{}{},
	}
}

func TestGenerate_SingleChunk(t *testing.T) {
	g := New()
	req := g.Generate(deck(t, 8), a4, baseOpts())

	out, err := req.Wait(context.Background())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if out.Pages != 1 {
		t.Fatalf("期望 1 页，实际 %d", out.Pages)
	}
	if !bytes.HasPrefix(out.Document, []byte("%PDF")) {
		t.Fatalf("产物不是 PDF")
	}
	if !bytes.Contains(out.CutFile, []byte("ENTITIES")) || !bytes.Contains(out.CutFile, []byte("EOF")) {
		t.Fatalf("切割文件结构缺失")
	}
	if req.State() != domain.StateCompleted {
		t.Fatalf("期望 completed 终态，实际 %s", req.State())
	}
}

func TestGenerate_MultiChunkMergeOrdered(t *testing.T) {
	obs := &recordObserver{}
	g := New()
	g.MaxWorkers = 4
	g.Observer = obs

	// 17 张卡、4 worker → 3 页 → 3 个分片（页数均分）。
	req := g.Generate(deck(t, 17), a4, baseOpts())
	out, err := req.Wait(context.Background())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	// 总页数 = 各分片页数之和。
	if out.Pages != 3 {
		t.Fatalf("期望 3 页，实际 %d", out.Pages)
	}
	if !bytes.HasPrefix(out.Document, []byte("%PDF")) {
		t.Fatalf("拼接产物不是 PDF")
	}
	if len(obs.chunks) != 3 {
		t.Fatalf("期望 3 个分片完成事件，实际 %v", obs.chunks)
	}
}

func TestGenerate_CacheHitSkipsRender(t *testing.T) {
	obs := &recordObserver{}
	g := New()
	g.Observer = obs

	cards := deck(t, 8)
	first := g.Generate(cards, a4, baseOpts())
	out1, err := first.Wait(context.Background())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if obs.startCount() != 1 {
		t.Fatalf("首次生成应触发 OnStart")
	}

	// 字节级相同输入：直接命中缓存，请求同步处于完成终态，不再渲染。
	second := g.Generate(cards, a4, baseOpts())
	if second.State() != domain.StateCompleted {
		t.Fatalf("缓存命中应同步完成，实际 %s", second.State())
	}
	out2, err := second.Wait(context.Background())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !bytes.Equal(out1.Document, out2.Document) {
		t.Fatalf("缓存命中应返回同一份文档")
	}
	if obs.startCount() != 1 {
		t.Fatalf("缓存命中不应再次渲染（OnStart=%d）", obs.startCount())
	}

	// 改动单卡出血：缓存失效，强制重渲染。
	cards[3].FrontBleed = 2
	third := g.Generate(cards, a4, baseOpts())
	if _, err := third.Wait(context.Background()); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if obs.startCount() != 2 {
		t.Fatalf("出血变化后应重渲染（OnStart=%d）", obs.startCount())
	}
}

func TestGenerate_SecondCallCancelsFirst(t *testing.T) {
	obs := &recordObserver{}
	g := New()
	g.MaxWorkers = 1
	g.Observer = obs

	// 足够大的牌组让第一个请求必然还在途。
	first := g.Generate(deck(t, 160), a4, baseOpts())
	secondCards := deck(t, 8)
	second := g.Generate(secondCards, a4, baseOpts())

	out2, err := second.Wait(context.Background())
	if err != nil {
		t.Fatalf("第二个请求不期望错误：%v", err)
	}
	if out2.Pages != 1 {
		t.Fatalf("期望 1 页，实际 %d", out2.Pages)
	}

	_, err1 := first.Wait(context.Background())
	if !domain.IsCancelled(err1) {
		t.Fatalf("第一个请求应以取消终态收场，实际：%v", err1)
	}
	if first.State() != domain.StateCancelled {
		t.Fatalf("期望 cancelled，实际 %s", first.State())
	}

	// 只有第二个请求的产物会进缓存。
	again := g.Generate(secondCards, a4, baseOpts())
	if again.State() != domain.StateCompleted {
		t.Fatalf("第二个请求的产物应已缓存，实际 %s", again.State())
	}
}

func TestGenerate_CancelMarksCancelled(t *testing.T) {
	g := New()
	g.MaxWorkers = 1

	req := g.Generate(deck(t, 160), a4, baseOpts())
	if !g.IsGenerating() {
		t.Fatalf("在途时 IsGenerating 应为 true")
	}
	g.Cancel()

	_, err := req.Wait(context.Background())
	if !domain.IsCancelled(err) {
		t.Fatalf("期望取消终态，实际：%v", err)
	}
	if g.IsGenerating() {
		t.Fatalf("终态后 IsGenerating 应为 false")
	}
}

func TestGenerate_WorkerFailureFailsWholeRequest(t *testing.T) {
	g := New()
	opts := baseOpts()
	opts.CardWidth = 400 // 放不进 A4 横置页

	req := g.Generate(deck(t, 8), a4, opts)
	out, err := req.Wait(context.Background())
	if domain.Code(err) != domain.ErrCodeInvalidGeometry {
		t.Fatalf("期望 invalid_geometry，实际：%v", err)
	}
	if out.Document != nil {
		t.Fatalf("失败请求不得产出部分文档")
	}
	if req.State() != domain.StateFailed {
		t.Fatalf("期望 failed 终态，实际 %s", req.State())
	}
}

func TestGenerate_ObserverPagesMatchDocument(t *testing.T) {
	obs := &recordObserver{}
	g := New()
	g.Observer = obs

	// 12 张卡、跳过 2 个槽位（每页容量 6）、开背面：
	// 分片按满页 8 张对齐 → [8, 4]，分别渲染 2×2 与 1×2 页，共 6 页。
	opts := baseOpts()
	opts.SkipSlots = map[int]struct{}{0: {}, 1: {}}
	opts.EnableBacks = true

	req := g.Generate(deck(t, 12), a4, opts)
	out, err := req.Wait(context.Background())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if out.Pages != 6 {
		t.Fatalf("期望 6 页，实际 %d", out.Pages)
	}
	if got := obs.startPageCount(); got != out.Pages {
		t.Fatalf("观察者页数应与文档一致：%d != %d", got, out.Pages)
	}
}

func TestGenerate_EmptyDeckFails(t *testing.T) {
	g := New()
	req := g.Generate(nil, a4, baseOpts())
	if _, err := req.Wait(context.Background()); err == nil {
		t.Fatalf("空牌组应失败")
	}
}

func TestGenerate_InvalidateCacheForcesRender(t *testing.T) {
	obs := &recordObserver{}
	g := New()
	g.Observer = obs

	cards := deck(t, 8)
	if _, err := g.Generate(cards, a4, baseOpts()).Wait(context.Background()); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	g.InvalidateCache()
	if _, err := g.Generate(cards, a4, baseOpts()).Wait(context.Background()); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if obs.startCount() != 2 {
		t.Fatalf("缓存失效后应重渲染（OnStart=%d）", obs.startCount())
	}
}

func TestGenerate_DisposeRejectsFurtherRequests(t *testing.T) {
	g := New()
	if _, err := g.Generate(deck(t, 8), a4, baseOpts()).Wait(context.Background()); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	g.Dispose()

	req := g.Generate(deck(t, 8), a4, baseOpts())
	if _, err := req.Wait(context.Background()); err == nil {
		t.Fatalf("销毁后的 Generate 应失败")
	}
}
