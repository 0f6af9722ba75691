package main

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cardpress/internal/app/generate"
	"cardpress/internal/config"
)

var _ generate.Observer = (*progressUI)(nil)

// progressUI 是一个"简洁版"的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout）
// - 事件驱动：generate 层只发事件，CLI 决定如何展示
// - 进度节流：近似当前页没变化就不重复刷行
type progressUI struct {
	w io.Writer

	mu        sync.Mutex
	startedAt time.Time

	fetchTotal int
	fetchDone  int

	totalPages int
	lastPage   int
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w, startedAt: time.Now(), lastPage: -1}
}

func (p *progressUI) printHeader(eff config.EffectiveConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "[%s] cardpress generate\n", time.Now().Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  page: %g×%gmm margin=%gmm\n", eff.Page.Width, eff.Page.Height, eff.Page.Margin)
	fmt.Fprintf(p.w, "  card: %g×%gmm bleed=%gmm output_bleed=%gmm corner=%gmm\n",
		eff.CardWidth, eff.CardHeight, eff.Bleed, eff.OutputBleed, eff.CornerRadius)
	fmt.Fprintf(p.w, "  backs: %s\n", onOff(eff.Backs))
	if len(eff.SkipSlots) > 0 {
		fmt.Fprintf(p.w, "  skip_slots: %v\n", eff.SkipSlots)
	}
	fmt.Fprintf(p.w, "  proxy: %s (concurrency=%d)\n", formatProxy(string(eff.Proxy)), eff.Concurrency)
	fmt.Fprintf(p.w, "  workers: %d\n", eff.Workers)
	fmt.Fprintf(p.w, "  out: %s\n", eff.OutDir)
	fmt.Fprintln(p.w)
}

func (p *progressUI) fetchStart(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchTotal = total
	p.fetchDone = 0
	fmt.Fprintf(p.w, "下载卡图: total=%d\n", total)
}

func (p *progressUI) fetchOne(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchDone++
	fmt.Fprintf(p.w, "[%d/%d] %s\n", p.fetchDone, p.fetchTotal, truncate(id, 80))
}

func (p *progressUI) OnStart(totalCards, totalPages, workers int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalPages = totalPages
	p.lastPage = -1
	fmt.Fprintf(p.w, "渲染: cards=%d pages=%d workers=%d\n", totalCards, totalPages, workers)
}

func (p *progressUI) OnChunkDone(chunkIndex, pages int, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "分片 %d 完成: pages=%d (%s)\n", chunkIndex, pages, formatShortDuration(dur))
}

func (p *progressUI) OnProgress(approxPage, totalPages int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// 近似页没前进就不刷行（worker 上报很密）。
	if approxPage <= p.lastPage {
		return
	}
	p.lastPage = approxPage
	fmt.Fprintf(p.w, "进度: ~%d/%d 页\n", approxPage, totalPages)
}

func (p *progressUI) OnDone(state string, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "生成结束: state=%s elapsed=%s\n", state, formatShortDuration(dur))
}

func (p *progressUI) printLocations(outDir, docName, cutName string, pages int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "完成: pages=%d\n", pages)
	fmt.Fprintf(p.w, "  document: %s\n", filepath.Join(outDir, docName))
	fmt.Fprintf(p.w, "  cut file: %s\n", filepath.Join(outDir, cutName))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(strings.ReplaceAll(raw, "{id}", "x"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return truncate(raw, 120)
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
