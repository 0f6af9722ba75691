package generate

import "time"

// Observer 把"生成进度/阶段/终态"从编排流程中解耦出来。
//
// 约束：
// - generate 包只负责发事件，不做任何输出（由上层决定如何展示）
// - 实现必须并发安全：事件可能来自多个渲染 worker goroutine
type Observer interface {
	// OnStart 在请求真正开始渲染时调用（缓存命中不触发）。
	OnStart(totalCards, totalPages, workers int)
	// OnChunkDone 在某个分片渲染完成时调用。
	OnChunkDone(chunkIndex, pages int, dur time.Duration)
	// OnProgress 在聚合进度变化时调用：按 worker 均值换算出的近似当前页。
	OnProgress(approxPage, totalPages int)
	// OnDone 在请求进入终态时调用（completed/cancelled/failed）。
	OnDone(state string, dur time.Duration)
}

// progressBoard 按 worker 身份聚合各分片最近一次上报的百分比。
// 上报可能乱序到达，但均值只看"每个 worker 的最新值"，与到达顺序无关。
type progressBoard struct {
	pcts []float64
}

func newProgressBoard(workers int) *progressBoard {
	return &progressBoard{pcts: make([]float64, workers)}
}

// update 写入某 worker 的最新百分比并返回全体均值（0..100）。
func (p *progressBoard) update(worker int, pct float64) float64 {
	if worker >= 0 && worker < len(p.pcts) {
		p.pcts[worker] = pct
	}
	var sum float64
	for _, v := range p.pcts {
		sum += v
	}
	return sum / float64(len(p.pcts))
}
