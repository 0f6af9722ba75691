// Package planner 把完整卡表确定性地切成页对齐的连续分片（不做任何渲染）。
package planner

// CardsPerPage 是分片核算用的每页卡数（4×2 网格）。
// 跳过槽位造成的实际容量缩减由渲染层处理，不影响分片边界。
const CardsPerPage = 8

// DefaultMaxWorkers 是并行渲染 worker 数的内置默认值。
const DefaultMaxWorkers = 4

// Chunk 是一段连续的卡片区间 [Start, End)，带分片下标用于保序拼接。
type Chunk struct {
	Index int
	Start int
	End   int
}

// Len 返回分片内卡片数。
func (c Chunk) Len() int { return c.End - c.Start }

// Plan 把 numCards 张卡切成至多 maxWorkers 个分片：
//
//	totalPages = ceil(numCards/8)
//	workers    = min(totalPages, maxWorkers)
//
// 页数尽量均分，余数页归最靠前的 worker；每个分片长度 = 分到的页数 × 8，
// 只有当输入本身不是 8 的倍数时，最后一个分片才会短于整页倍数。
func Plan(numCards, maxWorkers int) []Chunk {
	if numCards <= 0 {
		return nil
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	totalPages := (numCards + CardsPerPage - 1) / CardsPerPage
	workers := totalPages
	if workers > maxWorkers {
		workers = maxWorkers
	}

	base := totalPages / workers
	rem := totalPages % workers

	chunks := make([]Chunk, 0, workers)
	start := 0
	for i := 0; i < workers; i++ {
		pages := base
		if i < rem {
			pages++
		}
		end := start + pages*CardsPerPage
		if end > numCards {
			end = numCards
		}
		chunks = append(chunks, Chunk{Index: i, Start: start, End: end})
		start = end
	}
	return chunks
}

// TotalPages 返回 numCards 张卡按每页 8 张核算的页数。
func TotalPages(numCards int) int {
	if numCards <= 0 {
		return 0
	}
	return (numCards + CardsPerPage - 1) / CardsPerPage
}
