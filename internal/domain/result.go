package domain

// 一次渲染调用的状态机：Pending → Running → {Completed | Cancelled | Failed}。
// 进入终态后不再迁移。
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateCancelled = "cancelled"
	StateFailed    = "failed"
)

// RenderResult 是单个分片渲染的产物。
//
// 约束：
// - 结果到达顺序不确定，拼接前必须按 ChunkIndex 重新排序
// - Document 的所有权随消息传递转移（发送方不得再持有）
type RenderResult struct {
	ChunkIndex int
	Document   []byte
	Pages      int
}

// Output 是一次生成请求的最终产物：文档字节 + 切割文件字节。
type Output struct {
	Document []byte
	CutFile  []byte
	Pages    int
}
