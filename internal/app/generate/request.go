package generate

import (
	"context"
	"sync"

	"cardpress/internal/domain"
)

// Request 是一次生成调用的句柄。
//
// 状态机：Pending → Running → {Completed | Cancelled | Failed}，进入终态后
// 不再迁移。被新请求取代的旧请求以 Cancelled 终态收场，结果静默丢弃；
// 只有显式 Wait 过它的调用方才会观察到取消终态。
type Request struct {
	id     uint64
	cancel context.CancelFunc

	mu    sync.Mutex
	state string
	out   domain.Output
	err   error
	done  chan struct{}
}

func newRequest(id uint64, cancel context.CancelFunc) *Request {
	return &Request{
		id:     id,
		cancel: cancel,
		state:  domain.StatePending,
		done:   make(chan struct{}),
	}
}

// ID 是该请求在所属编排器内的单调序号。
func (r *Request) ID() uint64 { return r.id }

// State 返回当前状态。
func (r *Request) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Done 在请求进入终态时关闭。
func (r *Request) Done() <-chan struct{} { return r.done }

// Wait 阻塞到请求终态或 ctx 先到期。
// 取消终态以 cancelled 错误码表达（不是真正的错误，只是非文档产出）。
func (r *Request) Wait(ctx context.Context) (domain.Output, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.out, r.err
	case <-ctx.Done():
		return domain.Output{}, domain.E(domain.ErrCodeCancelled, ctx.Err())
	}
}

// Cancel 协作式取消本请求（已进入终态则无效果）。
func (r *Request) Cancel() { r.cancel() }

func (r *Request) markRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == domain.StatePending {
		r.state = domain.StateRunning
	}
}

// finish 迁移到终态；重复调用只有第一次生效。
func (r *Request) finish(state string, out domain.Output, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case domain.StateCompleted, domain.StateCancelled, domain.StateFailed:
		return
	}
	r.state = state
	r.out = out
	r.err = err
	close(r.done)
}

// terminal 判断是否已进入终态。
func (r *Request) terminal() bool {
	switch r.State() {
	case domain.StateCompleted, domain.StateCancelled, domain.StateFailed:
		return true
	}
	return false
}

// completedRequest 构造一个直接处于完成终态的请求（缓存命中路径）。
func completedRequest(id uint64, out domain.Output) *Request {
	r := newRequest(id, func() {})
	r.mu.Lock()
	r.state = domain.StateCompleted
	r.out = out
	close(r.done)
	r.mu.Unlock()
	return r
}
