package domain

import (
	"errors"
	"fmt"
)

const (
	// ErrCodeFetchFailed 表示单张图片的网络/HTTP 下载失败。
	ErrCodeFetchFailed = "fetch_failed"
	// ErrCodeImageDecode 表示图片字节损坏或格式不受支持。
	ErrCodeImageDecode = "image_decode_failed"
	// ErrCodeInvalidGeometry 表示裁切/布局出现退化尺寸（例如卡比页还大）。
	ErrCodeInvalidGeometry = "invalid_geometry"
	// ErrCodeWorkerFailed 表示某个渲染 worker 因任何原因中止。
	ErrCodeWorkerFailed = "worker_failed"
	// ErrCodeMergeFailed 表示已完成分片的文档字节无法加载/拼接。
	ErrCodeMergeFailed = "merge_failed"
	// ErrCodeCancelled 不是真正的错误：它是被取代/被取消请求的终态。
	ErrCodeCancelled = "cancelled"

	ErrCodeConfigNotFound = "config_not_found"
	ErrCodeConfigInvalid  = "config_invalid"
)

// Error 是带 error_code 的结构化错误（对外稳定，便于上层映射提示文案）。
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// E 构造带 code 的 Error（msg 可为空）。
func E(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Errorf 构造带 code 的 Error，消息走 fmt 格式化。
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCancelled 判断 err 是否为取消终态（含 context 取消的包装）。
func IsCancelled(err error) bool {
	return Code(err) == ErrCodeCancelled
}
