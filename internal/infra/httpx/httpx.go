// Package httpx 把图片代理的网络策略（UA 池、超时、端点模板）固化在一处。
//
// 约束：不做重试/退避——失败直接上抛，由批量下载层决定整批中止。
package httpx

import (
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultTimeout = 30 * time.Second

// Endpoint 是固定的图片代理端点模板，用 {id} 占位远端图片 id。
// 不含占位符时，id 以路径段的形式追加在末尾。
type Endpoint string

// URLFor 把 id 代入端点模板。
func (e Endpoint) URLFor(id string) string {
	s := string(e)
	if strings.Contains(s, "{id}") {
		return strings.ReplaceAll(s, "{id}", url.PathEscape(id))
	}
	return strings.TrimRight(s, "/") + "/" + url.PathEscape(id)
}

// Validate 检查端点本身是不是合法 URL。
func (e Endpoint) Validate() error {
	s := strings.TrimSpace(string(e))
	if s == "" {
		return errors.New("代理端点为空")
	}
	u, err := url.Parse(strings.ReplaceAll(s, "{id}", "x"))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("代理端点必须是 http(s) URL")
	}
	return nil
}

// Transport 给每个请求补一个随机 UA（未显式设置时）。
type Transport struct {
	Base http.RoundTripper

	ua *uaPool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	base := t.Base
	if base == nil {
		return nil, errors.New("nil base transport")
	}

	// Clone 避免在 RoundTripper 内部"污染"调用方的 request。
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", t.ua.random())
	}
	return base.RoundTrip(r)
}

// NewImageClient 构造用于代理图片下载的 HTTP client：
// UA 池 + 握手/响应头超时 + 总超时；无重试。
func NewImageClient() *http.Client {
	base := &http.Transport{
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   32,
	}
	return &http.Client{
		Transport: &Transport{Base: base, ua: globalUA},
		Timeout:   defaultTimeout,
	}
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	// UA 列表保持短小但多样；不对外暴露配置。
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
