// Package cache 提供按内容哈希键控的生成产物缓存。
//
// 约束：
// - 仅内存、单条目：持有"最近一次"的文档与切割文件字节（跨会话持久化是非目标）
// - 单一属主（编排器实例）；Generate 串行化保证没有并发读写，锁只是额外保险
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cardpress/internal/domain"
)

// Store 是最近一次生成产物的缓存。
type Store struct {
	mu  sync.Mutex
	key string
	out domain.Output
	ok  bool
}

func New() *Store { return &Store{} }

// Key 对会影响产物的全部输入做内容哈希：
// 每张卡的 (id, 正面出血, 背面出血, 是否有背面)，加上页面设置、卡面尺寸、
// 输出出血、背面开关、默认背面身份与跳过槽位集合。
// 其中任何一项变化都会让键失配（即缓存失效）。
func Key(cards []*domain.Card, page domain.PageSettings, opts domain.GlobalOptions) string {
	var b strings.Builder

	for _, c := range cards {
		if c == nil {
			b.WriteString("-\n")
			continue
		}
		b.WriteString(c.ID)
		b.WriteByte('|')
		b.WriteString(f(c.FrontBleed))
		b.WriteByte('|')
		b.WriteString(f(c.BackBleed))
		b.WriteByte('|')
		if c.Back != nil {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
		b.WriteByte('\n')
	}

	b.WriteString("page:")
	b.WriteString(f(page.Width))
	b.WriteByte('x')
	b.WriteString(f(page.Height))
	b.WriteByte('m')
	b.WriteString(f(page.Margin))
	b.WriteByte('\n')

	b.WriteString("card:")
	b.WriteString(f(opts.CardWidth))
	b.WriteByte('x')
	b.WriteString(f(opts.CardHeight))
	b.WriteByte('o')
	b.WriteString(f(opts.OutputBleed))
	b.WriteByte('r')
	b.WriteString(f(opts.CornerRadius))
	b.WriteByte('\n')

	b.WriteString("backs:")
	if opts.EnableBacks {
		b.WriteByte('1')
	} else {
		b.WriteByte('0')
	}
	if opts.DefaultBack != nil {
		b.WriteByte('|')
		b.WriteString(opts.DefaultBack.Name)
	}
	b.WriteByte('\n')

	skips := make([]int, 0, len(opts.SkipSlots))
	for s := range opts.SkipSlots {
		skips = append(skips, s)
	}
	sort.Ints(skips)
	b.WriteString("skip:")
	for _, s := range skips {
		b.WriteString(strconv.Itoa(s))
		b.WriteByte(',')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func f(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// Get 命中时返回缓存产物。
func (s *Store) Get(key string) (domain.Output, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok || s.key != key {
		return domain.Output{}, false
	}
	return s.out, true
}

// Put 覆盖缓存为最新产物。
func (s *Store) Put(key string, out domain.Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.out = out
	s.ok = true
}

// Invalidate 清空缓存。
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = ""
	s.out = domain.Output{}
	s.ok = false
}
