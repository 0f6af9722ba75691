// Package config 负责项目文件（cardpress.json）的发现、解析与 CLI 参数合并。
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cardpress/internal/app/planner"
	"cardpress/internal/domain"
	"cardpress/internal/infra/fetch"
	"cardpress/internal/infra/httpx"
	"cardpress/internal/layout"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 cardpress.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示项目文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

// FileName 是项目文件的固定文件名。
const FileName = "cardpress.json"

const (
	// DefaultCornerRadius 是切割圆角的内置默认值（毫米）。
	DefaultCornerRadius = 2.5
	// DefaultCardWidth / DefaultCardHeight 是扑克规格的内置默认卡面尺寸（毫米）。
	DefaultCardWidth  = 63.0
	DefaultCardHeight = 88.0
	// DefaultMargin 是页边距（定位标记内缩）的内置默认值（毫米）。
	DefaultMargin = 10.0
)

// CLIArgs 只包含 CLI 暴露的入口项，并保留"是否显式指定"的信息。
// 这能保证覆盖优先级可实现：例如 --backs=false 必须能覆盖 config.backs=true。
type CLIArgs struct {
	Path string

	OutDir    string
	OutDirSet bool

	Workers    int
	WorkersSet bool

	Backs    bool
	BacksSet bool
}

// FileConfig 对应 cardpress.json 的解析结构。
type FileConfig struct {
	Page  *PageConfig  `json:"page"`
	Cards []CardConfig `json:"cards"`

	CardWidth    float64  `json:"card_width"`
	CardHeight   float64  `json:"card_height"`
	Bleed        *float64 `json:"bleed"`
	OutputBleed  *float64 `json:"output_bleed"`
	CornerRadius *float64 `json:"corner_radius"`
	Backs        *bool    `json:"backs"`
	DefaultBack  string   `json:"default_back"`
	SkipSlots    []int    `json:"skip_slots"`

	Proxy   *ProxyConfig `json:"proxy"`
	OutDir  string       `json:"out_dir"`
	Workers int          `json:"workers"`
}

// PageConfig 指定页面：preset（a4/letter）或显式尺寸；显式尺寸优先。
type PageConfig struct {
	Preset string  `json:"preset"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Margin float64 `json:"margin"`
}

// CardConfig 描述一张卡：front/back 是代理端点上的远端图片 id。
// count 允许同一描述在牌组中重复；省略视为 1。
type CardConfig struct {
	ID         string   `json:"id"`
	Front      string   `json:"front"`
	FrontBleed *float64 `json:"front_bleed"`
	Back       string   `json:"back"`
	BackBleed  *float64 `json:"back_bleed"`
	Count      int      `json:"count"`
}

type ProxyConfig struct {
	URL         string `json:"url"`
	Concurrency int    `json:"concurrency"`
}

// CardSpec 是合并后的单卡描述（图片仍是远端 id，由上层下载后装配）。
type CardSpec struct {
	ID    string
	Count int

	Front         string
	FrontBleed    float64
	FrontBleedSet bool

	Back         string
	BackBleed    float64
	BackBleedSet bool
}

// EffectiveConfig 是合并并做最小规范化后的最终配置
//（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Page  domain.PageSettings
	Cards []CardSpec

	CardWidth    float64
	CardHeight   float64
	Bleed        float64
	OutputBleed  float64
	CornerRadius float64
	Backs        bool
	DefaultBack  string
	SkipSlots    []int

	Proxy       httpx.Endpoint
	Concurrency int

	OutDir  string
	Workers int
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到项目文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：项目文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：项目文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取项目文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：指向项目文件本身，或包含 cardpress.json 的目录
// 2) CLI 未提供 path：必须读取 <cwd>/cardpress.json
//
// 覆盖优先级（固定）：
// - out_dir / workers / backs：CLI > config > 默认
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	if strings.TrimSpace(cli.Path) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.Path)
		if fi, statErr := os.Stat(cfgPath); statErr == nil && fi.IsDir() {
			cfgPath = filepath.Join(cfgPath, FileName)
		}
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	return merge(cwdAbs, cli, fc, cfgPath)
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	page, err := resolvePage(fc.Page)
	if err != nil {
		return invalid("%v", err)
	}

	cardW, cardH := fc.CardWidth, fc.CardHeight
	if cardW == 0 && cardH == 0 {
		cardW, cardH = DefaultCardWidth, DefaultCardHeight
	}
	if cardW <= 0 || cardH <= 0 {
		return invalid("卡面尺寸必须为正：%g×%g", cardW, cardH)
	}

	bleed := 0.0
	if fc.Bleed != nil {
		bleed = *fc.Bleed
	}
	outputBleed := 0.0
	if fc.OutputBleed != nil {
		outputBleed = *fc.OutputBleed
	}
	if bleed < 0 || outputBleed < 0 {
		return invalid("出血不能为负：bleed=%g output_bleed=%g", bleed, outputBleed)
	}

	radius := DefaultCornerRadius
	if fc.CornerRadius != nil {
		radius = *fc.CornerRadius
	}
	if radius < 0 {
		return invalid("corner_radius 不能为负：%g", radius)
	}

	if len(fc.Cards) == 0 {
		return invalid("cards 不能为空")
	}
	cards := make([]CardSpec, 0, len(fc.Cards))
	for i, c := range fc.Cards {
		if strings.TrimSpace(c.Front) == "" {
			return invalid("cards[%d] 缺少 front", i)
		}
		id := strings.TrimSpace(c.ID)
		if id == "" {
			id = c.Front
		}
		count := c.Count
		if count == 0 {
			count = 1
		}
		if count < 0 {
			return invalid("cards[%d].count 不能为负：%d", i, count)
		}
		spec := CardSpec{ID: id, Count: count, Front: c.Front, FrontBleed: bleed, Back: c.Back, BackBleed: bleed}
		if c.FrontBleed != nil {
			if *c.FrontBleed < 0 {
				return invalid("cards[%d].front_bleed 不能为负", i)
			}
			spec.FrontBleed, spec.FrontBleedSet = *c.FrontBleed, true
		}
		if c.BackBleed != nil {
			if *c.BackBleed < 0 {
				return invalid("cards[%d].back_bleed 不能为负", i)
			}
			spec.BackBleed, spec.BackBleedSet = *c.BackBleed, true
		}
		cards = append(cards, spec)
	}

	skip := append([]int(nil), fc.SkipSlots...)
	for _, s := range skip {
		if s < 0 || s >= layout.SlotsPerPage {
			return invalid("skip_slots 含越界槽位 %d（范围 0..%d）", s, layout.SlotsPerPage-1)
		}
	}
	if len(skip) >= layout.SlotsPerPage {
		return invalid("skip_slots 不能占满整页")
	}

	// backs：CLI > config > 默认 false
	backs := false
	if cli.BacksSet {
		backs = cli.Backs
	} else if fc.Backs != nil {
		backs = *fc.Backs
	}

	if fc.Proxy == nil || strings.TrimSpace(fc.Proxy.URL) == "" {
		return invalid("缺少 proxy.url（卡图均经图片代理获取）")
	}
	endpoint := httpx.Endpoint(strings.TrimSpace(fc.Proxy.URL))
	if err := endpoint.Validate(); err != nil {
		return invalid("proxy.url 无效：%w", err)
	}
	concurrency := fetch.DefaultConcurrency
	if fc.Proxy.Concurrency != 0 {
		concurrency = fc.Proxy.Concurrency
	}
	// 文档约定：范围建议 [1, 32]；超出截断。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 32 {
		concurrency = 32
	}

	// out_dir：CLI > config > cwd
	outDir := cwdAbs
	if cli.OutDirSet && strings.TrimSpace(cli.OutDir) != "" {
		outDir = absCleanFrom(cwdAbs, cli.OutDir)
	} else if strings.TrimSpace(fc.OutDir) != "" {
		outDir = absCleanFrom(cwdAbs, fc.OutDir)
	}

	// workers：CLI > config > 默认
	workers := planner.DefaultMaxWorkers
	if cli.WorkersSet {
		workers = cli.Workers
	} else if fc.Workers != 0 {
		workers = fc.Workers
	}
	if workers < 1 {
		workers = 1
	}
	if workers > 16 {
		workers = 16
	}

	return EffectiveConfig{
		Page:         page,
		Cards:        cards,
		CardWidth:    cardW,
		CardHeight:   cardH,
		Bleed:        bleed,
		OutputBleed:  outputBleed,
		CornerRadius: radius,
		Backs:        backs,
		DefaultBack:  strings.TrimSpace(fc.DefaultBack),
		SkipSlots:    skip,
		Proxy:        endpoint,
		Concurrency:  concurrency,
		OutDir:       outDir,
		Workers:      workers,
	}, nil
}

// resolvePage 把 preset / 显式尺寸规范化为 PageSettings（显式尺寸优先）。
func resolvePage(pc *PageConfig) (domain.PageSettings, error) {
	page := domain.PageSettings{Width: 210, Height: 297, Margin: DefaultMargin} // 默认 A4
	if pc == nil {
		return page, nil
	}
	switch strings.ToLower(strings.TrimSpace(pc.Preset)) {
	case "", "a4":
		// 保持默认
	case "letter":
		page.Width, page.Height = 215.9, 279.4
	default:
		return domain.PageSettings{}, fmt.Errorf("page.preset 只能是 a4 或 letter，实际是 %q", pc.Preset)
	}
	if pc.Width != 0 || pc.Height != 0 {
		if pc.Width <= 0 || pc.Height <= 0 {
			return domain.PageSettings{}, fmt.Errorf("页面尺寸必须为正：%g×%g", pc.Width, pc.Height)
		}
		page.Width, page.Height = pc.Width, pc.Height
	}
	if pc.Margin < 0 {
		return domain.PageSettings{}, fmt.Errorf("page.margin 不能为负：%g", pc.Margin)
	}
	if pc.Margin > 0 {
		page.Margin = pc.Margin
	}
	return page, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 项目文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
