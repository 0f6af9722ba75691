package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"cardpress/internal/app/generate"
	"cardpress/internal/config"
	"cardpress/internal/domain"
	"cardpress/internal/infra/fetch"
	"cardpress/internal/infra/fsx"
	"cardpress/internal/infra/httpx"
)

const (
	documentName = "deck.pdf"
	cutFileName  = "deck.dxf"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "generate":
		if code := generateCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func generateCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printGenerateUsage()
			return 0
		}
	}

	ga, err := parseGenerateArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printGenerateUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:       ga.Path,
		OutDir:     ga.OutDir,
		OutDirSet:  ga.OutDirSet,
		Workers:    ga.Workers,
		WorkersSet: ga.WorkersSet,
		Backs:      ga.Backs,
		BacksSet:   ga.BacksSet,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	// Ctrl-C 走协作式取消：在途请求以 cancelled 终态收场，不落盘半成品。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progressW, interactive := pickProgressWriter()
	var ui *progressUI
	if interactive {
		ui = newProgressUI(progressW)
		ui.printHeader(eff)
	}

	images, code := fetchImages(ctx, eff, ui)
	if code != 0 {
		return code
	}

	cards, opts := buildDeck(eff, images)

	gen := generate.New()
	gen.MaxWorkers = eff.Workers
	if ui != nil {
		gen.Observer = ui
	}
	defer gen.Dispose()

	req := gen.Generate(cards, eff.Page, opts)
	out, err := req.Wait(ctx)
	if err != nil {
		if domain.IsCancelled(err) {
			fmt.Fprintln(os.Stderr, "已取消")
			return 1
		}
		fmt.Fprintf(os.Stderr, "生成失败：%v\n", err)
		return 1
	}

	if err := fsx.WriteFileAtomic(eff.OutDir, documentName, out.Document); err != nil {
		fmt.Fprintf(os.Stderr, "写入 %s 失败：%v\n", documentName, err)
		return 1
	}
	if err := fsx.WriteFileAtomic(eff.OutDir, cutFileName, out.CutFile); err != nil {
		fmt.Fprintf(os.Stderr, "写入 %s 失败：%v\n", cutFileName, err)
		return 1
	}

	if ui != nil {
		ui.printLocations(eff.OutDir, documentName, cutFileName, out.Pages)
	} else {
		fmt.Fprintf(os.Stderr, "完成：pages=%d out=%s\n", out.Pages, eff.OutDir)
	}
	return 0
}

// fetchImages 经图片代理批量取回牌组引用到的全部远端图片（去重后）。
func fetchImages(ctx context.Context, eff config.EffectiveConfig, ui *progressUI) (map[string]*domain.Image, int) {
	refs := collectImageRefs(eff)
	if len(refs) == 0 {
		return map[string]*domain.Image{}, 0
	}

	items := make([]fetch.Item, len(refs))
	for i, ref := range refs {
		items[i] = fetch.Item{ID: ref, Filename: ref}
	}

	b := fetch.Batch{
		Client:      httpx.NewImageClient(),
		Endpoint:    eff.Proxy,
		Concurrency: eff.Concurrency,
		Stagger:     fetch.DefaultStagger,
	}

	var onItem fetch.OnItem
	if ui != nil {
		ui.fetchStart(len(items))
		onItem = func(res fetch.Result) { ui.fetchOne(res.ID) }
	}

	results, err := b.Do(ctx, items, onItem)
	if err != nil {
		if domain.IsCancelled(err) {
			fmt.Fprintln(os.Stderr, "已取消")
			return nil, 1
		}
		fmt.Fprintf(os.Stderr, "下载卡图失败：%v\n", err)
		return nil, 1
	}

	images := make(map[string]*domain.Image, len(results))
	for _, r := range results {
		images[r.ID] = &domain.Image{Name: r.ID, Data: r.Data}
	}
	return images, 0
}

// collectImageRefs 收集去重后的远端图片 id，保持首次出现的顺序。
func collectImageRefs(eff config.EffectiveConfig) []string {
	seen := map[string]struct{}{}
	var refs []string
	add := func(ref string) {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return
		}
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	for _, c := range eff.Cards {
		add(c.Front)
		if eff.Backs {
			add(c.Back)
		}
	}
	if eff.Backs {
		add(eff.DefaultBack)
	}
	return refs
}

// buildDeck 把配置里的卡描述展开成牌组（count 展开、出血落位、图片装配）。
func buildDeck(eff config.EffectiveConfig, images map[string]*domain.Image) ([]*domain.Card, domain.GlobalOptions) {
	var cards []*domain.Card
	for _, spec := range eff.Cards {
		card := &domain.Card{
			ID:               spec.ID,
			Front:            images[spec.Front],
			FrontBleed:       spec.FrontBleed,
			FrontBleedCustom: spec.FrontBleedSet,
			BackBleed:        spec.BackBleed,
			BackBleedCustom:  spec.BackBleedSet,
		}
		if eff.Backs && spec.Back != "" {
			card.Back = images[spec.Back]
		}
		for i := 0; i < spec.Count; i++ {
			c := *card
			cards = append(cards, &c)
		}
	}

	skip := make(map[int]struct{}, len(eff.SkipSlots))
	for _, s := range eff.SkipSlots {
		skip[s] = struct{}{}
	}

	opts := domain.GlobalOptions{
		CardWidth:    eff.CardWidth,
		CardHeight:   eff.CardHeight,
		OutputBleed:  eff.OutputBleed,
		EnableBacks:  eff.Backs,
		SkipSlots:    skip,
		CornerRadius: eff.CornerRadius,
	}
	if eff.Backs {
		opts.DefaultBack = images[eff.DefaultBack]
	}
	return cards, opts
}

type generateArgs struct {
	Path string

	OutDir    string
	OutDirSet bool

	Workers    int
	WorkersSet bool

	Backs    bool
	BacksSet bool
}

func parseGenerateArgs(args []string) (generateArgs, error) {
	ga := generateArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--out":
			if i+1 >= len(args) {
				return generateArgs{}, fmt.Errorf("--out 需要一个值")
			}
			i++
			ga.OutDir = args[i]
			ga.OutDirSet = true
		case strings.HasPrefix(a, "--out="):
			ga.OutDir = strings.TrimPrefix(a, "--out=")
			ga.OutDirSet = true
		case a == "--workers":
			if i+1 >= len(args) {
				return generateArgs{}, fmt.Errorf("--workers 需要一个值")
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil || n < 1 {
				return generateArgs{}, fmt.Errorf("--workers 必须是正整数，实际是 %q", args[i])
			}
			ga.Workers = n
			ga.WorkersSet = true
		case strings.HasPrefix(a, "--workers="):
			v := strings.TrimPrefix(a, "--workers=")
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return generateArgs{}, fmt.Errorf("--workers 必须是正整数，实际是 %q", v)
			}
			ga.Workers = n
			ga.WorkersSet = true
		case a == "--backs":
			ga.Backs = true
			ga.BacksSet = true
		case strings.HasPrefix(a, "--backs="):
			v := strings.TrimPrefix(a, "--backs=")
			switch v {
			case "true":
				ga.Backs = true
			case "false":
				ga.Backs = false
			default:
				return generateArgs{}, fmt.Errorf("--backs 只能是 true 或 false，实际是 %q", v)
			}
			ga.BacksSet = true
		case strings.HasPrefix(a, "-"):
			return generateArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ga.Path != "" {
				return generateArgs{}, fmt.Errorf("重复的 path：%q 与 %q", ga.Path, a)
			}
			ga.Path = a
		}
	}

	return ga, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  cardpress generate [path] [--out dir] [--workers N] [--backs[=true|false]]

命令：
  generate    从项目文件生成打印文档（deck.pdf）与切割文件（deck.dxf）

使用 "cardpress generate --help" 查看详细说明。
`)
}

func printGenerateUsage() {
	fmt.Fprint(os.Stdout, `用法：
  cardpress generate [path] [--out dir] [--workers N] [--backs[=true|false]]

参数：
  path        项目文件（cardpress.json）或所在目录；未指定则读 <cwd>/cardpress.json
  --out       产物输出目录（默认取配置 out_dir，再默认 cwd）
  --workers   并行渲染 worker 上限（默认取配置，再默认 4）
  --backs     渲染卡背页；支持 --backs=false 覆盖配置中的 backs=true
  -h, --help  显示帮助
`)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
