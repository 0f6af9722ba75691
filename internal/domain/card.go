package domain

// Image 是一张已就位的图片（解码前的原始字节）。
//
// 约束：
// - Name 同时充当稳定身份：参与缓存键计算，也用于 PDF 内部的图片注册名
// - Data 一旦交给渲染 worker 即视为该 worker 独占（不允许共享可变内存）
type Image struct {
	Name string
	Data []byte
}

// Card 是牌组中的一张卡。牌组切片中的 nil 条目表示"有意留空"的槽位。
type Card struct {
	ID string

	Front            *Image
	FrontBleed       float64 // mm
	FrontBleedCustom bool

	Back            *Image
	BackBleed       float64 // mm
	BackBleedCustom bool
}

// PageSettings 以毫米描述纸张。渲染时始终横置（宽高内部互换）。
type PageSettings struct {
	Width  float64
	Height float64
	Margin float64
}

// Landscape 返回横置后的（宽, 高）。
func (p PageSettings) Landscape() (w, h float64) {
	if p.Width >= p.Height {
		return p.Width, p.Height
	}
	return p.Height, p.Width
}

// GlobalOptions 是一次生成请求的全局参数（对所有卡生效）。
type GlobalOptions struct {
	CardWidth   float64 // mm
	CardHeight  float64 // mm
	OutputBleed float64 // mm，输出文档/切割文件中保留的容差出血

	EnableBacks bool
	DefaultBack *Image

	// SkipSlots 中的槽位（0..7）在每一页都保持空白。
	SkipSlots map[int]struct{}

	// CornerRadius 是切割圆角半径（mm）；0 表示直角。
	// 默认值对应常见卡牌纸品的物理圆角（见 config.DefaultCornerRadius）。
	CornerRadius float64
}

// SlotSkipped 判断槽位是否在跳过集合内。
func (o GlobalOptions) SlotSkipped(slot int) bool {
	_, ok := o.SkipSlots[slot]
	return ok
}
