// Package render 把一个卡片分片渲染成一份多页横置 PDF。
//
// 每张正面页后可紧跟一张背面页（槽位列镜像，行不变）。渲染是并行工作单元：
// 输入输出均为独占字节，不与其他 worker 共享可变内存。
package render

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"cardpress/internal/domain"
	"cardpress/internal/infra/imgx"
	"cardpress/internal/layout"
)

// Progress 是进度检查点回调：0..100，表示分片内已处理卡片的百分比。
// 允许为 nil。回调在 worker goroutine 内触发，接收方自行保证并发安全。
type Progress func(pct float64)

// 对位标记的固定尺寸（mm）：原点实心方块 + 两个 L 形角标。
const (
	regMarkSquare = 5.0
	regMarkArm    = 20.0
	regMarkStroke = 0.5
)

// Chunk 渲染一个分片。cards 中 nil 表示有意留空的槽位。
//
// 取消是协作式的：每页开始前检查 ctx，命中后以 cancelled 终态返回，
// 不保证页中途打断。
func Chunk(ctx context.Context, chunkIndex int, cards []*domain.Card, page domain.PageSettings, opts domain.GlobalOptions, progress Progress) (domain.RenderResult, error) {
	pageW, pageH := page.Landscape()
	grid := layout.ForPage(pageW, pageH, opts.CardWidth, opts.CardHeight, opts.OutputBleed)
	if !grid.Fits() {
		return domain.RenderResult{}, domain.Errorf(domain.ErrCodeInvalidGeometry,
			"卡面放不进页面：卡 %.1f×%.1f + 出血 %.1f，页 %.1f×%.1f",
			opts.CardWidth, opts.CardHeight, opts.OutputBleed, pageW, pageH)
	}

	// 跳过集合之外的可用槽位决定每页实际容量。
	available := make([]layout.Slot, 0, layout.SlotsPerPage)
	for i := 0; i < layout.SlotsPerPage; i++ {
		if opts.SlotSkipped(i) {
			continue
		}
		s, err := layout.SlotAt(i)
		if err != nil {
			return domain.RenderResult{}, err
		}
		available = append(available, s)
	}
	if len(available) == 0 {
		return domain.RenderResult{}, domain.Errorf(domain.ErrCodeInvalidGeometry, "所有槽位都被跳过")
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "mm",
		Size:    gofpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	pdf.SetAutoPageBreak(false, 0)

	perPage := len(available)
	total := len(cards)
	processed := 0
	pages := 0

	for start := 0; start < total; start += perPage {
		if err := ctx.Err(); err != nil {
			return domain.RenderResult{}, domain.E(domain.ErrCodeCancelled, err)
		}

		end := start + perPage
		if end > total {
			end = total
		}
		pageCards := cards[start:end]

		// 正面页。
		pdf.AddPage()
		pages++
		drawRegistrationMarks(pdf, pageW, pageH, page.Margin)

		for j, card := range pageCards {
			if card != nil && card.Front != nil {
				placeCard(pdf, grid, available[j], opts,
					card.Front, card.FrontBleed, fmt.Sprintf("c%d-%d-f", chunkIndex, start+j))
			}
			processed++
			if progress != nil {
				progress(float64(processed) / float64(total) * 100)
			}
		}

		if !opts.EnableBacks {
			continue
		}

		// 背面页：同一批卡，槽位列镜像；没有自有背面时回退到全局默认背面，
		// 两者都没有就留空（切割路径依然由 DXF 侧保证）。
		if err := ctx.Err(); err != nil {
			return domain.RenderResult{}, domain.E(domain.ErrCodeCancelled, err)
		}
		pdf.AddPage()
		pages++
		drawRegistrationMarks(pdf, pageW, pageH, page.Margin)

		for j, card := range pageCards {
			if card == nil {
				continue
			}
			back := card.Back
			if back == nil {
				back = opts.DefaultBack
			}
			if back == nil {
				continue
			}
			placeCard(pdf, grid, available[j].Mirror(), opts,
				back, card.BackBleed, fmt.Sprintf("c%d-%d-b", chunkIndex, start+j))
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return domain.RenderResult{}, err
	}
	return domain.RenderResult{
		ChunkIndex: chunkIndex,
		Document:   buf.Bytes(),
		Pages:      pages,
	}, nil
}

// placeCard 在槽位单元格内居中放置裁切后的卡图。
// 单卡级别的解码/几何失败就地降级：画占位矩形，不让整个分片失败。
func placeCard(pdf *gofpdf.Fpdf, grid layout.Grid, slot layout.Slot, opts domain.GlobalOptions, img *domain.Image, bleed float64, regName string) {
	cell := grid.CellRect(slot)

	cropped, err := imgx.CropBleed(img.Data, bleed, opts.CardWidth, opts.CardHeight, opts.OutputBleed, false)
	if err != nil {
		drawPlaceholder(pdf, grid, slot, opts)
		return
	}

	// 必须使用裁切方返回的真实 mm 尺寸，自行重算会因像素取整产生累计漂移。
	rect := layout.CardRect(cell.X, cell.Y, cell.W, cell.H, cropped.WidthMM, cropped.HeightMM)

	imgType := pdfImageType(cropped.Data)
	pdf.RegisterImageOptionsReader(regName,
		gofpdf.ImageOptions{ImageType: imgType}, bytes.NewReader(cropped.Data))
	pdf.ImageOptions(regName, rect.X, rect.Y, rect.W, rect.H, false,
		gofpdf.ImageOptions{ImageType: imgType}, 0, "")
}

// drawPlaceholder 画出一块浅灰占位：卡面仍可被切出来，只是内容缺失可见。
func drawPlaceholder(pdf *gofpdf.Fpdf, grid layout.Grid, slot layout.Slot, opts domain.GlobalOptions) {
	cell := grid.CellRect(slot)
	rect := layout.CardRect(cell.X, cell.Y, cell.W, cell.H,
		opts.CardWidth+2*opts.OutputBleed, opts.CardHeight+2*opts.OutputBleed)
	pdf.SetFillColor(204, 204, 204)
	pdf.Rect(rect.X, rect.Y, rect.W, rect.H, "F")
}

// drawRegistrationMarks 在每页画一次对位标记背景：
// 左上实心方块 + 右上、左下 L 形角标（三点对位，供切割机定位）。
func drawRegistrationMarks(pdf *gofpdf.Fpdf, pageW, pageH, margin float64) {
	inset := margin
	if inset <= 0 {
		inset = regMarkSquare
	}

	pdf.SetFillColor(0, 0, 0)
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(regMarkStroke)

	// 原点方块。
	pdf.Rect(inset, inset, regMarkSquare, regMarkSquare, "F")

	// 右上 L。
	pdf.Line(pageW-inset-regMarkArm, inset, pageW-inset, inset)
	pdf.Line(pageW-inset, inset, pageW-inset, inset+regMarkArm)

	// 左下 L。
	pdf.Line(inset, pageH-inset-regMarkArm, inset, pageH-inset)
	pdf.Line(inset, pageH-inset, inset+regMarkArm, pageH-inset)
}

// pdfImageType 把嗅探结果映射为文档编码器的图片类型标签。
func pdfImageType(data []byte) string {
	switch imgx.SniffMIME(data) {
	case imgx.MIMEPNG:
		return "PNG"
	case imgx.MIMEGIF:
		return "GIF"
	default:
		return "JPG"
	}
}
