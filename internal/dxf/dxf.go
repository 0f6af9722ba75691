// Package dxf 生成切割机用的矢量切割文件（ASCII DXF，组码/值成对）。
//
// 只支持两类实体：封闭 4 顶点折线（直角矩形）与 4 线段 + 4 圆弧（圆角矩形）。
// 页面边界矩形永远最先写入。坐标系按 DXF 约定 y 轴向上（页面坐标在写入前翻转）。
package dxf

import (
	"bytes"
	"fmt"

	"cardpress/internal/domain"
	"cardpress/internal/layout"
)

// Generate 对整页槽位布局计算一次切割几何（与分片/正反面内容无关）。
//
// 每个不在跳过集合中的槽位产出一个矩形实体：卡面矩形向外扩一圈输出出血，
// 也就是槽位单元格本身。圆角半径取 opts.CornerRadius；0 表示直角。
func Generate(page domain.PageSettings, opts domain.GlobalOptions) []byte {
	pageW, pageH := page.Landscape()
	grid := layout.ForPage(pageW, pageH, opts.CardWidth, opts.CardHeight, opts.OutputBleed)

	w := newWriter()
	w.header()
	w.beginEntities()

	// 页面边界：直角矩形，最先写入。
	w.sharpRect(0, 0, pageW, pageH)

	for i := 0; i < layout.SlotsPerPage; i++ {
		if opts.SlotSkipped(i) {
			continue
		}
		s, err := layout.SlotAt(i)
		if err != nil {
			continue
		}
		r := grid.CellRect(s)

		// 页面坐标 y 向下，DXF y 向上：翻转后矩形仍是矩形。
		x := r.X
		y := pageH - r.Y - r.H

		radius := opts.CornerRadius
		if limit := min(r.W, r.H) / 2; radius > limit {
			radius = limit
		}
		if radius <= 0 {
			w.sharpRect(x, y, r.W, r.H)
		} else {
			w.roundedRect(x, y, r.W, r.H, radius)
		}
	}

	w.endEntities()
	w.eof()
	return w.bytes()
}

type writer struct {
	buf bytes.Buffer
}

func newWriter() *writer { return &writer{} }

func (w *writer) pair(code int, val string) {
	fmt.Fprintf(&w.buf, "%d\n%s\n", code, val)
}

func (w *writer) num(code int, v float64) {
	fmt.Fprintf(&w.buf, "%d\n%.3f\n", code, v)
}

// header 写入版本与绘图单位（mm）。
func (w *writer) header() {
	w.pair(0, "SECTION")
	w.pair(2, "HEADER")
	w.pair(9, "$ACADVER")
	w.pair(1, "AC1009")
	w.pair(9, "$INSUNITS")
	w.pair(70, "4") // 4 = 毫米
	w.pair(0, "ENDSEC")
}

func (w *writer) beginEntities() {
	w.pair(0, "SECTION")
	w.pair(2, "ENTITIES")
}

func (w *writer) endEntities() {
	w.pair(0, "ENDSEC")
}

func (w *writer) eof() {
	w.pair(0, "EOF")
}

// sharpRect 写入封闭 4 顶点折线（左下角 + 宽高，y 向上）。
func (w *writer) sharpRect(x, y, width, height float64) {
	w.pair(0, "POLYLINE")
	w.pair(8, "0")
	w.pair(66, "1")
	w.pair(70, "1") // 封闭
	for _, p := range [][2]float64{
		{x, y},
		{x + width, y},
		{x + width, y + height},
		{x, y + height},
	} {
		w.pair(0, "VERTEX")
		w.pair(8, "0")
		w.num(10, p[0])
		w.num(20, p[1])
	}
	w.pair(0, "SEQEND")
}

// roundedRect 写入 4 条直边 + 4 个 90° 圆角弧。
// 弧端点 = 矩形角点沿两个轴各向内缩进 radius。
func (w *writer) roundedRect(x, y, width, height, radius float64) {
	r := radius

	// 直边：下、右、上、左。
	w.line(x+r, y, x+width-r, y)
	w.line(x+width, y+r, x+width, y+height-r)
	w.line(x+width-r, y+height, x+r, y+height)
	w.line(x, y+height-r, x, y+r)

	// 圆角：右下、右上、左上、左下（角度逆时针，单位度）。
	w.arc(x+width-r, y+r, r, 270, 360)
	w.arc(x+width-r, y+height-r, r, 0, 90)
	w.arc(x+r, y+height-r, r, 90, 180)
	w.arc(x+r, y+r, r, 180, 270)
}

func (w *writer) line(x1, y1, x2, y2 float64) {
	w.pair(0, "LINE")
	w.pair(8, "0")
	w.num(10, x1)
	w.num(20, y1)
	w.num(11, x2)
	w.num(21, y2)
}

func (w *writer) arc(cx, cy, r, startDeg, endDeg float64) {
	w.pair(0, "ARC")
	w.pair(8, "0")
	w.num(10, cx)
	w.num(20, cy)
	w.num(40, r)
	w.num(50, startDeg)
	w.num(51, endDeg)
}

func (w *writer) bytes() []byte { return w.buf.Bytes() }
