// Package layout 提供 4×2 网格的纯几何计算（单位 mm，无任何 I/O）。
package layout

import "fmt"

const (
	// Columns / Rows 固定为 4×2：每页 8 个槽位。
	Columns = 4
	Rows    = 2

	// SlotsPerPage 是每页槽位数。
	SlotsPerPage = Columns * Rows
)

// Grid 描述网格在页面上的位置：左上角原点 + 单元格尺寸 + 列/行间距。
type Grid struct {
	OriginX float64
	OriginY float64
	CellW   float64
	CellH   float64
	Gap     float64
}

// Slot 是槽位坐标：列 0..3，行 0..1。
type Slot struct {
	Col int
	Row int
}

// Rect 是轴对齐矩形（左上角 + 宽高）。
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// NewGrid 计算在 pageW×pageH 页面上居中的网格。
// 网格总宽 = cellW*4 + gap*3（行方向同理），原点 = (页面尺寸 − 网格尺寸) / 2。
func NewGrid(pageW, pageH, cellW, cellH, gap float64) Grid {
	gridW := cellW*Columns + gap*(Columns-1)
	gridH := cellH*Rows + gap*(Rows-1)
	return Grid{
		OriginX: (pageW - gridW) / 2,
		OriginY: (pageH - gridH) / 2,
		CellW:   cellW,
		CellH:   cellH,
		Gap:     gap,
	}
}

// ForPage 是常用封装：单元格 = 卡面 + 两侧输出出血，间距为 0
// （出血已折进单元格，相邻两卡之间自然隔开 2×outputBleed）。
func ForPage(pageW, pageH, cardW, cardH, outputBleed float64) Grid {
	return NewGrid(pageW, pageH, cardW+2*outputBleed, cardH+2*outputBleed, 0)
}

// Fits 判断网格是否完整落在页面内（原点为负说明卡比页大）。
func (g Grid) Fits() bool {
	return g.OriginX >= 0 && g.OriginY >= 0
}

// CellOrigin 返回槽位所在单元格的左上角坐标。
func (g Grid) CellOrigin(s Slot) (x, y float64) {
	x = g.OriginX + float64(s.Col)*(g.CellW+g.Gap)
	y = g.OriginY + float64(s.Row)*(g.CellH+g.Gap)
	return x, y
}

// CellRect 返回槽位单元格矩形。
func (g Grid) CellRect(s Slot) Rect {
	x, y := g.CellOrigin(s)
	return Rect{X: x, Y: y, W: g.CellW, H: g.CellH}
}

// SlotAt 把槽位下标（0..7）映射为 (col, row)：col = index % 4，row = index / 4。
// 映射是全函数且确定的；越界下标按防御性约定报错。
func SlotAt(index int) (Slot, error) {
	if index < 0 || index >= SlotsPerPage {
		return Slot{}, fmt.Errorf("槽位下标越界：%d（允许 0..%d）", index, SlotsPerPage-1)
	}
	return Slot{Col: index % Columns, Row: index / Columns}, nil
}

// MirrorCol 返回双面对齐用的镜像列：3 − col。自反（两次镜像回到原列）。
func MirrorCol(col int) int { return Columns - 1 - col }

// Mirror 返回槽位的镜像位置（行不变，列镜像）。背面页用它对位。
func (s Slot) Mirror() Slot { return Slot{Col: MirrorCol(s.Col), Row: s.Row} }

// CardRect 把 cardW×cardH 的卡面居中放进单元格：
// x = cellX + (cellW − cardW)/2（y 同理）。
func CardRect(cellX, cellY, cellW, cellH, cardW, cardH float64) Rect {
	return Rect{
		X: cellX + (cellW-cardW)/2,
		Y: cellY + (cellH-cardH)/2,
		W: cardW,
		H: cardH,
	}
}
