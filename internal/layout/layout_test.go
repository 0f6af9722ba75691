package layout

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewGrid_CenteredOnPage(t *testing.T) {
	// A4 横置：297×210；单元格 = 63×88 + 两侧 1mm 出血。
	g := ForPage(297, 210, 63, 88, 1)

	gridW := g.CellW * Columns
	gridH := g.CellH * Rows

	// 网格质心 == 页面质心。
	cx := g.OriginX + gridW/2
	cy := g.OriginY + gridH/2
	if !almostEqual(cx, 297.0/2) || !almostEqual(cy, 210.0/2) {
		t.Fatalf("网格未居中：质心 (%v, %v)", cx, cy)
	}
}

func TestNewGrid_GapEntersTotalSize(t *testing.T) {
	g := NewGrid(300, 200, 60, 80, 2)
	// 总宽 60*4 + 2*3 = 246；原点 (300-246)/2 = 27。
	if !almostEqual(g.OriginX, 27) {
		t.Fatalf("OriginX 期望 27，实际 %v", g.OriginX)
	}
	// 总高 80*2 + 2 = 162；原点 (200-162)/2 = 19。
	if !almostEqual(g.OriginY, 19) {
		t.Fatalf("OriginY 期望 19，实际 %v", g.OriginY)
	}
}

func TestSlotAt_Mapping(t *testing.T) {
	want := []Slot{
		{0, 0}, {1, 0}, {2, 0}, {3, 0},
		{0, 1}, {1, 1}, {2, 1}, {3, 1},
	}
	for i, w := range want {
		s, err := SlotAt(i)
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		if s != w {
			t.Fatalf("槽位 %d：期望 %+v，实际 %+v", i, w, s)
		}
	}
}

func TestSlotAt_OutOfRange(t *testing.T) {
	for _, i := range []int{-1, 8, 100} {
		if _, err := SlotAt(i); err == nil {
			t.Fatalf("下标 %d 期望报错，实际 nil", i)
		}
	}
}

func TestMirrorCol_SelfInverse(t *testing.T) {
	for c := 0; c < Columns; c++ {
		if MirrorCol(MirrorCol(c)) != c {
			t.Fatalf("镜像两次应回到原列：col=%d", c)
		}
	}
	if MirrorCol(0) != 3 || MirrorCol(1) != 2 {
		t.Fatalf("镜像列错误：%d %d", MirrorCol(0), MirrorCol(1))
	}
}

func TestCardRect_CenteredInCell(t *testing.T) {
	r := CardRect(10, 20, 65, 90, 63, 88)
	if !almostEqual(r.X, 11) || !almostEqual(r.Y, 21) {
		t.Fatalf("卡面未在单元格内居中：%+v", r)
	}
	if !almostEqual(r.W, 63) || !almostEqual(r.H, 88) {
		t.Fatalf("卡面尺寸不应改变：%+v", r)
	}
}

func TestEightSlots_DistinctAndTiling(t *testing.T) {
	g := ForPage(297, 210, 63, 88, 0)

	seen := map[Rect]bool{}
	for i := 0; i < SlotsPerPage; i++ {
		s, err := SlotAt(i)
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		r := g.CellRect(s)
		if seen[r] {
			t.Fatalf("槽位矩形重复：%+v", r)
		}
		seen[r] = true
	}
	if len(seen) != SlotsPerPage {
		t.Fatalf("期望 8 个互不相同的矩形，实际 %d", len(seen))
	}

	// 相邻槽位无缝平铺（gap=0）。
	s0, _ := SlotAt(0)
	s1, _ := SlotAt(1)
	r0 := g.CellRect(s0)
	r1 := g.CellRect(s1)
	if !almostEqual(r0.X+r0.W, r1.X) {
		t.Fatalf("列方向未平铺：%v vs %v", r0.X+r0.W, r1.X)
	}
	s4, _ := SlotAt(4)
	r4 := g.CellRect(s4)
	if !almostEqual(r0.Y+r0.H, r4.Y) {
		t.Fatalf("行方向未平铺：%v vs %v", r0.Y+r0.H, r4.Y)
	}
}

func TestGrid_FitsDetectsOversizedCard(t *testing.T) {
	g := ForPage(297, 210, 300, 88, 0)
	if g.Fits() {
		t.Fatalf("卡比页宽还大时 Fits 应为 false：%+v", g)
	}
}
