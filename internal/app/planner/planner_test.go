package planner

import "testing"

func lengths(chunks []Chunk) []int {
	out := make([]int, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Len())
	}
	return out
}

func TestPlan_NineCardsTwoWorkers(t *testing.T) {
	// 9 张卡、MAX_WORKERS=4 → totalPages=2，workers=2，长度 [8, 1]。
	chunks := Plan(9, 4)
	if len(chunks) != 2 {
		t.Fatalf("期望 2 个分片，实际 %d", len(chunks))
	}
	got := lengths(chunks)
	if got[0] != 8 || got[1] != 1 {
		t.Fatalf("期望长度 [8 1]，实际 %v", got)
	}
}

func TestPlan_Table(t *testing.T) {
	cases := []struct {
		name       string
		cards      int
		maxWorkers int
		wantLens   []int
	}{
		{"空输入", 0, 4, nil},
		{"单页", 8, 4, []int{8}},
		{"不满一页", 3, 4, []int{3}},
		{"两整页两worker", 16, 4, []int{8, 8}},
		{"页数超过worker数", 40, 2, []int{24, 16}},
		{"余数页归最靠前", 24, 2, []int{16, 8}},
		{"worker上限为一", 32, 1, []int{32}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := lengths(Plan(c.cards, c.maxWorkers))
			if len(got) != len(c.wantLens) {
				t.Fatalf("分片数不一致：期望 %v，实际 %v", c.wantLens, got)
			}
			for i := range got {
				if got[i] != c.wantLens[i] {
					t.Fatalf("期望 %v，实际 %v", c.wantLens, got)
				}
			}
		})
	}
}

func TestPlan_Invariants(t *testing.T) {
	for n := 1; n <= 200; n++ {
		for _, mw := range []int{1, 2, 4, 8} {
			chunks := Plan(n, mw)

			sum := 0
			prevEnd := 0
			for i, c := range chunks {
				if c.Index != i {
					t.Fatalf("n=%d mw=%d：分片下标乱序：%+v", n, mw, chunks)
				}
				if c.Start != prevEnd {
					t.Fatalf("n=%d mw=%d：分片不连续：%+v", n, mw, chunks)
				}
				prevEnd = c.End
				sum += c.Len()

				// 除最后一个外，每个分片必须是整页（8 的倍数）。
				if i < len(chunks)-1 && c.Len()%CardsPerPage != 0 {
					t.Fatalf("n=%d mw=%d：非末分片长度 %d 不是 8 的倍数", n, mw, c.Len())
				}
				if c.Len() <= 0 {
					t.Fatalf("n=%d mw=%d：出现空分片：%+v", n, mw, chunks)
				}
			}
			if sum != n {
				t.Fatalf("n=%d mw=%d：分片长度和 %d != %d", n, mw, sum, n)
			}

			want := TotalPages(n)
			if want < len(chunks) {
				t.Fatalf("n=%d mw=%d：worker 数 %d 超过页数 %d", n, mw, len(chunks), want)
			}
			if len(chunks) > mw {
				t.Fatalf("n=%d mw=%d：worker 数 %d 超上限", n, mw, len(chunks))
			}
		}
	}
}
