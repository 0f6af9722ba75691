package cache

import (
	"testing"

	"cardpress/internal/domain"
)

func fixtures() ([]*domain.Card, domain.PageSettings, domain.GlobalOptions) {
	cards := []*domain.Card{
		{ID: "a", FrontBleed: 3, BackBleed: 3},
		nil,
		{ID: "b", FrontBleed: 3, BackBleed: 3, Back: &domain.Image{Name: "b-back"}},
	}
	page := domain.PageSettings{Width: 210, Height: 297, Margin: 10}
	opts := domain.GlobalOptions{
		CardWidth: 63, CardHeight: 88, OutputBleed: 1, CornerRadius: 2.5,
		SkipSlots: map[int]struct{}{2: {}},
	}
	return cards, page, opts
}

func TestKey_Deterministic(t *testing.T) {
	cards, page, opts := fixtures()
	if Key(cards, page, opts) != Key(cards, page, opts) {
		t.Fatalf("相同输入必须得到相同键")
	}
}

func TestKey_SensitiveToEachHashedInput(t *testing.T) {
	cards, page, opts := fixtures()
	base := Key(cards, page, opts)

	// 单卡出血变化。
	cards[0].FrontBleed = 2.5
	if Key(cards, page, opts) == base {
		t.Fatalf("卡出血变化后键应失配")
	}
	cards[0].FrontBleed = 3

	// 背面有无。
	cards[2].Back = nil
	if Key(cards, page, opts) == base {
		t.Fatalf("背面有无变化后键应失配")
	}
	cards[2].Back = &domain.Image{Name: "b-back"}

	// 页面尺寸。
	page.Width = 215.9
	if Key(cards, page, opts) == base {
		t.Fatalf("页面变化后键应失配")
	}
	page.Width = 210

	// 卡面尺寸。
	opts.CardWidth = 57
	if Key(cards, page, opts) == base {
		t.Fatalf("卡面尺寸变化后键应失配")
	}
	opts.CardWidth = 63

	// 跳过槽位集合。
	opts.SkipSlots[5] = struct{}{}
	if Key(cards, page, opts) == base {
		t.Fatalf("跳过槽位变化后键应失配")
	}
	delete(opts.SkipSlots, 5)

	// 回到初始输入：键应复原。
	if Key(cards, page, opts) != base {
		t.Fatalf("输入复原后键应一致")
	}
}

func TestStore_GetPutInvalidate(t *testing.T) {
	s := New()
	out := domain.Output{Document: []byte("doc"), CutFile: []byte("cut"), Pages: 2}

	if _, ok := s.Get("k1"); ok {
		t.Fatalf("空缓存不应命中")
	}

	s.Put("k1", out)
	got, ok := s.Get("k1")
	if !ok || string(got.Document) != "doc" || got.Pages != 2 {
		t.Fatalf("期望命中缓存，实际 ok=%v got=%+v", ok, got)
	}

	if _, ok := s.Get("k2"); ok {
		t.Fatalf("键不同不应命中")
	}

	s.Invalidate()
	if _, ok := s.Get("k1"); ok {
		t.Fatalf("失效后不应命中")
	}
}
