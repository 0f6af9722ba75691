package main

import "testing"

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"  padded  ", 10, "padded"},
		{"abcdefghij", 6, "abc..."},
		{"abcdef", 2, "ab"},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q，期望 %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestFormatProxy(t *testing.T) {
	if got := formatProxy(""); got != "off" {
		t.Fatalf("空代理应显示 off，实际 %q", got)
	}
	if got := formatProxy("https://proxy.example/img/{id}"); got != "https://proxy.example" {
		t.Fatalf("代理显示不符：%q", got)
	}
}
