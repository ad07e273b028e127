package money

import "testing"

func TestParseCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"100.01", 10001, true},
		{"60,00", 6000, true},
		{"0.01", 1, true},
		{"1.005", 101, true},
		{" 2.50 ", 250, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"+1", 0, false},
		{"1.2.3", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, err := ParseCents(c.in)
		if c.ok && err != nil {
			t.Fatalf("ParseCents(%q): %v", c.in, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("ParseCents(%q): expected error", c.in)
		}
		if c.ok && got != c.out {
			t.Fatalf("ParseCents(%q) = %d, want %d", c.in, got, c.out)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format(6001); got != "60.01" {
		t.Fatalf("Format(6001) = %s", got)
	}
	if got := Format(-6001); got != "-60.01" {
		t.Fatalf("Format(-6001) = %s", got)
	}
	if got := Format(5); got != "0.05" {
		t.Fatalf("Format(5) = %s", got)
	}
}

func TestDivRoundHalfUp(t *testing.T) {
	if got := DivRoundHalfUp(300000, 6); got != 50000 {
		t.Fatalf("exact division: %d", got)
	}
	// 100/3 cents: 33.33.. rounds to 33
	if got := DivRoundHalfUp(100, 3); got != 33 {
		t.Fatalf("round down: %d", got)
	}
	// 105/2 = 52.5 rounds up
	if got := DivRoundHalfUp(105, 2); got != 53 {
		t.Fatalf("half up: %d", got)
	}
}
