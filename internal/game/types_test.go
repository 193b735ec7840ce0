package game

import (
	"testing"
	"time"
)

func TestParseCategoryVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Category
		err  bool
	}{
		{raw: "30s", want: Cat30Sec},
		{raw: "30 SEC", want: Cat30Sec},
		{raw: "30sec", want: Cat30Sec},
		{raw: "1m", want: Cat1Min},
		{raw: "1 MIN", want: Cat1Min},
		{raw: "1min", want: Cat1Min},
		{raw: "5m", err: true},
		{raw: "", err: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseCategory(tt.raw)
			if tt.err {
				if err == nil {
					t.Fatalf("ParseCategory(%q): expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCategory(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseCategory(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCategoryRound(t *testing.T) {
	t.Parallel()
	if got := Cat30Sec.Round(); got != 30*time.Second {
		t.Fatalf("Cat30Sec.Round() = %v", got)
	}
	if got := Cat1Min.Round(); got != time.Minute {
		t.Fatalf("Cat1Min.Round() = %v", got)
	}
}

func TestOpposite(t *testing.T) {
	t.Parallel()
	pairs := map[Label]Label{Red: Green, Green: Red, Big: Small, Small: Big}
	for l, want := range pairs {
		if got := l.Opposite(); got != want {
			t.Fatalf("%v.Opposite() = %v, want %v", l, got, want)
		}
		if got := l.Opposite().Opposite(); got != l {
			t.Fatalf("double opposite of %v = %v", l, got)
		}
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()
	o := Outcome{Period: 801, Category: Cat30Sec, Result: Big, Color: Red, Size: Big}

	if !Matches(Big, o) {
		t.Fatal("headline result should match")
	}
	if !Matches(Red, o) {
		t.Fatal("color component should match")
	}
	if Matches(Green, o) {
		t.Fatal("opposite color should not match")
	}
	if Matches(Small, o) {
		t.Fatal("opposite size should not match")
	}
}
