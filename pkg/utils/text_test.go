package utils

import (
	"reflect"
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("山川日落风景", 2); got != "山川..." {
		t.Errorf("multibyte truncate: got %q", got)
	}
}

func TestCollapseSpace(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  sunset  over\n\tmountains ", "sunset over mountains"},
		{"", ""},
		{"   ", ""},
		{"a", "a"},
	}
	for _, tt := range tests {
		if got := CollapseSpace(tt.in); got != tt.want {
			t.Errorf("CollapseSpace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsBlank(t *testing.T) {
	if !IsBlank(" \t\n") {
		t.Error("whitespace should be blank")
	}
	if IsBlank(" x ") {
		t.Error("x is not blank")
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "nature", []string{"nature"}},
		{"spaces and blanks", " nature, ,urban ,", []string{"nature", "urban"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitList(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitList(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDedupeStrings(t *testing.T) {
	got := DedupeStrings([]string{"a", " b", "a", "", "b "})
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	if n := NormalizeL2(x); n != 5 {
		t.Errorf("norm = %v, want 5", n)
	}
	if x[0] != 0.6 || x[1] != 0.8 {
		t.Errorf("normalized = %v", x)
	}
	zero := []float32{0, 0}
	if n := NormalizeL2(zero); n != 0 || zero[0] != 0 {
		t.Errorf("zero vector changed: %v (%v)", zero, n)
	}
}
