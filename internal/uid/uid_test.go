package uid

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	g := New("")

	t.Run("shape", func(t *testing.T) {
		got := g.Generate()
		if len(got) != EncodedLen {
			t.Fatalf("Generate() length = %d, want %d", len(got), EncodedLen)
		}
		if strings.Contains(got, ".") {
			t.Errorf("Generate() = %q contains a period", got)
		}
		for i := 0; i < len(got); i++ {
			if !strings.ContainsRune(alphabet, rune(got[i])) {
				t.Errorf("Generate() = %q: character %q outside alphabet", got, got[i])
			}
		}
	})

	t.Run("unique and monotonic", func(t *testing.T) {
		seen := make(map[string]bool)
		prev := ""
		for i := 0; i < 1000; i++ {
			id := g.Generate()
			if seen[id] {
				t.Fatalf("duplicate uid %q", id)
			}
			seen[id] = true
			if id <= prev {
				t.Fatalf("uid %q not greater than previous %q", id, prev)
			}
			prev = id
		}
	})

	t.Run("salt differs across generators", func(t *testing.T) {
		a := New("site-a").Generate()
		b := New("site-b").Generate()
		if a[timePartLen:] == b[timePartLen:] {
			t.Errorf("salt suffix %q identical for different salts", a[timePartLen:])
		}
	})
}

func TestIsValid(t *testing.T) {
	g := New("")
	valid := g.Generate()

	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"generated", valid, true},
		{"empty", "", false},
		{"too short", valid[:EncodedLen-1], false},
		{"too long", valid + "0", false},
		{"period", "." + valid[1:], false},
		{"illegal character", "!" + valid[1:], false},
		{"future timestamp", strings.Repeat("z", EncodedLen), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.in); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("1.2.840.10008"); got != "1_2_840_10008" {
		t.Errorf("Normalize() = %q, want %q", got, "1_2_840_10008")
	}
	if got := Normalize("already_clean"); got != "already_clean" {
		t.Errorf("Normalize() = %q, want unchanged input", got)
	}
}
