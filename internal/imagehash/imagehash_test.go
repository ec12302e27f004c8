package imagehash

import (
	"errors"
	"testing"
)

// gradient fills a width*height buffer with a horizontal intensity ramp.
func gradient(width, height int) []uint8 {
	px := make([]uint8, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			px[y*width+x] = uint8(x % 256)
		}
	}
	return px
}

func TestFingerprint(t *testing.T) {
	t.Run("shape", func(t *testing.T) {
		fp, err := Fingerprint(gradient(64, 48), 64, 48, 1)
		if err != nil {
			t.Fatalf("Fingerprint failed: %v", err)
		}
		if !IsFingerprint(fp) {
			t.Errorf("fingerprint %q is not 64 lowercase hex characters", fp)
		}
	})

	t.Run("bit depth invariance", func(t *testing.T) {
		// The same visual content at different bit depths must hash
		// identically once normalized. 65535 = 255*257, so scaling a
		// uint8 ramp by 257 is exact in 16 bits.
		base := gradient(256, 256)
		fp8, err := Fingerprint(base, 256, 256, 1)
		if err != nil {
			t.Fatalf("uint8 fingerprint failed: %v", err)
		}

		px16 := make([]uint16, len(base))
		for i, v := range base {
			px16[i] = uint16(v) * 257
		}
		fp16, err := Fingerprint(px16, 256, 256, 1)
		if err != nil {
			t.Fatalf("uint16 fingerprint failed: %v", err)
		}
		if fp16 != fp8 {
			t.Errorf("uint16 fingerprint %s != uint8 fingerprint %s", fp16, fp8)
		}

		px64 := make([]uint64, len(base))
		for i, v := range base {
			px64[i] = uint64(v)
		}
		fp64, err := Fingerprint(px64, 256, 256, 1)
		if err != nil {
			t.Fatalf("uint64 fingerprint failed: %v", err)
		}
		if fp64 != fp8 {
			t.Errorf("uint64 fingerprint %s != uint8 fingerprint %s", fp64, fp8)
		}
	})

	t.Run("channel invariance", func(t *testing.T) {
		base := gradient(32, 32)
		fpGray, err := Fingerprint(base, 32, 32, 1)
		if err != nil {
			t.Fatalf("grayscale fingerprint failed: %v", err)
		}
		rgb := make([]uint8, len(base)*3)
		for i, v := range base {
			rgb[i*3] = v
			rgb[i*3+1] = v
			rgb[i*3+2] = v
		}
		fpRGB, err := Fingerprint(rgb, 32, 32, 3)
		if err != nil {
			t.Fatalf("3-channel fingerprint failed: %v", err)
		}
		if fpRGB != fpGray {
			t.Errorf("3-channel fingerprint %s != grayscale fingerprint %s", fpRGB, fpGray)
		}
	})

	t.Run("all zero across depths", func(t *testing.T) {
		zero8 := make([]uint8, 256*256)
		fp8, err := Fingerprint(zero8, 256, 256, 1)
		if err != nil {
			t.Fatalf("uint8 fingerprint failed: %v", err)
		}
		zero64 := make([]uint64, 256*256)
		fp64, err := Fingerprint(zero64, 256, 256, 1)
		if err != nil {
			t.Fatalf("uint64 fingerprint failed: %v", err)
		}
		if fp8 != fp64 {
			t.Errorf("all-zero uint8 fingerprint %s != uint64 fingerprint %s", fp8, fp64)
		}
	})

	t.Run("distinct content distinct hash", func(t *testing.T) {
		a := gradient(64, 64)
		b := gradient(64, 64)
		b[0] = 255 - b[0]
		fpA, err := Fingerprint(a, 64, 64, 1)
		if err != nil {
			t.Fatalf("Fingerprint failed: %v", err)
		}
		fpB, err := Fingerprint(b, 64, 64, 1)
		if err != nil {
			t.Fatalf("Fingerprint failed: %v", err)
		}
		if fpA == fpB {
			t.Error("different content produced the same fingerprint")
		}
	})

	t.Run("rejected input", func(t *testing.T) {
		tests := []struct {
			name     string
			samples  []uint8
			w, h, ch int
		}{
			{"empty buffer", nil, 4, 4, 1},
			{"zero width", gradient(4, 4), 0, 4, 1},
			{"zero height", gradient(4, 4), 4, 0, 1},
			{"zero channels", gradient(4, 4), 4, 4, 0},
			{"too many channels", gradient(4, 4), 1, 1, 16},
			{"size mismatch", gradient(4, 4), 8, 8, 1},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Fingerprint(tt.samples, tt.w, tt.h, tt.ch)
				var ufe *UnsupportedFormatError
				if !errors.As(err, &ufe) {
					t.Errorf("Fingerprint error = %v, want *UnsupportedFormatError", err)
				}
			})
		}
	})
}

func TestIsFingerprint(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"valid", "a3f0c1d2e4b5968778695a4b3c2d1e0f00112233445566778899aabbccddeeff", true},
		{"too short", "abc123", false},
		{"uppercase", "A3F0C1D2E4B5968778695A4B3C2D1E0F00112233445566778899AABBCCDDEEFF", false},
		{"non hex", "g3f0c1d2e4b5968778695a4b3c2d1e0f00112233445566778899aabbccddeeff", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFingerprint(tt.in); got != tt.want {
				t.Errorf("IsFingerprint(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
