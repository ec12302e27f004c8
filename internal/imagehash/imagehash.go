// Package imagehash computes stable content fingerprints for surgical image
// frames.
//
// The fingerprint is the dedup key for ingestion: two frames with the same
// fingerprint are treated as identical regardless of the original bit depth,
// channel count or resolution. Each pipeline step below exists to guarantee
// that invariance across submissions; none of them is optional.
package imagehash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// canonicalSize is the fixed edge length frames are resampled to before
// hashing. It trades fine-detail sensitivity for resistance to incidental
// resolution differences between near-duplicate captures.
const canonicalSize = 256

// FingerprintLen is the length of a rendered fingerprint: SHA-256 as
// lowercase hex.
const FingerprintLen = 64

// Pixel covers the accepted integer sample types. Floating-point buffers are
// not representable here; callers holding float data must convert it to an
// integer depth first, which is exactly the normalization the hash performs
// anyway.
type Pixel interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64
}

// UnsupportedFormatError reports a frame that cannot be fingerprinted.
type UnsupportedFormatError struct {
	Reason string
}

func (e *UnsupportedFormatError) Error() string {
	return "unsupported image format: " + e.Reason
}

// Fingerprint derives the content fingerprint of a frame.
//
// samples holds width*height*channels values in row-major order, channels
// interleaved. channels is 1 for grayscale frames and up to 4 for
// multi-channel frames, which are collapsed by averaging. Intensities are
// normalized to the full 0-255 range (making the hash invariant to bit
// depth), resampled to 256x256 with bilinear interpolation, and digested
// with SHA-256.
//
// The result is always exactly 64 lowercase hex characters.
func Fingerprint[T Pixel](samples []T, width, height, channels int) (string, error) {
	if width <= 0 || height <= 0 {
		return "", &UnsupportedFormatError{Reason: fmt.Sprintf("invalid dimensions %dx%d", width, height)}
	}
	if channels < 1 || channels > 4 {
		return "", &UnsupportedFormatError{Reason: fmt.Sprintf("%d channels", channels)}
	}
	if len(samples) == 0 {
		return "", &UnsupportedFormatError{Reason: "empty pixel buffer"}
	}
	if len(samples) != width*height*channels {
		return "", &UnsupportedFormatError{
			Reason: fmt.Sprintf("buffer holds %d samples, want %d (%dx%dx%d)",
				len(samples), width*height*channels, width, height, channels),
		}
	}

	// Collapse to a single channel and find the intensity range in one pass.
	gray := make([]float64, width*height)
	mn, mx := math.Inf(1), math.Inf(-1)
	for i := range gray {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(samples[i*channels+c])
		}
		v := sum / float64(channels)
		gray[i] = v
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}

	// Normalize to the full 0-255 range and cast to 8-bit. A flat frame
	// (min == max) maps to all zeros.
	src := image.NewGray(image.Rect(0, 0, width, height))
	var scale float64
	if mx > mn {
		scale = 255 / (mx - mn)
	}
	for i, v := range gray {
		src.Pix[i] = uint8(math.Round((v - mn) * scale))
	}

	dst := image.NewGray(image.Rect(0, 0, canonicalSize, canonicalSize))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	sum := sha256.Sum256(dst.Pix)
	return hex.EncodeToString(sum[:]), nil
}

// IsFingerprint reports whether s is a well-formed rendered fingerprint.
// Placeholder or sentinel values never satisfy it, so it doubles as the
// guard that keeps dummy frames out of the dedup table.
func IsFingerprint(s string) bool {
	if len(s) != FingerprintLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
