// Package uid generates globally-unique identifiers that are safe for the
// research repository's resource naming scheme.
//
// A uid is a fixed-width 16-character string drawn from a sortable base64
// alphabet that contains no periods (periods are illegal in repository
// resource names). The first 11 characters encode a 64-bit value built from
// the current timestamp, a per-millisecond random counter and a format
// version; the last 5 characters derive from a process-local salt so that
// two processes generating in the same millisecond cannot collide.
package uid

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Value structure of the time part (64 bits):
// - Bit 63: sign (always 0)
// - Bits 62-20: milliseconds since epoch (43 bits = ~278 years)
// - Bits 19-4: random/counter (16 bits)
// - Bits 3-0: version (4 bits)

const (
	// epoch is 2024-01-01 00:00:00 UTC in milliseconds.
	epoch int64 = 1704067200000

	// version is the current uid format version.
	version uint64 = 1

	timePartLen = 11
	saltPartLen = 5

	// EncodedLen is the fixed length of every generated uid.
	EncodedLen = timePartLen + saltPartLen
)

// alphabet is a base64 alphabet in ASCII order for lexicographic sorting.
// Characters: - (0x2D), 0-9 (0x30-39), A-Z (0x41-5A), _ (0x5F), a-z (0x61-7A)
const alphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

// decodeMap maps ASCII characters back to their 6-bit values.
var decodeMap [128]byte

func init() {
	for i := range decodeMap {
		decodeMap[i] = 0xFF // invalid
	}
	for i, c := range alphabet {
		decodeMap[c] = byte(i)
	}
}

// Generator produces uids from a monotonic clock plus a process-local salt.
// It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	lastMs  int64
	counter uint16
	salt    string
}

// New creates a Generator seeded with the given entropy string. An empty
// salt is replaced with a fresh random one, which is the normal mode; pass
// an explicit salt only when deterministic uid suffixes are needed in tests.
func New(salt string) *Generator {
	if salt == "" {
		salt = uuid.NewString()
	}
	sum := sha256.Sum256([]byte(salt))
	v := binary.BigEndian.Uint32(sum[:4])
	var b [saltPartLen]byte
	for i := saltPartLen - 1; i >= 0; i-- {
		b[i] = alphabet[v&0x3F]
		v >>= 6
	}
	return &Generator{salt: string(b[:])}
}

// Generate returns a new uid. Values are monotonically increasing within a
// process and contain no characters disallowed by the repository.
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := time.Now().UnixMilli() - epoch
	if ms < 0 {
		ms = 0
	}
	if ms > g.lastMs {
		g.lastMs = ms
		var b [2]byte
		_, _ = rand.Read(b[:])
		g.counter = binary.BigEndian.Uint16(b[:])
	} else if g.counter == 1<<16-1 {
		// Counter exhausted within this millisecond; borrow the next one
		// to stay monotonic.
		g.lastMs++
		g.counter = 0
	} else {
		g.counter++
	}

	v := (uint64(g.lastMs) << 20) | (uint64(g.counter) << 4) | (version & 0xF)
	var buf [EncodedLen]byte
	for i := timePartLen - 1; i >= 0; i-- {
		buf[i] = alphabet[v&0x3F]
		v >>= 6
	}
	copy(buf[timePartLen:], g.salt)
	return string(buf[:])
}

// IsValid reports whether candidate has the shape of a generated uid:
// correct length, alphabet membership, known format version and a timestamp
// between the epoch and shortly after now (a small allowance covers clock
// skew between machines that generated the value).
func IsValid(candidate string) bool {
	if len(candidate) != EncodedLen {
		return false
	}
	for i := 0; i < len(candidate); i++ {
		c := candidate[i]
		if c >= 128 || decodeMap[c] == 0xFF {
			return false
		}
	}
	var v uint64
	for i := 0; i < timePartLen; i++ {
		v = (v << 6) | uint64(decodeMap[candidate[i]])
	}
	if v&0xF != version {
		return false
	}
	ms := int64(v >> 20)
	now := time.Now().UnixMilli() - epoch
	return ms >= 0 && ms <= now+int64(5*time.Minute/time.Millisecond)
}

// Normalize maps characters that are illegal in repository resource names to
// underscores. Callers use it on externally supplied identifiers before they
// are stored alongside generated uids.
func Normalize(s string) string {
	return strings.ReplaceAll(s, ".", "_")
}
