// Package idgen produces opaque, locally unique message identifiers.
//
// An id is the base36 millisecond clock, a fixed-width per-millisecond step
// counter and a short random suffix. The clock and step keep ids from one
// generator ordered and distinct; the suffix keeps two generators (two
// browser tabs, two gateways) from colliding on the same millisecond.
package idgen

import (
	"crypto/rand"
	"io"
	mrand "math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	stepBits  = 12
	stepMask  = -1 ^ (-1 << stepBits)
	stepWidth = 3 // base36 digits needed for stepMask
	suffixLen = 5
	base36    = "0123456789abcdefghijklmnopqrstuvwxyz"
)

type Generator struct {
	mu      sync.Mutex
	time    int64
	step    int64
	now     func() time.Time
	entropy io.Reader
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithEntropy overrides the random source used for the suffix.
func WithEntropy(r io.Reader) Option {
	return func(g *Generator) { g.entropy = r }
}

func New(opts ...Option) *Generator {
	g := &Generator{
		now:     time.Now,
		entropy: rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next returns a fresh identifier. It never fails.
func (g *Generator) Next() string {
	g.mu.Lock()
	now := g.now().UnixMilli()

	if now < g.time {
		// Clock moved backwards; stay on the last issued millisecond.
		now = g.time
	}

	if g.time == now {
		g.step = (g.step + 1) & stepMask
		if g.step == 0 {
			// Step space exhausted for this millisecond, borrow the next one.
			now++
		}
	} else {
		g.step = 0
	}
	g.time = now
	step := g.step
	g.mu.Unlock()

	var b strings.Builder
	b.WriteString(strconv.FormatInt(now, 36))
	s := strconv.FormatInt(step, 36)
	for i := len(s); i < stepWidth; i++ {
		b.WriteByte('0')
	}
	b.WriteString(s)
	b.WriteString(g.suffix())
	return b.String()
}

func (g *Generator) suffix() string {
	buf := make([]byte, suffixLen)
	if _, err := io.ReadFull(g.entropy, buf); err != nil {
		for i := range buf {
			buf[i] = byte(mrand.Intn(256))
		}
	}
	for i, v := range buf {
		buf[i] = base36[int(v)%len(base36)]
	}
	return string(buf)
}

var defaultGenerator = New()

// Next returns an identifier from the package-level generator.
func Next() string {
	return defaultGenerator.Next()
}
