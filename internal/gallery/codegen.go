package gallery

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// CodeGenerator produces a display code candidate for an identity created at
// the given time. Generators are pluggable so collision policy can be tested
// with deterministic sequences.
type CodeGenerator interface {
	Generate(t time.Time) string
}

// codeTimeLayout is minute-granular; the suffix disambiguates registrations
// within the same minute.
const codeTimeLayout = "20060102_1504"

type randomCodeGenerator struct{}

// NewRandomCodeGenerator returns the production generator: a minute-granular
// timestamp plus a 4-hex-digit random suffix.
func NewRandomCodeGenerator() CodeGenerator {
	return randomCodeGenerator{}
}

func (randomCodeGenerator) Generate(t time.Time) string {
	var buf [2]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("PERSON_%s_%s", t.Format(codeTimeLayout), hex.EncodeToString(buf[:]))
}

// sequentialCodeGenerator emits suffixes 0000, 0001, ... Used in tests and
// useful when reproducible codes matter more than unpredictability.
type sequentialCodeGenerator struct {
	next int
}

func NewSequentialCodeGenerator() CodeGenerator {
	return &sequentialCodeGenerator{}
}

func (g *sequentialCodeGenerator) Generate(t time.Time) string {
	code := fmt.Sprintf("PERSON_%s_%04d", t.Format(codeTimeLayout), g.next)
	g.next++
	return code
}
