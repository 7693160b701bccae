// Package bloom provides a probabilistic membership filter over clean-table
// identifiers. It guarantees no false negatives: if an identifier was added,
// MightContain always returns true, so the deduplicator can skip the table
// store for identifiers the filter has never seen.
package bloom

import (
	"math"

	"github.com/spaolacci/murmur3"
)

// IDFilter is a bloom filter keyed by record identifier.
// It is built and consumed within a single invocation, so it carries no lock.
type IDFilter struct {
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

// New creates an IDFilter with the specified number of bits and hash functions.
func New(numBits, numHashes int) *IDFilter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}

	// Round up to whole 64-bit words
	numWords := (numBits + 63) / 64
	return &IDFilter{
		bits:      make([]uint64, numWords),
		numBits:   uint64(numWords * 64),
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates creates an IDFilter sized for the expected number of
// identifiers and target false positive rate.
func NewWithEstimates(expectedIDs int, targetFPR float64) *IDFilter {
	numBits, numHashes := OptimalParameters(expectedIDs, targetFPR)
	return New(numBits, numHashes)
}

// OptimalParameters calculates bloom filter sizing for a given expected
// identifier count and target false positive rate.
//
// The formulas are:
//   - m = -n * ln(p) / (ln(2)^2)  where m = bits, n = items, p = FPR
//   - k = (m/n) * ln(2)           where k = hash functions
func OptimalParameters(expectedIDs int, targetFPR float64) (numBits, numHashes int) {
	if expectedIDs <= 0 {
		expectedIDs = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedIDs)
	ln2 := math.Ln2

	m := -n * math.Log(targetFPR) / (ln2 * ln2)
	numBits = int(math.Ceil(m))

	k := (m / n) * ln2
	numHashes = int(math.Ceil(k))

	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}
	return numBits, numHashes
}

// Add records an identifier in the filter.
func (f *IDFilter) Add(id string) {
	h1, h2 := hash128(id)
	for i := uint64(0); i < f.numHashes; i++ {
		// Double hashing: h(i) = h1 + i*h2
		pos := (h1 + i*h2) % f.numBits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

// MightContain reports whether id may have been added. A false result is
// definitive; a true result must be confirmed against the table store.
func (f *IDFilter) MightContain(id string) bool {
	h1, h2 := hash128(id)
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Count returns the number of identifiers added to the filter.
func (f *IDFilter) Count() uint64 {
	return f.count
}

// FalsePositiveRate returns the estimated false positive rate based on the
// current fill: (1 - e^(-k*n/m))^k.
func (f *IDFilter) FalsePositiveRate() float64 {
	if f.count == 0 {
		return 0
	}
	k := float64(f.numHashes)
	n := float64(f.count)
	m := float64(f.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}

func hash128(id string) (uint64, uint64) {
	h := murmur3.New128()
	h.Write([]byte(id))
	return h.Sum128()
}
