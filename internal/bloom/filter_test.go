package bloom

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestIDFilter_AddAndMightContain(t *testing.T) {
	f := NewWithEstimates(1000, 0.01)

	ids := []string{"a1", "b2", "c3", "d4"}
	for _, id := range ids {
		f.Add(id)
	}

	for _, id := range ids {
		if !f.MightContain(id) {
			t.Errorf("MightContain(%q) = false after Add, filters must never false-negative", id)
		}
	}
	if f.Count() != uint64(len(ids)) {
		t.Errorf("Count = %d, want %d", f.Count(), len(ids))
	}
}

func TestIDFilter_MostlyRejectsUnseen(t *testing.T) {
	f := NewWithEstimates(10000, 0.01)
	for i := 0; i < 10000; i++ {
		f.Add(fmt.Sprintf("seen-%d", i))
	}

	falsePositives := 0
	probes := 10000
	for i := 0; i < probes; i++ {
		if f.MightContain(fmt.Sprintf("unseen-%d", i)) {
			falsePositives++
		}
	}

	// Sized for 1% FPR; allow generous slack to keep the test stable.
	if falsePositives > probes/20 {
		t.Errorf("false positive count %d exceeds 5%% of %d probes", falsePositives, probes)
	}
}

func TestOptimalParameters(t *testing.T) {
	numBits, numHashes := OptimalParameters(1000, 0.01)
	if numBits < 9000 || numBits > 10000 {
		t.Errorf("numBits = %d, want ~9586 for n=1000 p=0.01", numBits)
	}
	if numHashes != 7 {
		t.Errorf("numHashes = %d, want 7 for p=0.01", numHashes)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	f := NewWithEstimates(500, 0.01)
	for i := 0; i < 500; i++ {
		f.Add(fmt.Sprintf("id-%d", i))
	}

	data, err := f.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored, err := FromSnapshot(data)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}

	if restored.Count() != f.Count() {
		t.Errorf("restored Count = %d, want %d", restored.Count(), f.Count())
	}
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("id-%d", i)
		if !restored.MightContain(id) {
			t.Errorf("restored filter lost %q", id)
		}
	}
}

func TestFromSnapshot_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte{1, 2, 3}},
		{"zero params", make([]byte, 32)},
		{"garbage body", append(make([]byte, 8), []byte{7, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromSnapshot(tt.data); err == nil {
				t.Error("FromSnapshot should reject corrupt data")
			}
		})
	}
}

func TestProperty_NoFalseNegatives(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every added identifier is reported present", prop.ForAll(
		func(ids []string) bool {
			f := NewWithEstimates(len(ids)+1, 0.01)
			for _, id := range ids {
				f.Add(id)
			}
			for _, id := range ids {
				if !f.MightContain(id) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("snapshot round-trip preserves membership", prop.ForAll(
		func(ids []string) bool {
			f := NewWithEstimates(len(ids)+1, 0.01)
			for _, id := range ids {
				f.Add(id)
			}
			data, err := f.Snapshot()
			if err != nil {
				return false
			}
			restored, err := FromSnapshot(data)
			if err != nil {
				return false
			}
			for _, id := range ids {
				if !restored.MightContain(id) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
