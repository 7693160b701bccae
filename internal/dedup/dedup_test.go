package dedup

import (
	"fmt"
	"testing"

	"github.com/dehpipe/dehpipe/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func batchOf(ids ...string) *types.Batch {
	records := make([]types.Record, len(ids))
	for i, id := range ids {
		records[i] = types.Record{ID: id, OrderID: int64(i)}
	}
	return &types.Batch{SourceFile: "sales.csv", Records: records}
}

func idsOf(b *types.Batch) []string {
	return b.IDs()
}

func TestDeduplicate_IntraBatchFirstWins(t *testing.T) {
	clean, dropped := Deduplicate(batchOf("a", "b", "a", "c", "b"), nil)

	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	got := idsOf(clean)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("survivors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("survivors = %v, want %v (file order preserved)", got, want)
			break
		}
	}
	// First occurrence of "a" must be the surviving record
	if clean.Records[0].OrderID != 0 {
		t.Errorf("survivor for %q is occurrence %d, want the first", "a", clean.Records[0].OrderID)
	}
}

func TestDeduplicate_AgainstExisting(t *testing.T) {
	existing := map[string]struct{}{"a": {}, "c": {}}
	clean, dropped := Deduplicate(batchOf("a", "b", "c", "d"), existing)

	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	got := idsOf(clean)
	if len(got) != 2 || got[0] != "b" || got[1] != "d" {
		t.Errorf("survivors = %v, want [b d]", got)
	}
}

func TestDeduplicate_FullReupload(t *testing.T) {
	existing := map[string]struct{}{"a": {}, "b": {}, "c": {}}
	clean, dropped := Deduplicate(batchOf("a", "b", "c"), existing)

	if len(clean.Records) != 0 {
		t.Errorf("re-uploaded batch produced %d survivors, want 0", len(clean.Records))
	}
	if dropped != 3 {
		t.Errorf("dropped = %d, want 3", dropped)
	}
}

func TestDeduplicate_EmptyBatch(t *testing.T) {
	clean, dropped := Deduplicate(batchOf(), map[string]struct{}{"a": {}})
	if len(clean.Records) != 0 || dropped != 0 {
		t.Errorf("empty batch: survivors=%d dropped=%d", len(clean.Records), dropped)
	}
}

func TestProperty_SurvivorCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// For N total rows with D rows sharing an already-used identifier,
	// deduplicate returns exactly N-D rows in first-seen order.
	properties.Property("returns N-D rows preserving first-seen order", prop.ForAll(
		func(picks []int, existingPicks []int) bool {
			ids := make([]string, len(picks))
			for i, p := range picks {
				ids[i] = fmt.Sprintf("id-%d", p)
			}
			existing := make(map[string]struct{}, len(existingPicks))
			for _, p := range existingPicks {
				existing[fmt.Sprintf("id-%d", p)] = struct{}{}
			}

			clean, dropped := Deduplicate(batchOf(ids...), existing)

			// Count expected survivors: first occurrence of each id not in existing
			seen := make(map[string]struct{})
			var want []string
			for _, id := range ids {
				if _, ok := existing[id]; ok {
					continue
				}
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				want = append(want, id)
			}

			if len(clean.Records)+dropped != len(ids) {
				return false
			}
			got := idsOf(clean)
			if len(got) != len(want) {
				return false
			}
			for i := range want {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 20)),
		gen.SliceOf(gen.IntRange(0, 20)),
	))

	// Running deduplicate twice changes nothing further.
	properties.Property("idempotent over its own output", prop.ForAll(
		func(picks []int) bool {
			ids := make([]string, len(picks))
			for i, p := range picks {
				ids[i] = fmt.Sprintf("id-%d", p)
			}
			once, _ := Deduplicate(batchOf(ids...), nil)
			twice, dropped := Deduplicate(once, nil)
			return dropped == 0 && len(twice.Records) == len(once.Records)
		},
		gen.SliceOf(gen.IntRange(0, 20)),
	))

	properties.TestingRun(t)
}
