// Package dedup strips records whose identifier has already been seen,
// either earlier in the same batch or in the persisted clean table.
package dedup

import "github.com/dehpipe/dehpipe/pkg/types"

// Deduplicate returns the records whose identifiers are new, preserving
// first-seen file order, and the number of records dropped. Within the
// batch the first occurrence of an identifier wins; identifiers present in
// existing are dropped entirely, which makes re-uploading an identical file
// yield zero survivors.
func Deduplicate(batch *types.Batch, existing map[string]struct{}) (*types.Batch, int) {
	seen := make(map[string]struct{}, len(batch.Records))
	survivors := make([]types.Record, 0, len(batch.Records))

	for _, rec := range batch.Records {
		if _, ok := existing[rec.ID]; ok {
			continue
		}
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		seen[rec.ID] = struct{}{}
		survivors = append(survivors, rec)
	}

	return &types.Batch{SourceFile: batch.SourceFile, Records: survivors},
		len(batch.Records) - len(survivors)
}
