// Package pipeline drives one file through the validate-transform-load
// state machine: parse, validate, quarantine or load, aggregate, notify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dehpipe/dehpipe/internal/aggregate"
	"github.com/dehpipe/dehpipe/internal/bloom"
	"github.com/dehpipe/dehpipe/internal/columnar"
	"github.com/dehpipe/dehpipe/internal/dedup"
	"github.com/dehpipe/dehpipe/internal/ingest"
	"github.com/dehpipe/dehpipe/internal/storage"
	"github.com/dehpipe/dehpipe/internal/table"
	"github.com/dehpipe/dehpipe/internal/validate"
	"github.com/dehpipe/dehpipe/pkg/types"
)

// State is the position of an invocation in the processing lifecycle.
type State string

const (
	StateReceived    State = "RECEIVED"
	StateParsed      State = "PARSED"
	StateValidated   State = "VALIDATED"
	StateQuarantined State = "QUARANTINED"
	StateLoaded      State = "LOADED"
	StateAggregated  State = "AGGREGATED"
	StateNotified    State = "NOTIFIED"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// Result reports what happened to one file.
type Result struct {
	State          State
	File           string
	RowsReceived   int
	RowsLoaded     int
	RowsDeduped    int
	Violations     []types.Violation
	ArchivePath    string
	QuarantinePath string
}

// DefaultOpTimeout bounds each external call (storage, tables, notify).
const DefaultOpTimeout = 30 * time.Second

// bloomTargetFPR keeps prefilter false positives around one in a thousand;
// a false positive only costs one confirming table query. Past
// bloomRebuildFPR the filter is resized from the full clean table instead
// of being extended in place.
const (
	bloomTargetFPR  = 0.001
	bloomRebuildFPR = 0.01
)

// Pipeline wires the collaborators for one deployment.
type Pipeline struct {
	storage   storage.ObjectStorage
	store     table.Store
	notifier  Notifier
	validator *validate.Validator
	opTimeout time.Duration
	now       func() time.Time
}

// Notifier publishes run outcome messages. Satisfied by the notify package
// implementations.
type Notifier interface {
	Publish(ctx context.Context, subject, body string) error
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithOpTimeout overrides the per-call timeout.
func WithOpTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.opTimeout = d }
}

// WithClock overrides the time source; tests pin it.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New builds a Pipeline over the given collaborators.
func New(store storage.ObjectStorage, tables table.Store, notifier Notifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		storage:   store,
		store:     tables,
		notifier:  notifier,
		validator: validate.New(),
		opTimeout: DefaultOpTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes one landed file to completion. A schema-invalid file is
// quarantined and reported without error; infrastructure failures are
// returned to the caller so the invoking runtime can apply its retry policy.
func (p *Pipeline) Run(ctx context.Context, loc types.FileLocation) (*Result, error) {
	invID := uuid.NewString()
	res := &Result{State: StateReceived, File: loc.Key}
	log.Printf("pipeline: [%s] received %s", invID, loc)

	data, err := p.readTimed(ctx, loc.Key)
	if err != nil {
		return p.fail(ctx, res, fmt.Sprintf("read %s", loc.Key), err)
	}

	raw, err := ingest.ParseFile(loc.Key, data)
	if err != nil {
		// Malformed file, not a validation failure: no table writes, the
		// file stays in the landing zone for inspection.
		return p.fail(ctx, res, fmt.Sprintf("parse %s", loc.Key), err)
	}
	res.State = StateParsed
	res.RowsReceived = len(raw.Rows)
	log.Printf("pipeline: [%s] parsed %d rows from %s", invID, len(raw.Rows), loc.Key)

	batch, verdict := p.validator.Validate(raw)
	res.State = StateValidated
	if !verdict.Valid {
		return p.quarantine(ctx, invID, res, loc, verdict)
	}

	existing, filter, err := p.existingIDs(ctx, invID, batch.IDs())
	if err != nil {
		return p.fail(ctx, res, "look up existing identifiers", err)
	}
	survivors, _ := dedup.Deduplicate(batch, existing)

	archivePath := storage.ArchivePath(p.now(), loc.Key)
	inserted, err := p.load(ctx, batch, survivors, archivePath)
	if err != nil {
		return p.fail(ctx, res, fmt.Sprintf("load %s", loc.Key), err)
	}
	res.State = StateLoaded
	// The clean table is the authority on what was new: counts come from
	// the insert itself, not from the prefilter's opinion.
	res.RowsLoaded = inserted
	res.RowsDeduped = res.RowsReceived - inserted
	if len(survivors.Records) > 0 {
		res.ArchivePath = archivePath
	}
	log.Printf("pipeline: [%s] loaded %d rows, deduplicated %d", invID, res.RowsLoaded, res.RowsDeduped)

	if err := p.deleteTimed(ctx, loc.Key); err != nil {
		return p.fail(ctx, res, fmt.Sprintf("delete %s", loc.Key), err)
	}

	if err := p.aggregate(ctx); err != nil {
		return p.fail(ctx, res, "rebuild summaries", err)
	}
	res.State = StateAggregated

	p.refreshBloomSnapshot(ctx, invID, filter, survivors.IDs())

	p.notifySuccess(ctx, res)
	res.State = StateDone
	log.Printf("pipeline: [%s] done: %s", invID, loc.Key)
	return res, nil
}

func (p *Pipeline) readTimed(ctx context.Context, path string) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	return p.storage.Read(opCtx, path)
}

func (p *Pipeline) deleteTimed(ctx context.Context, path string) error {
	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	return p.storage.Delete(opCtx, path)
}

// existingIDs shortlists possibly-seen identifiers through the bloom
// snapshot, then confirms the shortlist against the clean table. Without a
// trusted snapshot every identifier is confirmed. The trusted filter, if
// any, is returned so the refresh after the load can extend it.
func (p *Pipeline) existingIDs(ctx context.Context, invID string, ids []string) (map[string]struct{}, *bloom.IDFilter, error) {
	candidates := ids

	filter := p.loadTrustedFilter(ctx, invID)
	if filter != nil {
		candidates = make([]string, 0, len(ids))
		for _, id := range ids {
			if filter.MightContain(id) {
				candidates = append(candidates, id)
			}
		}
		log.Printf("pipeline: [%s] bloom prefilter kept %d of %d candidates",
			invID, len(candidates), len(ids))
	}

	if len(candidates) == 0 {
		return map[string]struct{}{}, filter, nil
	}
	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	existing, err := p.store.FilterExistingIDs(opCtx, candidates)
	return existing, filter, err
}

// loadTrustedFilter loads the snapshot and refutes it against the clean
// table row count. A snapshot that has missed inserts would answer "never
// seen" for loaded identifiers, so a count mismatch (the aftermath of a
// failed refresh upload, or of a concurrent invocation) discards it and
// the whole batch is confirmed against the table instead.
func (p *Pipeline) loadTrustedFilter(ctx context.Context, invID string) *bloom.IDFilter {
	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()

	blob, err := p.storage.Read(opCtx, storage.BloomSnapshotPath)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			log.Printf("pipeline: [%s] bloom snapshot read failed, querying all ids: %v", invID, err)
		}
		return nil
	}
	filter, err := bloom.FromSnapshot(blob)
	if err != nil {
		log.Printf("pipeline: [%s] bloom snapshot unreadable, querying all ids: %v", invID, err)
		return nil
	}
	counts, err := p.store.Counts(opCtx)
	if err != nil {
		log.Printf("pipeline: [%s] clean row count unavailable, querying all ids: %v", invID, err)
		return nil
	}
	if filter.Count() != uint64(counts.Clean) {
		log.Printf("pipeline: [%s] bloom snapshot stale (%d ids vs %d clean rows), querying all ids",
			invID, filter.Count(), counts.Clean)
		return nil
	}
	return filter
}

// load issues the raw append, clean insert and archive write concurrently
// and waits for all three before reporting. Returns how many rows the
// clean insert actually added.
func (p *Pipeline) load(ctx context.Context, full, survivors *types.Batch, archivePath string) (int, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()

	var wg sync.WaitGroup
	var inserted int
	errs := make([]error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = p.store.AppendRaw(opCtx, full.Records)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		inserted, errs[1] = p.store.InsertCleanIfAbsent(opCtx, survivors.Records)
	}()

	if len(survivors.Records) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			blob, err := columnar.Convert(survivors)
			if err != nil {
				errs[2] = err
				return
			}
			errs[2] = p.storage.Write(opCtx, archivePath, blob)
		}()
	}

	wg.Wait()
	return inserted, errors.Join(errs...)
}

func (p *Pipeline) aggregate(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()

	records, err := p.store.AllCleanRecords(opCtx)
	if err != nil {
		return err
	}
	summaries := aggregate.ByCountry(records, p.now())
	return p.store.ReplaceSummaries(opCtx, summaries)
}

// refreshBloomSnapshot extends the trusted filter with this run's new
// identifiers and uploads it; when there is no trusted filter, or the
// filter has saturated past its useful false-positive rate, it is rebuilt
// from the full clean table. Best effort: the next run degrades gracefully
// without a snapshot.
func (p *Pipeline) refreshBloomSnapshot(ctx context.Context, invID string, filter *bloom.IDFilter, newIDs []string) {
	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()

	if filter != nil {
		for _, id := range newIDs {
			filter.Add(id)
		}
		if filter.FalsePositiveRate() <= bloomRebuildFPR {
			p.writeSnapshot(opCtx, invID, filter)
			return
		}
		log.Printf("pipeline: [%s] bloom filter saturated, rebuilding", invID)
	}

	ids, err := p.store.AllCleanIDs(opCtx)
	if err != nil {
		log.Printf("pipeline: [%s] bloom rebuild skipped, id listing failed: %v", invID, err)
		return
	}
	filter = bloom.NewWithEstimates(len(ids)+1, bloomTargetFPR)
	for _, id := range ids {
		filter.Add(id)
	}
	p.writeSnapshot(opCtx, invID, filter)
}

func (p *Pipeline) writeSnapshot(ctx context.Context, invID string, filter *bloom.IDFilter) {
	blob, err := filter.Snapshot()
	if err != nil {
		log.Printf("pipeline: [%s] bloom snapshot encode failed: %v", invID, err)
		return
	}
	if err := p.storage.Write(ctx, storage.BloomSnapshotPath, blob); err != nil {
		log.Printf("pipeline: [%s] bloom snapshot upload failed: %v", invID, err)
	}
}

func (p *Pipeline) quarantine(ctx context.Context, invID string, res *Result, loc types.FileLocation, verdict *types.ValidationResult) (*Result, error) {
	res.Violations = verdict.Violations
	dst := storage.QuarantinePath(p.now(), loc.Key)

	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	err := p.storage.Move(opCtx, loc.Key, dst)
	cancel()
	if err != nil {
		return p.fail(ctx, res, fmt.Sprintf("quarantine %s", loc.Key), err)
	}

	res.State = StateQuarantined
	res.QuarantinePath = dst
	log.Printf("pipeline: [%s] quarantined %s: %d violations", invID, loc.Key, len(verdict.Violations))

	p.notify(ctx,
		fmt.Sprintf("sales pipeline: quarantined %s", loc.Key),
		quarantineBody(res, verdict))
	return res, nil
}

// fail attempts a best-effort failure notification and surfaces the cause.
func (p *Pipeline) fail(ctx context.Context, res *Result, action string, cause error) (*Result, error) {
	res.State = StateFailed
	log.Printf("pipeline: failed to %s: %v", action, cause)
	p.notify(ctx,
		fmt.Sprintf("sales pipeline: failed %s", res.File),
		failureBody(res, action, cause))
	return res, fmt.Errorf("%s: %w", action, cause)
}

func (p *Pipeline) notifySuccess(ctx context.Context, res *Result) {
	p.notify(ctx,
		fmt.Sprintf("sales pipeline: processed %s", res.File),
		successBody(res))
	res.State = StateNotified
}

// notify is fire-and-forget: a delivery failure is logged, never escalated.
func (p *Pipeline) notify(ctx context.Context, subject, body string) {
	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	if err := p.notifier.Publish(opCtx, subject, body); err != nil {
		log.Printf("pipeline: notification failed for %q: %v", subject, err)
	}
}

func successBody(res *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "file: %s\n", res.File)
	fmt.Fprintf(&b, "rows received: %d\n", res.RowsReceived)
	fmt.Fprintf(&b, "rows loaded: %d\n", res.RowsLoaded)
	fmt.Fprintf(&b, "rows deduplicated: %d\n", res.RowsDeduped)
	if res.ArchivePath != "" {
		fmt.Fprintf(&b, "archive: %s\n", res.ArchivePath)
	}
	return b.String()
}

func quarantineBody(res *Result, verdict *types.ValidationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "file: %s\n", res.File)
	fmt.Fprintf(&b, "rows received: %d\n", res.RowsReceived)
	fmt.Fprintf(&b, "moved to: %s\n", res.QuarantinePath)
	fmt.Fprintf(&b, "violations:\n")
	for _, v := range verdict.Violations {
		fmt.Fprintf(&b, "  - %s\n", v)
	}
	return b.String()
}

func failureBody(res *Result, action string, cause error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "file: %s\n", res.File)
	fmt.Fprintf(&b, "failed to %s\n", action)
	fmt.Fprintf(&b, "cause: %v\n", cause)
	fmt.Fprintf(&b, "rows received: %d\n", res.RowsReceived)
	return b.String()
}
