// Package indexer orchestrates log discovery, staleness classification,
// parallel parsing and sequential transactional writes into the store.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/digitarald/vscode-session-trace/internal/extract"
	"github.com/digitarald/vscode-session-trace/internal/logging"
	"github.com/digitarald/vscode-session-trace/internal/logreader"
	"github.com/digitarald/vscode-session-trace/internal/store"
)

var indexLog = logging.ForComponent(logging.CompIndexer)

const lastMessageMax = 200

// Stats summarizes one reindex pass.
type Stats struct {
	Indexed int
	Skipped int
	Pruned  int
	Failed  int
}

// ProgressFunc receives advisory progress updates: a message and a
// fractional increment. Delivery failures never affect correctness.
type ProgressFunc func(message string, increment float64)

// Options configures an Indexer.
type Options struct {
	BaseDir     string
	BatchSize   int // files parsed per batch; bounds open file handles
	Parallelism int // concurrent parses within a batch
}

// Indexer drives reindex cycles against a single store. Overlapping
// Reindex calls coalesce onto one structural pass.
type Indexer struct {
	store *store.Store
	opts  Options

	mu      sync.Mutex
	current *inflight
}

// inflight is the single-slot "operation in progress" guard. Joiners wait
// on done and share the same outcome.
type inflight struct {
	done  chan struct{}
	stats Stats
	err   error
}

// New creates an Indexer over the given store.
func New(s *store.Store, opts Options) *Indexer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 8
	}
	return &Indexer{store: s, opts: opts}
}

// Reindex runs one incremental indexing pass, or a full wipe-and-rebuild
// when full is set. A second caller arriving while a pass is in flight
// awaits the same outcome instead of starting a redundant pass; a full
// rebuild first awaits any in-flight run, then wipes, then starts fresh.
func (ix *Indexer) Reindex(ctx context.Context, full bool, progress ProgressFunc) (Stats, error) {
	for {
		ix.mu.Lock()
		if ix.current == nil {
			op := &inflight{done: make(chan struct{})}
			ix.current = op
			ix.mu.Unlock()

			op.stats, op.err = ix.run(ctx, full, progress)

			// Release the guard on every exit path, exactly once.
			ix.mu.Lock()
			ix.current = nil
			ix.mu.Unlock()
			close(op.done)
			return op.stats, op.err
		}
		cur := ix.current
		ix.mu.Unlock()

		if !full {
			select {
			case <-cur.done:
				return cur.stats, cur.err
			case <-ctx.Done():
				return Stats{}, ctx.Err()
			}
		}

		// Full rebuild: wait out the in-flight pass, then retry claiming
		// the slot. It never interleaves with a partial incremental run.
		select {
		case <-cur.done:
		case <-ctx.Done():
			return Stats{}, ctx.Err()
		}
	}
}

// staleFile is a discovered file classified as needing a re-parse.
type staleFile struct {
	file  logreader.DiscoveredFile
	mtime int64
	size  int64
}

// parsedFile is the outcome of one parallel parse.
type parsedFile struct {
	stale staleFile
	state *logreader.SessionState
}

func (ix *Indexer) run(ctx context.Context, full bool, progress ProgressFunc) (Stats, error) {
	var stats Stats

	if full {
		// The whole rebuild is structural: hold the barrier so readers
		// never observe the wiped dataset mid-build.
		ix.store.BeginRebuild()
		defer ix.store.EndRebuild()
		if err := ix.store.WipeAll(); err != nil {
			return stats, fmt.Errorf("indexer: wipe: %w", err)
		}
	}

	report(progress, "Discovering session logs", 0.05)
	discovered := logreader.Discover(ix.opts.BaseDir)

	stamps, err := ix.store.IndexedFiles(ctx)
	if err != nil {
		return stats, fmt.Errorf("indexer: load staleness map: %w", err)
	}

	var stale []staleFile
	present := make(map[string]bool, len(discovered))
	for _, f := range discovered {
		present[f.Path] = true
		info, err := os.Stat(f.Path)
		if err != nil {
			// Vanished between discovery and stat: neither indexed nor
			// pruned this cycle.
			indexLog.Warn("stat_failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			stats.Failed++
			continue
		}
		stamp, known := stamps[f.Path]
		// Any mtime difference means stale, including apparent reversion:
		// a reverted timestamp still means the content is not what was
		// last indexed.
		if known && stamp.Mtime == info.ModTime().UnixNano() {
			stats.Skipped++
			continue
		}
		stale = append(stale, staleFile{
			file:  f,
			mtime: info.ModTime().UnixNano(),
			size:  info.Size(),
		})
	}

	report(progress, fmt.Sprintf("Indexing %d stale session(s)", len(stale)), 0.1)

	workspaceLabels := make(map[string]string)
	perBatch := 0.7 / float64(max(1, (len(stale)+ix.opts.BatchSize-1)/ix.opts.BatchSize))

	for start := 0; start < len(stale); start += ix.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := min(start+ix.opts.BatchSize, len(stale))
		batch := stale[start:end]

		// I/O-bound parsing fans out; writes stay strictly sequential
		// against the single write connection.
		results := make([]*parsedFile, len(batch))
		g := new(errgroup.Group)
		g.SetLimit(ix.opts.Parallelism)
		for i, sf := range batch {
			i, sf := i, sf
			g.Go(func() error {
				state, ok, err := logreader.Parse(sf.file.Path)
				if err != nil {
					indexLog.Warn("parse_failed",
						slog.String("path", sf.file.Path),
						slog.String("error", err.Error()))
					return nil
				}
				if !ok {
					indexLog.Warn("unparseable_session", slog.String("path", sf.file.Path))
					return nil
				}
				results[i] = &parsedFile{stale: sf, state: state}
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range results {
			if r == nil {
				stats.Failed++
				continue
			}
			summary, turns := buildRows(r, workspaceLabels)
			if err := ix.store.IndexSession(summary, turns); err != nil {
				indexLog.Warn("write_failed",
					slog.String("path", r.stale.file.Path),
					slog.String("session", summary.SessionID),
					slog.String("error", err.Error()))
				stats.Failed++
				continue
			}
			stats.Indexed++
		}

		report(progress, fmt.Sprintf("Indexed %d/%d", min(end, len(stale)), len(stale)), perBatch)
	}

	// Prune sessions whose source files vanished. Structural: runs under
	// the barrier.
	var pruneIDs []string
	for path, stamp := range stamps {
		if !present[path] {
			pruneIDs = append(pruneIDs, stamp.SessionID)
		}
	}
	if len(pruneIDs) > 0 {
		report(progress, fmt.Sprintf("Pruning %d removed session(s)", len(pruneIDs)), 0.1)
		if !full {
			ix.store.BeginRebuild()
			defer ix.store.EndRebuild()
		}
		if err := ix.store.DeleteSessions(pruneIDs); err != nil {
			return stats, fmt.Errorf("indexer: prune: %w", err)
		}
		stats.Pruned = len(pruneIDs)
	}

	report(progress, "Done", 0.05)
	indexLog.Info("reindex_complete",
		slog.Int("indexed", stats.Indexed),
		slog.Int("skipped", stats.Skipped),
		slog.Int("pruned", stats.Pruned),
		slog.Int("failed", stats.Failed))
	return stats, nil
}

// buildRows shapes a replayed session into its persisted summary and
// turn records.
func buildRows(r *parsedFile, labels map[string]string) (store.SessionSummary, []store.TurnRecord) {
	state := r.state
	sessionID := state.SessionID
	if sessionID == "" {
		// Identity fallback: the log file name is the stable identity for
		// pre-snapshot logs.
		base := filepath.Base(r.stale.file.Path)
		sessionID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	summary := store.SessionSummary{
		SessionID:    sessionID,
		FilePath:     r.stale.file.Path,
		Title:        state.CustomTitle,
		CreationDate: state.CreationDate,
		RequestCount: len(state.Requests),
		FileSize:     r.stale.size,
		StorageType:  string(r.stale.file.Storage),
		FileMtime:    r.stale.mtime,
	}

	if r.stale.file.Storage == logreader.StorageWorkspace {
		wsDir := r.stale.file.WorkspaceDir
		label, ok := labels[wsDir]
		if !ok {
			label = logreader.WorkspaceLabel(wsDir)
			labels[wsDir] = label
		}
		summary.WorkspacePath = label
	}

	var turns []store.TurnRecord
	for i, req := range state.Requests {
		response, anns := extract.Extract(req)

		turn := store.TurnRow{
			SessionID: sessionID,
			TurnIndex: i,
			Prompt:    req.Message.Text,
			Response:  response,
			Agent:     req.Agent.ID,
			Model:     req.ModelID,
			Timestamp: req.Timestamp,
			Vote:      req.Vote,
		}
		if req.Result != nil {
			if req.Result.Timings != nil {
				turn.DurationMs = req.Result.Timings.TotalElapsed
			}
			if usage := req.Result.Metadata.Usage; usage != nil {
				turn.TotalTokens = usage.TotalTokens
				turn.PromptTokens = usage.PromptTokens
				turn.CompletionTokens = usage.CompletionTokens
			}
		}

		rows := make([]store.AnnotationRow, 0, len(anns))
		for _, a := range anns {
			rows = append(rows, store.AnnotationRow{
				Kind:   a.Kind,
				Name:   a.Name,
				URI:    a.URI,
				Detail: a.Detail,
			})
		}
		turns = append(turns, store.TurnRecord{Turn: turn, Annotations: rows})

		summary.ModelIDs = append(summary.ModelIDs, req.ModelID)
		summary.Agents = append(summary.Agents, req.Agent.ID)
		summary.TotalTokens += turn.TotalTokens
		if req.Vote != 0 {
			summary.HasVotes = true
		}
		summary.LastMessage = truncate(req.Message.Text, lastMessageMax)
	}

	return summary, turns
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// report delivers advisory progress; a nil callback is fine.
func report(progress ProgressFunc, message string, increment float64) {
	if progress != nil {
		progress(message, increment)
	}
}
