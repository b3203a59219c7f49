package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evidencebot/internal/capture"
	"evidencebot/internal/domain"
)

// Processor turns one report document into evidence files. A Processor is
// not safe for concurrent runs over the same workspace.
type Processor struct {
	ws         *Workspace
	extractor  *Extractor
	classifier *Classifier
	emitter    *Emitter
	logger     *zap.Logger
	skipClean  bool
	now        func() time.Time
}

type ProcessorConfig struct {
	Naming     Naming
	Capturer   capture.Capturer
	Classifier *Classifier
	Extractor  *Extractor
	Logger     *zap.Logger
	// SkipClean keeps evidence from earlier runs in place.
	SkipClean bool
}

func NewProcessor(ws *Workspace, cfg ProcessorConfig) *Processor {
	p := &Processor{
		ws:         ws,
		extractor:  cfg.Extractor,
		classifier: cfg.Classifier,
		logger:     cfg.Logger,
		skipClean:  cfg.SkipClean,
		now:        time.Now,
	}
	if p.extractor == nil {
		p.extractor = NewExtractor()
	}
	if p.classifier == nil {
		p.classifier = NewClassifier(DefaultKeywords())
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	c := cfg.Capturer
	if c == nil {
		c = capture.Placeholder{}
	}
	p.emitter = NewEmitter(ws, cfg.Naming, c)
	return p
}

func (p *Processor) Workspace() *Workspace { return p.ws }

// RunFile processes the report at path.
func (p *Processor) RunFile(ctx context.Context, path string) (domain.RunResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()
	return p.Run(ctx, filepath.Base(path), f)
}

// Run parses the document, clears the evidence dirs and emits one image per
// ticket key. A document without entries yields NoEntries and no error;
// per-entry capture or write failures are collected in Failures.
func (p *Processor) Run(ctx context.Context, source string, r io.Reader) (domain.RunResult, error) {
	result := domain.RunResult{
		RunID:     uuid.NewString(),
		Source:    source,
		StartedAt: p.now(),
	}
	log := p.logger.With(zap.String("run_id", result.RunID), zap.String("source", source))

	doc, err := ParseDocument(r)
	if err != nil {
		return result, err
	}

	if p.skipClean {
		err = p.ws.Ensure()
	} else {
		var removed int
		removed, err = p.ws.Clean()
		log.Debug("evidence dirs cleared", zap.Int("removed", removed))
	}
	if err != nil {
		return result, fmt.Errorf("prepare evidence dirs: %w", err)
	}

	entries, strategy := doc.Entries()
	result.Stats.Entries = len(entries)
	if len(entries) == 0 {
		log.Warn("no test entries found in report")
		result.NoEntries = true
		result.FinishedAt = p.now()
		return result, nil
	}
	log.Info("test entries found", zap.Int("entries", len(entries)), zap.String("strategy", strategy))

	ledger := NewLedger()
	byKey := make(map[string]int) // key -> index into result.Records

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			result.FinishedAt = p.now()
			result.Stats = p.stats(result)
			return result, err
		}

		key, ok := p.extractor.Extract(entry.IdentifierText())
		synthetic := !ok
		if synthetic {
			key = PlaceholderKey(entry.Index)
		}
		decision := p.classifier.Classify(ctx, entry)

		action := ledger.Peek(key, decision.Outcome)
		log.Debug("entry classified",
			zap.Int("entry", entry.Index),
			zap.String("ticket", key),
			zap.String("outcome", decision.Outcome.String()),
			zap.String("signal", decision.Signal),
			zap.Stringer("action", action))
		if action == ActionIgnore {
			continue
		}

		// The ledger only learns the outcome once its file exists, so a
		// failed capture leaves the key open for a later entry.
		rec, err := p.emitter.Emit(ctx, key, decision.Outcome, entry)
		if err != nil {
			stage := "emit"
			var emitErr *EmitError
			if errors.As(err, &emitErr) {
				stage = emitErr.Stage
			}
			log.Error("evidence not produced",
				zap.Int("entry", entry.Index), zap.String("ticket", key), zap.String("stage", stage), zap.Error(err))
			result.Failures = append(result.Failures, domain.ItemFailure{
				Index: entry.Index, TicketKey: key, Stage: stage, Err: err.Error(),
			})
			continue
		}
		rec.Synthetic = synthetic
		ledger.Commit(key, decision.Outcome)

		if action == ActionUpgrade {
			if idx, ok := byKey[key]; ok {
				prev := result.Records[idx]
				if err := p.emitter.Retract(prev); err != nil {
					result.Failures = append(result.Failures, domain.ItemFailure{
						Index: entry.Index, TicketKey: key, Stage: "retract", Err: err.Error(),
					})
				}
				result.Retracted = append(result.Retracted, prev)
				result.Records = append(result.Records[:idx], result.Records[idx+1:]...)
				delete(byKey, key)
				for k, i := range byKey {
					if i > idx {
						byKey[k] = i - 1
					}
				}
			}
		}
		byKey[key] = len(result.Records)
		result.Records = append(result.Records, rec)
	}

	result.FinishedAt = p.now()
	result.Stats = p.stats(result)
	log.Info("report processed",
		zap.Int("passed", result.Stats.Passed),
		zap.Int("failed", result.Stats.Failed),
		zap.Int("errors", result.Stats.Errors))
	return result, nil
}

func (p *Processor) stats(r domain.RunResult) domain.RunStats {
	s := domain.RunStats{Entries: r.Stats.Entries, Errors: len(r.Failures)}
	for _, rec := range r.Records {
		if rec.Passed() {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	s.Total = s.Passed + s.Failed
	return s
}
