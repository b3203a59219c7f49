package evidence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"evidencebot/internal/capture"
	"evidencebot/internal/domain"
)

// Naming selects the evidence filename convention.
type Naming string

const (
	NamingPlain    Naming = "plain"    // {key}.png
	NamingSuffixed Naming = "suffixed" // {key}_sucesso.png / {key}_falha.png
)

func ParseNaming(s string) (Naming, error) {
	switch n := Naming(strings.ToLower(strings.TrimSpace(s))); n {
	case "":
		return NamingPlain, nil
	case NamingPlain, NamingSuffixed:
		return n, nil
	}
	return "", fmt.Errorf("naming must be plain or suffixed, got %q", s)
}

func (n Naming) Filename(key string, o domain.Outcome) string {
	if n == NamingSuffixed {
		return key + "_" + o.Label() + ".png"
	}
	return key + ".png"
}

// EmitError tags a failed emission with the stage that failed.
type EmitError struct {
	Stage string // "capture" or "write"
	Err   error
}

func (e *EmitError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *EmitError) Unwrap() error { return e.Err }

// Emitter writes one image per accepted record under the workspace.
type Emitter struct {
	ws       *Workspace
	naming   Naming
	capturer capture.Capturer
}

func NewEmitter(ws *Workspace, naming Naming, c capture.Capturer) *Emitter {
	if naming == "" {
		naming = NamingPlain
	}
	return &Emitter{ws: ws, naming: naming, capturer: c}
}

func (e *Emitter) Emit(ctx context.Context, key string, o domain.Outcome, entry domain.ReportEntry) (domain.EvidenceRecord, error) {
	rec := domain.EvidenceRecord{
		TicketKey:  key,
		Outcome:    o,
		Filename:   e.naming.Filename(key, o),
		Dir:        e.ws.Dir(o),
		EntryIndex: entry.Index,
	}

	data, err := e.capturer.Capture(ctx, capture.Shot{
		TicketKey: key,
		Passed:    o.Passed(),
		Title:     entry.Label,
		Text:      entry.Text,
		Markup:    entry.Markup,
		Index:     entry.Index,
	})
	if err != nil {
		return rec, &EmitError{Stage: "capture", Err: err}
	}
	if err := os.WriteFile(rec.Path(), data, 0644); err != nil {
		return rec, &EmitError{Stage: "write", Err: err}
	}
	return rec, nil
}

// Retract removes the file of a previously emitted record.
func (e *Emitter) Retract(rec domain.EvidenceRecord) error {
	if err := os.Remove(rec.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("retract %s: %w", filepath.Base(rec.Path()), err)
	}
	return nil
}
