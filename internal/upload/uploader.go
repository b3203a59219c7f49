// Package upload attaches evidence images to their Jira issues and posts the
// verdict comment.
package upload

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"evidencebot/internal/domain"
	"evidencebot/internal/evidence"
	"evidencebot/internal/integrations/jira"
)

var (
	ErrInvalidResultType = errors.New("result type must be sucessos or falhas")
	ErrEvidenceMissing   = errors.New("evidence file not found")
	ErrNoIssueKeys       = errors.New("no issue keys given")
	ErrNoValidIssues     = errors.New("no valid issue found")
)

var issueKeyRe = regexp.MustCompile(`^[A-Z]+-\d+$`)

// ValidIssueKey reports whether key looks like PROJ-123.
func ValidIssueKey(key string) bool { return issueKeyRe.MatchString(key) }

// Tracker is the subset of the Jira client the uploader needs.
type Tracker interface {
	IssueExists(ctx context.Context, key string) (bool, error)
	UploadAttachment(ctx context.Context, key, path string) (jira.Attachment, error)
	AddEvidenceComment(ctx context.Context, key string, passed bool, att jira.Attachment) error
	SearchRecent(ctx context.Context, projectKey string, limit int) ([]string, error)
}

// ItemResult is the outcome of pushing one evidence file.
type ItemResult struct {
	TicketKey    string `json:"issue_key"`
	File         string `json:"arquivo"`
	ResultType   string `json:"tipo"`
	AttachmentID string `json:"attachment_id,omitempty"`
	OK           bool   `json:"sucesso"`
	Stage        string `json:"etapa,omitempty"`
	Error        string `json:"erro,omitempty"`
}

// MissingIssue is a requested key Jira does not know, with nearby keys.
type MissingIssue struct {
	Key         string   `json:"issue_key"`
	Suggestions []string `json:"sugestoes,omitempty"`
}

type Summary struct {
	Processed int            `json:"processados"`
	Sent      int            `json:"enviados"`
	Failed    int            `json:"falhas"`
	Issues    []string       `json:"issues,omitempty"`
	Invalid   []string       `json:"invalidas,omitempty"`
	NotFound  []MissingIssue `json:"nao_encontradas,omitempty"`
	Items     []ItemResult   `json:"itens"`
}

func (s *Summary) add(r ItemResult) {
	s.Processed++
	if r.OK {
		s.Sent++
	} else {
		s.Failed++
	}
	s.Items = append(s.Items, r)
}

// Err aggregates the failed items, or returns nil when all succeeded.
func (s Summary) Err() error {
	var errs *multierror.Error
	for _, it := range s.Items {
		if !it.OK {
			errs = multierror.Append(errs, fmt.Errorf("%s (%s) %s: %s", it.TicketKey, it.File, it.Stage, it.Error))
		}
	}
	return errs.ErrorOrNil()
}

type Uploader struct {
	tracker  Tracker
	ws       *evidence.Workspace
	logger   *zap.Logger
	onResult func(domain.UploadRecord)
	now      func() time.Time
}

type Option func(*Uploader)

// WithRecorder registers a callback invoked after every pushed file.
func WithRecorder(fn func(domain.UploadRecord)) Option {
	return func(u *Uploader) { u.onResult = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(u *Uploader) { u.logger = l }
}

func New(tracker Tracker, ws *evidence.Workspace, opts ...Option) *Uploader {
	u := &Uploader{tracker: tracker, ws: ws, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// PushAll uploads every PNG in falhas/ and sucessos/. Per-file failures are
// recorded in the summary; the error is only set when the workspace cannot be
// read.
func (u *Uploader) PushAll(ctx context.Context) (Summary, error) {
	files, err := u.ws.List()
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	seen := map[string]bool{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		s.add(u.push(ctx, f))
		if !seen[f.TicketKey] {
			seen[f.TicketKey] = true
			s.Issues = append(s.Issues, f.TicketKey)
		}
	}
	u.logger.Info("evidence upload finished", zap.Int("processed", s.Processed), zap.Int("sent", s.Sent), zap.Int("failed", s.Failed))
	return s, nil
}

// PushOne uploads the evidence of one ticket from the given result dir.
func (u *Uploader) PushOne(ctx context.Context, key, resultType string) (ItemResult, error) {
	if _, ok := domain.OutcomeFromDir(resultType); !ok {
		return ItemResult{}, fmt.Errorf("%q: %w", resultType, ErrInvalidResultType)
	}
	f, ok := u.ws.Find(key, resultType)
	if !ok {
		return ItemResult{}, fmt.Errorf("%s in %s: %w", key, resultType, ErrEvidenceMissing)
	}
	res := u.push(ctx, f)
	if !res.OK {
		return res, fmt.Errorf("%s %s: %s", key, res.Stage, res.Error)
	}
	return res, nil
}

// PushForIssues validates the requested keys against Jira and uploads the
// evidence whose ticket key matches one of them.
func (u *Uploader) PushForIssues(ctx context.Context, keys []string) (Summary, error) {
	var s Summary
	var requested []string
	for _, k := range keys {
		if k = strings.ToUpper(strings.TrimSpace(k)); k != "" {
			requested = append(requested, k)
		}
	}
	if len(requested) == 0 {
		return s, ErrNoIssueKeys
	}

	valid := map[string]bool{}
	for _, k := range requested {
		if !ValidIssueKey(k) {
			s.Invalid = append(s.Invalid, k)
			continue
		}
		exists, err := u.tracker.IssueExists(ctx, k)
		if err != nil {
			return s, fmt.Errorf("checking %s: %w", k, err)
		}
		if !exists {
			suggestions, err := u.tracker.SearchRecent(ctx, jira.ProjectKey(k), 3)
			if err != nil {
				u.logger.Warn("similar issue search failed", zap.String("ticket", k), zap.Error(err))
			}
			s.NotFound = append(s.NotFound, MissingIssue{Key: k, Suggestions: suggestions})
			continue
		}
		if !valid[k] {
			valid[k] = true
			s.Issues = append(s.Issues, k)
		}
	}
	if len(valid) == 0 {
		return s, ErrNoValidIssues
	}

	files, err := u.ws.List()
	if err != nil {
		return s, err
	}
	for _, f := range files {
		if !valid[f.TicketKey] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return s, err
		}
		s.add(u.push(ctx, f))
	}
	if s.Processed == 0 {
		return s, fmt.Errorf("%s: %w", strings.Join(s.Issues, ", "), ErrEvidenceMissing)
	}
	return s, nil
}

func (u *Uploader) push(ctx context.Context, f evidence.File) ItemResult {
	res := ItemResult{TicketKey: f.TicketKey, File: f.Filename, ResultType: f.Dir}
	log := u.logger.With(zap.String("ticket", f.TicketKey), zap.String("file", f.Filename))

	att, err := u.tracker.UploadAttachment(ctx, f.TicketKey, f.Path)
	if err != nil {
		res.Stage, res.Error = "attach", err.Error()
		log.Error("attachment failed", zap.Error(err))
		u.record(res)
		return res
	}
	res.AttachmentID = att.ID

	if err := u.tracker.AddEvidenceComment(ctx, f.TicketKey, f.Outcome().Passed(), att); err != nil {
		res.Stage, res.Error = "comment", err.Error()
		log.Error("comment failed", zap.Error(err))
		u.record(res)
		return res
	}
	res.OK = true
	log.Info("evidence sent", zap.String("attachment_id", att.ID))
	u.record(res)
	return res
}

func (u *Uploader) record(res ItemResult) {
	if u.onResult == nil {
		return
	}
	u.onResult(domain.UploadRecord{
		TicketKey:    res.TicketKey,
		Filename:     res.File,
		ResultType:   res.ResultType,
		AttachmentID: res.AttachmentID,
		OK:           res.OK,
		Error:        res.Error,
		UploadedAt:   u.now(),
	})
}

// FormatSummary returns a human-readable summary of an upload batch.
func FormatSummary(s Summary) string {
	var lines []string
	if s.Processed == 0 {
		lines = append(lines, "No evidence sent.")
	} else {
		msg := fmt.Sprintf("Sent %d of %d evidence files", s.Sent, s.Processed)
		if s.Failed > 0 {
			msg += fmt.Sprintf(" (%d failed)", s.Failed)
		}
		lines = append(lines, msg+".")
	}
	if len(s.Invalid) > 0 {
		lines = append(lines, "Invalid keys: "+strings.Join(s.Invalid, ", "))
	}
	for _, m := range s.NotFound {
		line := "Not found: " + m.Key
		if len(m.Suggestions) > 0 {
			line += " (did you mean " + strings.Join(m.Suggestions, ", ") + "?)"
		}
		lines = append(lines, line)
	}
	for _, it := range s.Items {
		if !it.OK {
			lines = append(lines, fmt.Sprintf("- %s %s: %s failed: %s", it.TicketKey, it.File, it.Stage, it.Error))
		}
	}
	return strings.Join(lines, "\n")
}
