package domain

import (
	"path/filepath"
	"time"
)

// Evidence directory names under the evidence root.
const (
	DirSuccess = "sucessos"
	DirFailure = "falhas"
)

// Outcome is the binary verdict for a report entry. There is no unknown state.
type Outcome int

const (
	OutcomePass Outcome = iota
	OutcomeFail
)

func (o Outcome) Passed() bool { return o == OutcomePass }

func (o Outcome) String() string {
	if o == OutcomeFail {
		return "fail"
	}
	return "pass"
}

// Dir returns the evidence directory name for the outcome.
func (o Outcome) Dir() string {
	if o == OutcomeFail {
		return DirFailure
	}
	return DirSuccess
}

// Label is the singular status word used in filenames and API payloads.
func (o Outcome) Label() string {
	if o == OutcomeFail {
		return "falha"
	}
	return "sucesso"
}

// OutcomeFromDir maps an evidence directory name back to its outcome.
func OutcomeFromDir(dir string) (Outcome, bool) {
	switch dir {
	case DirSuccess:
		return OutcomePass, true
	case DirFailure:
		return OutcomeFail, true
	}
	return OutcomePass, false
}

// ReportEntry is one test-case-like node found in a report document.
type ReportEntry struct {
	Index        int // 1-based document order
	Text         string
	Label        string // name text of a structured report entry, if any
	Markup       string
	Classes      []string
	LabelClasses []string // classes of the entry's status label element, if any
	Context      string   // ancestor tag path, e.g. "html>body>div.suite"
}

// IdentifierText is the text the ticket key is read from.
func (e ReportEntry) IdentifierText() string {
	if e.Label != "" {
		return e.Label
	}
	return e.Text
}

type EvidenceRecord struct {
	TicketKey  string  `json:"ticket_key"`
	Outcome    Outcome `json:"-"`
	Filename   string  `json:"filename"`
	Dir        string  `json:"dir"`
	EntryIndex int     `json:"entry_index"`
	Synthetic  bool    `json:"synthetic"`
}

func (r EvidenceRecord) Passed() bool { return r.Outcome.Passed() }

func (r EvidenceRecord) Path() string { return filepath.Join(r.Dir, r.Filename) }

// ItemFailure records an entry whose evidence could not be produced.
type ItemFailure struct {
	Index     int    `json:"index"`
	TicketKey string `json:"ticket_key"`
	Stage     string `json:"stage"`
	Err       string `json:"error"`
}

type RunStats struct {
	Entries int `json:"entries"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
	Errors  int `json:"errors"`
}

// RunResult is the outcome of processing one report document.
type RunResult struct {
	RunID      string           `json:"run_id"`
	Source     string           `json:"source"`
	NoEntries  bool             `json:"no_entries"`
	Stats      RunStats         `json:"stats"`
	Records    []EvidenceRecord `json:"records"`
	Retracted  []EvidenceRecord `json:"retracted,omitempty"`
	Failures   []ItemFailure    `json:"failures,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Filenames lists the emitted evidence file names in emission order.
func (r RunResult) Filenames() []string {
	names := make([]string, 0, len(r.Records))
	for _, rec := range r.Records {
		names = append(names, rec.Filename)
	}
	return names
}

// RunRecord is a persisted run summary.
type RunRecord struct {
	ID         string    `json:"id"`
	Source     string    `json:"arquivo"`
	StartedAt  time.Time `json:"inicio"`
	FinishedAt time.Time `json:"fim"`
	Entries    int       `json:"elementos_processados"`
	Passed     int       `json:"sucessos"`
	Failed     int       `json:"falhas"`
	Errors     int       `json:"erros"`
	NoEntries  bool      `json:"sem_entradas"`
}

// UploadRecord is one persisted attach-and-comment attempt.
type UploadRecord struct {
	ID           int64
	TicketKey    string
	Filename     string
	ResultType   string
	AttachmentID string
	OK           bool
	Error        string
	UploadedAt   time.Time
}
