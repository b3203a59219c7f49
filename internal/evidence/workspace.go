package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"evidencebot/internal/domain"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// Workspace is the evidence root holding the sucessos/ and falhas/ dirs.
type Workspace struct {
	root string
}

func NewWorkspace(root string) *Workspace {
	return &Workspace{root: root}
}

func (w *Workspace) Root() string { return w.root }

func (w *Workspace) Dir(o domain.Outcome) string {
	return filepath.Join(w.root, o.Dir())
}

// DirByName resolves "sucessos" or "falhas" to a path.
func (w *Workspace) DirByName(name string) (string, bool) {
	o, ok := domain.OutcomeFromDir(name)
	if !ok {
		return "", false
	}
	return w.Dir(o), true
}

func (w *Workspace) Ensure() error {
	for _, o := range []domain.Outcome{domain.OutcomeFail, domain.OutcomePass} {
		if err := os.MkdirAll(w.Dir(o), 0755); err != nil {
			return fmt.Errorf("create %s: %w", o.Dir(), err)
		}
	}
	return nil
}

// Clean removes image files from both evidence dirs and recreates them.
// It returns the number of files removed; per-file failures are aggregated.
func (w *Workspace) Clean() (int, error) {
	var errs *multierror.Error
	removed := 0
	for _, o := range []domain.Outcome{domain.OutcomeFail, domain.OutcomePass} {
		dir := w.Dir(o)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = multierror.Append(errs, fmt.Errorf("read %s: %w", o.Dir(), err))
			}
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("remove %s: %w", e.Name(), err))
				continue
			}
			removed++
		}
	}
	if err := w.Ensure(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return removed, errs.ErrorOrNil()
}

// File is one evidence image on disk.
type File struct {
	Name      string `json:"nome"`
	TicketKey string `json:"ticket"`
	Filename  string `json:"arquivo"`
	Status    string `json:"status"`
	Dir       string `json:"diretorio"`
	Path      string `json:"caminho"`
	Size      int64  `json:"tamanho"`
}

func (f File) Outcome() domain.Outcome {
	o, _ := domain.OutcomeFromDir(f.Dir)
	return o
}

// TicketKeyFromFilename strips the extension and any _sucesso/_falha suffix.
func TicketKeyFromFilename(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, suffix := range []string{"_" + domain.OutcomePass.Label(), "_" + domain.OutcomeFail.Label()} {
		if strings.HasSuffix(stem, suffix) {
			return strings.TrimSuffix(stem, suffix)
		}
	}
	return stem
}

// List returns the PNG evidence in falhas/ then sucessos/, each sorted by name.
func (w *Workspace) List() ([]File, error) {
	var files []File
	for _, o := range []domain.Outcome{domain.OutcomeFail, domain.OutcomePass} {
		dir := w.Dir(o)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", o.Dir(), err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, e := range entries {
			if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ".png" {
				continue
			}
			var size int64
			if info, err := e.Info(); err == nil {
				size = info.Size()
			}
			key := TicketKeyFromFilename(e.Name())
			files = append(files, File{
				Name:      key,
				TicketKey: key,
				Filename:  e.Name(),
				Status:    o.Label(),
				Dir:       o.Dir(),
				Path:      filepath.Join(dir, e.Name()),
				Size:      size,
			})
		}
	}
	return files, nil
}

// Counts summarises the evidence currently on disk.
type Counts struct {
	Failures  int  `json:"falhas"`
	Successes int  `json:"sucessos"`
	Total     int  `json:"total"`
	Processed bool `json:"processado"`
}

func (w *Workspace) Status() (Counts, error) {
	files, err := w.List()
	if err != nil {
		return Counts{}, err
	}
	var c Counts
	for _, f := range files {
		if f.Dir == domain.DirFailure {
			c.Failures++
		} else {
			c.Successes++
		}
	}
	c.Total = c.Failures + c.Successes
	c.Processed = c.Total > 0
	return c, nil
}

// Find returns the evidence file for key in the named dir, accepting both
// naming conventions.
func (w *Workspace) Find(key, dirName string) (File, bool) {
	o, ok := domain.OutcomeFromDir(dirName)
	if !ok {
		return File{}, false
	}
	dir := w.Dir(o)
	for _, name := range []string{NamingPlain.Filename(key, o), NamingSuffixed.Filename(key, o)} {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		return File{
			Name:      key,
			TicketKey: key,
			Filename:  name,
			Status:    o.Label(),
			Dir:       o.Dir(),
			Path:      p,
			Size:      info.Size(),
		}, true
	}
	return File{}, false
}
