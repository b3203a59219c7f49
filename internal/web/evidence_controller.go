package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"evidencebot/internal/domain"
	"evidencebot/internal/evidence"
	"evidencebot/internal/upload"
)

const evidencePath = "/api/evidencias"

// Runner processes one report document.
type Runner interface {
	Run(ctx context.Context, source string, r io.Reader) (domain.RunResult, error)
}

// Pusher sends evidence to the issue tracker.
type Pusher interface {
	PushForIssues(ctx context.Context, keys []string) (upload.Summary, error)
}

// RunLedger persists run summaries.
type RunLedger interface {
	RecordRun(run domain.RunResult) error
	RecentRuns(limit int) ([]domain.RunRecord, error)
}

type EvidenceController struct {
	Runner    Runner
	Workspace *evidence.Workspace
	// Pusher is nil when Jira is not configured.
	Pusher Pusher
	// Ledger is optional.
	Ledger RunLedger
	Logger *zap.Logger

	OnRun    func(domain.RunResult)
	OnUpload func(upload.Summary)

	// Busy admits one processing, upload or clean at a time. Share it with
	// anything else that writes the workspace; Register creates one when nil.
	Busy *semaphore.Weighted
}

type errorResponse struct {
	Success bool   `json:"sucesso"`
	Error   string `json:"erro"`
}

type runStats struct {
	Successes int `json:"sucessos"`
	Failures  int `json:"falhas"`
	Total     int `json:"total"`
	Errors    int `json:"erros"`
	Processed int `json:"elementos_processados"`
}

type uploadResponse struct {
	Success   bool                 `json:"sucesso"`
	Message   string               `json:"mensagem"`
	RunID     string               `json:"run_id"`
	Stats     runStats             `json:"estatisticas"`
	Filenames []string             `json:"nomes_evidencias"`
	Failures  []domain.ItemFailure `json:"erros,omitempty"`
}

type sendRequest struct {
	IssueKeys []string `json:"issue_keys"`
	IssueKey  string   `json:"issue_key"`
}

type sendResponse struct {
	Success   bool                  `json:"sucesso"`
	Message   string                `json:"mensagem"`
	Sent      int                   `json:"enviados"`
	Processed int                   `json:"total_processados"`
	Issues    []string              `json:"issues_processadas"`
	NotFound  []upload.MissingIssue `json:"nao_encontradas,omitempty"`
	Details   []upload.ItemResult   `json:"detalhes"`
}

// Register implements Controller.Register
func (controller *EvidenceController) Register(router *Router) {
	if controller.Busy == nil {
		controller.Busy = semaphore.NewWeighted(1)
	}
	if controller.Logger == nil {
		controller.Logger = zap.NewNop()
	}
	router = router.Group(evidencePath)

	router.POST("/upload", controller.uploadAction)
	router.POST("/enviar", controller.sendAction)
	router.GET("/status", controller.statusAction)
	router.GET("/lista", controller.listAction)
	router.POST("/limpar", controller.cleanAction)
	router.GET("/historico", controller.historyAction)
	router.GET("/arquivo/:dir/:name", controller.fileAction)
}

func fail(ctx echo.Context, status int, msg string) error {
	return ctx.JSON(status, errorResponse{Error: msg})
}

func (controller *EvidenceController) uploadAction(ctx echo.Context) error {
	header, err := ctx.FormFile("log_file")
	if err != nil {
		return fail(ctx, http.StatusBadRequest, "Nenhum arquivo enviado")
	}
	if header.Filename == "" {
		return fail(ctx, http.StatusBadRequest, "Nenhum arquivo selecionado")
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".html") {
		return fail(ctx, http.StatusBadRequest, "Apenas arquivos HTML são aceitos")
	}

	if !controller.Busy.TryAcquire(1) {
		return fail(ctx, http.StatusConflict, "Processamento em andamento, tente novamente em instantes")
	}
	defer controller.Busy.Release(1)

	file, err := header.Open()
	if err != nil {
		return fail(ctx, http.StatusBadRequest, fmt.Sprintf("Erro ao ler arquivo: %v", err))
	}
	defer file.Close()

	run, err := controller.Runner.Run(ctx.Request().Context(), filepath.Base(header.Filename), file)
	if err != nil {
		controller.Logger.Error("report processing failed", zap.String("file", header.Filename), zap.Error(err))
		return fail(ctx, http.StatusInternalServerError, err.Error())
	}
	controller.finishRun(run)

	if run.NoEntries {
		return fail(ctx, http.StatusUnprocessableEntity, "Nenhum elemento de teste encontrado no arquivo")
	}
	return ctx.JSON(http.StatusOK, uploadResponse{
		Success: true,
		Message: "Evidências processadas com sucesso",
		RunID:   run.RunID,
		Stats: runStats{
			Successes: run.Stats.Passed,
			Failures:  run.Stats.Failed,
			Total:     run.Stats.Total,
			Errors:    run.Stats.Errors,
			Processed: run.Stats.Entries,
		},
		Filenames: run.Filenames(),
		Failures:  run.Failures,
	})
}

func (controller *EvidenceController) finishRun(run domain.RunResult) {
	if controller.Ledger != nil {
		if err := controller.Ledger.RecordRun(run); err != nil {
			controller.Logger.Warn("run not recorded", zap.String("run_id", run.RunID), zap.Error(err))
		}
	}
	if controller.OnRun != nil {
		controller.OnRun(run)
	}
}

func (controller *EvidenceController) sendAction(ctx echo.Context) error {
	var req sendRequest
	if err := ctx.Bind(&req); err != nil {
		return fail(ctx, http.StatusBadRequest, "Corpo da requisição inválido")
	}
	keys := req.IssueKeys
	if len(keys) == 0 && req.IssueKey != "" {
		keys = []string{req.IssueKey}
	}
	if len(keys) == 0 {
		return fail(ctx, http.StatusBadRequest, "IDs dos cards são obrigatórios")
	}
	for i, key := range keys {
		keys[i] = strings.ToUpper(strings.TrimSpace(key))
		if !upload.ValidIssueKey(keys[i]) {
			return fail(ctx, http.StatusBadRequest, fmt.Sprintf("Formato de chave inválido: %s. Use o formato: PROJ-123", key))
		}
	}
	if controller.Pusher == nil {
		return fail(ctx, http.StatusInternalServerError, "Configurações do Jira incompletas")
	}

	if !controller.Busy.TryAcquire(1) {
		return fail(ctx, http.StatusConflict, "Processamento em andamento, tente novamente em instantes")
	}
	defer controller.Busy.Release(1)

	summary, err := controller.Pusher.PushForIssues(ctx.Request().Context(), keys)
	switch {
	case errors.Is(err, upload.ErrNoValidIssues):
		return ctx.JSON(http.StatusNotFound, map[string]any{
			"sucesso":         false,
			"erro":            "Nenhuma issue válida encontrada",
			"nao_encontradas": summary.NotFound,
		})
	case errors.Is(err, upload.ErrEvidenceMissing):
		return fail(ctx, http.StatusBadRequest, "Nenhuma evidência encontrada para envio")
	case err != nil:
		controller.Logger.Error("evidence upload failed", zap.Strings("issues", keys), zap.Error(err))
		return fail(ctx, http.StatusInternalServerError, err.Error())
	}
	if controller.OnUpload != nil {
		controller.OnUpload(summary)
	}

	return ctx.JSON(http.StatusOK, sendResponse{
		Success:   summary.Failed == 0,
		Message:   fmt.Sprintf("Evidências enviadas com sucesso para %d card(s)", len(summary.Issues)),
		Sent:      summary.Sent,
		Processed: summary.Processed,
		Issues:    summary.Issues,
		NotFound:  summary.NotFound,
		Details:   summary.Items,
	})
}

func (controller *EvidenceController) statusAction(ctx echo.Context) error {
	counts, err := controller.Workspace.Status()
	if err != nil {
		controller.Logger.Warn("evidence status failed", zap.Error(err))
		return ctx.JSON(http.StatusOK, evidence.Counts{})
	}
	return ctx.JSON(http.StatusOK, counts)
}

func (controller *EvidenceController) listAction(ctx echo.Context) error {
	files, err := controller.Workspace.List()
	if err != nil {
		return ctx.JSON(http.StatusOK, map[string]any{
			"sucesso": false, "erro": err.Error(), "evidencias": []evidence.File{}, "total": 0,
		})
	}
	if files == nil {
		files = []evidence.File{}
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"sucesso": true, "evidencias": files, "total": len(files),
	})
}

func (controller *EvidenceController) cleanAction(ctx echo.Context) error {
	if !controller.Busy.TryAcquire(1) {
		return fail(ctx, http.StatusConflict, "Processamento em andamento, tente novamente em instantes")
	}
	defer controller.Busy.Release(1)

	removed, err := controller.Workspace.Clean()
	if err != nil {
		return fail(ctx, http.StatusInternalServerError, err.Error())
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"sucesso":            true,
		"mensagem":           "Limpeza concluída com sucesso",
		"arquivos_removidos": removed,
	})
}

func (controller *EvidenceController) historyAction(ctx echo.Context) error {
	limit := 20
	if v := ctx.QueryParam("limite"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fail(ctx, http.StatusBadRequest, "limite deve ser um inteiro positivo")
		}
		limit = n
	}
	runs := []domain.RunRecord{}
	if controller.Ledger != nil {
		recent, err := controller.Ledger.RecentRuns(limit)
		if err != nil {
			return fail(ctx, http.StatusInternalServerError, err.Error())
		}
		runs = append(runs, recent...)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"sucesso": true, "execucoes": runs})
}

func (controller *EvidenceController) fileAction(ctx echo.Context) error {
	dir, ok := controller.Workspace.DirByName(ctx.Param("dir"))
	name := ctx.Param("name")
	if !ok || name != filepath.Base(name) || !strings.EqualFold(filepath.Ext(name), ".png") {
		return fail(ctx, http.StatusNotFound, "Evidência não encontrada")
	}
	path := filepath.Join(dir, name)
	if err := ctx.File(path); err != nil {
		return fail(ctx, http.StatusNotFound, "Evidência não encontrada")
	}
	return nil
}
