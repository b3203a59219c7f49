package app

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"evidencebot/internal/capture"
	"evidencebot/internal/config"
	"evidencebot/internal/domain"
	"evidencebot/internal/evidence"
	"evidencebot/internal/httpx"
	"evidencebot/internal/integrations/jira"
	"evidencebot/internal/llm"
	"evidencebot/internal/logging"
	"evidencebot/internal/notify"
	"evidencebot/internal/storage/sqlite"
	"evidencebot/internal/upload"
)

// runtime holds the components built from one loaded configuration.
type runtime struct {
	cfg       config.Config
	logger    *zap.Logger
	db        *sql.DB
	ledger    sqlite.Ledger
	workspace *evidence.Workspace
	processor *evidence.Processor
	// uploader is nil when Jira is not configured.
	uploader *upload.Uploader
	notifier *notify.Notifier
	// busy admits one run or upload at a time across the HTTP API, the
	// scheduler and the watcher.
	busy    *semaphore.Weighted
	closers []func() error
}

type runtimeOptions struct {
	naming    string
	skipClean bool
}

func newRuntime(opts runtimeOptions) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, busy: semaphore.NewWeighted(1)}
	rt.closers = append(rt.closers, func() error { _ = logger.Sync(); return nil })

	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	logger.Info("config loaded",
		zap.String("evidence_dir", cfg.EvidenceDir),
		zap.String("naming", cfg.Naming),
		zap.String("capture_mode", cfg.CaptureMode),
		zap.String("ambiguous_policy", cfg.AmbiguousPolicy),
		zap.Bool("jira", cfg.JiraConfigured()),
		zap.Bool("slack", cfg.SlackConfigured()),
		zap.String("timezone", cfg.Timezone),
		zap.Duration("external_http_timeout", appliedHTTPTimeout))

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	rt.db = db
	rt.ledger = sqlite.Ledger{DB: db}
	rt.closers = append(rt.closers, db.Close)
	logger.Info("database initialized", zap.String("path", cfg.DBPath))

	rt.workspace = evidence.NewWorkspace(cfg.EvidenceDir)
	if err := rt.buildProcessor(opts); err != nil {
		rt.Close()
		return nil, err
	}

	if cfg.JiraConfigured() {
		client := jira.NewClient(cfg.JiraURL, cfg.JiraEmail, cfg.JiraAPIToken, httpx.ExternalHTTPClient(), logger)
		rt.uploader = upload.New(client, rt.workspace,
			upload.WithLogger(logger),
			upload.WithRecorder(rt.recordUpload))
	}
	if cfg.SlackConfigured() {
		rt.notifier = notify.New(slack.New(cfg.SlackBotToken), cfg.SlackChannelID, logger)
	}
	return rt, nil
}

func (rt *runtime) buildProcessor(opts runtimeOptions) error {
	cfg := rt.cfg
	kw, err := evidence.LoadKeywords(cfg.KeywordsPath)
	if err != nil {
		return err
	}
	policy, err := evidence.ParseAmbiguousPolicy(cfg.AmbiguousPolicy)
	if err != nil {
		return err
	}
	classifierOpts := []evidence.ClassifierOption{
		evidence.WithPolicy(policy),
		evidence.WithClassifierLogger(rt.logger),
	}
	if policy == evidence.PolicyLLM {
		judge := llm.NewJudge(llm.Config{
			Provider:        cfg.LLMProvider,
			Model:           cfg.LLMModel,
			AnthropicAPIKey: cfg.AnthropicAPIKey,
			OpenAIAPIKey:    cfg.OpenAIAPIKey,
		}, httpx.ExternalHTTPClient(), rt.logger)
		classifierOpts = append(classifierOpts, evidence.WithResolver(judge))
	}

	namingValue := cfg.Naming
	if opts.naming != "" {
		namingValue = opts.naming
	}
	naming, err := evidence.ParseNaming(namingValue)
	if err != nil {
		return err
	}

	var capturer capture.Capturer = capture.Placeholder{}
	if cfg.CaptureMode == "browser" {
		browser := capture.NewBrowser(capture.BrowserConfig{
			Bin:         cfg.BrowserBin,
			PageTimeout: cfg.BrowserTimeout(),
		}, rt.logger)
		rt.closers = append(rt.closers, browser.Close)
		capturer = capture.Fallback{Primary: browser, Secondary: capture.Placeholder{}, Logger: rt.logger}
	}

	rt.processor = evidence.NewProcessor(rt.workspace, evidence.ProcessorConfig{
		Naming:     naming,
		Capturer:   capturer,
		Classifier: evidence.NewClassifier(kw, classifierOpts...),
		Extractor:  evidence.NewExtractor(kw.TicketPrefixes...),
		Logger:     rt.logger,
		SkipClean:  opts.skipClean,
	})
	return nil
}

func (rt *runtime) recordUpload(u domain.UploadRecord) {
	if err := rt.ledger.RecordUpload(u); err != nil {
		rt.logger.Warn("upload not recorded", zap.String("ticket", u.TicketKey), zap.Error(err))
	}
}

// finishRun persists and announces a processing run.
func (rt *runtime) finishRun(run domain.RunResult) {
	if err := rt.ledger.RecordRun(run); err != nil {
		rt.logger.Warn("run not recorded", zap.String("run_id", run.RunID), zap.Error(err))
	}
	rt.notifier.RunFinished(run)
}

func (rt *runtime) requireUploader() error {
	if rt.uploader == nil {
		return fmt.Errorf("jira is not configured (jira_url, jira_email and jira_api_token are required)")
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "close: %v\n", err)
		}
	}
	rt.closers = nil
}
