package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const defaultPageTimeout = 30 * time.Second

type BrowserConfig struct {
	Bin         string // empty: look up a local Chrome/Chromium
	PageTimeout time.Duration
	Width       int
	Height      int
}

// Browser renders an evidence card in headless Chrome and screenshots it.
// Chrome is launched on first use and shared until Close.
type Browser struct {
	cfg    BrowserConfig
	logger *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

func NewBrowser(cfg BrowserConfig, logger *zap.Logger) *Browser {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = defaultPageTimeout
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{cfg: cfg, logger: logger}
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	bin := b.cfg.Bin
	if bin == "" {
		if found, ok := launcher.LookPath(); ok {
			bin = found
		}
	}
	l := launcher.New().Headless(true)
	if bin != "" {
		l = l.Bin(bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	b.logger.Info("browser connected", zap.String("bin", bin))
	b.browser = browser
	return browser, nil
}

func (b *Browser) Capture(ctx context.Context, shot Shot) ([]byte, error) {
	doc, err := RenderCard(shot)
	if err != nil {
		return nil, err
	}
	browser, err := b.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             b.cfg.Width,
		Height:            b.cfg.Height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		b.logger.Warn("failed to set viewport", zap.Error(err))
	}

	p := page.Context(ctx).Timeout(b.cfg.PageTimeout)
	if err := p.SetDocumentContent(doc); err != nil {
		return nil, fmt.Errorf("set card content: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait card load: %w", err)
	}
	data, err := p.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return data, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

const maxCardSnippet = 4000

var cardTemplate = template.Must(template.New("card").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>
body{margin:0;font-family:Arial,Helvetica,sans-serif;background:#f8f9fa}
.header{background:{{.Color}};color:#fff;padding:32px 40px}
.header h1{margin:0;font-size:36px}
.header .status{font-size:22px;margin-top:8px;font-weight:bold}
.card{margin:32px 40px;padding:24px;background:#fff;border-left:8px solid {{.Color}};border-radius:6px}
.meta{color:#6c757d;font-size:14px;margin-bottom:16px}
.snippet{font-size:15px;line-height:1.4;overflow:hidden;max-height:420px}
</style></head><body>
<div class="header"><h1>{{.TicketKey}}</h1><div class="status">TESTE AUTOMAÇÃO {{.Status}}</div></div>
<div class="card"><div class="meta">Entrada #{{.Index}} · {{.Date}}</div>
<div class="snippet">{{if .Markup}}{{.Markup}}{{else}}{{.Text}}{{end}}</div></div>
</body></html>`))

// RenderCard returns the HTML document screenshotted for a shot.
func RenderCard(shot Shot) (string, error) {
	if shot.TicketKey == "" {
		return "", errors.New("render card: empty ticket key")
	}
	color := "#dc143c"
	if shot.Passed {
		color = "#228b22"
	}
	markup := shot.Markup
	if len(markup) > maxCardSnippet {
		markup = ""
	}
	data := struct {
		TicketKey string
		Status    string
		Color     template.CSS
		Index     int
		Date      string
		Markup    template.HTML
		Text      string
	}{
		TicketKey: shot.TicketKey,
		Status:    shot.Status(),
		Color:     template.CSS(color),
		Index:     shot.Index,
		Date:      time.Now().Format("02/01/2006 15:04"),
		Markup:    template.HTML(markup),
		Text:      shot.Text,
	}
	var buf bytes.Buffer
	if err := cardTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render card: %w", err)
	}
	return buf.String(), nil
}
