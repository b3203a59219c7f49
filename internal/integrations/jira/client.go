// Package jira talks to the Jira Cloud REST v3 API.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// MaxAttachmentBytes is the largest evidence file accepted for upload.
const MaxAttachmentBytes = 10 << 20

var (
	ErrNotFound           = errors.New("issue not found")
	ErrAttachmentTooLarge = errors.New("attachment exceeds 10MB")
)

// APIError is a non-success response from Jira.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira %s returned %d: %s", e.Op, e.Status, e.Body)
}

type Issue struct {
	Key        string
	Summary    string
	Status     string
	IssueType  string
	ProjectKey string
}

type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

type Client struct {
	baseURL    string
	email      string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, email, token string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// AttachmentContentURL is the URL Jira serves the attachment content from.
func (c *Client) AttachmentContentURL(id string) string {
	return c.baseURL + "/rest/api/3/attachment/content/" + url.PathEscape(id)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, op string, okStatus ...int) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jira %s: %w", op, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	for _, s := range okStatus {
		if resp.StatusCode == s {
			return body, nil
		}
	}
	if resp.StatusCode == http.StatusNotFound {
		return body, ErrNotFound
	}
	return body, &APIError{Op: op, Status: resp.StatusCode, Body: truncate(string(body), 500)}
}

func (c *Client) GetIssue(ctx context.Context, key string) (Issue, error) {
	req, err := c.newRequest(ctx, http.MethodGet,
		"/rest/api/3/issue/"+url.PathEscape(key)+"?fields=summary,status,issuetype,project", nil)
	if err != nil {
		return Issue{}, err
	}
	body, err := c.do(req, "get issue", http.StatusOK)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Issue{}, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return Issue{}, err
	}
	if !gjson.ValidBytes(body) {
		return Issue{}, fmt.Errorf("parsing issue %s: invalid json", key)
	}
	res := gjson.ParseBytes(body)
	return Issue{
		Key:        res.Get("key").String(),
		Summary:    res.Get("fields.summary").String(),
		Status:     res.Get("fields.status.name").String(),
		IssueType:  res.Get("fields.issuetype.name").String(),
		ProjectKey: res.Get("fields.project.key").String(),
	}, nil
}

// IssueExists reports whether key resolves to an issue visible to the user.
func (c *Client) IssueExists(ctx context.Context, key string) (bool, error) {
	_, err := c.GetIssue(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// UploadAttachment attaches the PNG at path to the issue.
func (c *Client) UploadAttachment(ctx context.Context, key, path string) (Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("stat attachment: %w", err)
	}
	if info.Size() > MaxAttachmentBytes {
		return Attachment{}, fmt.Errorf("%s (%d bytes): %w", filepath.Base(path), info.Size(), ErrAttachmentTooLarge)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("read attachment: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	if err != nil {
		return Attachment{}, fmt.Errorf("creating multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Attachment{}, fmt.Errorf("writing multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Attachment{}, fmt.Errorf("closing multipart: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/rest/api/3/issue/"+url.PathEscape(key)+"/attachments", &buf)
	if err != nil {
		return Attachment{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Atlassian-Token", "no-check")

	body, err := c.do(req, "attach", http.StatusOK, http.StatusCreated)
	if err != nil {
		return Attachment{}, err
	}
	first := gjson.GetBytes(body, "0")
	if !first.Exists() || first.Get("id").String() == "" {
		return Attachment{}, fmt.Errorf("attach %s: empty attachment list in response", key)
	}
	att := Attachment{ID: first.Get("id").String(), Filename: first.Get("filename").String()}
	c.logger.Info("attachment uploaded", zap.String("ticket", key), zap.String("file", att.Filename), zap.String("attachment_id", att.ID))
	return att, nil
}

// AddComment posts an ADF document as a new comment on the issue.
func (c *Client) AddComment(ctx context.Context, key string, body Node) error {
	payload, err := json.Marshal(map[string]any{"body": body})
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/rest/api/3/issue/"+url.PathEscape(key)+"/comment", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if _, err := c.do(req, "comment", http.StatusCreated, http.StatusOK); err != nil {
		return err
	}
	c.logger.Info("comment added", zap.String("ticket", key))
	return nil
}

// AddEvidenceComment posts the verdict panel with the attachment inlined.
func (c *Client) AddEvidenceComment(ctx context.Context, key string, passed bool, att Attachment) error {
	return c.AddComment(ctx, key, EvidenceComment(passed, c.AttachmentContentURL(att.ID)))
}

// SearchRecent returns up to limit keys of the most recently created issues
// in the project, used to suggest corrections for mistyped keys.
func (c *Client) SearchRecent(ctx context.Context, projectKey string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 3
	}
	maxResults := limit
	if maxResults < 5 {
		maxResults = 5
	}
	payload, err := json.Marshal(map[string]any{
		"jql":        fmt.Sprintf("project = %s ORDER BY created DESC", projectKey),
		"maxResults": maxResults,
		"fields":     []string{"summary"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/rest/api/3/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(req, "search", http.StatusOK)
	if err != nil {
		return nil, err
	}
	var keys []string
	gjson.GetBytes(body, "issues.#.key").ForEach(func(_, v gjson.Result) bool {
		keys = append(keys, v.String())
		return len(keys) < limit
	})
	return keys, nil
}

// ProjectKey returns the part of an issue key before the first dash.
func ProjectKey(issueKey string) string {
	if i := strings.Index(issueKey, "-"); i > 0 {
		return issueKey[:i]
	}
	return issueKey
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
