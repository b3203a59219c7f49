package jira

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "qa@acme.test", "token", srv.Client(), nil)
}

func TestGetIssue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/issue/NEX-18", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "qa@acme.test", user)
		assert.Equal(t, "token", pass)
		w.Write([]byte(`{"key":"NEX-18","fields":{"summary":"Login","status":{"name":"Done"},"issuetype":{"name":"Test"},"project":{"key":"NEX"}}}`))
	})

	issue, err := c.GetIssue(context.Background(), "NEX-18")
	require.NoError(t, err)
	assert.Equal(t, Issue{Key: "NEX-18", Summary: "Login", Status: "Done", IssueType: "Test", ProjectKey: "NEX"}, issue)
}

func TestIssueExists(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/api/3/issue/BC-1":
			w.Write([]byte(`{"key":"BC-1"}`))
		case "/rest/api/3/issue/BC-404":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
		}
	})

	ok, err := c.IssueExists(context.Background(), "BC-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IssueExists(context.Background(), "BC-404")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.IssueExists(context.Background(), "BC-500")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestGetIssueNotFoundWraps(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.GetIssue(context.Background(), "BC-9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "BC-9")
}

func TestUploadAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "NEX-18.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG fake"), 0644))

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/api/3/issue/NEX-18/attachments", r.URL.Path)
		assert.Equal(t, "no-check", r.Header.Get("X-Atlassian-Token"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "NEX-18.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		assert.Equal(t, "\x89PNG fake", string(data))

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"id":"10042","filename":"NEX-18.png"}]`))
	})

	att, err := c.UploadAttachment(context.Background(), "NEX-18", path)
	require.NoError(t, err)
	assert.Equal(t, Attachment{ID: "10042", Filename: "NEX-18.png"}, att)
}

func TestUploadAttachmentRejectsLargeFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(MaxAttachmentBytes+1))
	require.NoError(t, f.Close())

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err = c.UploadAttachment(context.Background(), "BC-1", path)
	assert.ErrorIs(t, err, ErrAttachmentTooLarge)
}

func TestUploadAttachmentEmptyResponse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "BC-1.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0644))
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	_, err := c.UploadAttachment(context.Background(), "BC-1", path)
	assert.Error(t, err)
}

func TestAddEvidenceComment(t *testing.T) {
	var got []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/issue/BC-123/comment", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	})

	err := c.AddEvidenceComment(context.Background(), "BC-123", false, Attachment{ID: "77", Filename: "BC-123.png"})
	require.NoError(t, err)

	body := gjson.ParseBytes(got)
	assert.Equal(t, "doc", body.Get("body.type").String())
	assert.Equal(t, int64(1), body.Get("body.version").Int())
	assert.Equal(t, "error", body.Get("body.content.0.attrs.panelType").String())
	assert.Equal(t, "TESTE AUTOMAÇÃO ", body.Get("body.content.0.content.0.content.0.text").String())
	assert.Equal(t, "REPROVADO", body.Get("body.content.0.content.0.content.1.text").String())
	assert.Equal(t, "strong", body.Get("body.content.0.content.0.content.1.marks.0.type").String())
	assert.Equal(t, "mediaSingle", body.Get("body.content.1.type").String())
	assert.Equal(t, "center", body.Get("body.content.1.attrs.layout").String())
	assert.Equal(t, "external", body.Get("body.content.1.content.0.attrs.type").String())
	assert.True(t, strings.HasSuffix(body.Get("body.content.1.content.0.attrs.url").String(), "/rest/api/3/attachment/content/77"))
}

func TestAddCommentError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errorMessages":["no permission"]}`))
	})
	err := c.AddComment(context.Background(), "BC-1", Doc())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "no permission")
}

func TestSearchRecent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/search", r.URL.Path)
		var req struct {
			JQL        string `json:"jql"`
			MaxResults int    `json:"maxResults"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "project = BC ORDER BY created DESC", req.JQL)
		assert.Equal(t, 5, req.MaxResults)
		w.Write([]byte(`{"issues":[{"key":"BC-130"},{"key":"BC-129"},{"key":"BC-128"},{"key":"BC-127"}]}`))
	})

	keys, err := c.SearchRecent(context.Background(), "BC", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"BC-130", "BC-129", "BC-128"}, keys)
}

func TestProjectKey(t *testing.T) {
	assert.Equal(t, "BC", ProjectKey("BC-126"))
	assert.Equal(t, "NODASH", ProjectKey("NODASH"))
}

func TestEvidenceCommentPassPanel(t *testing.T) {
	doc := EvidenceComment(true, "https://x/rest/api/3/attachment/content/1")
	assert.Equal(t, "success", doc.Content[0].Attrs["panelType"])
	assert.Equal(t, "APROVADO", doc.Content[0].Content[0].Content[1].Text)
}
