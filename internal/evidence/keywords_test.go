package evidence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeywordsDefaults(t *testing.T) {
	kw, err := LoadKeywords("")
	require.NoError(t, err)
	assert.Contains(t, kw.Success, "sucesso")
	assert.Contains(t, kw.Fail, "timeout")
	assert.Empty(t, kw.TicketPrefixes)
}

func TestLoadKeywordsMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
success_keywords: [aprovado, PASS]
fail_keywords: [reprovado]
ticket_prefixes: [QA]
`), 0644))

	kw, err := LoadKeywords(path)
	require.NoError(t, err)
	assert.Contains(t, kw.Success, "aprovado")
	assert.Equal(t, len(defaultSuccessKeywords)+1, len(kw.Success), "PASS duplicates pass")
	assert.Contains(t, kw.Fail, "reprovado")
	assert.Equal(t, []string{"QA"}, kw.TicketPrefixes)
}

func TestLoadKeywordsBadFile(t *testing.T) {
	_, err := LoadKeywords(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("success_keywords: {"), 0644))
	_, err = LoadKeywords(path)
	assert.Error(t, err)
}

func TestAppendKeyword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	require.NoError(t, AppendKeyword(path, "fail", "quebrou"))
	require.NoError(t, AppendKeyword(path, "fail", " Quebrou "))
	require.NoError(t, AppendKeyword(path, "prefix", "SUP"))
	require.NoError(t, AppendKeyword(path, "success", ""))
	assert.Error(t, AppendKeyword(path, "other", "x"))

	kw, err := readKeywordsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"quebrou"}, kw.Fail)
	assert.Equal(t, []string{"SUP"}, kw.TicketPrefixes)
	assert.Empty(t, kw.Success)
}
