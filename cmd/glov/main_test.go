package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/glov/internal/models"
	"github.com/xhad/glov/pkg/config"
	"github.com/xhad/glov/pkg/pipeline"
)

const testDim = 16

var envKeys = []string{
	"DATABASE_URL", "EMBEDDINGS_PROVIDER", "EMBEDDINGS_MODEL_NAME", "OLLAMA_BASE_URL",
	"HUGGINGFACEHUB_API_TOKEN", "GLOV_HOST", "GLOV_PORT", "GLOV_LOG_LEVEL", "GLOV_COLLECTION",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func bucketVector(text string) []float32 {
	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%testDim]++
	}
	return v
}

func newOllamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": bucketVector(req.Prompt)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newPDFServer(t *testing.T, pages ...string) *httptest.Server {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		pdf.Cell(40, 10, text)
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "doc.pdf", time.Time{}, bytes.NewReader(buf.Bytes()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestQueryCommandInMemory(t *testing.T) {
	clearEnv(t)
	color.NoColor = true

	ollama := newOllamaServer(t)
	docs := newPDFServer(t,
		"Vector databases store embeddings for similarity search",
		"The cafeteria serves tomato soup on Tuesdays",
	)
	tempDir := t.TempDir()
	cfgPath := writeConfig(t, fmt.Sprintf(`
embedder:
  provider: ollama
  model: test-embed
  base_url: %s
database:
  vector_dim: %d
fetcher:
  temp_dir: %s
log:
  level: error
`, ollama.URL, testDim, tempDir))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--config", cfgPath,
		"query",
		"--url", docs.URL + "/paper.pdf",
		"--query", "vector databases",
		"--memory",
		"-k", "1",
	})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Indexed 2 chunks from 2 pages")
	assert.Contains(t, out.String(), "#1")
	assert.Contains(t, out.String(), "Vector databases store embeddings")
	assert.NotContains(t, out.String(), "#2")

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueryCommandRejectsNonPDF(t *testing.T) {
	clearEnv(t)
	ollama := newOllamaServer(t)
	cfgPath := writeConfig(t, fmt.Sprintf(`
embedder:
  provider: ollama
  base_url: %s
log:
  level: error
`, ollama.URL))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"--config", cfgPath,
		"query", "--url", "https://example.com/page.html", "--query", "anything", "--memory",
	})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "The URL must point to a PDF file.")
}

func TestQueryCommandRequiresFlags(t *testing.T) {
	clearEnv(t)
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"query", "--url", "https://example.com/a.pdf"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")
}

func TestServeCommandValidatesConfig(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, `
embedder:
  provider: openai
log:
  level: error
`)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", cfgPath, "serve", "--port", "8123"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder.provider")
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg, err := config.LoadConfig(writeConfig(t, "search:\n  top_k: 5\n"))
	require.NoError(t, err)
	assert.NoError(t, validate(cfg))

	cfg.Server.Port = 0
	cfg.Database.Collection = ""
	err = validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "database.collection")
}

func TestPrintResults(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer

	printResults(&out, &pipeline.Response{
		Pages:  3,
		Chunks: 7,
		Results: []models.QueryResult{
			{Content: "first", Score: 0.91, Metadata: map[string]interface{}{"page": 2}},
			{Content: "second", Score: 0.5},
		},
	})

	text := out.String()
	assert.Contains(t, text, "Indexed 7 chunks from 3 pages")
	assert.Contains(t, text, "#1 (score 0.9100, page 2)")
	assert.Contains(t, text, "#2 (score 0.5000)")
	assert.Less(t, strings.Index(text, "first"), strings.Index(text, "second"))

	out.Reset()
	printResults(&out, &pipeline.Response{})
	assert.Contains(t, out.String(), "No matching chunks")
}

func TestStageLabel(t *testing.T) {
	assert.Equal(t, "Downloading PDF...", stageLabel("download"))
	assert.Equal(t, "unknown", stageLabel("unknown"))
}
