package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalqa/internal/chunker"
	"legalqa/internal/domain"
	"legalqa/internal/embedding/hashing"
	"legalqa/internal/loader"
	"legalqa/internal/logging"
	"legalqa/internal/prompt"
	"legalqa/internal/retention"
	"legalqa/internal/service"
	"legalqa/internal/summarizer"
	"legalqa/internal/vectorstore/memory"
)

const contract = `Service Agreement

The contractor shall deliver the software by 1 March 2025.
The client shall pay the fee within thirty days of invoice.

Either party may terminate this agreement for material breach on fourteen days notice.`

type stubLLM struct {
	mu    sync.Mutex
	model string
	err   error
}

func (s *stubLLM) Name() string { return "stub" }
func (s *stubLLM) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}
func (s *stubLLM) SetModel(m string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
}
func (s *stubLLM) Chat(context.Context, []domain.Message, domain.ChatOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "The fee is due within thirty days.", s.err
}

func (s *stubLLM) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
func (s *stubLLM) Models(context.Context) ([]string, error) { return []string{"llama3.2", "mistral"}, nil }
func (s *stubLLM) Ping(context.Context) error { return nil }

type testEnv struct {
	srv *httptest.Server
	llm *stubLLM
}

func newEnv(t *testing.T, maxMB int) *testEnv {
	t.Helper()
	root := t.TempDir()
	l, err := loader.New(context.Background(), nil)
	require.NoError(t, err)
	store := memory.NewStorage()
	ret := retention.New(store, retention.Dirs{
		Uploads: filepath.Join(root, "uploads"),
		Vectors: filepath.Join(root, "vector_db"),
		Temp:    filepath.Join(root, "temp"),
	}, retention.Options{}, logging.Discard())
	require.NoError(t, ret.EnsureDirs())
	llm := &stubLLM{model: "llama3.2"}
	engine := service.NewEngine(service.Deps{
		Loader:     l,
		Chunker:    chunker.NewRecursiveChunker(chunker.WithChunkSize(100), chunker.WithOverlap(10)),
		Embedder:   hashing.NewEmbedder(128),
		Store:      store,
		LLM:        llm,
		Summarizer: summarizer.NewFrequencySummarizer(),
		Retention:  ret,
	}, service.Options{Threshold: 0.05, SaveOriginals: true}, logging.Discard())

	s := New(engine, Options{Addr: "127.0.0.1:0", MaxUploadMB: maxMB}, logging.Discard())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, llm: llm}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	h := http.Header{}
	if body != nil {
		h.Set("Content-Type", "application/json")
	}
	return e.doWith(t, method, path, body, h)
}

// doWith sends body with the given headers. A "Host" entry overrides the
// request host.
func (e *testEnv) doWith(t *testing.T, method, path string, body any, h http.Header) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	for k, v := range h {
		if k == "Host" {
			req.Host = v[0]
			continue
		}
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (e *testEnv) upload(t *testing.T, name string, content []byte) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(e.srv.URL+"/api/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestIndex(t *testing.T) {
	env := newEnv(t, 50)
	resp, body := env.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "llama3.2")
	assert.Contains(t, string(body), `accept=".pdf,.txt,.docx"`)

	resp, _ = env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadAskDelete(t *testing.T) {
	env := newEnv(t, 50)

	resp, body := env.upload(t, "contract.txt", []byte(contract))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var ingested service.IngestResult
	require.NoError(t, json.Unmarshal(body, &ingested))
	assert.Equal(t, "contract.txt", ingested.Name)
	assert.Positive(t, ingested.Chunks)

	resp, body = env.do(t, http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sources []domain.SourceInfo
	require.NoError(t, json.Unmarshal(body, &sources))
	require.Len(t, sources, 1)
	assert.Equal(t, ingested.DocumentID, sources[0].DocumentID)

	resp, body = env.do(t, http.MethodPost, "/api/ask", map[string]string{"question": "When is the fee due?", "prompt_type": "qa"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var turn domain.Turn
	require.NoError(t, json.Unmarshal(body, &turn))
	assert.True(t, turn.HasContext)
	assert.Contains(t, turn.Answer, "thirty days")
	assert.Contains(t, turn.Answer, prompt.Disclaimer)
	require.NotEmpty(t, turn.Sources)
	assert.Equal(t, "contract.txt", turn.Sources[0].Name)

	resp, body = env.do(t, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hist []domain.Turn
	require.NoError(t, json.Unmarshal(body, &hist))
	assert.Len(t, hist, 1)

	resp, _ = env.do(t, http.MethodDelete, "/api/sources/"+ingested.DocumentID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodDelete, "/api/sources/"+ingested.DocumentID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/ask", map[string]string{"question": "When is the fee due?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &turn))
	assert.Equal(t, prompt.NoContext, turn.Answer)
}

func TestUploadRejected(t *testing.T) {
	env := newEnv(t, 1)
	tests := []struct {
		name    string
		file    string
		content []byte
		status  int
	}{
		{"unsupported", "setup.exe", []byte("MZ"), http.StatusUnprocessableEntity},
		{"corrupt pdf", "broken.pdf", []byte("not a pdf at all"), http.StatusUnprocessableEntity},
		{"corrupt docx", "broken.docx", []byte("PK nope"), http.StatusUnprocessableEntity},
		{"empty text", "blank.txt", []byte("   \n"), http.StatusUnprocessableEntity},
		{"too large", "big.txt", bytes.Repeat([]byte("a"), 3<<19), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.upload(t, tt.file, tt.content)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
		})
	}

	resp, body := env.do(t, http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(body))
}

func TestAskErrors(t *testing.T) {
	env := newEnv(t, 50)
	resp, _ := env.upload(t, "contract.txt", []byte(contract))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/ask", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/ask", map[string]string{"question": " "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env.llm.fail(domain.ErrModelUnavailable)
	resp, body := env.do(t, http.MethodPost, "/api/ask", map[string]string{"question": "When is the fee due?"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "unreachable")

	env.llm.fail(domain.ErrModelTimeout)
	resp, _ = env.do(t, http.MethodPost, "/api/ask", map[string]string{"question": "When is the fee due?"})
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestRequestGuard(t *testing.T) {
	env := newEnv(t, 50)
	ask := map[string]string{"question": "When is the fee due?"}
	origin := env.srv.URL

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		header map[string]string
		status int
	}{
		{"loopback host", http.MethodGet, "/api/history", nil, nil, http.StatusOK},
		{"localhost name", http.MethodGet, "/api/history", nil, map[string]string{"Host": "localhost:7860"}, http.StatusOK},
		{"rebound host", http.MethodGet, "/api/history", nil, map[string]string{"Host": "attacker.example:7860"}, http.StatusForbidden},
		{"rebound index", http.MethodGet, "/", nil, map[string]string{"Host": "attacker.example"}, http.StatusForbidden},
		{"foreign origin", http.MethodPost, "/api/cleanup", nil, map[string]string{"Origin": "http://attacker.example"}, http.StatusForbidden},
		{"opaque origin", http.MethodDelete, "/api/data?scope=all", nil, map[string]string{"Origin": "null"}, http.StatusForbidden},
		{"same origin", http.MethodPost, "/api/cleanup", nil, map[string]string{"Origin": origin}, http.StatusOK},
		{"form post", http.MethodPost, "/api/ask", "question=hi", map[string]string{"Content-Type": "application/x-www-form-urlencoded"}, http.StatusUnsupportedMediaType},
		{"text body", http.MethodPost, "/api/ask", ask, map[string]string{"Content-Type": "text/plain"}, http.StatusUnsupportedMediaType},
		{"no content type", http.MethodPut, "/api/model", map[string]string{"model": "mistral"}, nil, http.StatusUnsupportedMediaType},
		{"json with charset", http.MethodPost, "/api/ask", ask, map[string]string{"Content-Type": "application/json; charset=utf-8"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.header {
				h.Set(k, v)
			}
			resp, body := env.doWith(t, tt.method, tt.path, tt.body, h)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
		})
	}
}

func TestModels(t *testing.T) {
	env := newEnv(t, 50)

	resp, body := env.do(t, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"current":"llama3.2","models":["llama3.2","mistral"]}`, string(body))

	resp, body = env.do(t, http.MethodPut, "/api/model", map[string]string{"model": "mistral"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"current":"mistral"}`, string(body))

	resp, _ = env.do(t, http.MethodPut, "/api/model", map[string]string{"model": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDataManagement(t *testing.T) {
	env := newEnv(t, 50)
	resp, _ := env.upload(t, "contract.txt", []byte(contract))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/api/storage", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info retention.StorageInfo
	require.NoError(t, json.Unmarshal(body, &info))
	require.Len(t, info.Folders, 3)
	assert.Equal(t, 1, info.Folders[0].Files)

	resp, _ = env.do(t, http.MethodDelete, "/api/data?scope=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodDelete, "/api/data?scope=all", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var report retention.Report
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Positive(t, report.Deleted)

	resp, body = env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st service.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.False(t, st.HasDocuments)
	assert.True(t, st.LLMReachable)

	resp, _ = env.do(t, http.MethodPost, "/api/cleanup", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodDelete, "/api/history", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestStartRefusesRemoteAddress(t *testing.T) {
	s := New(nil, Options{Addr: "0.0.0.0:0"}, logging.Discard())
	assert.Error(t, s.Start())
}

func TestStartAndShutdown(t *testing.T) {
	s := New(&stubEngine{}, Options{Addr: "127.0.0.1:0"}, logging.Discard())
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	resp, err := http.Get(s.URL() + "/api/history")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// stubEngine satisfies Engine for server lifecycle tests.
type stubEngine struct{ Engine }

func (stubEngine) History() []domain.Turn { return nil }
