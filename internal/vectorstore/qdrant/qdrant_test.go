package qdrant

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"legalqa/internal/domain"
	"legalqa/internal/vectorstore"
	"legalqa/internal/vectorstore/storetest"
)

type point struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type filterReq struct {
	Must []struct {
		Key   string `json:"key"`
		Match struct {
			Value string `json:"value"`
		} `json:"match"`
	} `json:"must"`
}

func (f *filterReq) matches(p point) bool {
	if f == nil {
		return true
	}
	for _, m := range f.Must {
		if p.Payload[m.Key] != m.Match.Value {
			return false
		}
	}
	return true
}

// fakeQdrant implements the subset of the Qdrant REST API the client uses.
type fakeQdrant struct {
	mu      sync.Mutex
	exists  bool
	size    int
	points  map[string]point
	apiKeys []string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	path := strings.TrimPrefix(r.URL.Path, "/collections/legal_documents")
	reply := func(v any) { _ = json.NewEncoder(w).Encode(map[string]any{"result": v, "status": "ok"}) }

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			if !f.exists {
				http.NotFound(w, r)
				return
			}
			reply(map[string]any{
				"points_count": len(f.points),
				"config":       map[string]any{"params": map[string]any{"vectors": map[string]any{"size": f.size}}},
			})
		case http.MethodPut:
			var body struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.exists, f.size, f.points = true, body.Vectors.Size, map[string]point{}
			reply(true)
		case http.MethodDelete:
			if !f.exists {
				http.NotFound(w, r)
				return
			}
			f.exists, f.points = false, nil
			reply(true)
		}
		return
	}
	if !f.exists {
		http.NotFound(w, r)
		return
	}

	var body struct {
		Points []point     `json:"points"`
		Vector []float64   `json:"vector"`
		Limit  int         `json:"limit"`
		Filter *filterReq  `json:"filter"`
		Offset interface{} `json:"offset"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch path {
	case "/index":
		reply(true)
	case "/points":
		for _, p := range body.Points {
			if _, err := uuid.Parse(p.ID); err != nil {
				http.Error(w, "bad point id", http.StatusBadRequest)
				return
			}
			f.points[p.ID] = p
		}
		reply(true)
	case "/points/search":
		type hit struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		}
		var hits []hit
		for _, p := range f.points {
			if body.Filter.matches(p) {
				hits = append(hits, hit{p.ID, vectorstore.Cosine(p.Vector, body.Vector), p.Payload})
			}
		}
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].Score != hits[j].Score {
				return hits[i].Score > hits[j].Score
			}
			return hits[i].Payload["chunk_id"].(string) < hits[j].Payload["chunk_id"].(string)
		})
		if len(hits) > body.Limit {
			hits = hits[:body.Limit]
		}
		reply(hits)
	case "/points/count":
		n := 0
		for _, p := range f.points {
			if body.Filter.matches(p) {
				n++
			}
		}
		reply(map[string]any{"count": n})
	case "/points/delete":
		for id, p := range f.points {
			if body.Filter.matches(p) {
				delete(f.points, id)
			}
		}
		reply(map[string]any{"status": "completed"})
	case "/points/scroll":
		var pts []point
		for _, p := range f.points {
			pts = append(pts, point{ID: p.ID, Payload: p.Payload})
		}
		reply(map[string]any{"points": pts, "next_page_offset": nil})
	default:
		http.NotFound(w, r)
	}
}

func TestStorage(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.VectorStore {
		srv := httptest.NewServer(&fakeQdrant{})
		t.Cleanup(srv.Close)
		return NewStorage(Config{URL: srv.URL + "/", Collection: "legal_documents"})
	})
}

func TestAPIKeyHeader(t *testing.T) {
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, APIKey: "secret"})
	_, _ = s.Count(t.Context())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"secret"}, fake.apiKeys)
}

func TestPointIDDeterministic(t *testing.T) {
	assert.Equal(t, PointID("doc:1"), PointID("doc:1"))
	assert.NotEqual(t, PointID("doc:1"), PointID("doc:2"))
	_, err := uuid.Parse(PointID("doc:1"))
	assert.NoError(t, err)
}
