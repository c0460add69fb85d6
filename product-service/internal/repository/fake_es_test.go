package repository

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// fakeES serves the handful of Elasticsearch endpoints the repository uses.
// Searches return every stored document; tests assert on the query sent.
type fakeES struct {
	mu          sync.Mutex
	indexExists bool
	mapping     string
	docs        map[string]json.RawMessage
	order       []string
	lastSearch  map[string]any
	unavailable bool
	calls       int
}

func newFakeES() *fakeES {
	return &fakeES{docs: map[string]json.RawMessage{}}
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	if f.unavailable {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":"unavailable"}`)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	body, _ := io.ReadAll(r.Body)

	switch {
	case len(parts) == 1 && r.Method == http.MethodHead:
		if !f.indexExists {
			w.WriteHeader(http.StatusNotFound)
		}
	case len(parts) == 1 && r.Method == http.MethodPut:
		if f.indexExists {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":{"type":"resource_already_exists_exception"}}`)
			return
		}
		f.indexExists = true
		f.mapping = string(body)
		io.WriteString(w, `{"acknowledged":true}`)
	case len(parts) == 2 && parts[1] == "_search":
		var q map[string]any
		_ = json.Unmarshal(body, &q)
		f.lastSearch = q
		f.writeHits(w)
	case len(parts) == 2 && parts[1] == "_bulk":
		f.bulk(w, body)
	case len(parts) == 3 && parts[1] == "_doc":
		f.doc(w, r.Method, parts[2], body)
	default:
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"unsupported"}`)
	}
}

func (f *fakeES) store(id string, doc []byte) {
	if _, ok := f.docs[id]; !ok {
		f.order = append(f.order, id)
	}
	f.docs[id] = json.RawMessage(doc)
}

func (f *fakeES) doc(w http.ResponseWriter, method, id string, body []byte) {
	doc, found := f.docs[id]
	switch method {
	case http.MethodPut, http.MethodPost:
		f.store(id, body)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"_id": id, "result": "created"})
	case http.MethodHead:
		if !found {
			w.WriteHeader(http.StatusNotFound)
		}
	case http.MethodGet:
		if !found {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"_id": id, "found": false})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"_id": id, "found": true, "_source": doc})
	case http.MethodDelete:
		if !found {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"_id": id, "result": "not_found"})
			return
		}
		delete(f.docs, id)
		for i, o := range f.order {
			if o == id {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"_id": id, "result": "deleted"})
	}
}

func (f *fakeES) bulk(w http.ResponseWriter, body []byte) {
	type item struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  any    `json:"error,omitempty"`
	}
	var items []map[string]item
	hasErrors := false

	sc := bufio.NewScanner(strings.NewReader(string(body)))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var meta struct {
			Index struct {
				ID string `json:"_id"`
			} `json:"index"`
		}
		_ = json.Unmarshal(sc.Bytes(), &meta)
		if !sc.Scan() {
			break
		}
		id := meta.Index.ID
		if strings.HasPrefix(id, "reject") {
			hasErrors = true
			items = append(items, map[string]item{"index": {ID: id, Status: 400, Error: map[string]any{"type": "mapper_parsing_exception"}}})
			continue
		}
		f.store(id, append([]byte(nil), sc.Bytes()...))
		items = append(items, map[string]item{"index": {ID: id, Status: 201}})
	}
	json.NewEncoder(w).Encode(map[string]any{"errors": hasErrors, "items": items})
}

func (f *fakeES) writeHits(w http.ResponseWriter) {
	hits := make([]map[string]any, 0, len(f.order))
	for _, id := range f.order {
		hits = append(hits, map[string]any{"_id": id, "_source": f.docs[id]})
	}
	json.NewEncoder(w).Encode(map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": len(hits), "relation": "eq"},
			"hits":  hits,
		},
	})
}

func (f *fakeES) setUnavailable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailable = v
}

func (f *fakeES) index() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexExists, f.mapping
}

func (f *fakeES) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeES) docCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func (f *fakeES) search() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSearch
}

func setupRepo(t *testing.T) (*ElasticRepository, *fakeES) {
	t.Helper()
	fake := newFakeES()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{srv.URL},
		DisableRetry: true,
	})
	require.NoError(t, err)

	log, _ := test.NewNullLogger()
	return NewElasticRepository(client, DefaultIndex, log), fake
}
