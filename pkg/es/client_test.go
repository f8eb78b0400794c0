package es

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Sandro385/expert-tune/internal/config"
	"github.com/Sandro385/expert-tune/internal/model"
)

type fakeES struct {
	mu      sync.Mutex
	created bool
	docs    map[string]model.TrainingRecordDocument
	refresh []string
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/records":
		if f.created {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && r.URL.Path == "/records":
		f.created = true
		io.WriteString(w, `{"acknowledged":true}`)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/records/_doc/"):
		var doc model.TrainingRecordDocument
		_ = json.NewDecoder(r.Body).Decode(&doc)
		f.docs[strings.TrimPrefix(r.URL.Path, "/records/_doc/")] = doc
		f.refresh = append(f.refresh, r.URL.Query().Get("refresh"))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"result":"created"}`)
	default:
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"unexpected request"}`)
	}
}

func TestInitCreatesIndexAndIndexesRecords(t *testing.T) {
	fake := &fakeES{docs: make(map[string]model.TrainingRecordDocument)}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	idx, err := InitES(config.ElasticsearchConfig{Addresses: srv.URL, IndexName: "records"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !fake.created {
		t.Fatal("index was not created")
	}

	docs := []model.TrainingRecordDocument{
		{ID: "job-0", JobID: "job", Username: "ana", Domain: "სხვა", Position: 0, Prompt: "p0", Completion: "c0"},
		{ID: "job-1", JobID: "job", Username: "ana", Domain: "სხვა", Position: 1, Prompt: "p1", Completion: "c1"},
	}
	if err := idx.IndexRecords(context.Background(), docs); err != nil {
		t.Fatalf("index records: %v", err)
	}
	if len(fake.docs) != 2 || fake.docs["job-1"].Completion != "c1" {
		t.Fatalf("unexpected stored docs %+v", fake.docs)
	}
	if fake.refresh[0] != "" || fake.refresh[1] != "true" {
		t.Fatalf("refresh flags = %v", fake.refresh)
	}

	// second init sees the existing index
	if _, err := InitES(config.ElasticsearchConfig{Addresses: srv.URL, IndexName: "records"}); err != nil {
		t.Fatalf("re-init: %v", err)
	}
}
