package opensearch

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
)

func TestIndexChunksWritesBulkNDJSON(t *testing.T) {
	var ensureCalls int32
	var bulkLines []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/med_chunks":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/_bulk":
			scanner := bufio.NewScanner(r.Body)
			for scanner.Scan() {
				bulkLines = append(bulkLines, scanner.Text())
			}
			_, _ = w.Write([]byte(`{"errors":false}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "med_chunks")
	chunks := []domain.Chunk{
		{ChunkID: "doc-1_p1_c0", DocumentID: "doc-1", DocumentName: "a.pdf", PageNumber: 1, Text: "alpha"},
		{ChunkID: "doc-1_p2_c0", DocumentID: "doc-1", DocumentName: "a.pdf", PageNumber: 2, Text: "beta"},
	}

	if err := client.IndexChunks(context.Background(), chunks); err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}
	if err := client.IndexChunks(context.Background(), chunks); err != nil {
		t.Fatalf("second IndexChunks() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure index called once, got %d", got)
	}
	if len(bulkLines) != 8 {
		t.Fatalf("expected 8 NDJSON lines over two bulk calls, got %d", len(bulkLines))
	}
	if !strings.Contains(bulkLines[0], `"_id":"doc-1_p1_c0"`) {
		t.Fatalf("expected chunk id as document id, got %s", bulkLines[0])
	}
}

func TestIndexChunksFailsOnItemErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/_bulk" {
			_, _ = w.Write([]byte(`{"errors":true}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, "med_chunks")
	err := client.IndexChunks(context.Background(), []domain.Chunk{{ChunkID: "x", Text: "t"}})
	if err == nil || !strings.Contains(err.Error(), "item errors") {
		t.Fatalf("expected bulk item error, got %v", err)
	}
}

func TestSearchMapsHitsToRankedOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/med_chunks/_search" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"hits":{"hits":[
				{"_score":7.5,"_source":{"chunk_id":"doc-1_p1_c0","document_name":"guide.pdf","page_number":1,"text":"first"}},
				{"_score":6.1,"_source":{"chunk_id":"doc-2_p4_c1","document_name":"atlas.pdf","page_number":4,"text":"second"}}
			]}}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "med_chunks")
	hits, err := client.Search(context.Background(), "amoxicillin", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Rank != 1 || hits[1].Rank != 2 {
		t.Fatalf("expected contiguous ranks, got %d/%d", hits[0].Rank, hits[1].Rank)
	}
	if hits[1].ChunkID != "doc-2_p4_c1" || hits[1].DocumentName != "atlas.pdf" {
		t.Fatalf("source mapping broken: %+v", hits[1])
	}
	if hits[0].Source != domain.SourceLexical {
		t.Fatalf("expected lexical source, got %s", hits[0].Source)
	}
}

func TestSearchTreatsMissingIndexAsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "med_chunks")
	hits, err := client.Search(context.Background(), "anything", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected empty result for missing index, got %d", len(hits))
	}
}
