package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Setenv("ECHOES_API_URL", "")
	client := NewClient("")
	if client.BaseURL != DefaultBaseURL {
		t.Errorf("expected BaseURL %q, got %q", DefaultBaseURL, client.BaseURL)
	}
	if client.HTTPClient == nil || client.HTTPClient.Timeout != 5*time.Second {
		t.Error("HTTPClient should have a 5s timeout")
	}

	t.Setenv("ECHOES_API_URL", "http://backend:9000/")
	if got := NewClient("").BaseURL; got != "http://backend:9000" {
		t.Errorf("expected env URL without trailing slash, got %q", got)
	}
}

func TestClient_Timeline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/timeline" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("concept"); got != "freedom" {
			t.Errorf("concept should be lowercased, got %q", got)
		}
		if got := r.URL.Query().Get("top_n"); got != "10" {
			t.Errorf("expected top_n=10, got %q", got)
		}
		w.Write([]byte(`{
			"concept": "freedom",
			"eras": [{"era": "1900s", "items": [{"text": "national independence", "similarity": 0.82}]}],
			"semantic_shift": 34.6
		}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Timeline(context.Background(), "Freedom", 10)
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}
	if len(resp.Eras) != 1 || resp.Eras[0].Items[0].Similarity != 0.82 {
		t.Errorf("unexpected eras %+v", resp.Eras)
	}
	if resp.SemanticShift == nil || *resp.SemanticShift != 34.6 {
		t.Errorf("unexpected semantic shift %v", resp.SemanticShift)
	}
	if resp.PrimaryAssociation != nil {
		t.Error("primary association should be absent")
	}
}

func TestClient_SymbolPairsAndEra(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/symbol-pairs":
			json.NewEncoder(w).Encode(SymbolPairsResponse{
				Symbol: r.URL.Query().Get("symbol"),
				Pairs: map[string]SymbolPair{
					"1900s": {Ancient: SymbolSide{Title: "Liberty Bell"}, Modern: SymbolSide{Title: "Victory Sign"}},
				},
			})
		case "/era":
			json.NewEncoder(w).Encode(EraQueryResponse{Concept: "freedom", Era: r.URL.Query().Get("era")})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL)
	pairs, err := c.SymbolPairs(context.Background(), "FREEDOM")
	if err != nil {
		t.Fatalf("SymbolPairs failed: %v", err)
	}
	if pairs.Symbol != "freedom" || pairs.Pairs["1900s"].Modern.Title != "Victory Sign" {
		t.Errorf("unexpected pairs %+v", pairs)
	}

	era, err := c.Era(context.Background(), "freedom", "2020s", 5)
	if err != nil {
		t.Fatalf("Era failed: %v", err)
	}
	if era.Era != "2020s" {
		t.Errorf("expected era 2020s, got %q", era.Era)
	}
}

func TestClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/timeline":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "unknown concept", "detail": "zzz"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
		}
	}))
	defer server.Close()

	c := NewClient(server.URL)
	_, err := c.Timeline(context.Background(), "zzz", 5)
	if err == nil || !strings.Contains(err.Error(), "unknown concept: zzz") {
		t.Errorf("expected parsed API error, got %v", err)
	}

	_, err = c.Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "server error: 500 boom") {
		t.Errorf("expected raw server error, got %v", err)
	}
}

func TestClient_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["text"] != "liberty" {
			t.Errorf("unexpected body %v", req)
		}
		json.NewEncoder(w).Encode(EmbeddingResponse{Embedding: []float64{0.1, 0.2}})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Embed(context.Background(), "liberty")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(resp.Embedding) != 2 {
		t.Errorf("expected 2 dims, got %d", len(resp.Embedding))
	}
}

func TestClient_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := NewClient(server.URL).Health(ctx); err == nil {
		t.Error("expected timeout error")
	}
}
