package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func embedServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Dimensions != Dimensions {
			t.Fatalf("expected dimensions %d in request, got %d", Dimensions, req.Dimensions)
		}
		if req.Model == "" || req.Input == "" {
			t.Fatalf("incomplete request: %+v", req)
		}

		vec := make([]float64, dims)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vec}},
		})
	}))
}

func TestOpenAIEmbedPinsDimensions(t *testing.T) {
	srv := embedServer(t, Dimensions)
	defer srv.Close()

	c := NewOpenAIClient("test-key")
	c.baseURL = srv.URL

	vec, err := c.Embed(context.Background(), "cache invalidation")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vec) != Dimensions {
		t.Fatalf("expected %d dimensions, got %d", Dimensions, len(vec))
	}
}

func TestOpenAIEmbedRejectsDimensionMismatch(t *testing.T) {
	// A provider ignoring the requested dimensions would produce vectors the
	// store cannot insert; the client surfaces that instead.
	srv := embedServer(t, 8)
	defer srv.Close()

	c := NewOpenAIClient("test-key")
	c.baseURL = srv.URL

	if _, err := c.Embed(context.Background(), "cache invalidation"); err == nil || !strings.Contains(err.Error(), "dimensions") {
		t.Fatalf("expected dimension mismatch error, got %v", err)
	}
}

func TestOpenAIEmbedSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key")
	c.baseURL = srv.URL

	if _, err := c.Embed(context.Background(), "anything"); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestMockEmbedDeterministic(t *testing.T) {
	c := NewMockClient()
	a, err := c.Embed(context.Background(), "cache invalidation")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	b, _ := c.Embed(context.Background(), "cache invalidation")
	other, _ := c.Embed(context.Background(), "different text")

	if len(a) != Dimensions {
		t.Fatalf("expected %d dimensions, got %d", Dimensions, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("identical inputs must embed identically")
		}
	}
	same := true
	for i := range a {
		if a[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different inputs should not produce identical embeddings")
	}
}
