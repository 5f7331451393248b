package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pozuelo/bioscan/internal/cache"
	"github.com/pozuelo/bioscan/internal/upstream"
)

func chatBody(answer string) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": answer}},
		},
	})
	return b
}

func newService(endpoint string) *Service {
	return NewService(Config{
		Endpoint: endpoint,
		APIKey:   "test-key",
		Model:    "test-model",
		Referer:  "http://localhost:3000",
		Title:    "BIOSCAN",
	}, cache.NewMemory(time.Hour), zap.NewNop())
}

func TestAskBuildsConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		if ref := r.Header.Get("HTTP-Referer"); ref != "http://localhost:3000" {
			t.Errorf("referer = %q", ref)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q", req.Model)
		}
		if req.MaxTokens != 500 {
			t.Errorf("max_tokens = %d, want 500", req.MaxTokens)
		}
		if req.Temperature != 0.7 {
			t.Errorf("temperature = %v, want 0.7", req.Temperature)
		}
		if len(req.Messages) != 3 {
			t.Fatalf("got %d messages, want system+species+user", len(req.Messages))
		}
		if req.Messages[0].Role != "system" || req.Messages[1].Role != "system" {
			t.Errorf("first two messages must be system, got %q/%q",
				req.Messages[0].Role, req.Messages[1].Role)
		}
		if req.Messages[1].Content != "La consulta es sobre esta planta específica: Olea europaea" {
			t.Errorf("species context = %q", req.Messages[1].Content)
		}
		if req.Messages[2].Role != "user" || req.Messages[2].Content != "¿Cuánto riego necesita?" {
			t.Errorf("user message = %+v", req.Messages[2])
		}

		w.Write(chatBody("  Riego moderado cada semana.  "))
	}))
	defer srv.Close()

	answer, err := newService(srv.URL).Ask(context.Background(), "¿Cuánto riego necesita?", "Olea europaea")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "Riego moderado cada semana." {
		t.Errorf("answer = %q, want trimmed text", answer)
	}
}

func TestAskWithoutContextSpecies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 {
			t.Errorf("got %d messages, want system+user only", len(req.Messages))
		}
		w.Write(chatBody("respuesta"))
	}))
	defer srv.Close()

	if _, err := newService(srv.URL).Ask(context.Background(), "¿Qué es la fotosíntesis?", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	s := newService("http://unused")
	for _, speciesCtx := range []string{"", "Olea europaea"} {
		if _, err := s.Ask(context.Background(), "", speciesCtx); !errors.Is(err, ErrEmptyQuestion) {
			t.Errorf("ctx %q: got %v, want ErrEmptyQuestion", speciesCtx, err)
		}
	}
}

func TestAskCachesAnswer(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write(chatBody("respuesta"))
	}))
	defer srv.Close()

	s := newService(srv.URL)
	first, err := s.Ask(context.Background(), "¿pregunta?", "Olea europaea")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Ask(context.Background(), "¿pregunta?", "Olea europaea")
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("upstream called %d times, want 1", calls)
	}
	if first != second {
		t.Errorf("cached answer differs: %q vs %q", first, second)
	}

	// Same question with a different species context is a different key.
	if _, err := s.Ask(context.Background(), "¿pregunta?", ""); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("upstream called %d times, want 2", calls)
	}
}

func TestAskMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	_, err := newService(srv.URL).Ask(context.Background(), "¿pregunta?", "")
	var ue *upstream.Error
	if !errors.As(err, &ue) {
		t.Fatalf("got %T (%v), want *upstream.Error", err, err)
	}
}

func TestAskUpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newService(srv.URL).Ask(context.Background(), "¿pregunta?", "")
	var ue *upstream.Error
	if !errors.As(err, &ue) {
		t.Fatalf("got %T, want *upstream.Error", err)
	}
	if ue.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", ue.Status)
	}
}

func TestAskFailureNotCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		w.Write(chatBody("respuesta"))
	}))
	defer srv.Close()

	s := newService(srv.URL)
	if _, err := s.Ask(context.Background(), "¿pregunta?", ""); err == nil {
		t.Fatal("first call should fail")
	}
	answer, err := s.Ask(context.Background(), "¿pregunta?", "")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if answer != "respuesta" {
		t.Errorf("answer = %q", answer)
	}
}
