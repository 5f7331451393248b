package wiki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pozuelo/bioscan/internal/cache"
)

func bindingsBody(bindings ...map[string]interface{}) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"results": map[string]interface{}{"bindings": bindings},
	})
	return b
}

func binding(kv map[string]string) map[string]interface{} {
	m := make(map[string]interface{}, len(kv))
	for k, v := range kv {
		m[k] = map[string]string{"value": v}
	}
	return m
}

func TestQueryCollectsFacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("query")
		if !strings.Contains(q, `wdt:P225 "Olea europaea"`) {
			t.Errorf("query missing taxon-name match: %s", q)
		}
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("format = %q", r.URL.Query().Get("format"))
		}
		if ua := r.Header.Get("User-Agent"); ua != "BIOSCAN/1.0 (test)" {
			t.Errorf("user-agent = %q", ua)
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.Write(bindingsBody(
			binding(map[string]string{
				"commonName":   "olivo",
				"distribution": "Mediterráneo",
				"image":        "https://commons.wikimedia.org/olea.jpg",
			}),
			binding(map[string]string{"commonName": "aceituno"}),
			binding(map[string]string{"commonName": "olivo", "distribution": "otra"}),
		))
	}))
	defer srv.Close()

	w := NewWikidata(srv.URL, "BIOSCAN/1.0 (test)", cache.NewMemory(time.Hour), zap.NewNop())
	facts := w.Query(context.Background(), "Olea europaea")

	if want := []string{"olivo", "aceituno"}; !reflect.DeepEqual(facts.CommonNames, want) {
		t.Errorf("commonNames = %v, want %v (deduplicated, first seen order)", facts.CommonNames, want)
	}
	// First row wins for distribution and image.
	if facts.Distribution != "Mediterráneo" {
		t.Errorf("distribution = %q", facts.Distribution)
	}
	if facts.Image != "https://commons.wikimedia.org/olea.jpg" {
		t.Errorf("image = %q", facts.Image)
	}
	if facts.Err != "" {
		t.Errorf("unexpected err %q", facts.Err)
	}
}

func TestQueryNoBindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Write(bindingsBody())
	}))
	defer srv.Close()

	w := NewWikidata(srv.URL, "ua", cache.NewMemory(time.Hour), zap.NewNop())
	facts := w.Query(context.Background(), "Nonexistus plantus")

	if facts == nil {
		t.Fatal("facts must never be nil")
	}
	if len(facts.CommonNames) != 0 || facts.Distribution != "" || facts.Image != "" {
		t.Errorf("expected empty facts, got %+v", facts)
	}
	if facts.CommonNames == nil {
		t.Error("commonNames must be an empty slice, not nil")
	}
}

func TestQueryUpstreamFailureSoftFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	w := NewWikidata(srv.URL, "ua", cache.NewMemory(time.Hour), zap.NewNop())
	facts := w.Query(context.Background(), "Olea europaea")

	if facts == nil {
		t.Fatal("soft failure must still return a result")
	}
	if facts.Err == "" {
		t.Error("expected error indicator on degraded result")
	}
	if len(facts.CommonNames) != 0 || facts.Distribution != "" || facts.Image != "" {
		t.Errorf("degraded result must be empty, got %+v", facts)
	}
}

func TestQueryCachesSuccessOnly(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(rw, "boom", http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.Write(bindingsBody(binding(map[string]string{"commonName": "olivo"})))
	}))
	defer srv.Close()

	w := NewWikidata(srv.URL, "ua", cache.NewMemory(time.Hour), zap.NewNop())

	if facts := w.Query(context.Background(), "Olea europaea"); facts.Err == "" {
		t.Fatal("first call should degrade")
	}
	if facts := w.Query(context.Background(), "Olea europaea"); facts.Err != "" {
		t.Fatal("second call should succeed: failures must not be cached")
	}
	// Third call is served from cache.
	w.Query(context.Background(), "Olea europaea")
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("upstream called %d times, want 2", calls)
	}
}

func TestSpeciesQueryEscapesQuotes(t *testing.T) {
	q := speciesQuery(`Olea" } SELECT`)
	if strings.Contains(q, `"Olea" }`) {
		t.Errorf("quote not escaped: %s", q)
	}
	if !strings.Contains(q, `\"`) {
		t.Errorf("expected escaped quote in query: %s", q)
	}
}
