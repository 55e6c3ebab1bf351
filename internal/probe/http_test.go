package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCheckAcceptsOKByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTP(HTTPSettings{URL: srv.URL}, zerolog.Nop())
	if !p.Check(context.Background()) {
		t.Fatal("200 must be accepted by default")
	}
}

func TestCheckRejectsOtherStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTP(HTTPSettings{URL: srv.URL}, zerolog.Nop())
	if p.Check(context.Background()) {
		t.Fatal("503 must not be accepted by default")
	}
}

func TestCheckCustomAcceptedSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewHTTP(HTTPSettings{URL: srv.URL, AcceptedStatuses: []int{204}}, zerolog.Nop())
	if !p.Check(context.Background()) {
		t.Fatal("204 must be accepted when configured")
	}
}

func TestCheckTransportErrorIsDead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	p := NewHTTP(HTTPSettings{URL: srv.URL, Timeout: 200 * time.Millisecond}, zerolog.Nop())
	if p.Check(context.Background()) {
		t.Fatal("a refused connection must read as dead")
	}
}
