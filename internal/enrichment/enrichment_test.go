package enrichment_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/user-registration/internal/breaker"
	"github.com/example/user-registration/internal/enrichment"
	"github.com/example/user-registration/internal/models"
)

type fakeHTTPClient struct {
	status  int
	body    string
	err     error
	calls   int
	lastURL string
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	f.calls++
	f.lastURL = req.URL.String()
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(bytes.NewBufferString(f.body)),
	}, nil
}

func TestClientEnrichDecodesProfile(t *testing.T) {
	httpc := &fakeHTTPClient{status: http.StatusOK, body: `{"country":"DE","segment":"premium"}`}
	client, err := enrichment.NewClient("http://profiles.internal", time.Second, zerolog.Nop(), enrichment.WithHTTPClient(httpc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := client.Enrich(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Country != "DE" || out.Segment != "premium" {
		t.Fatalf("unexpected enrichment %+v", out)
	}
	if httpc.lastURL != "http://profiles.internal/profiles?email=ada%40example.com" {
		t.Fatalf("unexpected request URL %s", httpc.lastURL)
	}
}

func TestClientEnrichRejectsBadStatus(t *testing.T) {
	httpc := &fakeHTTPClient{status: http.StatusBadGateway}
	client, err := enrichment.NewClient("http://profiles.internal", time.Second, zerolog.Nop(), enrichment.WithHTTPClient(httpc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := client.Enrich(context.Background(), "ada@example.com"); err == nil {
		t.Fatalf("expected error for non-2xx status")
	}
}

func TestClientRequiresBaseURL(t *testing.T) {
	if _, err := enrichment.NewClient("  ", time.Second, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
}

type fakeEnricher struct {
	out   models.Enrichment
	err   error
	calls int
}

func (f *fakeEnricher) Enrich(context.Context, string) (models.Enrichment, error) {
	f.calls++
	return f.out, f.err
}

func testBreaker() *breaker.Breaker {
	return breaker.New(breaker.Settings{
		Name:             "profiles",
		WindowSize:       4,
		MinCalls:         2,
		FailureThreshold: 0.5,
		OpenWait:         time.Minute,
	})
}

func TestGuardedPassesThroughOnSuccess(t *testing.T) {
	inner := &fakeEnricher{out: models.Enrichment{Country: "FR"}}
	g := enrichment.NewGuarded(inner, testBreaker(), zerolog.Nop())

	out, err := g.Enrich(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Country != "FR" {
		t.Fatalf("unexpected enrichment %+v", out)
	}
}

func TestGuardedReturnsUnavailableWhenOpen(t *testing.T) {
	inner := &fakeEnricher{out: models.Enrichment{Country: "FR"}}
	b := testBreaker()
	g := enrichment.NewGuarded(inner, b, zerolog.Nop())

	b.ForceOpen()
	_, err := g.Enrich(context.Background(), "ada@example.com")
	if !errors.Is(err, enrichment.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if inner.calls != 0 {
		t.Fatalf("dependency must not be called while the breaker is open")
	}
}

func TestGuardedFailuresTripTheBreaker(t *testing.T) {
	inner := &fakeEnricher{err: errors.New("profiles down")}
	b := testBreaker()
	g := enrichment.NewGuarded(inner, b, zerolog.Nop())

	for i := 0; i < 2; i++ {
		if _, err := g.Enrich(context.Background(), "ada@example.com"); err == nil {
			t.Fatalf("expected dependency error")
		}
	}

	if got := b.State(); got != breaker.StateOpen {
		t.Fatalf("expected breaker open after threshold failures, got %v", got)
	}
	callsBefore := inner.calls
	if _, err := g.Enrich(context.Background(), "ada@example.com"); !errors.Is(err, enrichment.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if inner.calls != callsBefore {
		t.Fatalf("open breaker must shield the dependency")
	}
}
