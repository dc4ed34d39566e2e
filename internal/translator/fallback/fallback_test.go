package fallback_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ownlingo/ownlingo/internal/translator"
	"github.com/ownlingo/ownlingo/internal/translator/fallback"
	"github.com/ownlingo/ownlingo/internal/translator/retry"
)

type stubProvider struct {
	name        string
	err         error
	unavailable bool
	calls       int
	tokens      int
	requests    int
}

func (p *stubProvider) Translate(_ context.Context, req *translator.TranslationRequest) (*translator.TranslationResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &translator.TranslationResponse{
		TranslatedText: "translated by " + p.name,
		SourceText:     req.Text,
		Provider:       p.name,
	}, nil
}

func (p *stubProvider) TranslateBatch(ctx context.Context, reqs []*translator.TranslationRequest) ([]*translator.TranslationResponse, error) {
	responses := make([]*translator.TranslationResponse, len(reqs))
	for i, req := range reqs {
		resp, err := p.Translate(ctx, req)
		if err != nil {
			return nil, err
		}
		responses[i] = resp
	}
	return responses, nil
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) Available() bool {
	return !p.unavailable
}

func (p *stubProvider) RemainingCapacity() (int, int) {
	return p.tokens, p.requests
}

func transientErr(msg string) error {
	return &retry.RetryableError{Err: errors.New(msg), StatusCode: 503}
}

func TestNewChainPanicsWithoutProviders(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic for empty provider list")
		}
	}()
	fallback.NewChain()
}

func TestChainNameUsesPrimary(t *testing.T) {
	t.Parallel()

	chain := fallback.NewChain(&stubProvider{name: "anthropic"}, &stubProvider{name: "openai"})
	if got := chain.Name(); got != "fallback-chain(anthropic)" {
		t.Fatalf("unexpected chain name: %q", got)
	}
}

func TestTranslateFallsBackOnRetryableFailure(t *testing.T) {
	t.Parallel()

	a := &stubProvider{name: "a", err: transientErr("overloaded")}
	b := &stubProvider{name: "b"}
	c := &stubProvider{name: "c"}
	chain := fallback.NewChain(a, b, c)

	resp, err := chain.Translate(context.Background(), &translator.TranslationRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "b" {
		t.Fatalf("expected provider b, got %q", resp.Provider)
	}
	if a.calls != 1 {
		t.Fatalf("expected exactly 1 failed attempt against a, got %d", a.calls)
	}
	if c.calls != 0 {
		t.Fatalf("expected c untried, got %d calls", c.calls)
	}
}

func TestTranslateNonRetryableAbortsChain(t *testing.T) {
	t.Parallel()

	permanent := errors.New("invalid api key")
	a := &stubProvider{name: "a", err: permanent}
	b := &stubProvider{name: "b"}
	chain := fallback.NewChain(a, b)

	_, err := chain.Translate(context.Background(), &translator.TranslationRequest{Text: "hello"})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if b.calls != 0 {
		t.Fatalf("expected no fallback after non-retryable error, b called %d times", b.calls)
	}
	if !strings.Contains(err.Error(), "provider a") {
		t.Fatalf("expected provider identity in error, got %q", err.Error())
	}
}

func TestTranslateSkipsUnavailableProviders(t *testing.T) {
	t.Parallel()

	a := &stubProvider{name: "a", unavailable: true}
	b := &stubProvider{name: "b"}
	chain := fallback.NewChain(a, b)

	resp, err := chain.Translate(context.Background(), &translator.TranslationRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "b" {
		t.Fatalf("expected provider b, got %q", resp.Provider)
	}
	if a.calls != 0 {
		t.Fatalf("expected unavailable provider skipped, a called %d times", a.calls)
	}
}

func TestTranslateAggregatesAllFailures(t *testing.T) {
	t.Parallel()

	a := &stubProvider{name: "a", err: transientErr("timeout")}
	b := &stubProvider{name: "b", err: transientErr("overloaded")}
	chain := fallback.NewChain(a, b)

	_, err := chain.Translate(context.Background(), &translator.TranslationRequest{Text: "hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"provider a", "provider b", "timeout", "overloaded"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("aggregate error missing %q: %s", want, err.Error())
		}
	}
	if !retry.IsRetryable(err) {
		t.Fatalf("expected aggregate of transient failures to stay retryable")
	}
}

func TestTranslateBatchPreservesOrder(t *testing.T) {
	t.Parallel()

	chain := fallback.NewChain(&stubProvider{name: "a"})
	reqs := []*translator.TranslationRequest{
		{Text: "one"},
		{Text: "two"},
	}

	responses, err := chain.TranslateBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	if responses[0].SourceText != "one" || responses[1].SourceText != "two" {
		t.Fatalf("batch responses out of order: %+v", responses)
	}
}

func TestRemainingCapacityReportsPrimaryOnly(t *testing.T) {
	t.Parallel()

	a := &stubProvider{name: "a", tokens: 500, requests: 7}
	b := &stubProvider{name: "b", tokens: 9999, requests: 99}
	chain := fallback.NewChain(a, b)

	tokens, requests := chain.RemainingCapacity()
	if tokens != 500 || requests != 7 {
		t.Fatalf("expected primary capacity (500, 7), got (%d, %d)", tokens, requests)
	}
}
