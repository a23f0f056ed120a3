// Package ratelimit wraps an llmmodel.Client with an adaptive
// tokens-per-minute limiter: a token bucket that backs off when the
// provider reports a rate limit and probes back up otherwise. Process-local
// only, since a single p2n invocation drives at most one pipeline run at a
// time.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/PIP-Team-3/paper2notebook/llmmodel"
	"github.com/PIP-Team-3/paper2notebook/p2nerrors"
)

// Limiter applies an AIMD-style adaptive token bucket in front of an
// llmmodel.Client. Construct one per provider client and wrap it with
// Wrap before handing it to the planner/extractor.
type Limiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64
}

// New constructs a Limiter with an initial tokens-per-minute budget and an
// upper bound. When maxTPM is zero or below initialTPM, it is clamped to
// initialTPM. initialTPM defaults to 60000 (a conservative single-key
// budget) when zero or negative.
func New(initialTPM, maxTPM float64) *Limiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &Limiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Wrap returns an llmmodel.Client that enforces l's limit before delegating
// Complete and Stream calls to next.
func (l *Limiter) Wrap(next llmmodel.Client) llmmodel.Client {
	if next == nil {
		return nil
	}
	return &limitedClient{next: next, limiter: l}
}

type limitedClient struct {
	next    llmmodel.Client
	limiter *Limiter
}

func (c *limitedClient) Complete(ctx context.Context, req *llmmodel.Request) (*llmmodel.Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (c *limitedClient) Stream(ctx context.Context, req *llmmodel.Request) (llmmodel.Streamer, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	stream, err := c.next.Stream(ctx, req)
	c.limiter.observe(err)
	return stream, err
}

func (l *Limiter) wait(ctx context.Context, req *llmmodel.Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *Limiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if pe, ok := p2nerrors.As(err); ok && pe.Code == p2nerrors.CodeRateLimited {
		l.backoff()
	}
}

func (l *Limiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	l.setTPMLocked(newTPM)
}

func (l *Limiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	l.setTPMLocked(newTPM)
}

func (l *Limiter) setTPMLocked(tpm float64) {
	if tpm == l.currentTPM {
		return
	}
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
}

// CurrentTPM returns the limiter's current effective tokens-per-minute
// budget, mainly for tests and diagnostics.
func (l *Limiter) CurrentTPM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

// estimateTokens computes a cheap heuristic for the number of tokens in a
// request transcript: counts characters in text and string tool results,
// converts to tokens at a fixed ratio, and adds a flat buffer for system
// prompt and provider framing overhead.
func estimateTokens(req *llmmodel.Request) int {
	charCount := 0
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			switch v := p.(type) {
			case llmmodel.TextPart:
				charCount += len(v.Text)
			case llmmodel.ToolResultPart:
				if s, ok := v.Content.(string); ok {
					charCount += len(s)
				}
			}
		}
	}
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
