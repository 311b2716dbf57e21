// Package translate implements S4: translating segment text into the
// target language while preserving timestamps, via a formal grammar-based
// primary provider with a generative fallback.
package translate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/voicebridge/dubline/internal/model"
	"github.com/voicebridge/dubline/internal/retry"
)

// errRateLimited and errServerError sub-classify model.ErrProviderTransient
// so the batch retry loop can pick the schedule the error kind calls
// for: 5s/10s for rate limits, 2s/4s for 5xx/timeout/network.
var (
	errRateLimited = errors.New("translate: rate limited")
	errServerError = errors.New("translate: server error")
)

// WrapRateLimited builds the transient error a provider returns on a 429.
func WrapRateLimited(cause error) error {
	return fmt.Errorf("%w: %w: %v", model.ErrProviderTransient, errRateLimited, cause)
}

// WrapServerError builds the transient error a provider returns on a 5xx,
// timeout, or network failure.
func WrapServerError(cause error) error {
	return fmt.Errorf("%w: %w: %v", model.ErrProviderTransient, errServerError, cause)
}

// WrapPermanent builds the non-retryable error a provider returns on a
// non-429 4xx.
func WrapPermanent(cause error) error {
	return fmt.Errorf("%w: %v", model.ErrProviderPermanent, cause)
}

// Provider is satisfied by the AWS Translate (formal) and OpenAI
// (generative) adapters. TranslateBatch must return a slice the same
// length as lines on success; a mismatched count is treated as a batch
// failure by Run so the caller's fallback/retry policy kicks in.
type Provider interface {
	Name() string
	TranslateBatch(ctx context.Context, lines []string, sourceLanguage, targetLanguage, genre string) ([]string, error)
}

// Options configures S4's batching and retry behavior; zero-value fields
// fall back to DefaultOptions' constants.
type Options struct {
	BatchSize              int
	InterBatchDelay        time.Duration
	CallTimeout            time.Duration // bound on each individual provider call, not the whole stage
	Genre                  string        // context parameter for the generative provider's prompt, e.g. "movie dialogue"
	MaxConsecutiveFailures int

	// RateLimitBackoff/ServerErrorBackoff are the per-kind backoff
	// schedules; tests override these with millisecond delays.
	RateLimitBackoff   []time.Duration
	ServerErrorBackoff []time.Duration
}

// DefaultOptions returns the pipeline defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:              20,
		InterBatchDelay:        1500 * time.Millisecond,
		CallTimeout:            180 * time.Second,
		Genre:                  "movie dialogue",
		MaxConsecutiveFailures: 3,
		RateLimitBackoff:       []time.Duration{5 * time.Second, 10 * time.Second},
		ServerErrorBackoff:     []time.Duration{2 * time.Second, 4 * time.Second},
	}
}

// Result is Run's outcome: the translated segments plus how many had been
// translated before a fatal abort.
type Result struct {
	Segments     []model.Segment
	PartialCount int
}

// Run executes S4 over every segment with non-empty text: batches of
// BatchSize, primary-then-fallback per batch, an inter-batch pause, and a
// fatal abort after MaxConsecutiveFailures consecutive batch failures.
// Segments with empty text pass through untouched (an already-empty
// segment needs no translation call).
func Run(ctx context.Context, segments []model.Segment, sourceLanguage, targetLanguage string, primary, fallback Provider, opts Options) (Result, error) {
	out := make([]model.Segment, len(segments))
	copy(out, segments)

	idx := make([]int, 0, len(segments))
	for i, s := range segments {
		if strings.TrimSpace(s.Text) != "" {
			idx = append(idx, i)
		}
	}

	consecutiveFailures := 0
	translated := 0
	for batchStart := 0; batchStart < len(idx); batchStart += opts.BatchSize {
		batchEnd := min(batchStart+opts.BatchSize, len(idx))
		batchIdx := idx[batchStart:batchEnd]

		lines := make([]string, len(batchIdx))
		for i, segIdx := range batchIdx {
			lines[i] = segments[segIdx].Text
		}

		results, err := translateBatchWithFallback(ctx, primary, fallback, lines, sourceLanguage, targetLanguage, opts)
		if err != nil {
			consecutiveFailures++
			if consecutiveFailures >= opts.MaxConsecutiveFailures {
				return Result{Segments: out, PartialCount: translated}, fmt.Errorf("%w: translation fatal after %d consecutive batch failures: %v", model.ErrStageFailed, consecutiveFailures, err)
			}
			continue
		}
		consecutiveFailures = 0

		for i, segIdx := range batchIdx {
			out[segIdx].OriginalText = segments[segIdx].Text
			out[segIdx].Text = strings.TrimSpace(results[i])
			translated++
		}

		if batchEnd < len(idx) {
			select {
			case <-ctx.Done():
				return Result{Segments: out, PartialCount: translated}, ctx.Err()
			case <-time.After(opts.InterBatchDelay):
			}
		}
	}

	return Result{Segments: out, PartialCount: translated}, nil
}

// translateBatchWithFallback tries primary with its retry schedule, then
// fallback with its own, returning the first success.
func translateBatchWithFallback(ctx context.Context, primary, fallback Provider, lines []string, sourceLanguage, targetLanguage string, opts Options) ([]string, error) {
	results, err := translateBatchWithRetry(ctx, primary, lines, sourceLanguage, targetLanguage, opts)
	if err == nil {
		return results, nil
	}
	if fallback == nil {
		return nil, err
	}
	return translateBatchWithRetry(ctx, fallback, lines, sourceLanguage, targetLanguage, opts)
}

// translateBatchWithRetry runs one provider call, then — only if the
// failure is retryable — up to two more attempts using the backoff
// schedule that matches the observed error kind: 5s/10s for rate
// limits, 2s/4s for 5xx/timeout/network, no retry at all on a permanent
// 4xx. The first attempt's result is cached so retry.Do's own first
// iteration doesn't re-issue a call that already failed.
func translateBatchWithRetry(ctx context.Context, p Provider, lines []string, sourceLanguage, targetLanguage string, opts Options) ([]string, error) {
	call := func(ctx context.Context) ([]string, error) {
		timeout := opts.CallTimeout
		if timeout <= 0 {
			timeout = 180 * time.Second
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		results, err := p.TranslateBatch(callCtx, lines, sourceLanguage, targetLanguage, opts.Genre)
		if err != nil {
			return nil, err
		}
		if len(results) != len(lines) {
			return nil, fmt.Errorf("%w: %s returned %d translations for %d inputs", model.ErrStageFailed, p.Name(), len(results), len(lines))
		}
		return results, nil
	}

	firstResults, firstErr := call(ctx)
	if firstErr == nil {
		return firstResults, nil
	}
	if !errors.Is(firstErr, model.ErrProviderTransient) {
		return nil, firstErr // permanent 4xx, or a count-mismatch: no retry
	}

	schedule := opts.ServerErrorBackoff
	if errors.Is(firstErr, errRateLimited) {
		schedule = opts.RateLimitBackoff
	}

	policy := retry.Policy{
		Attempts:  3,
		Backoff:   schedule,
		Retryable: func(e error) bool { return errors.Is(e, model.ErrProviderTransient) },
	}
	attempt := 0
	var results []string
	retryErr := retry.Do(ctx, policy, func(ctx context.Context, n int) error {
		attempt++
		if attempt == 1 {
			return firstErr
		}
		r, callErr := call(ctx)
		if callErr != nil {
			return callErr
		}
		results = r
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}
	return results, nil
}

// numberedLine matches a "[N] text" line produced by the orchestration's
// enumeration prompt or echoed back by a generative provider.
var numberedLine = regexp.MustCompile(`^\s*\[(\d+)\]\s*(.*)$`)

// BuildNumberedPrompt renders lines as the "[1] ...\n[2] ..." enumeration
// a generative provider expects as its batch input.
func BuildNumberedPrompt(lines []string) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, line)
	}
	return b.String()
}

// ParseNumbered parses a "[1] ...\n[2] ..." response into exactly
// wantCount lines, returning an error if any index is missing, out of
// order, or the count doesn't match.
func ParseNumbered(output string, wantCount int) ([]string, error) {
	lines := splitNonEmptyLines(output)
	result := make([]string, wantCount)
	found := make([]bool, wantCount)
	for _, line := range lines {
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > wantCount {
			continue
		}
		result[n-1] = strings.TrimSpace(m[2])
		found[n-1] = true
	}
	for _, ok := range found {
		if !ok {
			return nil, fmt.Errorf("numbered parse: missing entries, found %d want %d", countTrue(found), wantCount)
		}
	}
	return result, nil
}

// ParseLineSplit is the fallback: split on newlines and strip any
// leading numeric "[N]" prefix line-by-line, tolerating a response whose
// numbering is incomplete or malformed as long as the line count matches.
func ParseLineSplit(output string, wantCount int) ([]string, error) {
	lines := splitNonEmptyLines(output)
	if len(lines) != wantCount {
		return nil, fmt.Errorf("line-split parse: got %d lines want %d", len(lines), wantCount)
	}
	result := make([]string, wantCount)
	for i, line := range lines {
		if m := numberedLine.FindStringSubmatch(line); m != nil {
			result[i] = strings.TrimSpace(m[2])
		} else {
			result[i] = strings.TrimSpace(line)
		}
	}
	return result, nil
}

// ParseBatchResponse tries ParseNumbered first, falling back to
// ParseLineSplit, so a generative provider's response survives a
// partially-numbered or renumbered reply.
func ParseBatchResponse(output string, wantCount int) ([]string, error) {
	if result, err := ParseNumbered(output, wantCount); err == nil {
		return result, nil
	}
	return ParseLineSplit(output, wantCount)
}

func splitNonEmptyLines(s string) []string {
	raw := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}
