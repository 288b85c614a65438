package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudetl/pipeline-runner/internal/config"
	"github.com/cloudetl/pipeline-runner/internal/models"
	"github.com/cloudetl/pipeline-runner/internal/retry"
)

// FetchError is the terminal failure returned once every attempt has been
// used up. It carries the last underlying cause and the attempt count.
type FetchError struct {
	Attempts int
	LastErr  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *FetchError) Unwrap() error { return e.LastErr }

// Result is a successful fetch: the raw records plus how many attempts were
// needed to get them.
type Result struct {
	Records  []models.RawRecord
	Attempts int
}

// Fetcher reads a batch of records from the external source, retrying with
// exponential backoff and honoring rate-limit advisories.
type Fetcher struct {
	cfg    config.Fetch
	policy retry.Policy
	client *http.Client
	logger *slog.Logger

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// Option adjusts a Fetcher at construction.
type Option func(*Fetcher)

// WithSleep replaces the backoff sleep, letting tests observe waits
// instead of blocking on them.
func WithSleep(sleep func(time.Duration)) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// New creates a Fetcher for the configured source.
func New(cfg config.Fetch, logger *slog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:    cfg,
		policy: retry.Policy{MaxAttempts: cfg.MaxAttempts},
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch drives sequential attempts against the source until one succeeds or
// the retry policy signals exhaustion. Rate-limited responses (HTTP 429)
// count toward the attempt limit but are not recorded as the last error.
func (f *Fetcher) Fetch(ctx context.Context) (Result, error) {
	var lastErr error

	for attempt := 1; ; attempt++ {
		f.logger.Info("fetching records",
			"step", "fetch", "attempt", attempt, "max_attempts", f.cfg.MaxAttempts, "url", f.cfg.SourceURL)

		records, sig, err := f.attempt(ctx)
		switch sig.Kind {
		case retry.Success:
			f.logger.Info("fetched records", "step", "fetch", "count", len(records), "attempt", attempt)
			return Result{Records: records, Attempts: attempt}, nil
		case retry.Transient:
			lastErr = err
		}

		d := f.policy.Decide(attempt, sig)
		if !d.Retry {
			if lastErr == nil {
				lastErr = errors.New("rate limited by source")
			}
			return Result{Attempts: attempt}, &FetchError{Attempts: attempt, LastErr: lastErr}
		}

		f.logger.Warn("attempt failed, backing off",
			"step", "fetch", "attempt", attempt, "wait", d.Wait.String(), "rate_limited", sig.Kind == retry.RateLimited, "error", errString(err))
		f.sleep(d.Wait)
	}
}

// attempt issues a single read against the source and classifies the
// outcome for the retry policy.
func (f *Fetcher) attempt(ctx context.Context) ([]models.RawRecord, retry.Signal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.SourceURL, nil)
	if err != nil {
		return nil, retry.TransientSignal(), fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, retry.TransientSignal(), fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, ok := retryAfterSeconds(resp.Header); ok {
			return nil, retry.RateLimitedAfter(secs), nil
		}
		return nil, retry.RateLimitedSignal(), nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, retry.TransientSignal(), fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.TransientSignal(), fmt.Errorf("failed to read response body: %w", err)
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, retry.TransientSignal(), fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return records, retry.Succeeded(), nil
}

// decodeRecords parses the response body as a JSON array of records.
// Numbers are kept as json.Number so validation can distinguish integers
// from floats.
func decodeRecords(body []byte) ([]models.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var records []models.RawRecord
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// retryAfterSeconds reads an advisory Retry-After header, in seconds.
func retryAfterSeconds(h http.Header) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
