// Package probe issues single observational HTTP requests against HLS
// endpoints and reports what happened as metric samples.
//
// A probe never fails: network errors, HTTP errors, and timeouts all come
// back as outcome fields on the sample. Cancellation via the caller's
// context aborts the request and any in-flight body read, so a hung
// origin cannot hold a probe past its deadline.
package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

// maxRedirects is the redirect budget for a single probe. Exhausting it
// surfaces the last 3xx status as an http_error outcome.
const maxRedirects = 5

// Prober issues observational GETs with a hard per-request deadline.
// Safe for concurrent use by multiple supervisors.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

// New creates a Prober with the given per-request timeout.
func New(timeout time.Duration) *Prober {
	return NewWithTransport(timeout, nil)
}

// NewWithTransport creates a Prober with a custom RoundTripper.
// Tests use this to inject fake or hanging transports.
func NewWithTransport(timeout time.Duration, rt http.RoundTripper) *Prober {
	return &Prober{
		timeout: timeout,
		client: &http.Client{
			Transport: rt,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Manifest probes a manifest URL and returns the sample plus the body.
// The body is nil unless the outcome is ok.
func (p *Prober) Manifest(ctx context.Context, url string) (model.MetricSample, []byte) {
	return p.do(ctx, url, model.SampleManifest, 0, true)
}

// Segment probes a segment URL. declaredDurationMS comes from the
// manifest and feeds the download ratio; the body is read and discarded.
func (p *Prober) Segment(ctx context.Context, url string, declaredDurationMS float64) model.MetricSample {
	sample, _ := p.do(ctx, url, model.SampleSegment, declaredDurationMS, false)
	return sample
}

func (p *Prober) do(ctx context.Context, url string, kind model.SampleKind, declaredMS float64, wantBody bool) (model.MetricSample, []byte) {
	sample := model.MetricSample{
		Timestamp:          time.Now(),
		Kind:               kind,
		URL:                url,
		DeclaredDurationMS: declaredMS,
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			if firstByte.IsZero() {
				firstByte = time.Now()
			}
		},
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, url, nil)
	if err != nil {
		sample.Outcome = model.Outcome{Kind: model.OutcomeOther}
		sample.TotalMS = msSince(start)
		return sample, nil
	}

	resp, err := p.client.Do(req)
	if err != nil {
		sample.Outcome = classifyTransportError(err)
		sample.TotalMS = msSince(start)
		return sample, nil
	}
	defer resp.Body.Close()

	if !firstByte.IsZero() {
		sample.TTFBMS = float64(firstByte.Sub(start)) / float64(time.Millisecond)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a bounded amount so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		sample.Outcome = model.Outcome{Kind: model.OutcomeHTTPError, HTTPStatus: resp.StatusCode}
		sample.TotalMS = msSince(start)
		return sample, nil
	}

	var body []byte
	var n int64
	if wantBody {
		body, err = io.ReadAll(resp.Body)
		n = int64(len(body))
	} else {
		n, err = io.Copy(io.Discard, resp.Body)
	}
	sample.Bytes = n
	sample.TotalMS = msSince(start)

	if err != nil {
		// Transport died mid-body: partial bytes are kept on the sample.
		sample.Outcome = classifyTransportError(err)
		if sample.Outcome.Kind == model.OutcomeConnect || sample.Outcome.Kind == model.OutcomeDNS {
			sample.Outcome = model.Outcome{Kind: model.OutcomeOther}
		}
		return sample, nil
	}

	sample.Outcome = model.Outcome{Kind: model.OutcomeOK}
	if sample.HasRatio() {
		sample.DownloadRatio = sample.TotalMS / sample.DeclaredDurationMS
	}
	return sample, body
}

// classifyTransportError maps request errors onto the outcome taxonomy.
func classifyTransportError(err error) model.Outcome {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return model.Outcome{Kind: model.OutcomeDNS}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.Outcome{Kind: model.OutcomeTimeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.Outcome{Kind: model.OutcomeTimeout}
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return model.Outcome{Kind: model.OutcomeConnect}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return model.Outcome{Kind: model.OutcomeConnect}
	}

	return model.Outcome{Kind: model.OutcomeOther}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
