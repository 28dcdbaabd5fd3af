package weather

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"

	"sunnyside/log"
)

type NetworkMetrics struct {
	DNS        time.Duration
	ConnWait   time.Duration
	TCP        time.Duration
	TLS        time.Duration
	TTFB       time.Duration
	Download   time.Duration
	Total      time.Duration
	ConnReused bool
	Status     int
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (m *NetworkMetrics) log(op string) {
	log.FetchMetrics(op, log.Metrics{
		DNSMs:      ms(m.DNS),
		TCPMs:      ms(m.TCP),
		TLSMs:      ms(m.TLS),
		TTFBMs:     ms(m.TTFB),
		TotalMs:    ms(m.Total),
		Status:     m.Status,
		ConnReused: m.ConnReused,
	})
}

// TracedClient is an HTTP client that records connection timings for every
// request. Unary calls are bounded by the client timeout; streams are
// bounded only by their context.
type TracedClient struct {
	client *http.Client
	stream *http.Client
}

func NewTracedClient(timeout time.Duration) *TracedClient {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          4,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}
	return &TracedClient{
		client: &http.Client{Transport: transport, Timeout: timeout},
		stream: &http.Client{Transport: transport},
	}
}

type TracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

func trace(metrics *NetworkMetrics, firstByte *time.Time) *httptrace.ClientTrace {
	var getConnStart, dnsStart, tcpStart, tlsStart, wroteRequest time.Time
	return &httptrace.ClientTrace{
		GetConn: func(_ string) { getConnStart = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			metrics.ConnWait = time.Since(getConnStart)
			metrics.ConnReused = info.Reused
		},
		DNSStart:          func(_ httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone:           func(_ httptrace.DNSDoneInfo) { metrics.DNS = time.Since(dnsStart) },
		ConnectStart:      func(_, _ string) { tcpStart = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { metrics.TCP = time.Since(tcpStart) },
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone:  func(_ tls.ConnectionState, _ error) { metrics.TLS = time.Since(tlsStart) },
		WroteRequest:      func(_ httptrace.WroteRequestInfo) { wroteRequest = time.Now() },
		GotFirstResponseByte: func() {
			*firstByte = time.Now()
			metrics.TTFB = firstByte.Sub(wroteRequest)
		},
	}
}

// Do performs req and reads the whole body.
func (c *TracedClient) Do(req *http.Request) (*TracedResponse, error) {
	metrics := &NetworkMetrics{}
	var firstByte time.Time
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace(metrics, &firstByte)))
	reqStart := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	metrics.Download = time.Since(firstByte)
	metrics.Total = time.Since(reqStart)
	metrics.Status = resp.StatusCode

	return &TracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    metrics,
	}, nil
}

// Stream performs req and returns as soon as headers arrive. The caller owns
// resp.Body. Metrics cover the exchange up to the first byte.
func (c *TracedClient) Stream(req *http.Request) (*http.Response, *NetworkMetrics, error) {
	metrics := &NetworkMetrics{}
	var firstByte time.Time
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace(metrics, &firstByte)))
	reqStart := time.Now()

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, nil, err
	}
	metrics.Total = time.Since(reqStart)
	metrics.Status = resp.StatusCode
	return resp, metrics, nil
}

// Probe sends req as a HEAD request and reports its timings. Any HTTP status
// counts as reachable.
func (c *TracedClient) Probe(req *http.Request) (*NetworkMetrics, error) {
	req.Method = http.MethodHead
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	return resp.Metrics, nil
}
