package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// Headers set on every HTTP delivery.
const (
	HeaderDeliveryID = "X-Nullspace-Delivery"
	HeaderHeight     = "X-Nullspace-Height"
	HeaderAttempt    = "X-Nullspace-Attempt"
	ContentType      = "application/x-cramberry"
)

// HTTPSink POSTs the cramberry encoding of each block record to URL.
// 5xx responses and transport errors are retried; other non-2xx
// responses are permanent.
type HTTPSink struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPSink creates a sink for url. A nil client uses one with a
// 10 second timeout.
func NewHTTPSink(name, url string, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSink{name: name, url: url, client: client}
}

func (s *HTTPSink) Name() string { return s.name }

func (s *HTTPSink) Deliver(ctx context.Context, d Delivery) error {
	body, err := cramberry.Marshal(d.Record)
	if err != nil {
		return Permanent(fmt.Errorf("encode record %d: %w", d.Record.Height, err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Permanent(err)
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set(HeaderDeliveryID, d.ID.String())
	req.Header.Set(HeaderHeight, strconv.FormatUint(d.Record.Height, 10))
	req.Header.Set(HeaderAttempt, strconv.Itoa(d.Attempt))

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %s", s.name, resp.Status)
	default:
		return Permanent(fmt.Errorf("%s: %s", s.name, resp.Status))
	}
}
