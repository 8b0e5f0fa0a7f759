// Package api is the client for the upstream court service REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DoyleJ11/court-queue-board/internal/court"
)

const tracerName = "github.com/DoyleJ11/court-queue-board/internal/api"

// StatusError is returned for any non-2xx upstream response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s -> %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s -> %d: %s", e.Method, e.URL, e.Code, e.Body)
}

type Client struct {
	base   string
	http   *http.Client
	tracer trace.Tracer
}

// New returns a client for the service at base, e.g. "http://192.168.1.99:8000".
func New(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 6 * time.Second}
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		http:   httpClient,
		tracer: otel.Tracer(tracerName),
	}
}

// StreamURL is the server-sent event endpoint of the same service.
func (c *Client) StreamURL() string {
	return c.base + "/api/sse/courts"
}

func (c *Client) ListCourts(ctx context.Context) ([]court.Court, error) {
	var courts []court.Court
	if err := c.do(ctx, "ListCourts", http.MethodGet, "/api/courts", nil, &courts); err != nil {
		return nil, err
	}
	return court.Dedupe(courts), nil
}

func (c *Client) GetCourt(ctx context.Context, id court.ID) (court.Court, error) {
	var out court.Court
	err := c.do(ctx, "GetCourt", http.MethodGet, courtPath(id, ""), nil, &out)
	return out, err
}

type courtBody struct {
	Name      string `json:"name"`
	Current   *int   `json:"current"`
	Next      *int   `json:"next"`
	AfterNext *int   `json:"afterNext"`
	Last      int    `json:"last"` // the upstream admin UI sends "Last"
}

// UpdateCourt replaces a court record upstream. Empty slots are sent as null.
func (c *Client) UpdateCourt(ctx context.Context, in court.Court) error {
	if err := court.ValidateCourt(in); err != nil {
		return err
	}
	body := courtBody{
		Name:      in.Name,
		Current:   slot(in.Current),
		Next:      slot(in.Next),
		AfterNext: slot(in.AfterNext),
		Last:      in.Last,
	}
	return c.do(ctx, "UpdateCourt", http.MethodPut, courtPath(in.ID, ""), body, nil)
}

// FinishMatch marks the current match done; upstream shifts the queue forward.
func (c *Client) FinishMatch(ctx context.Context, cur court.Court) error {
	if err := court.CanFinish(cur); err != nil {
		return err
	}
	return c.do(ctx, "FinishMatch", http.MethodPost, courtPath(cur.ID, "next"), nil, nil)
}

// UpdateNext sets the next two matches. cur is the last known record and
// supplies the range bound.
func (c *Client) UpdateNext(ctx context.Context, cur court.Court, next, afterNext int) error {
	if err := court.ValidateQueue(cur, next, afterNext); err != nil {
		return err
	}
	body := struct {
		Next      int `json:"next"`
		AfterNext int `json:"afterNext"`
	}{next, afterNext}
	return c.do(ctx, "UpdateNext", http.MethodPost, courtPath(cur.ID, "update-next"), body, nil)
}

// ResetCourt puts the court back to its first match.
func (c *Client) ResetCourt(ctx context.Context, id court.ID) error {
	if id == "" {
		return court.ErrMissingID
	}
	return c.do(ctx, "ResetCourt", http.MethodPost, courtPath(id, "reset"), nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	target := c.base + path
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.url", target))

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, URL: target, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, target, err)
	}
	return nil
}

func courtPath(id court.ID, action string) string {
	p := "/api/courts/" + url.PathEscape(string(id))
	if action != "" {
		p += "/" + action
	}
	return p
}

func slot(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
