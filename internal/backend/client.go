// Package backend talks to the viva web application over its JSON API.
package backend

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

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-viva/internal/proctor"
)

// Endpoint paths, relative to the base URL.
const (
	PathGenerate     = "/viva/api/generate"
	PathSaveMarks    = "/viva/api/save-marks"
	PathViolation    = "/viva/api/violation"
	pathSubmitAnswer = "/api/viva/%s/submit-answer"
)

const maxBodyBytes = 1 << 20

// Envelope is the response shape every viva endpoint returns.
type Envelope[T any] struct {
	Status  string `json:"status"`
	Stage   string `json:"stage,omitempty"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// Credentials are forwarded on every request so the web application sees
// the learner's own session.
type Credentials struct {
	Cookies       []*http.Cookie
	Authorization string
}

var _ proctor.Backend = (*Client)(nil)

// Client implements proctor.Backend.
type Client struct {
	baseURL string
	http    *http.Client
	creds   Credentials
	log     zerolog.Logger
}

// NewClient creates a client for baseURL. A nil httpClient uses a client
// without an overall timeout; each call is bounded by its context.
func NewClient(baseURL string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     log.With().Str("component", "backend_client").Logger(),
	}
}

// WithCredentials returns a copy of c that forwards creds.
func (c *Client) WithCredentials(creds Credentials) *Client {
	cp := *c
	cp.creds = creds
	return &cp
}

type generateData struct {
	Questions []proctor.Question `json:"questions"`
}

// GenerateQuestions calls the generation endpoint.
func (c *Client) GenerateQuestions(ctx context.Context, req proctor.GenerateRequest) ([]proctor.Question, error) {
	var env Envelope[generateData]
	if err := c.post(ctx, PathGenerate, req, &env); err != nil {
		return nil, err
	}
	return env.Data.Questions, nil
}

type submitAnswerBody struct {
	QuestionNumber int    `json:"question_number"`
	AnswerText     string `json:"answer_text"`
}

// RecordAnswer forwards a single selection in progressive mode.
func (c *Client) RecordAnswer(ctx context.Context, sess proctor.SessionContext, questionNumber int, letter string) error {
	if sess.VivaSessionID == "" {
		return fmt.Errorf("%w: viva session id is missing", proctor.ErrNetwork)
	}
	path := fmt.Sprintf(pathSubmitAnswer, url.PathEscape(sess.VivaSessionID))
	var env Envelope[json.RawMessage]
	return c.post(ctx, path, submitAnswerBody{QuestionNumber: questionNumber, AnswerText: letter}, &env)
}

// SaveMarks performs the final marks write.
func (c *Client) SaveMarks(ctx context.Context, req proctor.MarksRequest) (*proctor.MarksReceipt, error) {
	var env Envelope[proctor.MarksReceipt]
	if err := c.post(ctx, PathSaveMarks, req, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

type violationBody struct {
	VivaSessionID string `json:"viva_session_id"`
	SessionID     string `json:"session_id"`
	Reason        string `json:"reason"`
}

// ReportViolation notifies the web application that the attempt was terminated.
func (c *Client) ReportViolation(ctx context.Context, sess proctor.SessionContext, reason string) error {
	body := violationBody{VivaSessionID: sess.VivaSessionID, SessionID: sess.SessionID, Reason: reason}
	var env Envelope[json.RawMessage]
	return c.post(ctx, PathViolation, body, &env)
}

// StatusError is returned for a non-success reply.
type StatusError struct {
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s returned %d: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s returned %d", e.Path, e.Code)
}

// Unwrap lets callers match proctor.ErrNetwork.
func (e *StatusError) Unwrap() error { return proctor.ErrNetwork }

type envelope interface {
	status() string
	message() string
}

func (e *Envelope[T]) status() string  { return e.Status }
func (e *Envelope[T]) message() string { return e.Message }

func (c *Client) post(ctx context.Context, path string, in any, out envelope) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.creds.Authorization != "" {
		req.Header.Set("Authorization", c.creds.Authorization)
	}
	for _, ck := range c.creds.Cookies {
		req.AddCookie(ck)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", proctor.ErrNetwork, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", proctor.ErrNetwork, path, err)
	}
	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Backend call")

	var decodeErr error
	if len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = json.Unmarshal(raw, out)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Path: path, Code: resp.StatusCode}
		if decodeErr == nil {
			se.Message = out.message()
		}
		return se
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: decode %s response: %v", proctor.ErrNetwork, path, decodeErr)
	}
	if s := out.status(); s != "" && s != "success" {
		return &StatusError{Path: path, Code: resp.StatusCode, Message: out.message()}
	}
	return nil
}
