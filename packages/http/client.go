package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
	"github.com/abdul-hamid-achik/caserun/packages/logging"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
)

// Client sends each request exactly once. Retries are never attempted.
type Client struct {
	resty          *resty.Client
	timeout        time.Duration
	followRedirect bool
	maxRedirects   int
	validateSSL    bool
	proxyURL       string
	limiter        *rate.Limiter
	logger         *logging.Logger
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:        DefaultTimeout,
		followRedirect: true,
		maxRedirects:   DefaultMaxRedirects,
		validateSSL:    true,
		logger:         logging.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	rc := resty.New().
		SetTimeout(c.timeout).
		SetRetryCount(0).
		SetAllowGetMethodPayload(true).
		SetLogger(c.logger.Resty()).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			if !c.followRedirect || len(via) >= c.maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		}))

	if !c.validateSSL {
		rc.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	if c.proxyURL != "" {
		rc.SetProxy(c.proxyURL)
	}

	c.resty = rc
	return c
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithFollowRedirects(follow bool) ClientOption {
	return func(c *Client) {
		c.followRedirect = follow
	}
}

func WithMaxRedirects(max int) ClientOption {
	return func(c *Client) {
		c.maxRedirects = max
	}
}

// WithValidateSSL enables or disables SSL certificate validation
func WithValidateSSL(validate bool) ClientOption {
	return func(c *Client) {
		c.validateSSL = validate
	}
}

func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		c.proxyURL = proxyURL
	}
}

// WithRateLimit paces outgoing requests to perSecond. Zero disables pacing.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l.WithComponent("http")
		}
	}
}

// Do sends req once. Transport failures come back as *cases.ConnectionError;
// any HTTP status, including 5xx, is a response.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := ValidateURL(req.URL); err != nil {
		return nil, &cases.DataFormatError{CaseID: req.CaseID, Field: "url", Err: err}
	}

	r, err := c.build(ctx, req)
	if err != nil {
		return nil, &cases.DataFormatError{CaseID: req.CaseID, Field: "data", Err: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &cases.ConnectionError{CaseID: req.CaseID, Method: req.Method, URL: req.URL, Err: err}
		}
	}

	log := c.logger.WithCase(req.CaseID).WithRequest(req.Method, req.URL)
	log.Debug("sending request", "headers", log.MaskHeaders(req.Headers.Map()))

	start := time.Now()
	resp, err := r.Execute(strings.ToUpper(req.Method), req.URL)
	duration := time.Since(start)
	if err != nil {
		log.Warn("request failed", "error", err)
		return nil, &cases.ConnectionError{CaseID: req.CaseID, Method: req.Method, URL: req.URL, Err: err}
	}

	headers := make(map[string]string, len(resp.Header()))
	for k, v := range resp.Header() {
		headers[k] = strings.Join(v, ", ")
	}

	log.Debug("response received", "status", resp.StatusCode(), "duration_ms", duration.Milliseconds())

	return &Response{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Headers:    headers,
		Body:       resp.Body(),
		Duration:   duration,
		URL:        req.URL,
	}, nil
}

func (c *Client) build(ctx context.Context, req *Request) (*resty.Request, error) {
	r := c.resty.R().SetContext(ctx)
	for _, h := range req.Headers {
		r.SetHeader(h.Key, h.Value)
	}

	query, err := req.Query()
	if err != nil {
		return nil, err
	}
	r.SetQueryParamsFromValues(query)

	switch req.Type {
	case cases.RequestJSON, "":
		if req.Body == nil {
			break
		}
		payload, err := jsonPayload(req.Body)
		if err != nil {
			return nil, err
		}
		if _, ok := req.Headers.Get("Content-Type"); !ok {
			r.SetHeader("Content-Type", "application/json")
		}
		r.SetBody(payload)
	case cases.RequestForm:
		form, err := FormValues(req.Body)
		if err != nil {
			return nil, err
		}
		r.SetFormDataFromValues(form)
	case cases.RequestFile:
		if err := multipart(r, req.Body, req.BaseDir); err != nil {
			return nil, err
		}
	case cases.RequestParams, cases.RequestExport, cases.RequestNone:
	default:
		return nil, fmt.Errorf("unsupported request type %q", req.Type)
	}
	return r, nil
}

// jsonPayload sends strings as-is so pre-encoded bodies are not double quoted.
func jsonPayload(body any) ([]byte, error) {
	if s, ok := body.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(body)
}

func multipart(r *resty.Request, body any, baseDir string) error {
	if body == nil {
		return nil
	}
	m, ok := body.(map[string]any)
	if !ok {
		return fmt.Errorf("file request data must be a mapping, got %T", body)
	}

	files, _ := m[MultipartFiles].(map[string]any)
	if files == nil {
		files, _ = m["files"].(map[string]any)
	}
	fields := make([]string, 0, len(files))
	for k := range files {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for _, field := range fields {
		paths, err := filePaths(files[field])
		if err != nil {
			return fmt.Errorf("file field %s: %w", field, err)
		}
		for _, p := range paths {
			resolved := p
			if !filepath.IsAbs(resolved) && baseDir != "" {
				resolved = filepath.Join(baseDir, resolved)
			}
			if err := validatePathWithinBase(resolved, baseDir); err != nil {
				return err
			}
			r.SetFile(field, resolved)
		}
	}

	if data := m[MultipartFields]; data != nil {
		values, err := FormValues(data)
		if err != nil {
			return err
		}
		form := make(map[string]string, len(values))
		for k := range values {
			form[k] = values.Get(k)
		}
		r.SetMultipartFormData(form)
	}
	return nil
}

func filePaths(v any) ([]string, error) {
	switch val := v.(type) {
	case string:
		return []string{val}, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected file path, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected file path or list of paths, got %T", v)
}

// validatePathWithinBase keeps upload paths inside the data directory.
func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}

	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}

	return nil
}
