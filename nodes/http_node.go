package nodes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	stepflow "stepflow"
)

// HTTPNodeConfig describes how to drive an HTTP request from shared state.
type HTTPNodeConfig struct {
	Name    string
	Method  string
	URL     string
	Headers map[string]string
	// BodyKey names the shared entry used as the request body. Empty
	// means no body.
	BodyKey string
	// ResponseKey and StatusKey name the shared entries the response is
	// committed to.
	ResponseKey string
	StatusKey   string
	Client      *http.Client
}

// HTTPNode issues one HTTP request per execution. Prep assembles the
// request from shared state, Exec performs the round trip, Post commits
// status and body back.
type HTTPNode struct {
	stepflow.BaseNode
	cfg HTTPNodeConfig
}

type httpRequestSpec struct {
	method string
	url    string
	header http.Header
	body   string
}

type httpResponse struct {
	status int
	body   string
}

func NewHTTPNode(cfg HTTPNodeConfig) *HTTPNode {
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if cfg.ResponseKey == "" {
		cfg.ResponseKey = cfg.Name + "_response"
	}
	if cfg.StatusKey == "" {
		cfg.StatusKey = cfg.Name + "_status"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPNode{BaseNode: stepflow.NewBaseNode(cfg.Name), cfg: cfg}
}

func (n *HTTPNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	spec := httpRequestSpec{
		method: n.cfg.Method,
		url:    n.cfg.URL,
		header: make(http.Header, len(n.cfg.Headers)),
	}
	for key, value := range n.cfg.Headers {
		spec.header.Set(key, value)
	}

	if n.cfg.BodyKey != "" {
		raw, ok := shared[n.cfg.BodyKey]
		if !ok {
			return nil, fmt.Errorf("body key %q missing from shared state", n.cfg.BodyKey)
		}
		spec.body = fmt.Sprintf("%v", raw)
	}

	return spec, nil
}

func (n *HTTPNode) Exec(ctx context.Context, prepared any) (any, error) {
	spec, ok := prepared.(httpRequestSpec)
	if !ok {
		return nil, fmt.Errorf("http node %s: unexpected prepared value %T", n.Name(), prepared)
	}

	var body io.Reader
	if spec.body != "" {
		body = strings.NewReader(spec.body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, spec.url, body)
	if err != nil {
		return nil, err
	}
	req.Header = spec.header

	resp, err := n.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return httpResponse{status: resp.StatusCode, body: string(raw)}, nil
}

func (n *HTTPNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	resp, ok := result.(httpResponse)
	if !ok {
		return "", fmt.Errorf("http node %s: unexpected result %T", n.Name(), result)
	}

	shared[n.cfg.ResponseKey] = resp.body
	shared[n.cfg.StatusKey] = resp.status
	return stepflow.DefaultAction, nil
}

func init() {
	RegisterNode(NodeDefinition{
		ID:          "http",
		Description: "Issues an HTTP request built from shared state and commits status and body back.",
		Example:     `nodes.NewHTTPNode(nodes.HTTPNodeConfig{Name: "fetch", URL: "https://example.com/api"})`,
	})
}
