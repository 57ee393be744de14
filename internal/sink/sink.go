package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/devblac/bridge-indexer/internal/config"
	"github.com/devblac/bridge-indexer/internal/model"
)

// Payload is the data passed to sinks: one stored record selected by a
// route.
type Payload struct {
	RouteID   string                 `json:"route_id"`
	RecordKey string                 `json:"record_key"`
	Record    model.PartialBridgeTxn `json:"record"`
}

// Fields flattens the record for templates.
func (p Payload) Fields() map[string]any {
	return p.Record.Fields()
}

type Sender interface {
	Send(ctx context.Context, payload Payload) error
}

// BatchSender is implemented by sinks that deliver many payloads in one
// round trip.
type BatchSender interface {
	SendBatch(ctx context.Context, payloads []Payload) error
}

// Deliver hands payloads to s, batched when the sink supports it.
func Deliver(ctx context.Context, s Sender, payloads []Payload) error {
	if len(payloads) == 0 {
		return nil
	}
	if b, ok := s.(BatchSender); ok {
		return b.SendBatch(ctx, payloads)
	}
	for _, p := range payloads {
		if err := s.Send(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// FromConfig builds the sender a sink entry describes.
func FromConfig(ctx context.Context, s config.Sink) (Sender, error) {
	switch strings.ToLower(s.Type) {
	case "slack":
		return NewSlackSender(s.WebhookURL, s.Template)
	case "teams":
		return NewTeamsSender(s.WebhookURL, s.Template)
	case "webhook":
		return NewWebhookSender(s.URL, s.Method, s.Template, map[string]string{
			"Content-Type": "application/json",
		})
	case "redis":
		r, err := NewRedisSender(s.Addr, s.Password, s.List)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "postgres":
		pg, err := NewPostgresSender(ctx, s.DSN, s.Table)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", s.Type)
	}
}

type httpSender struct {
	url     string
	method  string
	render  *template.Template
	client  *http.Client
	headers map[string]string
}

// NewWebhookSender builds a generic HTTP sink. Without a template the
// payload is posted as JSON; with one, the rendered text is posted as
// {"text": ...}.
func NewWebhookSender(url, method, tmpl string, headers map[string]string) (Sender, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url required")
	}
	if method == "" {
		method = http.MethodPost
	}
	var t *template.Template
	if tmpl != "" {
		var err error
		if t, err = parseTemplate(tmpl); err != nil {
			return nil, err
		}
	}
	return &httpSender{
		url:     url,
		method:  strings.ToUpper(method),
		render:  t,
		client:  defaultClient(),
		headers: headers,
	}, nil
}

// NewSlackSender builds a Slack-compatible webhook sink.
func NewSlackSender(url, tmpl string) (Sender, error) {
	return newTextSender(url, tmpl)
}

// NewTeamsSender builds a Teams-compatible webhook sink.
func NewTeamsSender(url, tmpl string) (Sender, error) {
	// Teams accepts simple {text: "..."} payloads.
	return newTextSender(url, tmpl)
}

func newTextSender(url, tmpl string) (Sender, error) {
	if tmpl == "" {
		tmpl = defaultTemplate
	}
	return NewWebhookSender(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

const defaultTemplate = "{{.Record.TxnType}} {{.Record.Amount}} {{.Record.TokenSymbol}} on {{.Record.Network}} ({{.Record.ChainStatus}}) {{short_addr .Record.TxnID}}"

func (s *httpSender) Send(ctx context.Context, payload Payload) error {
	var (
		reqBody []byte
		err     error
	)
	if s.render != nil {
		bodyStr, err := executeTemplate(s.render, payload)
		if err != nil {
			return err
		}
		reqBody, err = json.Marshal(map[string]string{
			"text": bodyStr,
		})
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	} else if reqBody, err = json.Marshal(payload); err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink http status %d", resp.StatusCode)
	}
	return nil
}

func parseTemplate(tmpl string) (*template.Template, error) {
	funcs := template.FuncMap{
		"pretty_json": func(v any) string {
			out, _ := json.MarshalIndent(v, "", "  ")
			return string(out)
		},
		"short_addr": func(addr string) string {
			if len(addr) <= 10 {
				return addr
			}
			return addr[:6] + "..." + addr[len(addr)-4:]
		},
	}
	return template.New("msg").Funcs(funcs).Parse(tmpl)
}

func executeTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 8 * time.Second,
	}
}
