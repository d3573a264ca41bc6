package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scripthound/internal/config"
)

// Script is one piece of JavaScript discovered on a page. Inline scripts
// carry their body directly; external scripts are fetched separately.
type Script struct {
	// SourceURL is the resolved script URL, or the page URL with a
	// positional fragment for inline scripts.
	SourceURL string
	Content   string
	Inline    bool
}

// Client retrieves pages and their scripts, applying a shared rate limit
// across all requests of a scan.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        config.FetchConfig
	log        *zap.Logger
}

// NewClient builds a fetch client from configuration.
func NewClient(cfg config.FetchConfig, logger *zap.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.IgnoreTLSErrors {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		cfg:     cfg,
		log:     logger.Named("fetch"),
	}
}

// Get retrieves one URL, honoring the rate limit and the configured body cap.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if c.cfg.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, c.cfg.MaxBodyBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return body, nil
}

// CollectScripts fetches the target and returns every script it references.
// An HTML response yields its inline scripts plus the fetched bodies of its
// external scripts; anything else is treated as a standalone script.
func (c *Client) CollectScripts(ctx context.Context, target string) ([]Script, error) {
	body, err := c.Get(ctx, target)
	if err != nil {
		return nil, err
	}

	if !looksLikeHTML(body) {
		return []Script{{SourceURL: target, Content: string(body)}}, nil
	}

	base, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing target url %s: %w", target, err)
	}

	inline, external := ExtractScripts(body)
	scripts := make([]Script, 0, len(inline)+len(external))
	for i, content := range inline {
		scripts = append(scripts, Script{
			SourceURL: fmt.Sprintf("%s#inline-%d", target, i+1),
			Content:   content,
			Inline:    true,
		})
	}

	for _, src := range external {
		resolved := resolveRef(base, src)
		if resolved == "" {
			continue
		}
		content, err := c.Get(ctx, resolved)
		if err != nil {
			// One unreachable script should not sink the whole page.
			c.log.Warn("Failed to fetch external script",
				zap.String("src", resolved), zap.Error(err))
			continue
		}
		scripts = append(scripts, Script{SourceURL: resolved, Content: string(content)})
	}
	return scripts, nil
}

// ExtractScripts parses HTML and returns inline script bodies and external
// script src attributes, in document order.
func ExtractScripts(page []byte) (inline []string, external []string) {
	doc, err := html.Parse(strings.NewReader(string(page)))
	if err != nil {
		return nil, nil
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			if src := attrValue(n, "src"); src != "" {
				external = append(external, src)
			} else if body := textContent(n); strings.TrimSpace(body) != "" {
				if scriptType := attrValue(n, "type"); isJavaScriptType(scriptType) {
					inline = append(inline, body)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return inline, external
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			sb.WriteString(child.Data)
		}
	}
	return sb.String()
}

// isJavaScriptType reports whether a script type attribute denotes runnable
// JavaScript. JSON payloads and import maps are skipped.
func isJavaScriptType(scriptType string) bool {
	switch strings.ToLower(strings.TrimSpace(scriptType)) {
	case "", "text/javascript", "application/javascript", "module":
		return true
	default:
		return false
	}
}

func resolveRef(base *url.URL, src string) string {
	ref, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}
