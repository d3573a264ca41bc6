package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scripthound/internal/config"
)

func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		Timeout:      5 * time.Second,
		UserAgent:    "scripthound-test",
		RateLimit:    1000,
		Burst:        1000,
		MaxBodyBytes: 1 << 20,
	}
}

func TestExtractScripts(t *testing.T) {
	page := []byte(`<!DOCTYPE html>
<html><head>
<script src="/static/app.js"></script>
<script>var inline1 = 1;</script>
<script type="application/json">{"not": "js"}</script>
<script type="module">import x from "./x.js";</script>
</head><body>
<script src="https://cdn.example.com/lib.js"></script>
<script>   </script>
</body></html>`)

	inline, external := ExtractScripts(page)

	require.Len(t, external, 2)
	assert.Equal(t, "/static/app.js", external[0])
	assert.Equal(t, "https://cdn.example.com/lib.js", external[1])

	require.Len(t, inline, 2, "JSON blocks and blank scripts should be skipped")
	assert.Contains(t, inline[0], "inline1")
	assert.Contains(t, inline[1], "import x")
}

func TestCollectScriptsFromHTMLPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><head>
<script src="/app.js"></script>
<script>var page = "inline";</script>
</head></html>`)
	})
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `fetch("/api/data");`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(testFetchConfig(), zaptest.NewLogger(t))
	scripts, err := client.CollectScripts(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Len(t, scripts, 2)

	assert.True(t, scripts[0].Inline)
	assert.Contains(t, scripts[0].Content, `var page`)
	assert.Contains(t, scripts[0].SourceURL, "#inline-1")

	assert.False(t, scripts[1].Inline)
	assert.Equal(t, srv.URL+"/app.js", scripts[1].SourceURL)
	assert.Contains(t, scripts[1].Content, `fetch("/api/data")`)
}

func TestCollectScriptsStandaloneJS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		fmt.Fprint(w, `var standalone = true;`)
	}))
	defer srv.Close()

	client := NewClient(testFetchConfig(), zaptest.NewLogger(t))
	scripts, err := client.CollectScripts(context.Background(), srv.URL+"/bundle.js")
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.False(t, scripts[0].Inline)
	assert.Equal(t, srv.URL+"/bundle.js", scripts[0].SourceURL)
	assert.Equal(t, "var standalone = true;", scripts[0].Content)
}

func TestCollectScriptsSkipsUnreachableExternal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><head>
<script src="/missing.js"></script>
<script>var ok = 1;</script>
</head></html>`)
	})
	mux.HandleFunc("/missing.js", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(testFetchConfig(), zaptest.NewLogger(t))
	scripts, err := client.CollectScripts(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Len(t, scripts, 1, "the 404 script is dropped, the inline one survives")
	assert.True(t, scripts[0].Inline)
}

func TestGetSendsConfiguredHeaders(t *testing.T) {
	var gotUA, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Scan-Token")
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	cfg := testFetchConfig()
	cfg.Headers = map[string]string{"X-Scan-Token": "abc123"}
	client := NewClient(cfg, zaptest.NewLogger(t))

	body, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, "scripthound-test", gotUA)
	assert.Equal(t, "abc123", gotCustom)
}

func TestGetRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(testFetchConfig(), zaptest.NewLogger(t))
	_, err := client.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestGetTruncatesOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("a", 4096))
	}))
	defer srv.Close()

	cfg := testFetchConfig()
	cfg.MaxBodyBytes = 128
	client := NewClient(cfg, zaptest.NewLogger(t))

	body, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, body, 128)
}

func TestGetHonorsContextCancellation(t *testing.T) {
	cfg := testFetchConfig()
	cfg.RateLimit = 0.001 // Force the limiter to block.
	cfg.Burst = 1
	client := NewClient(cfg, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	// Consume the single burst token.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()
	_, err := client.Get(ctx, srv.URL)
	require.NoError(t, err)

	cancel()
	_, err = client.Get(ctx, srv.URL)
	require.Error(t, err)
}
