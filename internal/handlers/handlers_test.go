package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Flashl3opard/structify/internal/bridge"
	"github.com/Flashl3opard/structify/internal/cache"
)

type fakeConverter struct {
	records bridge.Records
	err     error
	block   chan struct{}
	calls   atomic.Int32
	prompts []string
	mu      sync.Mutex
}

func (f *fakeConverter) Convert(ctx context.Context, prompt string) (bridge.Records, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

// upstreamServer fakes the chat-completions endpoint and counts calls.
func upstreamServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func bridgeHandler(t *testing.T, srv *httptest.Server, apiKey string) *ChartHandler {
	t.Helper()
	b, err := bridge.New(bridge.Config{BaseURL: srv.URL, APIKey: apiKey}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return NewChartHandler(b, nil, time.Minute, "vtest", b.Model(), b.Instruction())
}

func postChart(h *ChartHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chart", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Chart(rr, req)
	return rr
}

func TestChart_Success(t *testing.T) {
	content := "```json\n[{\"name\":\"A\",\"value\":1}]\n```"
	reply, err := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	require.NoError(t, err)

	srv, calls := upstreamServer(t, http.StatusOK, string(reply))
	h := bridgeHandler(t, srv, "test-key")

	rr := postChart(h, `{"prompt":"one bar"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"name":"A","value":1}]`, rr.Body.String())
	assert.EqualValues(t, 1, calls.Load())
}

func TestChart_MissingPrompt(t *testing.T) {
	srv, calls := upstreamServer(t, http.StatusOK, `{}`)
	h := bridgeHandler(t, srv, "test-key")

	for name, body := range map[string]string{
		"empty prompt":   `{"prompt":""}`,
		"no prompt":      `{}`,
		"invalid json":   `not json`,
		"empty body":     ``,
		"non-string arg": `{"prompt":42}`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := postChart(h, body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.JSONEq(t, `{"error":"Prompt is required"}`, rr.Body.String())
		})
	}
	assert.Zero(t, calls.Load())
}

func TestChart_MissingKey(t *testing.T) {
	srv, calls := upstreamServer(t, http.StatusOK, `{}`)
	h := bridgeHandler(t, srv, "")

	rr := postChart(h, `{"prompt":"x"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Server configuration error"}`, rr.Body.String())
	assert.Zero(t, calls.Load())
}

func TestChart_UpstreamError(t *testing.T) {
	srv, _ := upstreamServer(t, http.StatusTooManyRequests, `{"error":{"message":"Rate limit"}}`)
	h := bridgeHandler(t, srv, "test-key")

	rr := postChart(h, `{"prompt":"x"}`)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"error":"Groq API error","details":"Rate limit"}`, rr.Body.String())
}

func TestChart_Unparseable(t *testing.T) {
	reply := `{"choices":[{"message":{"role":"assistant","content":"I cannot help with that."}}]}`
	srv, _ := upstreamServer(t, http.StatusOK, reply)
	h := bridgeHandler(t, srv, "test-key")

	rr := postChart(h, `{"prompt":"x"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Could not parse AI response as JSON"}`, rr.Body.String())
}

func TestChart_RetryAfterHeader(t *testing.T) {
	conv := &fakeConverter{err: &bridge.Error{
		Kind:       bridge.KindUpstream,
		Status:     http.StatusServiceUnavailable,
		Message:    bridge.MsgUpstream,
		Details:    "overloaded",
		RetryAfter: 1500 * time.Millisecond,
	}}
	h := NewChartHandler(conv, nil, time.Minute, "vtest", "m", "i")

	rr := postChart(h, `{"prompt":"x"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))
}

func TestChart_CachesSuccess(t *testing.T) {
	store := cache.NewMemoryResultCache(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	conv := &fakeConverter{records: bridge.Records{{"name": "A", "value": json.Number("1")}}}
	h := NewChartHandler(conv, store, time.Minute, "vtest", "m", "i")

	first := postChart(h, `{"prompt":"same"}`)
	second := postChart(h, `{"prompt":"same"}`)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.EqualValues(t, 1, conv.calls.Load())

	key := cache.BuildResultKey("m", "i", "same", "vtest")
	_, hit, err := store.Get(context.Background(), key.String())
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestChart_DoesNotCacheFailures(t *testing.T) {
	store := cache.NewMemoryResultCache(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	conv := &fakeConverter{err: &bridge.Error{Kind: bridge.KindParse, Message: bridge.MsgUnparseable}}
	h := NewChartHandler(conv, store, time.Minute, "vtest", "m", "i")

	postChart(h, `{"prompt":"x"}`)
	postChart(h, `{"prompt":"x"}`)

	assert.EqualValues(t, 2, conv.calls.Load())
	assert.Zero(t, store.Len())
}

func TestChart_CoalescesConcurrentPrompts(t *testing.T) {
	conv := &fakeConverter{
		records: bridge.Records{{"name": "A"}},
		block:   make(chan struct{}),
	}
	h := NewChartHandler(conv, nil, time.Minute, "vtest", "m", "i")

	const n = 4
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = postChart(h, `{"prompt":"burst"}`).Code
		}(i)
	}

	require.Eventually(t, func() bool { return conv.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(conv.block)
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
	assert.LessOrEqual(t, conv.calls.Load(), int32(n))
}

// ctxConverter blocks until release is closed or its own context ends.
type ctxConverter struct {
	release chan struct{}
	calls   atomic.Int32
}

func (c *ctxConverter) Convert(ctx context.Context, _ string) (bridge.Records, error) {
	c.calls.Add(1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.release:
		return bridge.Records{{"name": "A", "value": json.Number("1")}}, nil
	}
}

func TestChart_SharedFlightOutlivesFirstCaller(t *testing.T) {
	conv := &ctxConverter{release: make(chan struct{})}
	h := NewChartHandler(conv, nil, time.Minute, "vtest", "m", "i")

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()

	first := httptest.NewRecorder()
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		req := httptest.NewRequest(http.MethodPost, "/api/chart", strings.NewReader(`{"prompt":"shared"}`))
		h.Chart(first, req.WithContext(firstCtx))
	}()
	require.Eventually(t, func() bool { return conv.calls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan *httptest.ResponseRecorder, 1)
	go func() { second <- postChart(h, `{"prompt":"shared"}`) }()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case <-firstDone:
	case <-time.After(time.Second):
		t.Fatal("first request did not return after its context was cancelled")
	}
	assert.Equal(t, http.StatusInternalServerError, first.Code)

	close(conv.release)
	select {
	case rr := <-second:
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[{"name":"A","value":1}]`, rr.Body.String())
	case <-time.After(time.Second):
		t.Fatal("second request did not finish")
	}
	assert.EqualValues(t, 1, conv.calls.Load())
}

func TestChart_FlightTimeout(t *testing.T) {
	conv := &ctxConverter{release: make(chan struct{})}
	h := NewChartHandler(conv, nil, time.Minute, "vtest", "m", "i")
	h.FlightTimeout = 20 * time.Millisecond

	rr := postChart(h, `{"prompt":"slow"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"context deadline exceeded"}`, rr.Body.String())
}

func TestChart_EmptyPromptSkipsConverter(t *testing.T) {
	conv := &fakeConverter{records: bridge.Records{{"name": "A"}}}
	h := NewChartHandler(conv, nil, time.Minute, "vtest", "m", "i")

	rr := postChart(h, `{"prompt":""}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"Prompt is required"}`, rr.Body.String())
	assert.Zero(t, conv.calls.Load())
}

func TestMindmap(t *testing.T) {
	body := `{"label":"Root","children":[{"label":"A","children":[{"label":"A1"}]},{"label":"B"}]}`
	rr := httptest.NewRecorder()
	Mindmap(rr, httptest.NewRequest(http.MethodPost, "/api/mindmap", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rr.Code)

	var graph struct {
		Nodes []struct {
			ID       string `json:"id"`
			Position struct{ X, Y int }
		} `json:"nodes"`
		Edges []struct {
			ID string `json:"id"`
		} `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &graph))
	require.Len(t, graph.Nodes, 4)
	require.Len(t, graph.Edges, 3)
	assert.Equal(t, "node-2", graph.Nodes[2].ID)
	assert.Equal(t, 500, graph.Nodes[2].Position.X)
	assert.Equal(t, 160, graph.Nodes[2].Position.Y)
	assert.Equal(t, "enode-0-node-1", graph.Edges[0].ID)
}

func TestMindmap_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"not json":   `{"label":`,
		"empty root": `{"children":[{"label":"A"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			Mindmap(rr, httptest.NewRequest(http.MethodPost, "/api/mindmap", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.JSONEq(t, `{"error":"Invalid JSON format"}`, rr.Body.String())
		})
	}
}

func TestBodyTooLarge(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/mindmap", strings.NewReader(`{"label":"Root"}`))
	rr := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rr, req.Body, 4)

	Mindmap(rr, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
