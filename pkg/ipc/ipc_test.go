package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Neutral/pkg/schema"
	"github.com/CTAG07/Neutral/pkg/templating"
)

var testTemplates = map[string]string{
	"hello.ntpl":    `<p>{: .data.hello :}</p>`,
	"redirect.ntpl": `{: redirect 307 "/elsewhere" :}`,
	"broken.ntpl":   `{: if :}`,
}

type recordedRender struct {
	template string
	code     int
}

type memRecorder struct {
	mu      sync.Mutex
	renders []recordedRender
}

func (r *memRecorder) Record(_ context.Context, template string, code int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, recordedRender{template, code})
	return nil
}

func (r *memRecorder) all() []recordedRender {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRender(nil), r.renders...)
}

// setupTestServer starts a server backed by a Manager over a temp template
// directory and returns a client pointed at it.
func setupTestServer(tb testing.TB, schemaFormat string) (*Client, *Server, *memRecorder) {
	tb.Helper()
	dir := tb.TempDir()
	for name, content := range testTemplates {
		require.NoError(tb, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := templating.DefaultConfig()
	cfg.TemplateDir = dir
	m, err := templating.NewManager(logger, cfg)
	require.NoError(tb, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(tb, err)

	rec := &memRecorder{}
	srv := NewServer(logger, m, &ServerConfig{MaxRecordSize: 1 << 16}, rec)
	go func() {
		_ = srv.Serve(l)
	}()
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return clientFor(tb, l.Addr(), schemaFormat), srv, rec
}

func clientFor(tb testing.TB, addr net.Addr, schemaFormat string) *Client {
	tb.Helper()
	host, port, err := net.SplitHostPort(addr.String())
	require.NoError(tb, err)
	p, err := strconv.Atoi(port)
	require.NoError(tb, err)
	return NewClient(&Config{Host: host, Port: p, Timeout: 2, BufferSize: 16, SchemaFormat: schemaFormat})
}

func mustSchema(tb testing.TB, doc string) *schema.Schema {
	tb.Helper()
	s, err := schema.Parse([]byte(doc))
	require.NoError(tb, err)
	return s
}

func TestRecordRoundTrip(t *testing.T) {
	in := &Record{
		Control:  CtrlParseTemplate,
		Format1:  FormatJSON,
		Content1: []byte(`{"data":{}}`),
		Format2:  FormatPath,
		Content2: []byte("index.ntpl"),
	}
	var buf bytes.Buffer
	n, err := in.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(HeaderLen+11+10), n)

	raw := buf.Bytes()
	assert.Equal(t, byte(0), raw[0], "reserved byte")
	assert.Equal(t, []byte{0, 0, 0, 11}, raw[3:7], "length 1 is big-endian")
	assert.Equal(t, []byte{0, 0, 0, 10}, raw[8:12], "length 2 is big-endian")

	out, err := ReadRecord(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadRecordErrors(t *testing.T) {
	full := &Record{Control: CtrlStatusOK, Format1: FormatJSON, Content1: []byte(`{}`), Format2: FormatText, Content2: []byte("body")}
	var buf bytes.Buffer
	_, err := full.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.Bytes()

	_, err = ReadRecord(bytes.NewReader(raw[:HeaderLen+3]), 0)
	assert.ErrorIs(t, err, ErrShortRecord)

	_, err = ReadRecord(bytes.NewReader(raw[:5]), 0)
	assert.ErrorIs(t, err, ErrShortRecord)

	_, err = ReadRecord(bytes.NewReader(raw), 4)
	assert.ErrorIs(t, err, ErrRecordTooLarge)

	_, err = ReadRecord(bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStatusCodeDecoding(t *testing.T) {
	var w wireResult
	require.NoError(t, json.Unmarshal([]byte(`{"status_code":"404","status_text":"Not Found"}`), &w))
	assert.Equal(t, statusCode(404), w.StatusCode)

	require.NoError(t, json.Unmarshal([]byte(`{"status_code":302}`), &w))
	assert.Equal(t, statusCode(302), w.StatusCode)

	assert.Error(t, json.Unmarshal([]byte(`{"status_code":"abc"}`), &w))

	data, err := json.Marshal(wireResult{StatusCode: 200})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status_code":"200"`)
}

func TestClientRender(t *testing.T) {
	for _, format := range []string{"json", "msgpack"} {
		t.Run(format, func(t *testing.T) {
			client, _, rec := setupTestServer(t, format)
			ctx := context.Background()

			res, err := client.Render(ctx, templating.Request{
				Path:   "hello.ntpl",
				Schema: mustSchema(t, `{"data":{"hello":"Hello World"}}`),
			})
			require.NoError(t, err)
			assert.Equal(t, "<p>Hello World</p>", res.Content)
			assert.Equal(t, 200, res.StatusCode)
			assert.Equal(t, "OK", res.StatusText)
			assert.False(t, res.HasError)

			assert.Equal(t, []recordedRender{{"hello.ntpl", 200}}, rec.all())
		})
	}
}

func TestClientRenderStatuses(t *testing.T) {
	client, _, rec := setupTestServer(t, "json")
	ctx := context.Background()
	s := mustSchema(t, `{"data":{}}`)

	res, err := client.Render(ctx, templating.Request{Path: "redirect.ntpl", Schema: s})
	require.NoError(t, err)
	assert.Equal(t, 307, res.StatusCode)
	assert.Equal(t, "/elsewhere", res.StatusParam)
	assert.True(t, res.IsRedirect())

	res, err = client.Render(ctx, templating.Request{Path: "broken.ntpl", Schema: s})
	require.NoError(t, err)
	assert.Equal(t, 500, res.StatusCode)
	assert.True(t, res.HasError)

	res, err = client.Render(ctx, templating.Request{Source: `{: exit 403 "members" :}`, Schema: s})
	require.NoError(t, err)
	assert.Equal(t, 403, res.StatusCode)
	assert.Equal(t, "Forbidden", res.StatusText)
	assert.Equal(t, "members", res.StatusParam)

	_, err = client.Render(ctx, templating.Request{Path: "missing.ntpl", Schema: s})
	var engineErr *templating.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.ErrorIs(t, err, templating.ErrTemplateNotFound)

	codes := map[string]int{}
	for _, r := range rec.all() {
		codes[r.template] = r.code
	}
	assert.Equal(t, map[string]int{
		"redirect.ntpl": 307,
		"broken.ntpl":   500,
		"source":        403,
		"missing.ntpl":  500,
	}, codes)
}

func TestClientRenderNilSchema(t *testing.T) {
	client := NewClient(nil)
	_, err := client.Render(context.Background(), templating.Request{Path: "x.ntpl"})
	assert.ErrorIs(t, err, templating.ErrMalformedSchema)
}

func TestClientUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr()
	require.NoError(t, l.Close())

	client := clientFor(t, addr, "json")
	_, err = client.Render(context.Background(), templating.Request{Path: "x.ntpl", Schema: schema.New()})
	assert.ErrorIs(t, err, templating.ErrRemote)
}

// fakeEngine answers every connection with a fixed response record.
func fakeEngine(tb testing.TB, resp *Record) net.Addr {
	tb.Helper()
	var buf bytes.Buffer
	_, err := resp.WriteTo(&buf)
	require.NoError(tb, err)
	return rawEngine(tb, buf.Bytes())
}

// rawEngine answers every connection with raw bytes, valid record or not.
func rawEngine(tb testing.TB, data []byte) net.Addr {
	tb.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			if _, err = ReadRecord(conn, 0); err == nil {
				_, _ = conn.Write(data)
			}
			_ = conn.Close()
		}
	}()
	return l.Addr()
}

func TestClientAgainstForeignEngine(t *testing.T) {
	t.Run("NumericStatusCode", func(t *testing.T) {
		addr := fakeEngine(t, &Record{
			Control:  CtrlStatusOK,
			Format1:  FormatJSON,
			Content1: []byte(`{"status_code":404,"status_text":"","status_param":"","has_error":false}`),
			Format2:  FormatText,
			Content2: []byte("not here"),
		})
		res, err := clientFor(t, addr, "json").Render(context.Background(), templating.Request{Path: "x", Schema: schema.New()})
		require.NoError(t, err)
		assert.Equal(t, 404, res.StatusCode)
		assert.Equal(t, "Not Found", res.StatusText)
		assert.Equal(t, "not here", res.Content)
	})

	t.Run("KOWithoutKind", func(t *testing.T) {
		addr := fakeEngine(t, &Record{
			Control:  CtrlStatusKO,
			Format1:  FormatJSON,
			Content1: []byte(`{"status_code":"500","status_text":"Internal Server Error","status_param":"engine exploded","has_error":true}`),
			Format2:  FormatText,
		})
		_, err := clientFor(t, addr, "json").Render(context.Background(), templating.Request{Path: "x", Schema: schema.New()})
		assert.ErrorIs(t, err, templating.ErrRemote)
		assert.Contains(t, err.Error(), "engine exploded")
	})

	t.Run("OversizedResponse", func(t *testing.T) {
		header := []byte{0, CtrlStatusOK, FormatJSON, 0xff, 0xff, 0xff, 0xff, FormatText, 0xff, 0xff, 0xff, 0xff}
		addr := rawEngine(t, header)
		_, err := clientFor(t, addr, "json").Render(context.Background(), templating.Request{Path: "x", Schema: schema.New()})
		assert.ErrorIs(t, err, templating.ErrRemote)
		assert.ErrorIs(t, err, ErrRecordTooLarge)
	})

	t.Run("GarbageResult", func(t *testing.T) {
		addr := fakeEngine(t, &Record{Control: CtrlStatusOK, Format1: FormatJSON, Content1: []byte("nope")})
		_, err := clientFor(t, addr, "json").Render(context.Background(), templating.Request{Path: "x", Schema: schema.New()})
		assert.ErrorIs(t, err, templating.ErrRemote)
	})
}

func TestServerRejectsBadRequests(t *testing.T) {
	client, _, _ := setupTestServer(t, "json")
	cfg := client.Config()
	addr := cfg.Addr()

	send := func(rec *Record) *Record {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()
		_, err = rec.WriteTo(conn)
		require.NoError(t, err)
		resp, err := ReadRecord(conn, 0)
		require.NoError(t, err)
		return resp
	}

	resp := send(&Record{Control: 99, Format1: FormatJSON, Content1: []byte(`{}`), Format2: FormatPath, Content2: []byte("hello.ntpl")})
	assert.Equal(t, CtrlStatusKO, resp.Control)

	resp = send(&Record{Control: CtrlParseTemplate, Format1: FormatJSON, Content1: []byte(`[1]`), Format2: FormatPath, Content2: []byte("hello.ntpl")})
	require.Equal(t, CtrlStatusKO, resp.Control)
	var w wireResult
	require.NoError(t, json.Unmarshal(resp.Content1, &w))
	assert.Equal(t, kindMalformed, w.Error)
	assert.ErrorIs(t, w.failureErr("hello.ntpl"), templating.ErrMalformedSchema)

	resp = send(&Record{Control: CtrlParseTemplate, Format1: FormatBin, Content1: []byte{1}, Format2: FormatPath, Content2: []byte("hello.ntpl")})
	assert.Equal(t, CtrlStatusKO, resp.Control)

	// The server keeps serving after bad requests.
	_, err := client.Render(context.Background(), templating.Request{Path: "hello.ntpl", Schema: schema.New()})
	assert.NoError(t, err)
}

func TestServerShutdown(t *testing.T) {
	client, srv, _ := setupTestServer(t, "json")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	_, err := client.Render(context.Background(), templating.Request{Path: "hello.ntpl", Schema: schema.New()})
	assert.Error(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.True(t, errors.Is(srv.Serve(l), ErrServerClosed))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := filepath.Join(dir, "neutral-ipc-cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"host":"10.0.0.5","port":5000,"buffer_size":1024}`), 0644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Host)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 10, cfg.Timeout)
	assert.Equal(t, 1024, cfg.BufferSize)
	assert.Equal(t, 16<<20, cfg.MaxRecordSize)
	assert.Equal(t, "10.0.0.5:5000", cfg.Addr())

	t.Setenv("NEUTRAL_IPC_PORT", "6000")
	t.Setenv("NEUTRAL_IPC_SCHEMA_FORMAT", "MSGPACK")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Port)
	assert.Equal(t, "msgpack", cfg.SchemaFormat)

	require.NoError(t, os.WriteFile(path, []byte(`{"host":`), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
