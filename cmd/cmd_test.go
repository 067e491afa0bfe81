package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	configPath, forceOffline, logLevel = "", false, ""
	submitService, submitFields, submitQuiet = "", nil, false
	historyLimit, historyRemote = 20, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	color.NoColor = true
	keyring.MockInit()

	dir := t.TempDir()
	testChdir(t, dir)
	t.Setenv("MEDIADESK_DATABASE_URL", "sqlite://"+filepath.Join(dir, "history.db"))
	t.Setenv("MEDIADESK_QUEUE_OFFLINE_DELAY", "0s")
	t.Setenv("MEDIADESK_LOG_LEVEL", "error")
	return dir
}

func TestSubmitCommand(t *testing.T) {
	t.Run("Should process files offline and record them in history", func(t *testing.T) {
		dir := isolate(t)
		path := filepath.Join(dir, "lecture.mp4")
		require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))

		out, err := execute(t, "", "submit", "--offline", "--quiet", "-s", "translate-video", path)
		require.NoError(t, err, out)
		assert.Contains(t, out, "completed")
		assert.Contains(t, out, "http://localhost:5000/download/simulated_lecture.mp4")

		out, err = execute(t, "", "history", "search", "lecture")
		require.NoError(t, err, out)
		assert.Contains(t, out, "lecture.mp4")
		assert.Contains(t, out, "translate-video")
	})

	t.Run("Should reject a file the service does not take", func(t *testing.T) {
		dir := isolate(t)
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("text"), 0o644))

		_, err := execute(t, "", "submit", "--offline", "-s", "translate-video", path)
		assert.ErrorContains(t, err, "does not accept")
	})

	t.Run("Should list the available services on an unknown key", func(t *testing.T) {
		isolate(t)
		_, err := execute(t, "", "submit", "--offline", "-s", "nope", "https://youtu.be/abc")
		assert.ErrorContains(t, err, "translate-video")
	})
}

func TestParseSources(t *testing.T) {
	svc, err := models.LookupService("subtitle-ro")
	require.NoError(t, err)

	t.Run("Should treat http arguments as links", func(t *testing.T) {
		sources, err := parseSources(svc, []string{"https://youtu.be/abc"})
		require.NoError(t, err)
		require.Len(t, sources, 1)
		assert.Equal(t, models.SourceRemoteURL, sources[0].Kind())
	})

	t.Run("Should fail on a missing file", func(t *testing.T) {
		_, err := parseSources(svc, []string{filepath.Join(t.TempDir(), "missing.mp4")})
		assert.Error(t, err)
	})
}

// slowStreamBackend accepts link jobs and reports their progress only to
// stream clients connected at submission time
type slowStreamBackend struct {
	mu      sync.Mutex
	clients []chan string
}

func (b *slowStreamBackend) broadcast(payload string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.clients {
		ch <- payload
	}
}

func (b *slowStreamBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/health":
		w.WriteHeader(http.StatusOK)
	case "/events":
		time.Sleep(200 * time.Millisecond)
		ch := make(chan string, 16)
		b.mu.Lock()
		b.clients = append(b.clients, ch)
		b.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		for {
			select {
			case <-r.Context().Done():
				return
			case payload := <-ch:
				fmt.Fprintf(w, "data: %s\n\n", payload)
				w.(http.Flusher).Flush()
			}
		}
	case "/api/subtitle-ro-url":
		b.broadcast(`{"job_id":"job-1","percent":10,"stage":"queued"}`)
		go func() {
			time.Sleep(150 * time.Millisecond)
			b.broadcast(`{"job_id":"job-1","status":"completed","result":{"downloadUrl":"/download/abc.srt"}}`)
		}()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jobId":"job-1"}`)
	default:
		http.NotFound(w, r)
	}
}

func TestSubmitCommandOnline(t *testing.T) {
	t.Run("Should open the progress stream before the first submission", func(t *testing.T) {
		isolate(t)
		server := httptest.NewServer(&slowStreamBackend{})
		t.Cleanup(server.Close)
		t.Setenv("MEDIADESK_API_BASE_URL", server.URL)
		t.Setenv("MEDIADESK_QUEUE_STALL_TIMEOUT", "3s")

		out, err := execute(t, "", "submit", "--quiet", "-s", "subtitle-ro", "https://youtu.be/abc")
		require.NoError(t, err, out)
		assert.Contains(t, out, "completed")
		assert.Contains(t, out, server.URL+"/download/abc.srt")
	})
}

func TestWaitForStream(t *testing.T) {
	t.Run("Should return once the stream reports connected", func(t *testing.T) {
		var connected atomic.Bool
		go func() {
			time.Sleep(30 * time.Millisecond)
			connected.Store(true)
		}()
		start := time.Now()
		assert.True(t, waitForStream(context.Background(), connected.Load, make(chan struct{}), 2*time.Second))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("Should give up when the listener exits", func(t *testing.T) {
		exited := make(chan struct{})
		close(exited)
		assert.False(t, waitForStream(context.Background(), func() bool { return false }, exited, 2*time.Second))
	})

	t.Run("Should give up after the timeout", func(t *testing.T) {
		assert.False(t, waitForStream(context.Background(), func() bool { return false }, make(chan struct{}), 20*time.Millisecond))
	})
}

func TestRenderResults(t *testing.T) {
	color.NoColor = true

	done := models.QueueItem{
		Label:  "a.mp4",
		Status: models.StatusCompleted,
		Result: models.NewResult(map[string]any{"downloadUrl": "/download/a.mp4", "subtitleUrl": "/download/a.srt"}),
	}
	failed := models.QueueItem{Label: "b.mp4", Status: models.StatusError, ErrorDetail: "codec not supported"}

	var out bytes.Buffer
	renderResults(&out, "https://media.example.com", []models.QueueItem{done, failed})

	text := out.String()
	assert.Contains(t, text, "https://media.example.com/download/a.mp4")
	assert.Contains(t, text, "https://media.example.com/download/a.srt")
	assert.Contains(t, text, "codec not supported")
}

func TestStandaloneCommands(t *testing.T) {
	t.Run("Should manage the keychain token", func(t *testing.T) {
		isolate(t)

		out, err := execute(t, "", "token", "status")
		require.NoError(t, err)
		assert.Contains(t, out, "No token stored")

		out, err = execute(t, "secret-token\n", "token", "set")
		require.NoError(t, err)
		assert.Contains(t, out, "Token stored")

		out, err = execute(t, "", "token", "status")
		require.NoError(t, err)
		assert.Contains(t, out, "A token is stored")

		_, err = execute(t, "", "token", "clear")
		require.NoError(t, err)
	})

	t.Run("Should print the service catalog", func(t *testing.T) {
		out, err := execute(t, "", "services")
		require.NoError(t, err)
		for _, key := range models.ServiceKeys() {
			assert.Contains(t, out, key)
		}
	})
}

func TestNormalizeFlagName(t *testing.T) {
	assert.Equal(t, "log-level", string(normalizeFlagName(rootCmd.PersistentFlags(), "log_level")))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log_level"))
}
