package whisperx_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"whisperclient/pkg/whisperx"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey       = "key with/slash"
	testAPIKeyHeader = "key%20with/slash"
)

var testResults = map[string]string{
	"full":     `{"language":"en","text":" hello world","segments":[{"start":0,"end":1.5,"text":" hello world","words":[{"start":0,"end":0.5,"word":"hello"},{"start":0.6,"end":1.5,"word":"world"}]}]}`,
	"text":     `" hello world"`,
	"segments": `[{"start":0,"end":1.5,"text":" hello world"}]`,
	"words":    `[{"start":0,"end":0.5,"word":"hello"},{"start":0.6,"end":1.5,"word":"world"}]`,
}

type fakeJob struct {
	processingPolls int
	done            bool
}

// fakeServer mimics the transcription api. A new job stays "processing" for
// processingPolls status queries, then turns "done".
type fakeServer struct {
	t *testing.T

	lock sync.Mutex

	jobs            map[string]*fakeJob
	processingPolls int
	statusFailures  int
	failingHashes   map[string]bool
	results         map[string]string
	submitBody      string

	uploads     int
	statusCalls map[string]int
	uploadNames []string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	fake := &fakeServer{
		t:           t,
		jobs:          make(map[string]*fakeJob),
		failingHashes: make(map[string]bool),
		results:       make(map[string]string, len(testResults)),
		statusCalls:   make(map[string]int),
	}

	for view, result := range testResults {
		fake.results[view] = result
	}

	router := chi.NewRouter()
	router.Use(fake.checkKey)
	router.Post("/", fake.submit)
	router.Get("/status/{hash}", fake.status)
	router.Get("/result/{hash}", fake.result)
	router.Get("/result/{hash}/{view}", fake.result)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return fake, srv
}

func (f *fakeServer) checkKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != testAPIKeyHeader {
			writeJSON(w, http.StatusOK, map[string]any{"error": "invalid api key"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (f *fakeServer) addJob(hash whisperx.ContentHash, done bool) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.jobs[string(hash)] = &fakeJob{done: done}
}

// failStatus makes every status query for hash answer 503.
func (f *fakeServer) failStatus(hash whisperx.ContentHash) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.failingHashes[string(hash)] = true
}

func (f *fakeServer) statusCallsFor(hash whisperx.ContentHash) int {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.statusCalls[string(hash)]
}

func (f *fakeServer) setResult(view, result string) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.results[view] = result
}

func (f *fakeServer) counters() (uploads int, statusCalls int) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, calls := range f.statusCalls {
		statusCalls += calls
	}

	return f.uploads, statusCalls
}

func (f *fakeServer) submit(w http.ResponseWriter, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !assert.NoError(f.t, err) || !assert.Equal(f.t, "multipart/form-data", mediaType) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad content type"})
		return
	}

	reader := multipart.NewReader(r.Body, params["boundary"])
	part, err := reader.NextPart()
	if !assert.NoError(f.t, err) ||
		!assert.Equal(f.t, "file", part.FormName()) ||
		!assert.Equal(f.t, "audio/wav", part.Header.Get("Content-Type")) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad file part"})
		return
	}

	data, err := io.ReadAll(part)
	if !assert.NoError(f.t, err) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad file data"})
		return
	}

	hash := string(whisperx.ComputeHash(data))

	f.lock.Lock()
	defer f.lock.Unlock()

	f.uploads++
	f.uploadNames = append(f.uploadNames, part.FileName())

	if f.submitBody != "" {
		_, _ = w.Write([]byte(f.submitBody))
		return
	}

	job, ok := f.jobs[hash]
	launched := !ok
	if !ok {
		job = &fakeJob{processingPolls: f.processingPolls, done: f.processingPolls == 0}
		f.jobs[hash] = job
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hash":     hash,
		"status":   statusOf(job),
		"launched": launched,
	})
}

func statusOf(job *fakeJob) string {
	if job.done {
		return "done"
	}

	return "processing"
}

func (f *fakeServer) status(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")

	f.lock.Lock()
	defer f.lock.Unlock()

	f.statusCalls[hash]++

	if f.failingHashes[hash] {
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}

	if f.statusFailures > 0 {
		f.statusFailures--
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}

	job, ok := f.jobs[hash]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown hash"})
		return
	}

	if !job.done {
		if job.processingPolls > 0 {
			job.processingPolls--
		}
		if job.processingPolls == 0 {
			job.done = true
			writeJSON(w, http.StatusOK, map[string]any{"status": "processing"})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": statusOf(job)})
}

func (f *fakeServer) result(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	view := chi.URLParam(r, "view")
	if view == "" {
		view = "full"
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	job, ok := f.jobs[hash]
	if !ok || !job.done {
		writeJSON(w, http.StatusOK, map[string]any{"status": "processing"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "done",
		"result": json.RawMessage(f.results[view]),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type waits struct {
	lock      sync.Mutex
	durations []time.Duration
}

func recordingWaiter(w *waits) whisperx.Waiter {
	return func(ctx context.Context, d time.Duration) error {
		w.lock.Lock()
		w.durations = append(w.durations, d)
		w.lock.Unlock()

		return ctx.Err()
	}
}

func (w *waits) all() []time.Duration {
	w.lock.Lock()
	defer w.lock.Unlock()

	return append([]time.Duration(nil), w.durations...)
}

func (w *waits) count() int {
	w.lock.Lock()
	defer w.lock.Unlock()

	return len(w.durations)
}

func newTestClient(t *testing.T, srv *httptest.Server, output string, erase bool, opts ...whisperx.Option) (*whisperx.Client, *waits) {
	t.Helper()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	recorded := &waits{}

	opts = append([]whisperx.Option{whisperx.WithWaiter(recordingWaiter(recorded))}, opts...)

	client, err := whisperx.New(srv.Client(), &whisperx.Config{
		APIKey:        testAPIKey,
		Scheme:        "http",
		Host:          u.Hostname(),
		Port:          port,
		OutputFolder:  output,
		ErasePrevious: erase,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client, recorded
}
