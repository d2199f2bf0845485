package whisperx_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"whisperclient/pkg/ctxstore"
	"whisperclient/pkg/whisperx"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var _ whisperx.Ledger = &mockLedger{}

type mockLedger struct {
	mock.Mock
}

func (l *mockLedger) RecordJob(ctx context.Context, hash, path, status string, launched bool) error {
	args := l.Called(ctx, hash, path, status, launched)
	return args.Error(0)
}

func (l *mockLedger) RecordResult(ctx context.Context, hash, view, location string) error {
	args := l.Called(ctx, hash, view, location)
	return args.Error(0)
}

func TestProcessFolderAllDone(t *testing.T) {
	assert := require.New(t)

	fake, srv := newFakeServer(t)

	input := t.TempDir()
	output := t.TempDir()

	for _, name := range []string{"a.wav", "b.mp3", "c.flac"} {
		writeAudio(t, input, name, "content of "+name)
		fake.addJob(whisperx.ComputeHash([]byte("content of "+name)), true)
	}
	writeAudio(t, input, "notes.txt", "not audio")
	assert.NoError(os.Mkdir(filepath.Join(input, "nested.wav"), 0o755))

	client, waited := newTestClient(t, srv, output, false)

	report, err := client.ProcessFolder(context.Background(), input, nil, time.Second, true)
	assert.NoError(err)
	assert.NotEmpty(report.RunID)
	assert.Equal(3, report.Submitted)
	assert.Equal(0, report.Launched)
	assert.Equal(3, report.Completed)
	assert.Equal(3, report.Persisted)
	assert.Empty(report.Failures)

	files, err := os.ReadDir(filepath.Join(output, "full"))
	assert.NoError(err)
	assert.Len(files, 3)

	uploads, _ := fake.counters()
	assert.Zero(uploads)
	assert.Zero(waited.count())
}

func TestProcessFolderWaitsForJobs(t *testing.T) {
	assert := require.New(t)

	fake, srv := newFakeServer(t)
	fake.processingPolls = 2

	input := t.TempDir()
	output := t.TempDir()

	writeAudio(t, input, "a.wav", "first")
	writeAudio(t, input, "b.ogg", "second")
	writeAudio(t, input, "copy.m4a", "first")

	ledger := &mockLedger{}
	ledger.On("RecordJob", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctxstore.GetRunID(ctx)
		return ok
	}), mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ledger.On("RecordResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	client, waited := newTestClient(t, srv, output, false, whisperx.WithLedger(ledger))

	views := []whisperx.View{whisperx.ViewText, whisperx.ViewSegments}

	report, err := client.ProcessFolder(context.Background(), input, views, 5*time.Second, true)
	assert.NoError(err)
	assert.Equal(3, report.Submitted)
	assert.Equal(2, report.Launched)
	assert.Equal(2, report.Completed)
	assert.Equal(4, report.Persisted)
	assert.Empty(report.Failures)

	// the second scan persists the first job, so only the first one waits
	assert.Equal([]time.Duration{5 * time.Second}, waited.all())

	for _, content := range []string{"first", "second"} {
		hash := string(whisperx.ComputeHash([]byte(content)))
		assert.FileExists(filepath.Join(output, "text", hash+".json"))
		assert.FileExists(filepath.Join(output, "segments", hash+".json"))

		ledger.AssertCalled(t, "RecordJob", mock.Anything, hash, mock.Anything, "done", false)
		ledger.AssertCalled(t, "RecordResult", mock.Anything, hash, "text", filepath.Join("text", hash+".json"))
	}
}

func TestProcessFolderContinuesPastFailures(t *testing.T) {
	assert := require.New(t)

	fake, srv := newFakeServer(t)

	input := t.TempDir()
	writeAudio(t, input, "good.wav", "good")
	fake.addJob(whisperx.ComputeHash([]byte("good")), true)

	dangling := filepath.Join(input, "bad.wav")
	assert.NoError(os.Symlink(filepath.Join(input, "gone.wav"), dangling))

	// the first three status queries fail: the upload pre-check and two scans
	fake.statusFailures = 3

	client, waited := newTestClient(t, srv, t.TempDir(), false)

	report, err := client.ProcessFolder(context.Background(), input, nil, time.Second, true)
	assert.NoError(err)
	assert.Equal(1, report.Submitted)
	assert.Equal(1, report.Persisted)
	assert.Len(report.Failures, 1)
	assert.Equal(dangling, report.Failures[0].Path)
	assert.ErrorIs(report.Failures[0].Err, whisperx.ErrNotFound)

	assert.Equal([]time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, waited.all())
}

func TestProcessFolderStopsWhenPollingIsExhausted(t *testing.T) {
	assert := require.New(t)

	fake, srv := newFakeServer(t)

	input := t.TempDir()
	writeAudio(t, input, "a.wav", "always failing")
	writeAudio(t, input, "b.wav", "fine")

	failing := whisperx.ComputeHash([]byte("always failing"))
	fake.failStatus(failing)

	client, waited := newTestClient(t, srv, t.TempDir(), false)

	report, err := client.ProcessFolder(context.Background(), input, nil, time.Second, true)
	assert.Error(err)

	var protocolErr *whisperx.ProtocolError
	assert.ErrorAs(err, &protocolErr)
	assert.Equal(503, protocolErr.StatusCode)

	assert.Equal(1, report.Persisted)
	assert.Len(report.Failures, 1)
	assert.Equal(failing, report.Failures[0].Hash)

	// upload pre-check plus 11 scans
	assert.Equal(12, fake.statusCallsFor(failing))

	waits := waited.all()
	assert.Len(waits, 10)
	for _, d := range waits {
		assert.Equal(100*time.Millisecond, d)
	}
}

func TestProcessFolderMissing(t *testing.T) {
	_, srv := newFakeServer(t)

	client, _ := newTestClient(t, srv, t.TempDir(), false)

	_, err := client.ProcessFolder(context.Background(), filepath.Join(t.TempDir(), "missing"), nil, time.Second, true)
	require.ErrorIs(t, err, whisperx.ErrNotFound)
}
