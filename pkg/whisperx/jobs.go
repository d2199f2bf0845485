package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"time"
)

type submitResponse struct {
	Hash     string `json:"hash"`
	Status   string `json:"status"`
	Launched bool   `json:"launched"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type resultResponse struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

// Submit uploads the file at path unless skipIfDone is set and the server already holds a
// finished job for the same bytes.
func (c *Client) Submit(ctx context.Context, path string, skipIfDone bool) (JobHandle, error) {
	hash, data, err := HashFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("audio file does not exist", "path", path)
			return JobHandle{}, fmt.Errorf("audio file %s: %w", path, ErrNotFound)
		}

		return JobHandle{}, fmt.Errorf("failed to read audio file: %w", err)
	}

	logger := c.logger.With("hash", hash, "path", path)

	if skipIfDone {
		status, err := c.Status(ctx, hash)
		if err == nil && status == StatusDone {
			metrics.DedupHits.Inc()
			logger.Info("job already done, skipping upload")

			job := JobHandle{Hash: hash, Status: StatusDone}
			c.setCurrent(job)
			c.recordJob(ctx, job, path)

			return job, nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return JobHandle{}, ctx.Err()
			}
			logger.Debug("status pre-check failed, uploading", "err", err)
		}
	}

	if duration, ok := wavDuration(path, data); ok {
		logger.Info("uploading audio", "duration", duration.String(), "bytes", len(data))
	} else {
		logger.Info("uploading audio", "bytes", len(data))
	}

	body, contentType, err := buildUploadForm(filepath.Base(path), data)
	if err != nil {
		return JobHandle{}, err
	}

	var resp submitResponse
	if err := c.do(ctx, "submit", http.MethodPost, "/", body, contentType, &resp); err != nil {
		logger.Error("failed to submit audio", "err", err)
		return JobHandle{}, fmt.Errorf("failed to submit %s: %w", path, err)
	}

	metrics.Uploads.Inc()

	status, err := ParseStatus(resp.Status)
	if err != nil {
		return JobHandle{}, &ProtocolError{Op: "submit", Message: err.Error()}
	}

	job := JobHandle{
		Hash:     hash,
		Status:   status,
		Launched: resp.Launched,
	}

	if resp.Hash != "" && ContentHash(resp.Hash) != hash {
		logger.Warn("server reported a different hash", "server_hash", resp.Hash)
		job.Hash = ContentHash(resp.Hash)
	}

	logger.Info("audio submitted", "status", job.Status, "launched", job.Launched)

	c.setCurrent(job)
	c.recordJob(ctx, job, path)

	return job, nil
}

func (c *Client) Status(ctx context.Context, hash ContentHash) (Status, error) {
	hash, err := c.resolve(hash)
	if err != nil {
		return "", err
	}

	var resp statusResponse
	if err := c.do(ctx, "status", http.MethodGet, "/status/"+string(hash), nil, "", &resp); err != nil {
		return "", err
	}

	status, err := ParseStatus(resp.Status)
	if err != nil {
		return "", &ProtocolError{Op: "status", Message: err.Error()}
	}

	c.setCurrentStatus(hash, status)

	return status, nil
}

// PollStatus blocks until the job is done or ctx ends. Up to 10 consecutive failed
// queries are retried after interval/10; the next failure is returned.
func (c *Client) PollStatus(ctx context.Context, hash ContentHash, interval time.Duration) (Status, error) {
	hash, err := c.resolve(hash)
	if err != nil {
		return "", err
	}

	logger := c.logger.With("hash", hash)

	failures := 0
	for {
		status, err := c.Status(ctx, hash)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}

			failures++
			if failures > maxPollRetries {
				return "", fmt.Errorf("failed to poll status after %d attempts: %w", failures, err)
			}

			metrics.PollRetries.Inc()
			logger.Warn("status query failed, retrying", "attempt", failures, "err", err)

			if err := c.wait(ctx, interval/10); err != nil {
				return "", err
			}
			continue
		}

		failures = 0

		if status == StatusDone {
			return status, nil
		}

		logger.Debug("job not done yet", "status", status)

		if err := c.wait(ctx, interval); err != nil {
			return "", err
		}
	}
}

// FetchResult never blocks on an unfinished job, it returns ErrNoResult instead.
func (c *Client) FetchResult(ctx context.Context, hash ContentHash, view View) (*ResultView, error) {
	hash, err := c.resolve(hash)
	if err != nil {
		return nil, err
	}

	var resp resultResponse
	if err := c.do(ctx, "result_"+view.String(), http.MethodGet, view.resultPath(hash), nil, "", &resp); err != nil {
		return nil, err
	}

	if Status(resp.Status) != StatusDone {
		return nil, fmt.Errorf("job %s is %q: %w", hash, resp.Status, ErrNoResult)
	}

	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil, &ProtocolError{Op: "result_" + view.String(), Message: "done job without result"}
	}

	return &ResultView{
		Hash: hash,
		View: view,
		Raw:  resp.Result,
	}, nil
}

// PersistResult fetches a result and writes it to destination, or to
// <output>/<view>/<hash>.json when destination is empty. A relative destination is
// taken from the working directory, not from the output folder.
func (c *Client) PersistResult(ctx context.Context, hash ContentHash, view View, destination string) (*ResultView, error) {
	hash, err := c.resolve(hash)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With("hash", hash, "view", view.String())

	result, err := c.FetchResult(ctx, hash, view)
	if err != nil {
		if errors.Is(err, ErrNoResult) {
			logger.Info("no result to persist yet")
		}
		return nil, err
	}

	data, err := result.Encode()
	if err != nil {
		return nil, err
	}

	key := filepath.Join(view.Dir(), string(hash)+".json")
	if destination != "" {
		if key, err = filepath.Abs(destination); err != nil {
			return nil, fmt.Errorf("failed to resolve destination %s: %w", destination, err)
		}
	}

	written, err := c.results.Write(ctx, key, result.ContentType(), data)
	if err != nil {
		metrics.ResultWrites.WithLabelValues(view.String(), "error").Inc()
		return nil, fmt.Errorf("failed to write %s result: %w", view, err)
	}

	if written {
		metrics.ResultWrites.WithLabelValues(view.String(), "written").Inc()
		logger.Info("result saved", "location", key)
	} else {
		metrics.ResultWrites.WithLabelValues(view.String(), "skipped").Inc()
		logger.Info("result already exists, keeping it", "location", key)
	}

	c.recordResult(ctx, hash, view, key)

	return result, nil
}

// Transcribe runs the whole lifecycle for one file: submit, wait, persist every view.
func (c *Client) Transcribe(ctx context.Context, path string, views []View, interval time.Duration) (JobHandle, error) {
	job, err := c.Submit(ctx, path, true)
	if err != nil {
		return JobHandle{}, err
	}

	if job.Status != StatusDone {
		status, err := c.PollStatus(ctx, job.Hash, interval)
		if err != nil {
			return job, err
		}
		job.Status = status
		c.recordJob(ctx, job, path)
	}

	for _, view := range views {
		if _, err := c.PersistResult(ctx, job.Hash, view, ""); err != nil {
			return job, err
		}
	}

	return job, nil
}

func (c *Client) recordJob(ctx context.Context, job JobHandle, path string) {
	if c.ledger == nil {
		return
	}

	if err := c.ledger.RecordJob(ctx, string(job.Hash), path, string(job.Status), job.Launched); err != nil {
		c.logger.Warn("failed to record job", "hash", job.Hash, "err", err)
	}
}

func (c *Client) recordResult(ctx context.Context, hash ContentHash, view View, location string) {
	if c.ledger == nil {
		return
	}

	if err := c.ledger.RecordResult(ctx, string(hash), view.String(), location); err != nil {
		c.logger.Warn("failed to record result", "hash", hash, "err", err)
	}
}
