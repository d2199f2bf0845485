package whisperx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"whisperclient/pkg/ctxstore"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

type BatchFailure struct {
	Path string
	Hash ContentHash
	Err  error
}

type BatchReport struct {
	RunID     string
	Submitted int
	Launched  int
	Completed int
	Persisted int
	Failures  []BatchFailure
}

type inFlight struct {
	path     string
	failures int
}

// ProcessFolder submits every supported audio file in folder, then keeps scanning the
// in-flight jobs, persisting and dropping the ones that are done. It waits interval when a
// scan finds nothing ready and interval/10 after a failed status query. Failures of single
// files end up in the report; a job whose status keeps failing past the retry budget stops
// the batch with that error.
func (c *Client) ProcessFolder(ctx context.Context, folder string, views []View, interval time.Duration, skipIfDone bool) (*BatchReport, error) {
	if folder == "" {
		folder = c.cfg.AudioFolder
	}

	report := &BatchReport{RunID: uuid.NewString()}
	logger := c.logger.With("run_id", report.RunID, "folder", folder)
	ctx = ctxstore.WithRunID(ctx, report.RunID)

	entries, err := os.ReadDir(folder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("audio folder does not exist")
			return report, fmt.Errorf("audio folder %s: %w", folder, ErrNotFound)
		}
		return report, fmt.Errorf("failed to read audio folder: %w", err)
	}

	if len(views) == 0 {
		views = []View{ViewFull}
	}

	pending := make(map[ContentHash]*inFlight, len(entries))
	order := make([]ContentHash, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !IsSupportedAudio(entry.Name()) {
			continue
		}

		path := filepath.Join(folder, entry.Name())

		job, err := c.Submit(ctx, path, skipIfDone)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failures = append(report.Failures, BatchFailure{Path: path, Err: err})
			continue
		}

		report.Submitted++
		if job.Launched {
			report.Launched++
		}

		if _, ok := pending[job.Hash]; ok {
			logger.Info("duplicate audio content", "path", path, "hash", job.Hash)
			continue
		}

		pending[job.Hash] = &inFlight{path: path}
		order = append(order, job.Hash)
	}

	logger.Info("files submitted", "submitted", report.Submitted, "launched", report.Launched)

	for len(order) > 0 {
		ready, failed := 0, 0

		for _, hash := range slices.Clone(order) {
			job := pending[hash]

			status, err := c.Status(ctx, hash)
			if err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}

				job.failures++
				if job.failures > maxPollRetries {
					logger.Error("giving up on job", "hash", hash, "path", job.path, "err", err)
					report.Failures = append(report.Failures, BatchFailure{Path: job.path, Hash: hash, Err: err})
					return report, fmt.Errorf("failed to poll status of %s after %d attempts: %w", job.path, job.failures, err)
				}

				failed++
				metrics.PollRetries.Inc()
				logger.Warn("status query failed, retrying", "hash", hash, "attempt", job.failures, "err", err)
				continue
			}
			job.failures = 0

			if status != StatusDone {
				continue
			}

			ready++
			report.Completed++
			c.recordJob(ctx, JobHandle{Hash: hash, Status: status}, job.path)

			for _, view := range views {
				if _, err := c.PersistResult(ctx, hash, view, ""); err != nil {
					if ctx.Err() != nil {
						return report, ctx.Err()
					}
					report.Failures = append(report.Failures, BatchFailure{Path: job.path, Hash: hash, Err: err})
					continue
				}
				report.Persisted++
			}

			order = remove(order, hash)
			delete(pending, hash)
		}

		if len(order) == 0 {
			break
		}

		switch {
		case failed > 0:
			if err := c.wait(ctx, interval/10); err != nil {
				return report, err
			}
		case ready == 0:
			logger.Debug("no job ready", "in_flight", len(order))
			if err := c.wait(ctx, interval); err != nil {
				return report, err
			}
		}
	}

	logger.Info("folder processed", "completed", report.Completed, "persisted", report.Persisted, "failures", len(report.Failures))

	return report, nil
}

func remove(order []ContentHash, hash ContentHash) []ContentHash {
	idx := slices.Index(order, hash)
	if idx < 0 {
		return order
	}

	return slices.Delete(order, idx, idx+1)
}
