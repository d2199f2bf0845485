package db

import (
	"context"
	"fmt"
	"time"

	"whisperclient/pkg/ctxstore"
)

type Job struct {
	Hash      string    `json:"hash"`
	Path      string    `json:"path"`
	Status    string    `json:"status"`
	Launched  bool      `json:"launched"`
	RunID     string    `json:"run_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Results []Result `json:"results,omitempty"`
}

type Result struct {
	View     string    `json:"view"`
	Location string    `json:"location"`
	SavedAt  time.Time `json:"saved_at"`
}

// RecordJob upserts a job. launched sticks once any submission launched the job, run_id
// keeps the last batch run that touched it.
func (db *DB) RecordJob(ctx context.Context, hash, path, status string, launched bool) error {
	runID, _ := ctxstore.GetRunID(ctx)

	_, err := db.ExecContext(ctx, `
		insert into
			jobs (hash, path, status, launched, run_id, created_at, updated_at)
		values
			($1, $2, $3, $4, $5, $6, $6)
		on conflict (hash) do update set
			path = excluded.path,
			status = excluded.status,
			launched = jobs.launched or excluded.launched,
			run_id = case when excluded.run_id = '' then jobs.run_id else excluded.run_id end,
			updated_at = excluded.updated_at
	`, hash, path, status, launched, runID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record job: %w", err)
	}

	return nil
}

func (db *DB) RecordResult(ctx context.Context, hash, view, location string) error {
	_, err := db.ExecContext(ctx, `
		insert into
			results (hash, view, location, saved_at)
		values
			($1, $2, $3, $4)
		on conflict (hash, view) do update set
			location = excluded.location,
			saved_at = excluded.saved_at
	`, hash, view, location, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}

	return nil
}

func (db *DB) ListJobs(ctx context.Context) ([]*Job, error) {
	rows, err := db.QueryContext(ctx, `
		select
			hash,
			path,
			status,
			launched,
			run_id,
			created_at,
			updated_at
		from
			jobs
		order by
			updated_at desc, hash
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return jobs, nil
}

func (db *DB) GetJob(ctx context.Context, hash string) (*Job, error) {
	row := db.QueryRowContext(ctx, `
		select
			hash,
			path,
			status,
			launched,
			run_id,
			created_at,
			updated_at
		from
			jobs
		where
			hash = $1
	`, hash)

	job, err := scanJob(row)
	if err != nil {
		if ErrCode(err) == ErrCodeNoRows {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		select
			view,
			location,
			saved_at
		from
			results
		where
			hash = $1
		order by
			view
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get job results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res     Result
			savedAt int64
		)
		if err := rows.Scan(&res.View, &res.Location, &savedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job result: %w", err)
		}
		res.SavedAt = time.UnixMilli(savedAt).UTC()
		job.Results = append(job.Results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job results: %w", err)
	}

	return job, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var (
		job                  Job
		createdAt, updatedAt int64
	)

	if err := s.Scan(&job.Hash, &job.Path, &job.Status, &job.Launched, &job.RunID, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", parseErr(err))
	}

	job.CreatedAt = time.UnixMilli(createdAt).UTC()
	job.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	return &job, nil
}
