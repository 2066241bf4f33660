// SPDX-License-Identifier: MIT

// Package queue carries transcription job ids from the API to the worker
// pool. The Redis implementation is the production path; the in-memory
// one backs tests and single-process deployments.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by Dequeue after Close.
var ErrClosed = errors.New("queue closed")

// Job is one unit of transcription work.
type Job struct {
	SessionID string `json:"session_id"`
	OwnerID   string `json:"owner_id"`
	Attempt   int    `json:"attempt"`
}

// Queue is a FIFO job queue. Dequeue blocks until a job is available,
// the context is cancelled, or the queue is closed.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
	Depth(ctx context.Context) (int, error)
	Close() error
}
