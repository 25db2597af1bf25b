package orchestrator

import (
	"context"
	"errors"
)

// ErrNotServing is returned by Rebuild when no Serve loop is handling requests.
var ErrNotServing = errors.New("orchestrator is not serving")

// buildRequest asks the Serve loop to run a task sequence.
type buildRequest struct {
	taskIDs    []string
	responseCh chan buildResponse
}

type buildResponse struct {
	results []TaskResult
	err     error
}

// HandleFunc runs a requested sequence.
type HandleFunc func(ctx context.Context, taskIDs []string) ([]TaskResult, error)

// RequestQueue carries manual rebuild requests to the Serve loop. Requests
// are handled one at a time, in arrival order.
type RequestQueue struct {
	requestCh chan buildRequest
	handle    HandleFunc
	done      chan struct{}
	started   chan struct{}
}

// NewRequestQueue creates a queue with the given buffer size.
func NewRequestQueue(bufferSize int, handle HandleFunc) *RequestQueue {
	return &RequestQueue{
		requestCh: make(chan buildRequest, bufferSize),
		handle:    handle,
		done:      make(chan struct{}),
		started:   make(chan struct{}),
	}
}

// Start launches the handler goroutine. It processes requests until the
// context is cancelled.
func (q *RequestQueue) Start(ctx context.Context) {
	close(q.started)
	go q.handleRequests(ctx)
}

func (q *RequestQueue) handleRequests(ctx context.Context) {
	defer close(q.done)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-q.requestCh:
			results, err := q.handle(ctx, req.taskIDs)

			select {
			case <-ctx.Done():
				req.responseCh <- buildResponse{err: ctx.Err()}
				return
			default:
				req.responseCh <- buildResponse{results: results, err: err}
			}
		}
	}
}

// Submit queues a sequence and waits for its results. It respects context
// cancellation at both the send and receive stages.
func (q *RequestQueue) Submit(ctx context.Context, taskIDs []string) ([]TaskResult, error) {
	select {
	case <-q.started:
	default:
		return nil, ErrNotServing
	}

	// Buffered so the handler never blocks on an abandoned request.
	responseCh := make(chan buildResponse, 1)
	req := buildRequest{taskIDs: taskIDs, responseCh: responseCh}

	select {
	case q.requestCh <- req:
	case <-q.done:
		return nil, ErrNotServing
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-responseCh:
		return resp.results, resp.err
	case <-q.done:
		// The handler may have answered just before exiting.
		select {
		case resp := <-responseCh:
			return resp.results, resp.err
		default:
			return nil, ErrNotServing
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop blocks until the handler goroutine has exited.
func (q *RequestQueue) Stop() {
	<-q.done
}
