package trainer

import (
	"context"
	"fmt"

	"randsearch/internal/obsfilter"
	"randsearch/internal/rollout"
)

type requestKind int

const (
	reqTrials requestKind = iota
	reqFilterPull
	reqFilterPush
)

type request struct {
	ctx  context.Context
	kind requestKind

	baseWeights []float64
	count       int
	shift       float64
	evaluate    bool

	ref obsfilter.Snapshot

	resp chan response
}

type response struct {
	batch rollout.Batch
	snap  obsfilter.Snapshot
	err   error
}

// handle is the coordinator's endpoint for one worker goroutine. The worker
// itself is confined to its goroutine; all interaction goes through reqs.
type handle struct {
	id       int
	reqs     chan request
	restarts int
}

func newHandle(id int, w *rollout.Worker) *handle {
	h := &handle{id: id, reqs: make(chan request)}
	go serve(w, h.reqs)
	return h
}

// serve owns the worker until the request channel closes. One request is
// processed at a time, so the worker needs no locking.
func serve(w *rollout.Worker, reqs <-chan request) {
	for req := range reqs {
		var resp response
		switch req.kind {
		case reqTrials:
			resp.batch, resp.err = w.RunTrials(req.ctx, req.baseWeights, req.count, req.shift, req.evaluate)
		case reqFilterPull:
			resp.snap = w.FilterSnapshot()
		case reqFilterPush:
			w.ClearFilterBuffer()
			resp.err = w.SyncFilter(req.ref)
		}
		req.resp <- resp
	}
}

// workerFactory builds a fresh worker for slot id, both at startup and when
// the replace policy rebuilds a failed one.
type workerFactory func(id int) (*rollout.Worker, error)

type pool struct {
	handles []*handle
	factory workerFactory
}

func newPool(n int, factory workerFactory) (*pool, error) {
	p := &pool{handles: make([]*handle, n), factory: factory}
	for i := 0; i < n; i++ {
		w, err := factory(i)
		if err != nil {
			p.close()
			return nil, fmt.Errorf("trainer: build worker %d: %w", i, err)
		}
		p.handles[i] = newHandle(i, w)
	}
	return p, nil
}

func (p *pool) size() int { return len(p.handles) }

// send hands one request to slot i and returns the future carrying its
// response. The handoff blocks only until the worker accepts the request;
// the buffered future means an abandoned response never wedges the worker.
// Barriers keep at most one request outstanding per slot.
func (p *pool) send(i int, req request) <-chan response {
	fut := make(chan response, 1)
	req.resp = fut
	p.handles[i].reqs <- req
	return fut
}

func (p *pool) dispatchTrials(ctx context.Context, i int, weights []float64, count int, shift float64, evaluate bool) <-chan response {
	return p.send(i, request{
		ctx:         ctx,
		kind:        reqTrials,
		baseWeights: weights,
		count:       count,
		shift:       shift,
		evaluate:    evaluate,
	})
}

func (p *pool) dispatchFilterPull(ctx context.Context, i int) <-chan response {
	return p.send(i, request{ctx: ctx, kind: reqFilterPull})
}

func (p *pool) dispatchFilterPush(ctx context.Context, i int, ref obsfilter.Snapshot) <-chan response {
	return p.send(i, request{ctx: ctx, kind: reqFilterPush, ref: ref})
}

// replace tears down the goroutine for slot i and rebuilds its worker from
// the factory. Only call with no request in flight on that slot.
func (p *pool) replace(i, maxRestarts int) error {
	h := p.handles[i]
	if h.restarts >= maxRestarts {
		return fmt.Errorf("trainer: worker %d exceeded %d restarts", i, maxRestarts)
	}
	close(h.reqs)
	w, err := p.factory(i)
	if err != nil {
		return fmt.Errorf("trainer: rebuild worker %d: %w", i, err)
	}
	fresh := newHandle(i, w)
	fresh.restarts = h.restarts + 1
	p.handles[i] = fresh
	return nil
}

func (p *pool) close() {
	for _, h := range p.handles {
		if h != nil {
			close(h.reqs)
		}
	}
}
