package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rms-hub/residency-hub/pkg/logger"
)

// ReviewState is the client-side state of one assessment in the queue.
type ReviewState int

const (
	// StateUnacknowledged: confirmed by the server as awaiting review.
	StateUnacknowledged ReviewState = iota
	// StateHidden: acknowledge sent, hidden until the server answers.
	StateHidden
	// StateAcknowledged: the server confirmed the acknowledge.
	StateAcknowledged
)

func (s ReviewState) String() string {
	switch s {
	case StateUnacknowledged:
		return "unacknowledged"
	case StateHidden:
		return "hidden"
	case StateAcknowledged:
		return "acknowledged"
	default:
		return fmt.Sprintf("ReviewState(%d)", int(s))
	}
}

var (
	ErrNotInQueue          = errors.New("assessment is not awaiting review")
	ErrAcknowledgeInFlight = errors.New("acknowledge already in progress")
)

// AcknowledgeError is returned when the server rejects an acknowledge. The
// item is back in the queue when the caller sees it.
type AcknowledgeError struct {
	ID  string
	Err error
}

func (e *AcknowledgeError) Error() string {
	return fmt.Sprintf("could not acknowledge assessment %s: %v", e.ID, e.Err)
}

func (e *AcknowledgeError) Unwrap() error { return e.Err }

// ReviewAPI is the part of Client the queue needs.
type ReviewAPI interface {
	ListUnacknowledged(ctx context.Context, residentID string) ([]Assessment, error)
	Acknowledge(ctx context.Context, id string) (*AcknowledgeResult, error)
}

// ReviewQueue is a resident's list of assessments awaiting review, with
// optimistic acknowledge.
//
// Acknowledge hides the item at once, then sends the request. On success the
// list is refetched and replaces local state; on failure the item is
// restored. A refetch is applied only if no item was hidden after it
// started, so it never undoes a newer removal. Items whose request is still
// in flight stay hidden across a refetch.
type ReviewQueue struct {
	api        ReviewAPI
	residentID string
	log        *logger.Logger

	mu     sync.Mutex
	items  []Assessment
	states map[string]ReviewState
	// inFlight holds ids with an acknowledge request outstanding.
	inFlight   map[string]struct{}
	generation uint64
}

func NewReviewQueue(api ReviewAPI, residentID string, log *logger.Logger) *ReviewQueue {
	if log == nil {
		log = logger.Nop()
	}
	return &ReviewQueue{
		api:        api,
		residentID: residentID,
		log:        log.With(logger.Component("review_queue"), logger.ResidentID(residentID)),
		states:     make(map[string]ReviewState),
		inFlight:   make(map[string]struct{}),
	}
}

// Load fetches the list from the server and replaces local state.
func (q *ReviewQueue) Load(ctx context.Context) error {
	_, err := q.refetch(ctx)
	return err
}

// Visible returns the items to show, in server order.
func (q *ReviewQueue) Visible() []Assessment {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Assessment, 0, len(q.items))
	for _, a := range q.items {
		if q.states[a.ID] == StateUnacknowledged {
			out = append(out, a)
		}
	}
	return out
}

// Count is the badge number: len(Visible()).
func (q *ReviewQueue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, a := range q.items {
		if q.states[a.ID] == StateUnacknowledged {
			n++
		}
	}
	return n
}

// State reports the state of id, false if the queue has never seen it.
func (q *ReviewQueue) State(id string) (ReviewState, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.states[id]
	return s, ok
}

// Acknowledge acknowledges id optimistically. It is never retried: a failure
// restores the item and returns *AcknowledgeError.
func (q *ReviewQueue) Acknowledge(ctx context.Context, id string) error {
	if err := q.hide(id); err != nil {
		return err
	}

	_, err := q.api.Acknowledge(ctx, id)
	if err != nil {
		q.restore(id)
		q.log.Warn("acknowledge failed, item restored", logger.AssessmentID(id), logger.Err(err))
		return &AcknowledgeError{ID: id, Err: err}
	}

	q.confirm(id)
	applied, err := q.refetch(ctx)
	if err != nil {
		// The acknowledge stands; the item stays hidden until the next Load.
		q.log.Warn("refetch after acknowledge failed", logger.AssessmentID(id), logger.Err(err))
		return nil
	}
	if !applied {
		q.log.Debug("stale refetch discarded", logger.AssessmentID(id))
	}
	return nil
}

func (q *ReviewQueue) hide(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch s, ok := q.states[id]; {
	case !ok || !q.contains(id):
		return ErrNotInQueue
	case s == StateHidden:
		return ErrAcknowledgeInFlight
	case s == StateAcknowledged:
		return ErrNotInQueue
	}
	q.states[id] = StateHidden
	q.inFlight[id] = struct{}{}
	q.generation++
	return nil
}

func (q *ReviewQueue) restore(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, id)
	if q.states[id] == StateHidden {
		q.states[id] = StateUnacknowledged
	}
}

func (q *ReviewQueue) confirm(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, id)
	q.states[id] = StateAcknowledged
}

// refetch loads the list and applies it unless a removal happened meanwhile.
func (q *ReviewQueue) refetch(ctx context.Context) (bool, error) {
	q.mu.Lock()
	q.generation++
	gen := q.generation
	q.mu.Unlock()

	list, err := q.api.ListUnacknowledged(ctx, q.residentID)
	if err != nil {
		return false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if gen != q.generation {
		return false, nil
	}

	states := make(map[string]ReviewState, len(list))
	for id, s := range q.states {
		if s == StateAcknowledged {
			states[id] = s
		}
	}
	for _, a := range list {
		if _, pending := q.inFlight[a.ID]; pending {
			states[a.ID] = StateHidden
		} else {
			states[a.ID] = StateUnacknowledged
		}
	}
	q.items = list
	q.states = states
	return true, nil
}

func (q *ReviewQueue) contains(id string) bool {
	for _, a := range q.items {
		if a.ID == id {
			return true
		}
	}
	return false
}
