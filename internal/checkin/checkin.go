// Package checkin drives a single face check-in from capture to the
// attendance ledger.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/matcher"
	"github.com/kozaktomas/attendance/internal/metrics"
)

// Capturer acquires an image using a method selector such as "file:/path".
type Capturer interface {
	Capture(ctx context.Context, method string) (capture.Image, error)
}

// Extractor turns an image into a fixed-length face embedding.
type Extractor interface {
	Extract(ctx context.Context, img capture.Image) ([]float32, error)
}

// Matcher identifies the student a query embedding belongs to.
type Matcher interface {
	Match(query []float32, pool []database.Embedding) (*matcher.Match, error)
}

// Request is one check-in attempt.
type Request struct {
	ClassID int64
	Method  string
	// Date overrides the attendance day; zero means today in the configured location.
	Date   time.Time
	Status database.Status // defaults to Present
}

// Result describes how far a check-in got. It is returned with every
// outcome; fields past the failed step are zero.
type Result struct {
	CheckinID    uuid.UUID       `json:"checkin_id"`
	State        State           `json:"state"`
	FailedIn     State           `json:"failed_in,omitempty"`
	Trace        []State         `json:"trace"`
	ClassID      int64           `json:"class_id"`
	StudentID    int64           `json:"student_id,omitempty"`
	Date         time.Time       `json:"date"`
	Status       database.Status `json:"status,omitempty"`
	MatchScore   float64         `json:"match_score"`
	AttendanceID int64           `json:"attendance_id,omitempty"`
}

// Orchestrator runs check-ins. It keeps no per-request state, so one
// instance can serve any number of concurrent requests.
type Orchestrator struct {
	store     database.RecordStore
	capturer  Capturer
	extractor Extractor
	matcher   Matcher
	location  *time.Location
	now       func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLocation sets the time zone that decides the attendance day.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) { o.location = loc }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator.
func New(store database.RecordStore, c Capturer, e Extractor, m Matcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		capturer:  c,
		extractor: e,
		matcher:   m,
		location:  time.Local,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// attempt holds the in-flight fields of one request.
type attempt struct {
	req       Request
	result    *Result
	image     capture.Image
	embedding []float32
	match     *matcher.Match
}

// Run executes the state machine for one request. Attendance is written only
// in the Recording step, inside its own transaction, so a failure or
// cancellation in any earlier step leaves storage untouched.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Status == "" {
		req.Status = database.StatusPresent
	}
	a := &attempt{
		req: req,
		result: &Result{
			CheckinID: uuid.New(),
			ClassID:   req.ClassID,
		},
	}

	state := StateIdle
	var err error
	for !state.Terminal() {
		a.result.Trace = append(a.result.Trace, state)
		start := o.now()
		err = o.step(ctx, state, a)
		metrics.CheckinStepDuration.WithLabelValues(string(state)).Observe(o.now().Sub(start).Seconds())

		if err != nil {
			a.result.FailedIn = state
		}
		state = next(state, err)
	}
	a.result.Trace = append(a.result.Trace, state)
	a.result.State = state

	o.report(a.result, err)
	return a.result, err
}

// step performs the work of a single state.
func (o *Orchestrator) step(ctx context.Context, state State, a *attempt) error {
	switch state {
	case StateIdle:
		return o.prepare(ctx, a)
	case StateCapturing:
		img, err := o.capturer.Capture(ctx, a.req.Method)
		if err != nil {
			return collaboratorError(ctx, database.ErrCaptureFailed, err)
		}
		a.image = img
	case StateEmbedding:
		vec, err := o.extractor.Extract(ctx, a.image)
		if err != nil {
			return collaboratorError(ctx, database.ErrExtractionFailed, err)
		}
		a.embedding = vec
	case StateMatching:
		return o.identify(ctx, a)
	case StateRecording:
		return o.record(ctx, a)
	}
	return nil
}

// prepare validates the request and fixes the attendance day.
func (o *Orchestrator) prepare(ctx context.Context, a *attempt) error {
	if a.req.Method == "" {
		return database.Invalid("capture method is required")
	}
	if err := database.ValidateStatus(a.req.Status); err != nil {
		return err
	}
	if _, err := o.store.GetClass(ctx, a.req.ClassID); err != nil {
		return err
	}

	day := a.req.Date
	if day.IsZero() {
		day = o.now().In(o.location)
	}
	a.result.Date = database.DateOf(day)
	return nil
}

func (o *Orchestrator) identify(ctx context.Context, a *attempt) error {
	pool, err := database.CandidatePool(ctx, o.store, a.req.ClassID)
	if err != nil {
		return err
	}
	m, err := o.matcher.Match(a.embedding, pool)
	if err != nil {
		return fmt.Errorf("class %d: %w", a.req.ClassID, err)
	}
	a.match = m
	a.result.StudentID = m.StudentID
	a.result.MatchScore = m.Score
	metrics.MatchDistance.Observe(m.Score)
	return nil
}

func (o *Orchestrator) record(ctx context.Context, a *attempt) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("check-in canceled before recording: %w", err)
	}

	var ev *database.AttendanceEvent
	err := o.store.WithTransaction(ctx, func(ctx context.Context, tx database.Stores) error {
		var err error
		ev, err = tx.RecordAttendance(ctx, a.req.ClassID, a.match.StudentID, a.result.Date, a.req.Status)
		return err
	})
	if err != nil {
		return err
	}
	a.result.AttendanceID = ev.ID
	a.result.Status = ev.Status
	return nil
}

// collaboratorError tags a capture or extraction failure. Cancellation is
// reported as such rather than as a collaborator fault.
func collaboratorError(ctx context.Context, kind, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

func (o *Orchestrator) report(r *Result, err error) {
	outcome := "recorded"
	if err != nil {
		outcome = string(database.KindOf(err))
	}
	metrics.CheckinsTotal.WithLabelValues(outcome).Inc()

	if err != nil {
		log.Printf("Check-in %s: class %d failed in %s: %v", r.CheckinID, r.ClassID, r.FailedIn, err)
		return
	}
	log.Printf("Check-in %s: class %d student %d %s on %s (distance %.4f)",
		r.CheckinID, r.ClassID, r.StudentID, r.Status, r.Date.Format(database.DateLayout), r.MatchScore)
}
