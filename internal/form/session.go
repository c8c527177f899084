// Package form drives the multi-step clinical data entry and its submission.
package form

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Skufu/cardiorisk/internal/clinical"
	"github.com/Skufu/cardiorisk/internal/model"
)

// State is the lifecycle position of a session.
type State string

const (
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Step groups the fields entered on one screen.
type Step struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// Steps is the fixed entry order. Together they cover every clinical field exactly once.
var Steps = []Step{
	{Name: "demographics", Fields: []string{model.FeatureAge, model.FeatureSex, model.FeatureChestPain}},
	{Name: "vitals", Fields: []string{model.FeatureRestingBP, model.FeatureCholesterol, model.FeatureFastingBS, model.FeatureRestECG}},
	{Name: "exercise", Fields: []string{model.FeatureMaxHeartRate, model.FeatureExAngina, model.FeatureSTDepression, model.FeatureSlope}},
	{Name: "imaging", Fields: []string{model.FeatureVessels, model.FeatureThal}},
}

var (
	// ErrSubmitting rejects edits and navigation while a submission is in flight.
	ErrSubmitting = errors.New("form: submission in progress")
	// ErrInvalidState rejects an operation the current state does not allow.
	ErrInvalidState = errors.New("form: operation not allowed in current state")
	// ErrFirstStep is returned by Retreat on the first step.
	ErrFirstStep = errors.New("form: already at the first step")
	// ErrAbandoned is returned to a submission whose session was reset while it ran.
	ErrAbandoned = errors.New("form: submission abandoned")
)

// StepError lists the fields that keep a step from advancing.
type StepError struct {
	Step   string            `json:"step"`
	Fields map[string]string `json:"fields"`
}

func (e *StepError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, f := range names {
		parts[i] = f + " " + e.Fields[f]
	}
	return fmt.Sprintf("form: step %s incomplete: %s", e.Step, strings.Join(parts, "; "))
}

// Assessor produces the result for a complete input.
type Assessor interface {
	Assess(ctx context.Context, in model.ClinicalInput) (*model.Assessment, error)
}

// Session is one user's form. All methods are safe for concurrent use; the
// assessor runs outside the lock while the session is Submitting.
type Session struct {
	mu sync.Mutex

	id       string
	assessor Assessor
	now      func() time.Time

	state   State
	step    int
	values  map[string]float64
	errs    map[string]string
	result  *model.Assessment
	failure error

	token   string
	cancel  context.CancelFunc
	touched time.Time
}

// NewSession starts an empty session at the first step.
func NewSession(id string, a Assessor) *Session {
	return newSession(id, a, time.Now)
}

func newSession(id string, a Assessor, now func() time.Time) *Session {
	s := &Session{id: id, assessor: a, now: now}
	s.clear()
	return s
}

func (s *Session) clear() {
	s.state = StateEditing
	s.step = 0
	s.values = make(map[string]float64)
	s.errs = make(map[string]string)
	s.result = nil
	s.failure = nil
	s.token = uuid.NewString()
	s.touched = s.now()
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// EditField validates and stores one field. It never moves between steps.
// Editing a Failed session returns it to Editing so the data can be corrected.
func (s *Session) EditField(field string, raw any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateSubmitting:
		return ErrSubmitting
	case StateSucceeded:
		return ErrInvalidState
	case StateFailed:
		s.state = StateEditing
		s.failure = nil
	}
	s.touched = s.now()

	v, err := clinical.Validate(field, raw)
	if err != nil {
		var ve *clinical.ValidationError
		if errors.As(err, &ve) {
			s.errs[field] = ve.Reason
			delete(s.values, field)
		}
		return err
	}
	s.values[field] = v
	delete(s.errs, field)
	return nil
}

func (s *Session) stepIssues(i int) *StepError {
	issues := map[string]string{}
	for _, f := range Steps[i].Fields {
		if reason, ok := s.errs[f]; ok {
			issues[f] = reason
			continue
		}
		if _, ok := s.values[f]; !ok {
			issues[f] = "is required"
		}
	}
	if len(issues) == 0 {
		return nil
	}
	return &StepError{Step: Steps[i].Name, Fields: issues}
}

// Advance moves to the next step once the current one is complete. On the
// last step it submits the assembled input and blocks until the assessor
// returns; the returned error is the submission error, if any.
func (s *Session) Advance(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateSubmitting:
		s.mu.Unlock()
		return ErrSubmitting
	case StateEditing:
	default:
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.touched = s.now()

	if se := s.stepIssues(s.step); se != nil {
		s.mu.Unlock()
		return se
	}
	if s.step < len(Steps)-1 {
		s.step++
		s.mu.Unlock()
		return nil
	}

	// Earlier steps can be edited into an invalid state after they were left.
	for i := range Steps {
		if se := s.stepIssues(i); se != nil {
			s.mu.Unlock()
			return se
		}
	}
	in, err := clinical.Assemble(s.values)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	subCtx, token := s.beginSubmit(ctx)
	s.mu.Unlock()

	return s.submit(subCtx, token, in)
}

// Retry resubmits the retained data of a Failed session.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateSubmitting {
		s.mu.Unlock()
		return ErrSubmitting
	}
	if s.state != StateFailed {
		s.mu.Unlock()
		return ErrInvalidState
	}
	in, err := clinical.Assemble(s.values)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	subCtx, token := s.beginSubmit(ctx)
	s.mu.Unlock()

	return s.submit(subCtx, token, in)
}

// beginSubmit must be called with the lock held.
func (s *Session) beginSubmit(ctx context.Context) (context.Context, string) {
	subCtx, cancel := context.WithCancel(ctx)
	s.state = StateSubmitting
	s.failure = nil
	s.result = nil
	s.token = uuid.NewString()
	s.cancel = cancel
	s.touched = s.now()
	return subCtx, s.token
}

func (s *Session) submit(ctx context.Context, token string, in model.ClinicalInput) error {
	a, err := s.assessor.Assess(ctx, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != token {
		return ErrAbandoned
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.touched = s.now()
	if err != nil {
		s.state = StateFailed
		s.failure = err
		return err
	}
	s.state = StateSucceeded
	s.result = a
	return nil
}

// Retreat moves back one step, keeping every entered value.
func (s *Session) Retreat() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateSubmitting:
		return ErrSubmitting
	case StateSucceeded:
		return ErrInvalidState
	}
	if s.step == 0 {
		return ErrFirstStep
	}
	s.state = StateEditing
	s.failure = nil
	s.step--
	s.touched = s.now()
	return nil
}

// Abandon cancels any in-flight submission. Its response, if it still
// arrives, is discarded.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandon()
}

func (s *Session) abandon() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.token = uuid.NewString()
	if s.state == StateSubmitting {
		s.state = StateEditing
	}
}

// Reset abandons any submission and clears the session back to the first step.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandon()
	s.clear()
}

// Snapshot is a read-only copy of a session's state.
type Snapshot struct {
	ID        string             `json:"id"`
	State     State              `json:"state"`
	Step      int                `json:"step"`
	StepName  string             `json:"stepName"`
	Fields    []string           `json:"fields"`
	Values    map[string]float64 `json:"values"`
	Errors    map[string]string  `json:"errors"`
	Result    *model.Assessment  `json:"result,omitempty"`
	Failure   string             `json:"failure,omitempty"`
	Retryable bool               `json:"retryable"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Snapshot returns a copy safe to hand to other goroutines.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	errs := make(map[string]string, len(s.errs))
	for k, v := range s.errs {
		errs[k] = v
	}
	snap := Snapshot{
		ID:        s.id,
		State:     s.state,
		Step:      s.step,
		StepName:  Steps[s.step].Name,
		Fields:    append([]string(nil), Steps[s.step].Fields...),
		Values:    values,
		Errors:    errs,
		Retryable: s.state == StateFailed,
		UpdatedAt: s.touched,
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	if s.failure != nil {
		snap.Failure = s.failure.Error()
	}
	return snap
}

// Failure returns the error of the last failed submission.
func (s *Session) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched, s.state == StateSubmitting
}
