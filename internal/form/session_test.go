package form

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/cardiorisk/internal/clinical"
	"github.com/Skufu/cardiorisk/internal/model"
	"github.com/Skufu/cardiorisk/internal/predict"
)

type assessFunc func(ctx context.Context, in model.ClinicalInput) (*model.Assessment, error)

func (f assessFunc) Assess(ctx context.Context, in model.ClinicalInput) (*model.Assessment, error) {
	return f(ctx, in)
}

func okAssessor(calls *atomic.Int32) Assessor {
	return assessFunc(func(_ context.Context, in model.ClinicalInput) (*model.Assessment, error) {
		if calls != nil {
			calls.Add(1)
		}
		return &model.Assessment{Input: in, FinalTier: model.TierLow}, nil
	})
}

var stepValues = [][]struct {
	field string
	raw   any
}{
	{{"age", "55"}, {"sex", "male"}, {"cp", 0}},
	{{"trestbps", 180}, {"chol", "240"}, {"fbs", "no"}, {"restecg", 0}},
	{{"thalach", 150}, {"exang", "no"}, {"oldpeak", 1.0}, {"slope", 1}},
	{{"ca", 0}, {"thal", 3}},
}

func fillStep(t *testing.T, s *Session, i int) {
	t.Helper()
	for _, fv := range stepValues[i] {
		require.NoError(t, s.EditField(fv.field, fv.raw))
	}
}

func fillAll(t *testing.T, s *Session) {
	t.Helper()
	for i := range Steps {
		fillStep(t, s, i)
		if i < len(Steps)-1 {
			require.NoError(t, s.Advance(context.Background()))
		}
	}
}

func TestSteps_CoverEveryFieldOnce(t *testing.T) {
	seen := map[string]int{}
	for _, st := range Steps {
		for _, f := range st.Fields {
			seen[f]++
		}
	}
	assert.Len(t, seen, len(clinical.Fields))
	for _, f := range clinical.Fields {
		assert.Equal(t, 1, seen[f], f)
	}
}

func TestEditField_RecordsErrorAndDropsStaleValue(t *testing.T) {
	s := NewSession("s1", okAssessor(nil))
	require.NoError(t, s.EditField("age", 40))

	err := s.EditField("age", 200)
	var ve *clinical.ValidationError
	require.ErrorAs(t, err, &ve)

	snap := s.Snapshot()
	assert.NotContains(t, snap.Values, "age")
	assert.Contains(t, snap.Errors["age"], "<= 120")
	assert.Equal(t, 0, snap.Step)

	require.NoError(t, s.EditField("age", "41"))
	snap = s.Snapshot()
	assert.Equal(t, 41.0, snap.Values["age"])
	assert.NotContains(t, snap.Errors, "age")
}

func TestEditField_UnknownField(t *testing.T) {
	s := NewSession("s1", okAssessor(nil))
	err := s.EditField("bmi", 22)
	assert.ErrorIs(t, err, clinical.ErrUnknownField)
	assert.Empty(t, s.Snapshot().Errors)
}

func TestAdvance_BlockedByInvalidOrMissing(t *testing.T) {
	s := NewSession("s1", okAssessor(nil))
	fillStep(t, s, 0)
	require.NoError(t, s.Advance(context.Background()))

	require.NoError(t, s.EditField("trestbps", 130))
	require.NoError(t, s.EditField("fbs", 0))
	_ = s.EditField("restecg", 5)

	err := s.Advance(context.Background())
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "vitals", se.Step)
	assert.Equal(t, map[string]string{"chol": "is required", "restecg": "must be one of 0, 1, 2"}, se.Fields)
	assert.Equal(t, 1, s.Snapshot().Step)
}

func TestAdvance_SubmitsOnLastStep(t *testing.T) {
	var calls atomic.Int32
	s := NewSession("s1", okAssessor(&calls))
	fillAll(t, s)

	require.NoError(t, s.Advance(context.Background()))
	snap := s.Snapshot()
	assert.Equal(t, StateSucceeded, snap.State)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 180, snap.Result.Input.RestingBP)
	assert.Equal(t, int32(1), calls.Load())

	assert.ErrorIs(t, s.EditField("age", 30), ErrInvalidState)
	assert.ErrorIs(t, s.Advance(context.Background()), ErrInvalidState)
}

func TestAdvance_RechecksEarlierSteps(t *testing.T) {
	s := NewSession("s1", okAssessor(nil))
	fillAll(t, s)
	_ = s.EditField("age", -1)

	err := s.Advance(context.Background())
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "demographics", se.Step)
	assert.Equal(t, StateEditing, s.Snapshot().State)
}

func TestRetreat_KeepsData(t *testing.T) {
	s := NewSession("s1", okAssessor(nil))
	assert.ErrorIs(t, s.Retreat(), ErrFirstStep)

	fillStep(t, s, 0)
	require.NoError(t, s.Advance(context.Background()))
	require.NoError(t, s.EditField("trestbps", 140))
	require.NoError(t, s.Retreat())

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.Step)
	assert.Equal(t, 55.0, snap.Values["age"])
	assert.Equal(t, 140.0, snap.Values["trestbps"])
}

func TestFailureRetainsDataAndRetry(t *testing.T) {
	var calls atomic.Int32
	fail := atomic.Bool{}
	fail.Store(true)
	s := NewSession("s1", assessFunc(func(_ context.Context, in model.ClinicalInput) (*model.Assessment, error) {
		calls.Add(1)
		if fail.Load() {
			return nil, &predict.ParseError{Reason: "missing risk"}
		}
		return &model.Assessment{Input: in, FinalTier: model.TierMedium}, nil
	}))
	fillAll(t, s)

	err := s.Advance(context.Background())
	var pe *predict.ParseError
	require.ErrorAs(t, err, &pe)

	snap := s.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.True(t, snap.Retryable)
	assert.Contains(t, snap.Failure, "missing risk")
	assert.Len(t, snap.Values, 13)

	fail.Store(false)
	require.NoError(t, s.Retry(context.Background()))
	assert.Equal(t, StateSucceeded, s.Snapshot().State)
	assert.Equal(t, int32(2), calls.Load())

	assert.ErrorIs(t, s.Retry(context.Background()), ErrInvalidState)
}

func TestEditAfterFailureReturnsToEditing(t *testing.T) {
	s := NewSession("s1", assessFunc(func(context.Context, model.ClinicalInput) (*model.Assessment, error) {
		return nil, &predict.ServiceError{StatusCode: 422, Message: "bad input"}
	}))
	fillAll(t, s)
	require.Error(t, s.Advance(context.Background()))

	require.NoError(t, s.EditField("thal", 7))
	snap := s.Snapshot()
	assert.Equal(t, StateEditing, snap.State)
	assert.Equal(t, len(Steps)-1, snap.Step)
	assert.Empty(t, snap.Failure)
}

func blockingAssessor(started chan<- struct{}, release <-chan struct{}) Assessor {
	return assessFunc(func(ctx context.Context, in model.ClinicalInput) (*model.Assessment, error) {
		close(started)
		select {
		case <-release:
			return &model.Assessment{Input: in, FinalTier: model.TierHigh}, nil
		case <-ctx.Done():
			return nil, &predict.NetworkError{Err: ctx.Err()}
		}
	})
}

func TestSubmitting_RejectsEditsAndNavigation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewSession("s1", blockingAssessor(started, release))
	fillAll(t, s)

	done := make(chan error, 1)
	go func() { done <- s.Advance(context.Background()) }()
	<-started

	assert.Equal(t, StateSubmitting, s.Snapshot().State)
	assert.ErrorIs(t, s.EditField("age", 60), ErrSubmitting)
	assert.ErrorIs(t, s.Advance(context.Background()), ErrSubmitting)
	assert.ErrorIs(t, s.Retreat(), ErrSubmitting)
	assert.ErrorIs(t, s.Retry(context.Background()), ErrSubmitting)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateSucceeded, s.Snapshot().State)
}

func TestReset_DropsLateResponse(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewSession("s1", assessFunc(func(ctx context.Context, in model.ClinicalInput) (*model.Assessment, error) {
		close(started)
		<-release
		return &model.Assessment{Input: in, FinalTier: model.TierHigh}, nil
	}))
	fillAll(t, s)

	done := make(chan error, 1)
	go func() { done <- s.Advance(context.Background()) }()
	<-started

	s.Reset()
	close(release)
	assert.ErrorIs(t, <-done, ErrAbandoned)

	snap := s.Snapshot()
	assert.Equal(t, StateEditing, snap.State)
	assert.Equal(t, 0, snap.Step)
	assert.Empty(t, snap.Values)
	assert.Nil(t, snap.Result)
}

func TestAbandon_CancelsSubmission(t *testing.T) {
	started := make(chan struct{})
	s := NewSession("s1", blockingAssessor(started, make(chan struct{})))
	fillAll(t, s)

	done := make(chan error, 1)
	go func() { done <- s.Advance(context.Background()) }()
	<-started
	s.Abandon()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAbandoned)
	case <-time.After(2 * time.Second):
		t.Fatal("submission was not cancelled")
	}
	snap := s.Snapshot()
	assert.Equal(t, StateEditing, snap.State)
	assert.Len(t, snap.Values, 13)
}

func TestStepError_Message(t *testing.T) {
	err := &StepError{Step: "vitals", Fields: map[string]string{"trestbps": "is required", "chol": "must be <= 700"}}
	assert.Equal(t, "form: step vitals incomplete: chol must be <= 700; trestbps is required", err.Error())
	assert.False(t, errors.Is(err, ErrSubmitting))
}
