package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/cardiorisk/internal/form"
	"github.com/Skufu/cardiorisk/internal/model"
	"github.com/Skufu/cardiorisk/internal/predict"
)

func createSession(t *testing.T, ts *testServer) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	session := decodeBody(t, w)["session"].(map[string]any)
	return session["id"].(string)
}

func fillStep(t *testing.T, ts *testServer, id string, step int) {
	t.Helper()
	payload := scenarioPayload()
	for _, f := range form.Steps[step].Fields {
		w := ts.do(t, http.MethodPut, "/api/sessions/"+id+"/fields/"+f, map[string]any{"value": payload[f]})
		require.Equal(t, http.StatusOK, w.Code, "%s: %s", f, w.Body.String())
	}
}

func TestSession_FullFlow(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)

	for step := range form.Steps {
		fillStep(t, ts, id, step)
		w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/advance", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := ts.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	session := decodeBody(t, w)["session"].(map[string]any)
	assert.Equal(t, string(form.StateSucceeded), session["state"])
	result := session["result"].(map[string]any)
	assert.Equal(t, "MEDIUM", result["finalTier"])
}

func TestSession_AdvanceWithMissingField(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)
	fillStep(t, ts, id, 0)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/sessions/"+id+"/advance", nil).Code)

	w := ts.do(t, http.MethodPut, "/api/sessions/"+id+"/fields/trestbps", map[string]any{"value": 140})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/advance", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "validation_failed", body["error"])
	assert.Equal(t, "vitals", body["step"])
	fields := body["fields"].(map[string]any)
	assert.Contains(t, fields, "chol")
	assert.NotContains(t, fields, "trestbps")
	session := body["session"].(map[string]any)
	assert.Equal(t, 1.0, session["step"])
}

func TestSession_EditFieldErrors(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)

	w := ts.do(t, http.MethodPut, "/api/sessions/"+id+"/fields/age", map[string]any{"value": 150})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	session := decodeBody(t, w)["session"].(map[string]any)
	assert.Contains(t, session["errors"].(map[string]any)["age"], "<= 120")

	w = ts.do(t, http.MethodPut, "/api/sessions/"+id+"/fields/smoker", map[string]any{"value": "yes"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_field")
}

func TestSession_FailureThenRetry(t *testing.T) {
	ts := newTestServer(t)
	ts.predictor.set(model.PredictionResult{}, &predict.ParseError{Reason: "missing risk label"})
	id := createSession(t, ts)

	for step := range form.Steps {
		fillStep(t, ts, id, step)
		rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/advance", nil)
		if step < len(form.Steps)-1 {
			require.Equal(t, http.StatusOK, rec.Code)
			continue
		}
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "parse", body["kind"])
		session := body["session"].(map[string]any)
		assert.Equal(t, string(form.StateFailed), session["state"])
		assert.Equal(t, true, session["retryable"])
		assert.Len(t, session["values"].(map[string]any), 13)
	}

	ts.predictor.set(model.PredictionResult{Tier: model.TierHigh, Label: "high", Confidence: 0.8}, nil)
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := decodeBody(t, rec)["session"].(map[string]any)
	assert.Equal(t, string(form.StateSucceeded), session["state"])
	assert.Equal(t, 2, ts.predictor.calls)
}

func TestSession_NavigationErrors(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)

	w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/retreat", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_state")

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/retry", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	fillStep(t, ts, id, 0)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/sessions/"+id+"/advance", nil).Code)
	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/retreat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	session := decodeBody(t, w)["session"].(map[string]any)
	assert.Equal(t, 0.0, session["step"])
	assert.Len(t, session["values"].(map[string]any), 3)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	session = decodeBody(t, w)["session"].(map[string]any)
	assert.Empty(t, session["values"])
}

func TestSession_NotFoundAndDelete(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "session_not_found")

	id := createSession(t, ts)
	w = ts.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
