package apihttp

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSONEncodeFailureAnswers500(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"total_cost": math.NaN()})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]float64{"total_cost": 12})
	if rec.Code != http.StatusCreated || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected 201 json, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "{\"total_cost\":12}\n" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}
