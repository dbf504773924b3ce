package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"grail-oracle/config"
	"grail-oracle/models"
	"grail-oracle/utils"
)

func newTestGrader(endpoint string) *Grader {
	return NewGrader(config.ClassifierConfig{
		Endpoint: endpoint,
		Model:    "test-model",
		Timeout:  2 * time.Second,
	}, utils.NewLogger("error"))
}

func classifierStub(response string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(response))
	}))
}

func TestGradeParsesStrictJSON(t *testing.T) {
	srv := classifierStub(`{"response": "{\"grade\": \"B\", \"score\": 0.8, \"notes\": \"light wear on bezel\"}"}`)
	defer srv.Close()

	res := newTestGrader(srv.URL).Grade(context.Background(), "Rolex Submariner", "light scratches")
	assert.Equal(t, models.GradeB, res.Grade)
	assert.Equal(t, 0.8, res.Score)
	assert.Equal(t, "light wear on bezel", res.Notes)
}

func TestGradeToleratesProseWrappedJSON(t *testing.T) {
	srv := classifierStub(`{"response": "Sure! Here is the result: {\"grade\": \"A\", \"score\": 0.95, \"notes\": \"sealed\"} Hope that helps."}`)
	defer srv.Close()

	res := newTestGrader(srv.URL).Grade(context.Background(), "Leica M6", "new in box")
	assert.Equal(t, models.GradeA, res.Grade)
}

func TestGradeMalformedJSONFallsBack(t *testing.T) {
	srv := classifierStub(`{"response": "the item looks fine to me"}`)
	defer srv.Close()

	res := newTestGrader(srv.URL).Grade(context.Background(), "Omega Speedmaster", "")
	assert.Equal(t, models.GradeC, res.Grade)
	assert.Equal(t, 0.5, res.Score)
}

func TestGradeInvalidGradeFallsBack(t *testing.T) {
	srv := classifierStub(`{"response": "{\"grade\": \"Z\", \"score\": 3.5, \"notes\": \"\"}"}`)
	defer srv.Close()

	res := newTestGrader(srv.URL).Grade(context.Background(), "Omega Speedmaster", "")
	assert.Equal(t, models.GradeC, res.Grade)
}

func TestGradeEndpointDownFallsBack(t *testing.T) {
	res := newTestGrader("http://127.0.0.1:1/unreachable").Grade(context.Background(), "Nike Dunk Low", "worn once")
	assert.Equal(t, models.GradeC, res.Grade)
	assert.Equal(t, 0.5, res.Score)
}

func TestSanityCheckReal(t *testing.T) {
	srv := classifierStub(`{"response": "{\"real\": true}"}`)
	defer srv.Close()

	assert.True(t, newTestGrader(srv.URL).SanityCheck(context.Background(), "Rolex Submariner 2020"))
}

func TestSanityCheckFake(t *testing.T) {
	srv := classifierStub(`{"response": "{\"real\": false}"}`)
	defer srv.Close()

	assert.False(t, newTestGrader(srv.URL).SanityCheck(context.Background(), "Rolex Box Logo Hoodie limited"))
}

func TestSanityCheckFailsOpen(t *testing.T) {
	// Classifier outage must not block catalog growth.
	assert.True(t, newTestGrader("http://127.0.0.1:1/unreachable").SanityCheck(context.Background(), "Supreme Box Logo Hoodie"))
}
