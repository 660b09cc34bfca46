package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/commerce-fulfillment/pkg/httputil"
	"github.com/utafrali/commerce-fulfillment/pkg/logger"
)

func TestRecovery_WritesErrorEnvelope(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter("fulfillment", "info", &buf)
	h := Correlation(Recovery(l)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil order")
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/next", nil)
	req.Header.Set(HeaderCorrelationID, "corr-p")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.Equal(t, "corr-p", resp.Error.RequestID)
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "nil order")
}

func TestRecovery_RepanicsAbort(t *testing.T) {
	h := Recovery(logger.NewWithWriter("fulfillment", "info", &bytes.Buffer{}))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic(http.ErrAbortHandler)
		}),
	)

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRecovery_PassesThrough(t *testing.T) {
	h := Recovery(logger.NewWithWriter("fulfillment", "info", &bytes.Buffer{}))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
}
