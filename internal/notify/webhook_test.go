package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/purchase-tracker/internal/logging"
)

func TestDispatcher_Send_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDispatcher(time.Second, logging.Nop())
	status, err := d.Send(context.Background(), srv.URL, map[string]any{"item_name": "x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "x", got["item_name"])
}

func TestDispatcher_Send_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad webhook"))
	}))
	defer srv.Close()

	d := NewDispatcher(time.Second, logging.Nop())
	status, err := d.Send(context.Background(), srv.URL, struct{}{})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, status)

	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusBadRequest, de.StatusCode)
	assert.Equal(t, "bad webhook", de.Body)
}

func TestDispatcher_Send_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := NewDispatcher(time.Second, logging.Nop())
	_, err := d.Send(context.Background(), url, struct{}{})
	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.NotNil(t, de.Cause)
}

func TestDispatcher_DispatchSwallowsFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(time.Second, logging.Nop())
	d.Dispatch(context.Background(), srv.URL, struct{}{})
	d.Dispatch(context.Background(), "", struct{}{})
	assert.Equal(t, 1, calls, "single attempt, empty url skipped")
}

func TestDispatcher_TestWebhook(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p PriceDropPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "Test Item", p.ItemName)
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	d := NewDispatcher(time.Second, logging.Nop())

	res := d.TestWebhook(context.Background(), ok.URL)
	assert.True(t, res.Delivered)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, res.Error)

	res = d.TestWebhook(context.Background(), bad.URL)
	assert.False(t, res.Delivered)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.NotEmpty(t, res.Error)
}
