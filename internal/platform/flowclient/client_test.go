package flowclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/opdflow/internal/flowengine"
	"github.com/ehr/opdflow/pkg/flowmodel"
)

var (
	_ flowengine.Backend            = (*Client)(nil)
	_ flowengine.PermissionResolver = (*Client)(nil)
	_ flowengine.Connectivity       = (*Probe)(nil)
)

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Token: "tok", TenantID: "acme", FacilityID: "fac-1"})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "ftp://example.org"})
	assert.Error(t, err)
	c, err := New(Config{BaseURL: "http://localhost:8080/"})
	require.NoError(t, err)
	assert.Empty(t, c.base.Path)
}

func TestClient_ListSendsFiltersAndHeaders(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/visit-flows", r.URL.Path)
		assert.Equal(t, "WAITING_VITALS", r.URL.Query().Get("stage"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "acme", r.Header.Get("X-Tenant-ID"))
		assert.Equal(t, "fac-1", r.Header.Get("X-Facility-ID"))
		assert.Empty(t, r.Header.Get("Idempotency-Key"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"items":      []map[string]string{{"id": "v-1", "stage": "WAITING_VITALS"}},
			"pagination": map[string]interface{}{"total": 1, "limit": 10, "offset": 0, "hasMore": false},
		})
	})

	res, err := c.List(context.Background(), flowmodel.ListParams{Stage: flowmodel.StageWaitingVitals, Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "v-1", res.Items[0].ID)
	assert.Equal(t, 1, res.Pagination.Total)
}

func TestClient_ListAcceptsBareArray(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]string{{"id": "v-1"}, {"id": "v-2"}})
	})

	res, err := c.List(context.Background(), flowmodel.ListParams{})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, 2, res.Pagination.Total)
}

func TestClient_Get(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/visit-flows/v-7", r.URL.Path)
		writeJSON(w, http.StatusOK, flowmodel.FlowSnapshot{ID: "v-7", Stage: flowmodel.StageWaitingDoctorReview, Version: 4})
	})

	snap, err := c.Get(context.Background(), "v-7")
	require.NoError(t, err)
	assert.Equal(t, flowmodel.StageWaitingDoctorReview, snap.Stage)
	assert.Equal(t, 4, snap.Version)
}

func TestClient_TransitionsPostPayload(t *testing.T) {
	tests := []struct {
		name string
		path string
		call func(c *Client) (*flowmodel.FlowSnapshot, error)
		key  string
	}{
		{"start", "/api/v1/visit-flows", func(c *Client) (*flowmodel.FlowSnapshot, error) {
			return c.Start(context.Background(), flowmodel.StartVisitPayload{ArrivalMode: flowmodel.ArrivalWalkIn, PatientID: "p-1"})
		}, "arrivalMode"},
		{"pay", "/api/v1/visit-flows/v-1/pay-consultation", func(c *Client) (*flowmodel.FlowSnapshot, error) {
			return c.PayConsultation(context.Background(), "v-1", flowmodel.PaymentPayload{Method: "CASH", Amount: "20"})
		}, "method"},
		{"vitals", "/api/v1/visit-flows/v-1/record-vitals", func(c *Client) (*flowmodel.FlowSnapshot, error) {
			return c.RecordVitals(context.Background(), "v-1", flowmodel.VitalsPayload{TriageLevel: "3"})
		}, "vitals"},
		{"assign", "/api/v1/visit-flows/v-1/assign-doctor", func(c *Client) (*flowmodel.FlowSnapshot, error) {
			return c.AssignDoctor(context.Background(), "v-1", flowmodel.AssignDoctorPayload{ProviderID: "dr-1"})
		}, "providerId"},
		{"review", "/api/v1/visit-flows/v-1/doctor-review", func(c *Client) (*flowmodel.FlowSnapshot, error) {
			return c.DoctorReview(context.Background(), "v-1", flowmodel.DoctorReviewPayload{Note: "ok"})
		}, "note"},
		{"disposition", "/api/v1/visit-flows/v-1/disposition", func(c *Client) (*flowmodel.FlowSnapshot, error) {
			return c.Disposition(context.Background(), "v-1", flowmodel.DispositionPayload{Decision: flowmodel.DecisionDischarge})
		}, "decision"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, tt.path, r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Contains(t, body, tt.key)
				writeJSON(w, http.StatusOK, flowmodel.FlowSnapshot{ID: "v-1", Version: 2})
			})
			snap, err := tt.call(c)
			require.NoError(t, err)
			assert.Equal(t, "v-1", snap.ID)
		})
	}
}

func TestClient_APIErrorEnvelope(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, flowmodel.ErrorBody{Error: &flowmodel.APIError{Code: flowmodel.CodeStageConflict, Message: "visit is in WAITING_VITALS"}})
	})

	_, err := c.PayConsultation(context.Background(), "v-1", flowmodel.PaymentPayload{Method: "CASH"})
	var apiErr *flowmodel.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, flowmodel.CodeStageConflict, apiErr.Code)
	assert.Equal(t, flowmodel.CodeStageConflict, flowengine.ErrorCode(err))
}

func TestClient_PlainErrorBody(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusForbidden)
	})

	_, err := c.Get(context.Background(), "v-1")
	var apiErr *flowmodel.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Empty(t, apiErr.Code)
	assert.Equal(t, "gateway exploded", apiErr.Message)
	assert.Equal(t, flowmodel.CodeForbidden, flowengine.ErrorCode(err))
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "v-1")
	require.Error(t, err)
	assert.Equal(t, flowmodel.CodeNetwork, flowengine.ErrorCode(err))
}

func TestClient_RetryReusesIdempotencyKey(t *testing.T) {
	var calls int32
	keys := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("Idempotency-Key")
		if atomic.AddInt32(&calls, 1) == 1 {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		writeJSON(w, http.StatusOK, flowmodel.FlowSnapshot{ID: "v-1"})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Retries: 1})
	require.NoError(t, err)
	c.backoff = time.Millisecond

	snap, err := c.AssignDoctor(context.Background(), "v-1", flowmodel.AssignDoctorPayload{ProviderID: "dr-1"})
	require.NoError(t, err)
	assert.Equal(t, "v-1", snap.ID)
	first, second := <-keys, <-keys
	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestClient_Resolve(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/visit-flows/capabilities", r.URL.Path)
		writeJSON(w, http.StatusOK, flowmodel.Capabilities{Ready: true, CanAccess: true, CanRecordVitals: true, TenantID: "acme"})
	})

	caps, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, caps.Ready)
	assert.True(t, caps.CanRecordVitals)
	assert.False(t, caps.CanDisposition)
	assert.Equal(t, "acme", caps.TenantID)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestProbe(t *testing.T) {
	p := NewProbe(stubPinger{}, false)
	assert.False(t, p.Offline())
	assert.False(t, p.Check(context.Background()))

	p = NewProbe(stubPinger{err: errors.New("down")}, false)
	assert.False(t, p.Offline(), "starts online until checked")
	assert.True(t, p.Check(context.Background()))
	assert.True(t, p.Offline())

	forced := NewProbe(stubPinger{}, true)
	assert.True(t, forced.Offline())
	assert.True(t, forced.Check(context.Background()))

	assert.True(t, NewProbe(nil, false).Check(context.Background()))
}

func TestClient_Ping(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	assert.NoError(t, c.Ping(context.Background()))
}
