package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/arkilian/streamcatalog/internal/errors"
	"github.com/arkilian/streamcatalog/pkg/types"
)

type fakeService struct {
	streams map[string]types.StreamDescriptor
	err     error

	lastType    *types.StreamType
	lastFetch   bool
	deleted     []string
	lastSetting types.StreamSettings
}

func (f *fakeService) GetStream(_ context.Context, org, name string, st types.StreamType) (types.StreamDescriptor, error) {
	if f.err != nil {
		return types.StreamDescriptor{}, f.err
	}
	d, ok := f.streams[org+"/"+string(st)+"/"+name]
	if !ok {
		return types.StreamDescriptor{}, errs.NewNotFound(name)
	}
	return d, nil
}

func (f *fakeService) ListStreams(_ context.Context, org string, st *types.StreamType, fetchSchema bool) ([]types.StreamDescriptor, error) {
	f.lastType, f.lastFetch = st, fetchSchema
	if f.err != nil {
		return nil, f.err
	}
	var out []types.StreamDescriptor
	for _, d := range f.streams {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeService) DeleteStream(_ context.Context, org, name string, st types.StreamType) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, org+"/"+string(st)+"/"+name)
	return nil
}

func (f *fakeService) SaveSettings(_ context.Context, org, name string, st types.StreamType, s types.StreamSettings) error {
	if f.err != nil {
		return f.err
	}
	f.lastSetting = s
	return nil
}

func newTestServer(t *testing.T, svc StreamService) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	NewStreamHandler(svc, logger).Register(mux)
	srv := httptest.NewServer(DefaultMiddleware(logger)(mux))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestGetStream(t *testing.T) {
	svc := &fakeService{streams: map[string]types.StreamDescriptor{
		"org1/metrics/cpu": {Name: "cpu", StreamType: types.StreamTypeMetrics, StorageType: "disk"},
	}}
	srv := newTestServer(t, svc)

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/org1/streams/cpu?type=metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var desc types.StreamDescriptor
	require.NoError(t, json.Unmarshal(body, &desc))
	assert.Equal(t, "cpu", desc.Name)
	assert.Equal(t, "disk", desc.StorageType)
}

func TestGetStream_DefaultsToLogsAndMapsNotFound(t *testing.T) {
	srv := newTestServer(t, &fakeService{streams: map[string]types.StreamDescriptor{}})

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/org1/streams/app", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, errs.CodeStreamNotFound, e.Code)
	assert.Contains(t, e.Error, "stream [app] not found")
	assert.Equal(t, resp.Header.Get("X-Request-ID"), e.RequestID)
}

func TestGetStream_BadType(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	resp, _ := do(t, http.MethodGet, srv.URL+"/v1/org1/streams/app?type=events", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListStreams(t *testing.T) {
	svc := &fakeService{streams: map[string]types.StreamDescriptor{
		"org1/logs/app": {Name: "app", StreamType: types.StreamTypeLogs},
	}}
	srv := newTestServer(t, svc)

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/org1/streams", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, svc.lastType, "no type filter when type is absent")
	assert.False(t, svc.lastFetch)

	var list ListStreamsResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.List, 1)
	assert.Equal(t, "app", list.List[0].Name)

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/org1/streams?type=traces&fetch_schema=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, svc.lastType)
	assert.Equal(t, types.StreamTypeTraces, *svc.lastType)
	assert.True(t, svc.lastFetch)

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/org1/streams?fetch_schema=maybe", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteStream(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)

	resp, body := do(t, http.MethodDelete, srv.URL+"/v1/org1/streams/app?type=logs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"org1/logs/app"}, svc.deleted)

	var msg MessageResponse
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "stream [app] deleted", msg.Message)
}

func TestDeleteStream_SubsystemFailureCarriesStage(t *testing.T) {
	svc := &fakeService{err: errs.NewSubsystemFailure("cache_cleared", "app", fmt.Errorf("cache unavailable"))}
	srv := newTestServer(t, svc)

	resp, body := do(t, http.MethodDelete, srv.URL+"/v1/org1/streams/app", "")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "cache_cleared", e.Stage)
	assert.Equal(t, errs.CodeStageFailed, e.Code)
	assert.Equal(t, e.RequestID, e.CorrelationID)
}

func TestErrorCarriesCallerCorrelationID(t *testing.T) {
	srv := newTestServer(t, &fakeService{streams: map[string]types.StreamDescriptor{}})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/org1/streams/app?type=logs", nil)
	require.NoError(t, err)
	req.Header.Set("X-Correlation-ID", "trace-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var e ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "trace-42", e.CorrelationID)
	assert.Equal(t, "trace-42", resp.Header.Get("X-Correlation-ID"))
}

func TestSaveSettings(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)

	resp, _ := do(t, http.MethodPut, srv.URL+"/v1/org1/streams/app/settings",
		`{"partition_keys":["region"],"full_text_search_keys":["msg"],"data_retention":30}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"region"}, svc.lastSetting.PartitionKeys)
	assert.Equal(t, []string{"msg"}, svc.lastSetting.FullTextSearchKeys)
	assert.Equal(t, int64(30), svc.lastSetting.DataRetention)

	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/org1/streams/app/settings", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.NewNotFound("s"), http.StatusNotFound},
		{errs.NewConflict("s"), http.StatusConflict},
		{fmt.Errorf("stream [s]: %w", errs.NewMalformedSettings(fmt.Errorf("bad"))), http.StatusUnprocessableEntity},
		{errs.NewInvalidArgument("bad"), http.StatusBadRequest},
		{errs.NewSubsystemFailure("schema_deleted", "s", fmt.Errorf("x")), http.StatusInternalServerError},
		{errs.NewInternalError("x", nil), http.StatusInternalServerError},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := DefaultMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "req-123", e.RequestID)
	assert.Equal(t, "req-123", rec.Header().Get("X-Correlation-ID"))
}
