package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpapi "github.com/arkilian/streamcatalog/internal/api/http"
	errs "github.com/arkilian/streamcatalog/internal/errors"
	"github.com/arkilian/streamcatalog/internal/logging"
	"github.com/arkilian/streamcatalog/pkg/types"
)

type stubService struct {
	mu       sync.Mutex
	streams  map[string]types.StreamDescriptor
	deleted  []string
	settings map[string]types.StreamSettings
	failWith error
}

func newStubService() *stubService {
	return &stubService{
		streams: map[string]types.StreamDescriptor{
			"app_logs": {
				Name:        "app_logs",
				StreamType:  types.StreamTypeLogs,
				StorageType: "disk",
				Schema:      []types.StreamProperty{{Name: "ts", Type: "Int64"}},
				Stats:       types.StreamStats{DocNum: 42, StorageSize: 1.5},
			},
		},
		settings: map[string]types.StreamSettings{},
	}
}

func (s *stubService) GetStream(_ context.Context, _, name string, _ types.StreamType) (types.StreamDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return types.StreamDescriptor{}, s.failWith
	}
	d, ok := s.streams[name]
	if !ok {
		return types.StreamDescriptor{}, errs.NewNotFound(name)
	}
	return d, nil
}

func (s *stubService) ListStreams(_ context.Context, _ string, _ *types.StreamType, _ bool) ([]types.StreamDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.StreamDescriptor
	for _, d := range s.streams {
		out = append(out, d)
	}
	return out, nil
}

func (s *stubService) DeleteStream(_ context.Context, _, name string, _ types.StreamType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.deleted = append(s.deleted, name)
	return nil
}

func (s *stubService) SaveSettings(_ context.Context, _, name string, _ types.StreamType, st types.StreamSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[name] = st
	return nil
}

func (s *stubService) fail(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

func (s *stubService) settingsFor(name string) types.StreamSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[name]
}

func (s *stubService) deletedStreams() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

func newTestServer(t *testing.T, svc httpapi.StreamService) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	httpapi.NewStreamHandler(svc, logging.Discard()).Register(mux)
	srv := httptest.NewServer(httpapi.DefaultMiddleware(logging.Discard())(mux))
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	root := NewRoot(viper.New())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--server", server}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestClient_RoundTrip(t *testing.T) {
	svc := newStubService()
	srv := newTestServer(t, svc)
	c := NewClient(srv.URL, 0)
	ctx := context.Background()

	desc, err := c.GetStream(ctx, "acme", "app_logs", types.StreamTypeLogs)
	require.NoError(t, err)
	assert.Equal(t, int64(42), desc.Stats.DocNum)

	list, err := c.ListStreams(ctx, "acme", nil, true)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, c.SaveSettings(ctx, "acme", "app_logs", types.StreamTypeLogs,
		types.StreamSettings{PartitionKeys: []string{"host"}, DataRetention: 3}))
	assert.Equal(t, []string{"host"}, svc.settingsFor("app_logs").PartitionKeys)

	require.NoError(t, c.DeleteStream(ctx, "acme", "app_logs", types.StreamTypeLogs))
	assert.Equal(t, []string{"app_logs"}, svc.deletedStreams())
}

func TestClient_ErrorTaxonomy(t *testing.T) {
	svc := newStubService()
	srv := newTestServer(t, svc)
	c := NewClient(srv.URL, 0)
	ctx := context.Background()

	_, err := c.GetStream(ctx, "acme", "missing", types.StreamTypeLogs)
	assert.True(t, errs.IsNotFound(err))

	svc.fail(errs.NewConflict("app_logs"))
	_, err = c.GetStream(ctx, "acme", "app_logs", types.StreamTypeLogs)
	assert.True(t, errs.IsConflict(err))

	svc.fail(errs.NewSubsystemFailure("schema_deleted", "app_logs", errors.New("disk full")))
	err = c.DeleteStream(ctx, "acme", "app_logs", types.StreamTypeLogs)
	require.Error(t, err)
	assert.Equal(t, "schema_deleted", errs.GetStage(err))
	assert.True(t, errs.IsRetryable(err))
}

func TestCommands_ListTable(t *testing.T) {
	srv := newTestServer(t, newStubService())

	out, err := runCLI(t, srv.URL, "list", "--org", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "app_logs")
	assert.Contains(t, out, "1.50")
}

func TestCommands_GetJSON(t *testing.T) {
	srv := newTestServer(t, newStubService())

	out, err := runCLI(t, srv.URL, "get", "app_logs", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"doc_num": 42`)
}

func TestCommands_GetMissing(t *testing.T) {
	srv := newTestServer(t, newStubService())

	_, err := runCLI(t, srv.URL, "get", "nope")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestCommands_DeleteAndSettings(t *testing.T) {
	svc := newStubService()
	srv := newTestServer(t, svc)

	out, err := runCLI(t, srv.URL, "settings", "set", "app_logs",
		"--partition-keys", "region,host", "--data-retention", "14")
	require.NoError(t, err)
	assert.Contains(t, out, "settings saved")
	assert.Equal(t, []string{"region", "host"}, svc.settingsFor("app_logs").PartitionKeys)
	assert.Equal(t, int64(14), svc.settingsFor("app_logs").DataRetention)

	out, err = runCLI(t, srv.URL, "delete", "app_logs")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")
}

func TestCommands_InvalidType(t *testing.T) {
	srv := newTestServer(t, newStubService())

	_, err := runCLI(t, srv.URL, "get", "app_logs", "--type", "events")
	assert.Error(t, err)
}
