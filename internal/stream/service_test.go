package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/arkilian/streamcatalog/internal/errors"
	"github.com/arkilian/streamcatalog/internal/settings"
	"github.com/arkilian/streamcatalog/pkg/types"
)

func TestGetStream_NormalizesStats(t *testing.T) {
	h := newHarness()
	h.seed("org1", "app", types.StreamTypeLogs)

	desc, err := h.svc.GetStream(context.Background(), "org1", "app", types.StreamTypeLogs)
	require.NoError(t, err)

	assert.Equal(t, 2.00, desc.Stats.StorageSize)
	assert.Equal(t, 1.00, desc.Stats.CompressedSize)
	assert.Equal(t, int64(10), desc.Stats.DocNum)
	assert.Equal(t, StorageLocal, desc.StorageType)
	assert.Equal(t, []string{"level"}, desc.Settings.PartitionKeys)

	// The authoritative counters are not mutated.
	raw := fakeStats{h.kv}.Get(types.NewStreamKey("org1", "app", types.StreamTypeLogs))
	assert.Equal(t, 2097152.0, raw.StorageSize)
}

func TestGetStream_EmptySchemaIsNotFoundEvenWithStats(t *testing.T) {
	h := newHarness()
	k := types.NewStreamKey("org1", "ghost", types.StreamTypeLogs)
	h.kv.stats[k] = types.StreamStats{DocNum: 5}
	h.schemas.put("org1", "ghost", types.StreamTypeLogs, types.Schema{Metadata: map[string]string{"settings": "{}"}})

	_, err := h.svc.GetStream(context.Background(), "org1", "ghost", types.StreamTypeLogs)
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestGetStream_MissingStream(t *testing.T) {
	h := newHarness()
	_, err := h.svc.GetStream(context.Background(), "org1", "nope", types.StreamTypeLogs)
	assert.True(t, errs.IsNotFound(err))
}

func TestGetStream_StoreFailure(t *testing.T) {
	h := newHarness()
	h.schemas.failGet = true
	_, err := h.svc.GetStream(context.Background(), "org1", "app", types.StreamTypeLogs)
	require.Error(t, err)
	assert.Equal(t, errs.ErrCategoryInternal, errs.GetCategory(err))
}

func TestListStreams_PreservesOrderAndDefaultsUnusedStats(t *testing.T) {
	h := newHarness()
	h.seed("org1", "zeta", types.StreamTypeLogs)
	h.schemas.put("org1", "alpha", types.StreamTypeLogs, testSchema())
	h.seed("org1", "mid", types.StreamTypeMetrics)
	h.seed("org2", "other", types.StreamTypeLogs)

	list, err := h.svc.ListStreams(context.Background(), "org1", nil, true)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "zeta", list[0].Name)
	assert.Equal(t, "alpha", list[1].Name)
	assert.Equal(t, "mid", list[2].Name)

	assert.Equal(t, 2.00, list[0].Stats.StorageSize)
	assert.Equal(t, types.StreamStats{}, list[1].Stats)
	assert.Equal(t, types.StreamTypeMetrics, list[2].StreamType)
}

func TestListStreams_FilterByType(t *testing.T) {
	h := newHarness()
	h.seed("org1", "a", types.StreamTypeLogs)
	h.seed("org1", "b", types.StreamTypeTraces)

	traces := types.StreamTypeTraces
	list, err := h.svc.ListStreams(context.Background(), "org1", &traces, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Name)
	assert.Empty(t, list[0].Schema)
	assert.Equal(t, settings.Default(), list[0].Settings)
}

func TestListStreams_Failure(t *testing.T) {
	h := newHarness()
	h.schemas.failList = true
	_, err := h.svc.ListStreams(context.Background(), "org1", nil, true)
	assert.Error(t, err)
}

func TestListStreams_MalformedSettingsSurfaces(t *testing.T) {
	h := newHarness()
	h.schemas.put("org1", "bad", types.StreamTypeLogs, types.Schema{
		Fields:   []types.Field{{Name: "a", Type: "Utf8"}},
		Metadata: map[string]string{"settings": "]["},
	})
	_, err := h.svc.ListStreams(context.Background(), "org1", nil, true)
	require.Error(t, err)
	assert.True(t, errs.IsMalformedSettings(err))
	assert.Contains(t, err.Error(), "bad")
}

func TestSaveSettings_WritesNewVersion(t *testing.T) {
	h := newHarness()
	h.schemas.put("org1", "app", types.StreamTypeLogs, types.Schema{Fields: []types.Field{{Name: "log", Type: "Utf8"}}})

	want := types.StreamSettings{
		PartitionKeys:      []string{"tenant", "region"},
		FullTextSearchKeys: []string{"log"},
		DataRetention:      30,
	}
	require.NoError(t, h.svc.SaveSettings(context.Background(), "org1", "app", types.StreamTypeLogs, want))

	versions, err := h.schemas.GetVersions(context.Background(), "org1", "app", types.StreamTypeLogs)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "1700000000000000", versions[1].Metadata["created_at"])

	desc, err := h.svc.GetStream(context.Background(), "org1", "app", types.StreamTypeLogs)
	require.NoError(t, err)
	assert.Equal(t, want, desc.Settings)
}

func TestSaveSettings_KeepsExistingCreatedAt(t *testing.T) {
	h := newHarness()
	h.seed("org1", "app", types.StreamTypeLogs)

	require.NoError(t, h.svc.SaveSettings(context.Background(), "org1", "app", types.StreamTypeLogs, settings.Default()))
	latest, err := h.schemas.Get(context.Background(), "org1", "app", types.StreamTypeLogs)
	require.NoError(t, err)
	assert.Equal(t, "1690000000000000", latest.Metadata["created_at"])
}

func TestSaveSettings_ConflictWhenPendingDeletion(t *testing.T) {
	h := newHarness()
	k := h.seed("org1", "app", types.StreamTypeLogs)
	h.compactor.pending[k] = true

	err := h.svc.SaveSettings(context.Background(), "org1", "app", types.StreamTypeLogs, settings.Default())
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
	assert.Contains(t, err.Error(), "stream [app] is being deleted")
	assert.NotContains(t, h.schemas.calls, "set")
}

func TestSaveSettings_NotFound(t *testing.T) {
	h := newHarness()
	err := h.svc.SaveSettings(context.Background(), "org1", "none", types.StreamTypeLogs, settings.Default())
	assert.True(t, errs.IsNotFound(err))
}

func TestSaveSettings_StoreFailures(t *testing.T) {
	h := newHarness()
	h.seed("org1", "app", types.StreamTypeLogs)

	h.compactor.failIs = true
	assert.Error(t, h.svc.SaveSettings(context.Background(), "org1", "app", types.StreamTypeLogs, settings.Default()))

	h.compactor.failIs = false
	h.schemas.failSet = true
	assert.Error(t, h.svc.SaveSettings(context.Background(), "org1", "app", types.StreamTypeLogs, settings.Default()))
}
