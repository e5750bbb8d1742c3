package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atxgeo/parcelmap/internal/dataset"
)

func newTestService() *PropertyService {
	return NewPropertyService(NewMemBlobStore())
}

func testSubmission() Submission {
	return Submission{
		Address:      "2400 E 6th St",
		City:         "Austin",
		State:        "TX",
		Zip:          "78702",
		Coordinate:   Coordinate{Lat: 30.2597, Lng: -97.7167},
		MarketValue:  500000,
		PropertyType: dataset.Residential,
		Bedrooms:     3,
		Bathrooms:    2,
	}
}

func TestAddAndList(t *testing.T) {
	svc := newTestService()

	p, err := svc.Add(testSubmission())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.ID, "submitted-"))
	assert.Equal(t, StatusPending, p.Status)
	assert.False(t, p.SubmittedAt.IsZero())

	props := svc.List()
	require.Len(t, props, 1)
	assert.Equal(t, p.ID, props[0].ID)
	assert.Equal(t, StatusPending, props[0].Status)
}

func TestAddRequiresCoordinate(t *testing.T) {
	svc := newTestService()
	sub := testSubmission()
	sub.Coordinate = Coordinate{}
	_, err := svc.Add(sub)
	require.Error(t, err)
	assert.Empty(t, svc.List())
}

func TestAddGeneratesUniqueIDs(t *testing.T) {
	svc := newTestService()
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		p, err := svc.Add(testSubmission())
		require.NoError(t, err)
		assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
	}
}

func TestLifecycle(t *testing.T) {
	svc := newTestService()
	p, err := svc.Add(testSubmission())
	require.NoError(t, err)

	approved := StatusApproved
	updated, err := svc.Update(p.ID, Patch{Status: &approved})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, updated.Status)
	// Only the patched field changed.
	assert.Equal(t, p.Address, updated.Address)
	assert.Equal(t, p.MarketValue, updated.MarketValue)

	got, err := svc.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)

	assert.True(t, svc.Remove(p.ID))
	_, err = svc.Get(p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateNotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.Update("missing", Patch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveNotFound(t *testing.T) {
	assert.False(t, newTestService().Remove("missing"))
}

func TestStatistics(t *testing.T) {
	svc := newTestService()

	first := testSubmission()
	first.MarketValue = 500000
	p1, err := svc.Add(first)
	require.NoError(t, err)
	_ = p1

	second := testSubmission()
	second.MarketValue = 750000
	p2, err := svc.Add(second)
	require.NoError(t, err)
	approved := StatusApproved
	_, err = svc.Update(p2.ID, Patch{Status: &approved})
	require.NoError(t, err)

	stats := svc.Statistics()
	assert.Equal(t, Statistics{
		Total:        2,
		Pending:      1,
		Approved:     1,
		Rejected:     0,
		TotalValue:   1250000,
		AverageValue: 625000,
	}, stats)
}

func TestStatisticsEmpty(t *testing.T) {
	stats := newTestService().Statistics()
	assert.Equal(t, Statistics{}, stats)
}

func TestQuery(t *testing.T) {
	svc := newTestService()

	res := testSubmission()
	_, err := svc.Add(res)
	require.NoError(t, err)

	com := testSubmission()
	com.Address = "700 Test Plaza"
	com.City = "Pflugerville"
	com.PropertyType = dataset.Commercial
	com.MarketValue = 2000000
	_, err = svc.Add(com)
	require.NoError(t, err)

	t.Run("by type", func(t *testing.T) {
		commercial := dataset.Commercial
		got := svc.Query(QueryFilter{PropertyType: &commercial})
		require.Len(t, got, 1)
		assert.Equal(t, "700 Test Plaza", got[0].Address)
	})

	t.Run("address substring is case-insensitive", func(t *testing.T) {
		got := svc.Query(QueryFilter{Address: "test"})
		require.Len(t, got, 1)
		assert.Equal(t, "700 Test Plaza", got[0].Address)
	})

	t.Run("city substring", func(t *testing.T) {
		got := svc.Query(QueryFilter{City: "austin"})
		assert.Len(t, got, 1)
	})

	t.Run("price range inclusive", func(t *testing.T) {
		min, max := 500000.0, 2000000.0
		got := svc.Query(QueryFilter{MinPrice: &min, MaxPrice: &max})
		assert.Len(t, got, 2)
	})

	t.Run("filters AND-combine", func(t *testing.T) {
		commercial := dataset.Commercial
		got := svc.Query(QueryFilter{PropertyType: &commercial, City: "austin"})
		assert.Empty(t, got)
	})

	t.Run("empty filter returns all", func(t *testing.T) {
		assert.Len(t, svc.Query(QueryFilter{}), 2)
	})
}

func TestCorruptPersistedJSON(t *testing.T) {
	blob := NewMemBlobStore()
	require.NoError(t, blob.SetItem(storageKey, "{not json"))

	svc := NewPropertyService(blob)
	assert.Empty(t, svc.List())

	// The store stays usable after corruption.
	_, err := svc.Add(testSubmission())
	require.NoError(t, err)
	assert.Len(t, svc.List(), 1)
}

func TestBackfillDefaults(t *testing.T) {
	blob := NewMemBlobStore()
	// A record persisted before status/type existed.
	old := `[{"id":"submitted-1-abc","address":"1 Old Rd","coordinate":{"lat":30.1,"lng":-97.7},"marketValue":100}]`
	require.NoError(t, blob.SetItem(storageKey, old))

	props := NewPropertyService(blob).List()
	require.Len(t, props, 1)
	assert.Equal(t, StatusPending, props[0].Status)
	assert.Equal(t, dataset.Residential, props[0].PropertyType)
}

func TestExportCSV(t *testing.T) {
	svc := newTestService()
	sub := testSubmission()
	sub.Description = `nice "quiet" street`
	_, err := svc.Add(sub)
	require.NoError(t, err)

	csv := svc.ExportCSV()
	lines := strings.Split(strings.TrimRight(csv, "\n"), "\n")
	require.Len(t, lines, 2)

	header := strings.Split(lines[0], ",")
	assert.Len(t, header, 15)
	assert.Equal(t, "id", header[0])
	assert.Equal(t, "submittedAt", header[14])

	assert.Contains(t, lines[1], `"2400 E 6th St"`)
	assert.Contains(t, lines[1], `"nice ""quiet"" street"`)
	assert.Contains(t, lines[1], `"pending"`)
}

func TestExportImportRoundTrip(t *testing.T) {
	svc := newTestService()
	_, err := svc.Add(testSubmission())
	require.NoError(t, err)

	data, err := svc.ExportJSON()
	require.NoError(t, err)

	other := newTestService()
	require.NoError(t, other.Import(data))
	assert.Equal(t, svc.List(), other.List())
}

func TestImportMalformed(t *testing.T) {
	assert.Error(t, newTestService().Import("nope"))
}

func TestClear(t *testing.T) {
	svc := newTestService()
	_, err := svc.Add(testSubmission())
	require.NoError(t, err)
	svc.Clear()
	assert.Empty(t, svc.List())
}

func TestBusPublishesMutations(t *testing.T) {
	svc := newTestService()
	ch := svc.Bus().Subscribe()
	defer svc.Bus().Unsubscribe(ch)

	p, err := svc.Add(testSubmission())
	require.NoError(t, err)

	ev := <-ch
	assert.Equal(t, "created", ev.Action)
	assert.Equal(t, p.ID, ev.ID)
}
