package entity_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bit-broker/examples/pkg/entity"
)

func yearPoints(from, to int) []entity.Point {
	var pts []entity.Point
	for y := from; y <= to; y++ {
		pts = append(pts, entity.Point{From: entity.YearStart(y), Value: float64(y)})
	}
	return pts
}

func TestWindow_Apply(t *testing.T) {
	pts := yearPoints(1960, 2017)

	tests := []struct {
		name   string
		window entity.Window
		want   []int
		count  int
	}{
		{name: "unbounded", window: entity.Window{}, count: 58},
		{name: "start inclusive", window: entity.Window{Start: entity.YearStart(2015)}, want: []int{2015, 2016, 2017}},
		{name: "end exclusive", window: entity.Window{End: entity.YearStart(1962)}, want: []int{1960, 1961}},
		{name: "zero width", window: entity.Window{Start: entity.YearStart(1990), End: entity.YearStart(1990)}, want: []int{}},
		{name: "inverted", window: entity.Window{Start: entity.YearStart(2000), End: entity.YearStart(1990)}, want: []int{}},
		{name: "limit keeps earliest", window: entity.Window{Start: entity.YearStart(2000), Limit: 2}, want: []int{2000, 2001}},
		{name: "limit larger than result", window: entity.Window{Start: entity.YearStart(2016), Limit: 10}, want: []int{2016, 2017}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.window.Apply(pts)
			require.NotNil(t, got)
			if tc.want == nil {
				assert.Len(t, got, tc.count)
				return
			}
			years := make([]int, len(got))
			for i, p := range got {
				years[i] = p.From.Year()
			}
			assert.Equal(t, tc.want, years)
		})
	}
}

func TestWindow_ApplySortsAndDoesNotMutate(t *testing.T) {
	pts := []entity.Point{
		{From: entity.YearStart(2002), Value: 2},
		{From: entity.YearStart(2000), Value: 0},
		{From: entity.YearStart(2001), Value: 1},
	}
	got := entity.Window{Limit: 2}.Apply(pts)
	require.Len(t, got, 2)
	assert.Equal(t, 2000, got[0].From.Year())
	assert.Equal(t, 2001, got[1].From.Year())
	assert.Equal(t, 2002, pts[0].From.Year())
}

func TestParseTime(t *testing.T) {
	ts, err := entity.ParseTime("2020-03-04T05:06:07Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 3, 4, 5, 6, 7, 0, time.UTC), ts)

	ts, err = entity.ParseTime("1999-12-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC), ts)

	ts, err = entity.ParseTime("1990")
	require.NoError(t, err)
	assert.Equal(t, entity.YearStart(1990), ts)

	ts, err = entity.ParseTime("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	_, err = entity.ParseTime("yesterday")
	assert.Error(t, err)
}

func TestRecord_JSONOmitsPrivate(t *testing.T) {
	rec := entity.Record{
		ID:      "GB",
		Name:    "United Kingdom",
		Private: map[string]any{"_wikidata": "Q145"},
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"GB","name":"United Kingdom","entity":{}}`, string(data))
}

func TestRecord_Clone(t *testing.T) {
	rec := &entity.Record{ID: "GB", Entity: map[string]any{"capital": "London"}}
	cp := rec.Clone()
	cp.Entity["flag"] = "uk.svg"

	_, ok := rec.Entity["flag"]
	assert.False(t, ok)
	assert.Equal(t, "London", cp.Entity["capital"])
}
