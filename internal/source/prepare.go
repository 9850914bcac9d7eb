package source

import (
	"log/slog"

	"github.com/bit-broker/examples/pkg/entity"
)

// Options shape a loaded dataset before it is synced and served.
type Options struct {
	Filter Filter
	// RefProp and RefCID drive bbk:// reference rewriting.
	RefProp string
	RefCID  string
	// Series lists private fields holding embedded timeseries.
	Series []SeriesField
}

// Prepare applies the filter, reference rewriting and timeseries extraction
// to ds and returns the result. Extracted series fields are removed from the
// records' private data. ds itself is left untouched.
func Prepare(ds *entity.Dataset, opts Options, logger *slog.Logger) *entity.Dataset {
	if logger == nil {
		logger = slog.Default()
	}
	out := &entity.Dataset{Series: entity.Series{}}
	if ds == nil {
		return out
	}
	for id, byName := range ds.Series {
		for name, points := range byName {
			out.Series.Add(id, name, points...)
		}
	}

	rewritten, dropped := 0, 0
	for i := range ds.Records {
		rec := ds.Records[i].Clone()
		if !opts.Filter.Match(rec) {
			dropped++
			continue
		}
		if RewriteRef(rec, opts.RefProp, opts.RefCID) {
			rewritten++
		}
		for _, sf := range opts.Series {
			raw, ok := rec.Private[sf.Field]
			if !ok {
				continue
			}
			delete(rec.Private, sf.Field)
			points, err := ExtractPoints(raw)
			if err != nil {
				logger.Warn("skipping embedded timeseries", "id", rec.ID, "series", sf.ID, "error", err)
				continue
			}
			out.Series.Add(rec.ID, sf.ID, points...)
		}
		out.Records = append(out.Records, *rec)
	}

	logger.Info("dataset prepared", "records", len(out.Records), "filtered", dropped,
		"filter", opts.Filter.String(), "refs_rewritten", rewritten)
	return out
}
