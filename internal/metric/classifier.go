// Package metric classifies metric keys by their rollup semantics.
//
// The table is an explicit allow-list. A key absent from it is UNKNOWN and
// is excluded from rollups entirely: silently summing or averaging a metric
// nobody classified would fabricate meaningless aggregates. Adding a new
// metric to the platform therefore requires an explicit entry here.
package metric

// Aggregation is how a metric combines across a time window.
type Aggregation string

const (
	AggregationSum     Aggregation = "SUM"
	AggregationAverage Aggregation = "AVERAGE"
	AggregationUnknown Aggregation = "UNKNOWN"
)

var classifications = map[string]Aggregation{
	// Volume metrics: summed across the window.
	"views":        AggregationSum,
	"impressions":  AggregationSum,
	"reach":        AggregationSum,
	"clicks":       AggregationSum,
	"likes":        AggregationSum,
	"comments":     AggregationSum,
	"shares":       AggregationSum,
	"saves":        AggregationSum,
	"videoViews":   AggregationSum,
	"sessions":     AggregationSum,
	"pageViews":    AggregationSum,
	"orders":       AggregationSum,
	"unitsSold":    AggregationSum,
	"revenue":      AggregationSum,
	"refunds":      AggregationSum,
	"adSpend":      AggregationSum,
	"newFollowers": AggregationSum,
	"messages":     AggregationSum,

	// Rate and point-in-time metrics: averaged over contributing records.
	"bounceRate":             AggregationAverage,
	"engagementRate":         AggregationAverage,
	"clickThroughRate":       AggregationAverage,
	"conversionRate":         AggregationAverage,
	"costPerClick":           AggregationAverage,
	"averageOrderValue":      AggregationAverage,
	"averageSessionDuration": AggregationAverage,
	"followerCount":          AggregationAverage,
}

// Classify returns the rollup semantics for a metric key.
func Classify(name string) Aggregation {
	if agg, ok := classifications[name]; ok {
		return agg
	}
	return AggregationUnknown
}

// Known reports whether the key participates in rollups.
func Known(name string) bool {
	_, ok := classifications[name]
	return ok
}
