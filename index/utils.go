package index

import (
	"bytes"
	"sort"

	"github.com/emberdb/ember/distance"
	"github.com/emberdb/ember/model"
)

// SortResults orders results by score per the metric's convention
// (ascending for L2, descending for Cosine/DotProduct) with ties broken by
// ascending doc id so repeated searches are stable.
func SortResults(results []model.SearchResult, metric distance.Metric) {
	asc := metric.Ascending()
	sort.Slice(results, func(i, j int) bool {
		si, sj := results[i].Score, results[j].Score
		if si != sj {
			if asc {
				return si < sj
			}
			return si > sj
		}
		return bytes.Compare(results[i].DocID[:], results[j].DocID[:]) < 0
	})
}
