package capture

import (
	"regexp"
	"strings"
)

// RecordFilter is the pure predicate applied to every fetched record before
// serialization. Filtering happens client-side; the provider is not assumed
// to filter server-side.
type RecordFilter struct {
	urlPattern       *regexp.Regexp
	method           string
	statusMin        int
	statusMax        int
	statusConfigured bool
}

// NewRecordFilter compiles the filter for one run. A malformed URL pattern or
// an inverted status range is a fatal configuration error.
func NewRecordFilter(req Request) (*RecordFilter, error) {
	filter := &RecordFilter{
		method:    strings.ToUpper(req.Method),
		statusMin: req.StatusMin,
		statusMax: req.StatusMax,
	}
	if req.URLPattern != "" {
		pattern, err := regexp.Compile(req.URLPattern)
		if err != nil {
			return nil, Fatalf("invalid URL filter pattern %q: %v", req.URLPattern, err)
		}
		filter.urlPattern = pattern
	}
	if req.StatusMin > req.StatusMax {
		return nil, Fatalf("inverted status range [%d,%d]", req.StatusMin, req.StatusMax)
	}
	filter.statusConfigured = req.StatusMin != DefaultStatusMin || req.StatusMax != DefaultStatusMax
	return filter, nil
}

// Keep reports whether the record survives the filter.
func (f *RecordFilter) Keep(record NetworkRecord) bool {
	if f.urlPattern != nil && !f.urlPattern.MatchString(record.Request.URL) {
		return false
	}
	if f.method != "" && !strings.EqualFold(f.method, record.Request.Method) {
		return false
	}

	if record.Response == nil || record.Response.Status == 0 {
		// Records without an observed status are dropped only when the run
		// asked for a specific status range.
		return !f.statusConfigured
	}
	status := record.Response.Status
	return status >= f.statusMin && status <= f.statusMax
}

// Apply returns the records that satisfy Keep, preserving order.
func (f *RecordFilter) Apply(records []NetworkRecord) []NetworkRecord {
	kept := make([]NetworkRecord, 0, len(records))
	for _, record := range records {
		if f.Keep(record) {
			kept = append(kept, record)
		}
	}
	return kept
}
