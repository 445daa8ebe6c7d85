package analytics

import (
	"fmt"
	"sort"
	"time"
)

// SessionRecord is one flattened counter-session row. Field names mirror
// the upstream Notion property names so dashboard clients see the shapes
// they already consume.
type SessionRecord struct {
	User     *string    `json:"User"`
	Count    *float64   `json:"Count"`
	Duration *float64   `json:"Duration"`
	Begin    *time.Time `json:"Begin Timestamp"`
	End      *time.Time `json:"End Timestamp"`
}

// Options controls filtering, grouping, and aggregation of session rows.
type Options struct {
	ViewMode string // default | user | date | user_date | raw
	Agg      string // sum | mean | max | min
	Limit    int    // 0 means no limit
	Users    []string
	Start    *time.Time
	End      *time.Time
}

func flatten(pages []sessionPage) []SessionRecord {
	records := make([]SessionRecord, 0, len(pages))
	for _, page := range pages {
		if len(page.Properties) == 0 {
			continue
		}

		var rec SessionRecord
		if title := page.Properties["User"].Title; len(title) > 0 {
			user := title[0].PlainText
			rec.User = &user
		}
		rec.Count = page.Properties["Count"].Number
		rec.Duration = page.Properties["Duration"].Number
		rec.Begin = parseDate(page.Properties["Start Timestamp"].Date)
		rec.End = parseDate(page.Properties["End Timestamp"].Date)

		records = append(records, rec)
	}
	return records
}

func parseDate(d *dateValue) *time.Time {
	if d == nil || d.Start == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, d.Start)
	if err != nil {
		return nil
	}
	return &t
}

// Transform applies user/date filtering, view-mode grouping or sorting,
// aggregation, and the row limit. Unknown view modes and aggregations are
// reported as errors for the handler to turn into a 400.
func Transform(records []SessionRecord, opts Options) ([]SessionRecord, error) {
	out := filter(records, opts)

	switch opts.ViewMode {
	case "default", "":
		var err error
		out, err = groupByUser(out, opts.Agg)
		if err != nil {
			return nil, err
		}
	case "user", "user_date":
		sortRecords(out, byUserThenBegin)
	case "date":
		sortRecords(out, byBegin)
	case "raw":
		// Return all entries as-is.
	default:
		return nil, fmt.Errorf("invalid view_mode: %s", opts.ViewMode)
	}

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func filter(records []SessionRecord, opts Options) []SessionRecord {
	userSet := make(map[string]struct{}, len(opts.Users))
	for _, u := range opts.Users {
		userSet[u] = struct{}{}
	}

	out := make([]SessionRecord, 0, len(records))
	for _, r := range records {
		if len(userSet) > 0 {
			if r.User == nil {
				continue
			}
			if _, ok := userSet[*r.User]; !ok {
				continue
			}
		}
		if opts.Start != nil && (r.Begin == nil || r.Begin.Before(*opts.Start)) {
			continue
		}
		if opts.End != nil && (r.End == nil || r.End.After(*opts.End)) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func groupByUser(records []SessionRecord, agg string) ([]SessionRecord, error) {
	switch agg {
	case "sum", "mean", "max", "min", "":
	default:
		return nil, fmt.Errorf("invalid aggregation: %s", agg)
	}
	if agg == "" {
		agg = "sum"
	}

	type bucket struct {
		counts    []float64
		durations []float64
	}
	buckets := make(map[string]*bucket)
	var order []string
	for _, r := range records {
		if r.User == nil {
			continue
		}
		b, ok := buckets[*r.User]
		if !ok {
			b = &bucket{}
			buckets[*r.User] = b
			order = append(order, *r.User)
		}
		if r.Count != nil {
			b.counts = append(b.counts, *r.Count)
		}
		if r.Duration != nil {
			b.durations = append(b.durations, *r.Duration)
		}
	}
	sort.Strings(order)

	out := make([]SessionRecord, 0, len(order))
	for _, user := range order {
		u := user
		b := buckets[user]
		out = append(out, SessionRecord{
			User:     &u,
			Count:    aggregate(b.counts, agg),
			Duration: aggregate(b.durations, agg),
		})
	}
	return out, nil
}

func aggregate(vals []float64, agg string) *float64 {
	if len(vals) == 0 {
		return nil
	}
	var v float64
	switch agg {
	case "sum":
		for _, x := range vals {
			v += x
		}
	case "mean":
		for _, x := range vals {
			v += x
		}
		v /= float64(len(vals))
	case "max":
		v = vals[0]
		for _, x := range vals[1:] {
			if x > v {
				v = x
			}
		}
	case "min":
		v = vals[0]
		for _, x := range vals[1:] {
			if x < v {
				v = x
			}
		}
	}
	return &v
}

func byBegin(a, b SessionRecord) bool {
	return beginOf(a).Before(beginOf(b))
}

func byUserThenBegin(a, b SessionRecord) bool {
	ua, ub := userOf(a), userOf(b)
	if ua != ub {
		return ua < ub
	}
	return beginOf(a).Before(beginOf(b))
}

func sortRecords(records []SessionRecord, less func(a, b SessionRecord) bool) {
	sort.SliceStable(records, func(i, j int) bool { return less(records[i], records[j]) })
}

func userOf(r SessionRecord) string {
	if r.User == nil {
		return ""
	}
	return *r.User
}

func beginOf(r SessionRecord) time.Time {
	if r.Begin == nil {
		return time.Time{}
	}
	return *r.Begin
}
