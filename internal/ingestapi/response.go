package ingestapi

// Summary is the per-request accounting block the API returns when the
// summary option is on
type Summary struct {
	Submitted int `json:"submitted"`
	Processed int `json:"processed"`
	Dropped   int `json:"dropped"`
}

// Response is a successful submission result. Summary is nil when the API
// omitted it; callers treat that as zero contribution to aggregate counts
type Response struct {
	Summary      *Summary `json:"summary,omitempty"`
	TransientIDs []string `json:"transient_ids,omitempty"`
}

// Add folds another response's summary into r's. Responses without a
// summary contribute nothing
func (r *Response) Add(other *Response) {
	if other == nil || other.Summary == nil {
		return
	}
	if r.Summary == nil {
		r.Summary = &Summary{}
	}
	r.Summary.Submitted += other.Summary.Submitted
	r.Summary.Processed += other.Summary.Processed
	r.Summary.Dropped += other.Summary.Dropped
}
