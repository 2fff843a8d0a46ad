package model

// DeliveryResult is the outcome of sending one message to one recipient.
type DeliveryResult struct {
	Recipient     string `json:"recipient"`
	Success       bool   `json:"success"`
	TrackingToken string `json:"trackingToken,omitempty"`
	Error         string `json:"error,omitempty"`
}

// DispatchReport aggregates the results of one dispatch, one entry per recipient.
type DispatchReport struct {
	AnyFailure bool             `json:"-"`
	Results    []DeliveryResult `json:"results"`
}

// OK is the inverse of AnyFailure; it is what webhook callers see.
func (r DispatchReport) OK() bool { return !r.AnyFailure }

// Failed counts unsuccessful results.
func (r DispatchReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Success {
			n++
		}
	}
	return n
}
