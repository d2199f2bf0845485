package metrics

// RequestSecondsBuckets covers quick status checks up to multi-minute uploads.
var RequestSecondsBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 100}
