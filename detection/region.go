// Package detection holds the overlay-facing side of the pipeline: display regions, the set of
// categories seen during a capture session, and the user's visibility filter over them.
package detection

// Region is a detection mapped to overlay coordinates. Geometry is in percent of the video
// viewport, with the origin at the top-left corner.
type Region struct {
	ID         string  `json:"id"`
	LeftPct    float64 `json:"left_pct"`
	TopPct     float64 `json:"top_pct"`
	WidthPct   float64 `json:"width_pct"`
	HeightPct  float64 `json:"height_pct"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}
