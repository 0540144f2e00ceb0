package timing

// TimelineMap converts narration-relative times into the compressed timeline
// produced by cross-fade compositing. Every cross-fade of duration d overlaps
// d seconds of the outgoing and incoming segments, so everything after that
// boundary plays d seconds earlier in the final video than in the narration
// audio.
type TimelineMap struct {
	boundaries []float64
	fades      []float64
	offsets    []float64
	total      float64
}

// NewTimelineMap builds a map from scene windows and the fade duration
// entering each scene (fades[0] is ignored; a cut is a zero duration). A nil
// or all-zero fade list yields the identity mapping.
func NewTimelineMap(windows []Window, fades []float64) *TimelineMap {
	m := &TimelineMap{}
	var cumulative float64
	for i := 1; i < len(windows); i++ {
		var d float64
		if i < len(fades) && fades[i] > 0 {
			d = fades[i]
		}
		if d <= 0 {
			continue
		}
		cumulative += d
		m.boundaries = append(m.boundaries, windows[i].Start)
		m.fades = append(m.fades, d)
		m.offsets = append(m.offsets, cumulative)
	}
	m.total = cumulative
	return m
}

// Map returns the compressed-timeline position of a narration-relative time.
// Inside a fade overlap the offset ramps linearly from the previous value to
// the full value, so cues starting mid-fade land at the fade point instead of
// up to a full fade duration late.
func (m *TimelineMap) Map(t float64) float64 {
	if m == nil {
		return t
	}
	offset := 0.0
	for i, boundary := range m.boundaries {
		if t >= boundary {
			offset = m.offsets[i]
			continue
		}
		if lead := boundary - t; lead < m.fades[i] {
			offset = m.offsets[i] - lead
		}
		break
	}
	mapped := t - offset
	if mapped < 0 {
		return 0
	}
	return roundMS(mapped)
}

// FadeTotal reports the accumulated cross-fade overlap in seconds.
func (m *TimelineMap) FadeTotal() float64 {
	if m == nil {
		return 0
	}
	return m.total
}

// Identity reports whether the map leaves all times unchanged.
func (m *TimelineMap) Identity() bool {
	return m == nil || len(m.boundaries) == 0
}
