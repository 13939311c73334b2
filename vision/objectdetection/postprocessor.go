package objectdetection

import (
	"sort"
)

// Postprocessor defines a function that filters/modifies on an incoming array of Detections.
type Postprocessor func([]Detection) []Detection

// Apply runs the postprocessors in order.
func Apply(in []Detection, pps ...Postprocessor) []Detection {
	for _, pp := range pps {
		in = pp(in)
	}
	return in
}

// NewAreaFilter returns a function that filters out detections below a certain area.
func NewAreaFilter(area float64) Postprocessor {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Box.Area() >= area {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewScoreFilter returns a function that filters out detections below a certain confidence.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Confidence >= conf {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewLabelFilter returns a function that keeps only detections with one of the given labels.
func NewLabelFilter(labels ...string) Postprocessor {
	keep := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		keep[l] = struct{}{}
	}
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if _, ok := keep[d.Label]; ok {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewNMS returns a class aware non-maximum suppression. Detections are visited from most to
// least confident and a detection is dropped when it overlaps a kept detection of the same class
// by more than iou. The result is ordered by descending confidence.
func NewNMS(iou float64) Postprocessor {
	return func(in []Detection) []Detection {
		sorted := append([]Detection(nil), in...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Confidence > sorted[j].Confidence
		})
		out := make([]Detection, 0, len(sorted))
		for _, d := range sorted {
			suppressed := false
			for _, k := range out {
				if k.ClassID == d.ClassID && k.Box.IoU(d.Box) > iou {
					suppressed = true
					break
				}
			}
			if !suppressed {
				out = append(out, d)
			}
		}
		return out
	}
}
