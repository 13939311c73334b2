// Package segmentation turns the per-pixel class scores of a segmentation model into a class map.
package segmentation

import (
	"fmt"

	"go.viam.com/livevision/ml"
)

// ClassMap is an immutable height x width grid of class indices. It shares no memory with the
// tensor it was decoded from.
type ClassMap struct {
	width, height int
	classes       []int32
	labels        ml.LabelTable
}

func newClassMap(width, height int, labels ml.LabelTable) *ClassMap {
	return &ClassMap{
		width:   width,
		height:  height,
		classes: make([]int32, width*height),
		labels:  append(ml.LabelTable(nil), labels...),
	}
}

// Width is the number of columns.
func (cm *ClassMap) Width() int { return cm.width }

// Height is the number of rows.
func (cm *ClassMap) Height() int { return cm.height }

// NumClasses is the number of labels the map was decoded with.
func (cm *ClassMap) NumClasses() int { return len(cm.labels) }

// At returns the class index at column x, row y. It panics if the point is outside the map.
func (cm *ClassMap) At(x, y int) int {
	if x < 0 || x >= cm.width || y < 0 || y >= cm.height {
		panic(fmt.Sprintf("segmentation: point (%d, %d) outside %dx%d class map", x, y, cm.width, cm.height))
	}
	return int(cm.classes[y*cm.width+x])
}

// Label returns the class name at column x, row y.
func (cm *ClassMap) Label(x, y int) string {
	return cm.labels.Label(cm.At(x, y))
}

// Labels returns a copy of the label table.
func (cm *ClassMap) Labels() ml.LabelTable {
	return append(ml.LabelTable(nil), cm.labels...)
}

// Rows returns a copy of the grid as rows of class indices.
func (cm *ClassMap) Rows() [][]int {
	rows := make([][]int, cm.height)
	for y := range rows {
		row := make([]int, cm.width)
		for x := range row {
			row[x] = int(cm.classes[y*cm.width+x])
		}
		rows[y] = row
	}
	return rows
}

// Counts returns the number of pixels assigned to each class, indexed by class.
func (cm *ClassMap) Counts() []int {
	counts := make([]int, len(cm.labels))
	for _, c := range cm.classes {
		counts[c]++
	}
	return counts
}

// Coverage returns the fraction of the frame covered by each class, keyed by label.
func (cm *ClassMap) Coverage() map[string]float64 {
	total := float64(len(cm.classes))
	out := make(map[string]float64, len(cm.labels))
	for i, n := range cm.Counts() {
		out[cm.labels.Label(i)] = float64(n) / total
	}
	return out
}

// Dominant returns the class covering the most pixels, the lowest index on ties.
func (cm *ClassMap) Dominant() int {
	counts := cm.Counts()
	best := 0
	for i, n := range counts {
		if n > counts[best] {
			best = i
		}
	}
	return best
}
