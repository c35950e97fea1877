package timeline

import (
	"time"

	"github.com/joeblew999/chronomaps/internal/content"
)

// clusterer groups items whose projected positions are closer than twice
// the point radius.
type clusterer struct {
	base      Scale
	view      view
	width     float64
	radius    float64
	fallbackK float64
	loc       *time.Location
	// jitter offsets every cluster member except the last, keyed by its
	// position in the run, so stacked icons stay visible.
	jitter func(pos int) (cx, cy float64)
}

// run places items (sorted by time) and assigns cluster fields in place.
func (c clusterer) run(items []*content.TimelineItem) {
	for _, it := range items {
		it.X = c.view.at(ms(it.Time))
		it.CX, it.CY = 0, 0
	}

	var pending []*content.TimelineItem
	var lastX float64
	for i, it := range items {
		if i > 0 && !(it.X-lastX < c.radius*2) {
			c.drop(pending)
			pending = pending[:0]
		}
		pending = append(pending, it)
		lastX = it.X
	}
	c.drop(pending)
}

func (c clusterer) drop(run []*content.TimelineItem) {
	if len(run) == 0 {
		return
	}
	var sum float64
	for _, it := range run {
		sum += it.X
	}
	center := sum / float64(len(run))

	first, last := ms(run[0].Time), ms(run[len(run)-1].Time)
	diff := c.base.At(last) - c.base.At(first)
	k := c.fallbackK
	if diff > 0 {
		k = c.width / 2 / diff
		if k < 1 {
			k = 1
		}
	}
	centerTS := fromMS((first+last)/2, c.loc)

	indexes := make([]int, len(run))
	for i, it := range run {
		indexes[i] = it.Index
	}
	for pos, it := range run {
		it.X = center
		it.CenterTimestamp = centerTS
		it.K = k
		it.Clustered = len(run)
		it.Indexes = indexes
		if pos != len(run)-1 && c.jitter != nil {
			it.CX, it.CY = c.jitter(pos)
		}
	}
}
