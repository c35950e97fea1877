package timeline

import (
	"math"
	"time"
)

// Scale maps epoch milliseconds linearly onto pixels.
type Scale struct {
	D0, D1 float64 // domain, ms
	R0, R1 float64 // range, px
}

// NewScale maps [min, max] onto [0, width].
func NewScale(min, max time.Time, width float64) Scale {
	return Scale{D0: ms(min), D1: ms(max), R0: 0, R1: width}
}

// At returns the pixel for t (ms).
func (s Scale) At(t float64) float64 {
	if s.D1 == s.D0 {
		return (s.R0 + s.R1) / 2
	}
	return s.R0 + (t-s.D0)*(s.R1-s.R0)/(s.D1-s.D0)
}

// Invert returns the time (ms) at pixel px.
func (s Scale) Invert(px float64) float64 {
	if s.R1 == s.R0 {
		return (s.D0 + s.D1) / 2
	}
	return s.D0 + (px-s.R0)*(s.D1-s.D0)/(s.R1-s.R0)
}

// Transform is a horizontal zoom transform: x' = x*K + X.
type Transform struct {
	X float64
	K float64
}

// Identity is the untransformed state.
var Identity = Transform{K: 1}

// ApplyX transforms a pixel.
func (t Transform) ApplyX(x float64) float64 { return x*t.K + t.X }

// InvertX undoes ApplyX.
func (t Transform) InvertX(x float64) float64 { return (x - t.X) / t.K }

// Translate moves by dx in untransformed units.
func (t Transform) Translate(dx float64) Transform {
	return Transform{X: t.X + t.K*dx, K: t.K}
}

// Valid reports whether the transform can be applied.
func (t Transform) Valid() bool {
	return t.K > 0 && !math.IsInf(t.K, 0) && !math.IsNaN(t.X) && !math.IsInf(t.X, 0)
}

// view is a base scale seen through a transform.
type view struct {
	base Scale
	t    Transform
}

func (v view) at(t float64) float64     { return v.t.ApplyX(v.base.At(t)) }
func (v view) invert(px float64) float64 { return v.base.Invert(v.t.InvertX(px)) }

// extent bounds zoom gestures.
type extent struct {
	minK, maxK float64
	width      float64
	limitless  bool
}

func (e extent) clampK(k float64) float64 {
	if e.limitless {
		return k
	}
	return math.Max(e.minK, math.Min(e.maxK, k))
}

// constrain keeps the transformed range covering [0, width].
func (e extent) constrain(t Transform) Transform {
	if e.limitless {
		return t
	}
	dx0 := t.InvertX(0) - 0
	dx1 := t.InvertX(e.width) - e.width
	var dx float64
	if dx1 > dx0 {
		dx = (dx0 + dx1) / 2
	} else {
		dx = math.Min(0, dx0)
		if dx == 0 {
			dx = math.Max(0, dx1)
		}
	}
	return t.Translate(dx)
}

// scaleAt zooms to k keeping pixel p fixed.
func (e extent) scaleAt(t Transform, k, p float64) Transform {
	anchor := t.InvertX(p)
	k = e.clampK(k)
	return e.constrain(Transform{X: p - anchor*k, K: k})
}

func ms(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func fromMS(v float64, loc *time.Location) time.Time {
	return time.UnixMilli(int64(math.Trunc(v))).In(loc)
}
