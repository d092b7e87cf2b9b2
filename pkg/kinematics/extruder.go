// Extruder stepper position function - port of
// klippy/chelper/kin_extruder.c
//
// Copyright (C) 2018-2019  Kevin O'Connor <kevin@koconnor.net>
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package kinematics

import "klipper-stepgen/pkg/motion"

// Without pressure advance, the extruder stepper position is:
//     extruder_position(t) = nominal_position(t)
// When pressure advance is enabled, additional filament is pushed into
// the extruder during acceleration (and retracted during deceleration).
// The formula for additional filament length is:
//     pa(t) = pressure_advance * nominal_velocity(t)
// Which is then "smoothed" using a weighted average:
//     smooth_position(t) = nominal_position(t) + (
//         definitive_integral(pa(x) * (smooth_time/2 - abs(t-x)) * dx,
//                             from=t-smooth_time/2, to=t+smooth_time/2)
//         / ((smooth_time/2)**2))

// integrate computes the definite integral of (base + t*slope) on
// [start, end] via the exact antiderivative t*(base + t*slope/2).
func integrate(base, slope, start, end float64) float64 {
	halfSlope := .5 * slope
	si := start * (base + start*halfSlope)
	ei := end * (base + end*halfSlope)
	return ei - si
}

// integrateTimeWeighted computes the definite integral of
// t*(base + t*slope) on [start, end] via t^2*(base/2 + t*slope/3).
func integrateTimeWeighted(base, slope, start, end float64) float64 {
	halfBase, thirdSlope := .5*base, (1./3.)*slope
	si := start * start * (halfBase + start*thirdSlope)
	ei := end * end * (halfBase + end*thirdSlope)
	return ei - si
}

// paMoveIntegrate computes one move's contribution to the smoothing
// integral, clipped to the move's own span and weighted against
// timeOffset. Moves not marked for pressure advance contribute nothing.
func paMoveIntegrate(m *motion.Move, pressureAdvance,
	start, end, timeOffset float64) float64 {
	if start < 0. {
		start = 0.
	}
	if end > m.MoveT {
		end = m.MoveT
	}
	if !m.CanPressureAdvance {
		pressureAdvance = 0.
	}
	// Pressure advance offset as a linear function of time within the move
	base := pressureAdvance * m.StartV
	slope := pressureAdvance * 2. * m.HalfAccel
	area := integrate(base, slope, start, end)
	weighted := integrateTimeWeighted(base, slope, start, end)
	return weighted - timeOffset*area
}

// paRangeIntegrate convolves the pressure advance offset with a
// triangular kernel of half-width hst centered on moveTime, walking into
// neighbouring moves as far as the window reaches. The two kernel halves
// decompose into linear-weight integrals against the window edges.
func paRangeIntegrate(q *motion.Queue, seq int64,
	moveTime, pressureAdvance, hst float64) float64 {
	m := q.At(seq)
	start, end := moveTime-hst, moveTime+hst
	res := paMoveIntegrate(m, pressureAdvance, start, moveTime, start)
	res -= paMoveIntegrate(m, pressureAdvance, moveTime, end, end)
	// Integrate over previous moves
	prevSeq := seq
	for start < 0. {
		prevSeq--
		prev := q.At(prevSeq)
		start += prev.MoveT
		res += paMoveIntegrate(prev, pressureAdvance, start, prev.MoveT, start)
	}
	// Integrate over future moves
	for end > m.MoveT {
		end -= m.MoveT
		seq++
		m = q.At(seq)
		res -= paMoveIntegrate(m, pressureAdvance, 0., end, end)
	}
	return res
}

// ExtruderStepper is the position function for a filament drive stepper,
// optionally applying pressure advance smoothing. The zero configuration
// (smooth time 0) disables smoothing entirely.
type ExtruderStepper struct {
	pressureAdvance    float64
	halfSmoothTime     float64
	invHalfSmoothTime2 float64
}

// NewExtruderStepper returns an extruder position function with pressure
// advance disabled.
func NewExtruderStepper() *ExtruderStepper {
	return &ExtruderStepper{}
}

// SetPressureAdvance reconfigures the pressure advance coefficient (in
// seconds of advance per unit of velocity) and the smoothing window
// duration. A smoothTime of zero disables smoothing; the remaining
// coefficients are left untouched so no division by zero can occur.
// Callers must requery ScanWindows after reconfiguring.
func (es *ExtruderStepper) SetPressureAdvance(pressureAdvance, smoothTime float64) {
	hst := .5 * smoothTime
	es.halfSmoothTime = hst
	if hst == 0. {
		return
	}
	es.invHalfSmoothTime2 = 1. / (hst * hst)
	es.pressureAdvance = pressureAdvance
}

// CalcPosition returns the extruder position moveTime seconds into the
// given move. With smoothing enabled the result is the nominal position
// plus the normalized triangular-kernel average of the pressure advance
// offset across the smoothing window.
func (es *ExtruderStepper) CalcPosition(q *motion.Queue, seq int64, moveTime float64) float64 {
	m := q.At(seq)
	base := m.StartPos.X + m.Distance(moveTime)
	hst := es.halfSmoothTime
	if hst == 0. {
		// Pressure advance not enabled
		return base
	}
	area := paRangeIntegrate(q, seq, moveTime, es.pressureAdvance, hst)
	return base + area*es.invHalfSmoothTime2
}

// ScanWindows reports the smoothing half-window as both the history and
// lookahead margin required around any queried time.
func (es *ExtruderStepper) ScanWindows() (preActive, postActive float64) {
	return es.halfSmoothTime, es.halfSmoothTime
}

// ActiveAxes reports the axis carrying the extruder position.
func (es *ExtruderStepper) ActiveAxes() AxisMask {
	return AxisX
}
