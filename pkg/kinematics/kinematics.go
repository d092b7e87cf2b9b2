// Stepper kinematics - position functions sampled during step generation.
//
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package kinematics provides the per-stepper position functions the step
// generator samples when deciding pulse times. Each implementation maps a
// move and a time within that move to the physical position of one
// stepper.
package kinematics

import "klipper-stepgen/pkg/motion"

// AxisMask identifies which cartesian axes a position function tracks.
type AxisMask uint8

const (
	AxisX AxisMask = 1 << iota
	AxisY
	AxisZ
)

// scanSlack insets the queryable span so that rounding at an exact
// window edge cannot push the smoothing walk past the retained range.
const scanSlack = 1e-9

// QueryableSpan returns the range of print times at which k's position
// can be computed from q's retained moves with the full scan window
// covered. ok is false when the queue is empty or the retained history
// is shorter than the scan window; CalcPosition must not be called then.
func QueryableSpan(q *motion.Queue, k StepperKinematics) (start, end float64, ok bool) {
	if q.Len() == 0 {
		return 0, 0, false
	}
	pre, post := k.ScanWindows()
	start = q.At(q.Head()).PrintTime
	end = q.At(q.Tail() - 1).EndTime()
	if pre > 0. {
		start += pre + scanSlack
	}
	if post > 0. {
		end -= post + scanSlack
	}
	return start, end, start <= end
}

// StepperKinematics computes the position of one stepper at a given time
// within a queued move. Implementations must be pure: CalcPosition may be
// called repeatedly, out of order, and concurrently with itself, and must
// not mutate the queue or allocate.
type StepperKinematics interface {
	// CalcPosition returns the stepper position moveTime seconds into
	// the move with sequence number seq.
	CalcPosition(q *motion.Queue, seq int64, moveTime float64) float64

	// ScanWindows reports how much move history and lookahead (in
	// seconds) CalcPosition may reference around a queried time. The
	// queue owner must retain at least this margin of moves before and
	// after any move it queries.
	ScanWindows() (preActive, postActive float64)

	// ActiveAxes reports which axes this position function responds to.
	ActiveAxes() AxisMask
}
