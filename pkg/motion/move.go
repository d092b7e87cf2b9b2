// Trapezoidal motion segments - port of the move handling in
// klippy/chelper/trapq.c
//
// Copyright (C) 2018-2019  Kevin O'Connor <kevin@koconnor.net>
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package motion implements the trapezoidal move queue that stepper
// kinematics sample positions from. A move is one constant-acceleration
// segment; the queue is a stable-index arena so that consumers may hold
// sequence numbers across appends and retirement.
package motion

// Coord is a position in the printer's cartesian space.
type Coord struct {
	X, Y, Z float64
}

// Move is a single constant-acceleration motion segment. Moves are
// immutable once queued; position queries treat them as read-only.
type Move struct {
	// PrintTime is the absolute start time of the move.
	PrintTime float64

	// MoveT is the duration of the move.
	MoveT float64

	// StartV is the velocity at the start of the move.
	StartV float64

	// HalfAccel is half the constant acceleration through the move,
	// so velocity(t) = StartV + 2*HalfAccel*t.
	HalfAccel float64

	// StartPos is the position at the start of the move.
	StartPos Coord

	// AxesR is the unit direction vector of the move.
	AxesR Coord

	// CanPressureAdvance reports whether this move participates in
	// pressure-advance smoothing. Pure extrude/retract moves are queued
	// with this false and contribute nothing to the smoothing integral.
	CanPressureAdvance bool
}

// Distance returns the distance traveled moveTime seconds into the move.
func (m *Move) Distance(moveTime float64) float64 {
	return (m.StartV + m.HalfAccel*moveTime) * moveTime
}

// Coord returns the position moveTime seconds into the move.
func (m *Move) Coord(moveTime float64) Coord {
	d := m.Distance(moveTime)
	return Coord{
		X: m.StartPos.X + m.AxesR.X*d,
		Y: m.StartPos.Y + m.AxesR.Y*d,
		Z: m.StartPos.Z + m.AxesR.Z*d,
	}
}

// EndTime returns the absolute time the move completes.
func (m *Move) EndTime() float64 {
	return m.PrintTime + m.MoveT
}
