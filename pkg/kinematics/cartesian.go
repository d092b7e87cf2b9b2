// Cartesian stepper position function - port of
// klippy/chelper/kin_cartesian.c
//
// Copyright (C) 2018-2019  Kevin O'Connor <kevin@koconnor.net>
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package kinematics

import (
	"fmt"

	"klipper-stepgen/pkg/motion"
)

// CartesianStepper is the position function for a stepper driving a
// single cartesian axis directly.
type CartesianStepper struct {
	axis int
}

// NewCartesianStepper returns a position function for axis 'x', 'y' or 'z'.
func NewCartesianStepper(axis byte) (*CartesianStepper, error) {
	switch axis {
	case 'x':
		return &CartesianStepper{axis: 0}, nil
	case 'y':
		return &CartesianStepper{axis: 1}, nil
	case 'z':
		return &CartesianStepper{axis: 2}, nil
	}
	return nil, fmt.Errorf("kinematics: invalid cartesian axis %q", axis)
}

// CalcPosition returns the axis coordinate moveTime seconds into the move.
func (cs *CartesianStepper) CalcPosition(q *motion.Queue, seq int64, moveTime float64) float64 {
	m := q.At(seq)
	c := m.Coord(moveTime)
	switch cs.axis {
	case 0:
		return c.X
	case 1:
		return c.Y
	default:
		return c.Z
	}
}

// ScanWindows reports no extra look-around: a cartesian stepper only
// reads the move it is queried on.
func (cs *CartesianStepper) ScanWindows() (preActive, postActive float64) {
	return 0, 0
}

// ActiveAxes reports the single axis this stepper drives.
func (cs *CartesianStepper) ActiveAxes() AxisMask {
	return AxisMask(1) << cs.axis
}
