// Motion sampling - port of the queue dump in klippy/extras/motion_report.py
//
// Copyright (C) 2020-2021  Kevin O'Connor <kevin@koconnor.net>
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package motionreport

import (
	"klipper-stepgen/pkg/errors"
	"klipper-stepgen/pkg/kinematics"
	"klipper-stepgen/pkg/motion"
)

// Sample is one sampled point of stepper motion. Nominal is the
// unsmoothed commanded position, Position the kinematic position the
// stepper actually tracks.
type Sample struct {
	Time     float64 `json:"time"`
	Position float64 `json:"position"`
	Nominal  float64 `json:"nominal"`
}

// Sampler produces motion samples for one stepper.
type Sampler interface {
	// Sample returns positions over [start, end] at the given interval.
	Sample(start, end, interval float64) ([]Sample, error)

	// Status reports the sampler state.
	Status() map[string]any
}

// QueueSampler samples a stepper kinematics model against a move queue.
type QueueSampler struct {
	name   string
	queue  *motion.Queue
	kin    kinematics.StepperKinematics
	status func() map[string]any
}

// NewQueueSampler creates a sampler. status may be nil.
func NewQueueSampler(name string, queue *motion.Queue,
	kin kinematics.StepperKinematics, status func() map[string]any) *QueueSampler {
	return &QueueSampler{name: name, queue: queue, kin: kin, status: status}
}

// Name returns the sampler name.
func (qs *QueueSampler) Name() string {
	return qs.name
}

// Sample implements Sampler. Sample times clamp into the span where the
// kinematics' scan window is fully covered by retained moves, matching
// past-position queries; when the history is shorter than the window,
// Position falls back to the nominal value.
func (qs *QueueSampler) Sample(start, end, interval float64) ([]Sample, error) {
	if interval <= 0. {
		return nil, errors.RuntimeError("sample interval must be positive")
	}
	if end < start {
		return nil, errors.RuntimeError("sample end before start")
	}
	if qs.queue.Len() == 0 {
		return nil, errors.QueueError("sample", "no moves retained")
	}

	lo, hi, covered := kinematics.QueryableSpan(qs.queue, qs.kin)
	if !covered {
		lo = qs.queue.At(qs.queue.Head()).PrintTime
		hi = qs.queue.At(qs.queue.Tail() - 1).EndTime()
	}

	var samples []Sample
	for t := start; t <= end+1e-12; t += interval {
		samples = append(samples, qs.at(t, lo, hi, covered))
	}
	return samples, nil
}

func (qs *QueueSampler) at(printTime, lo, hi float64, covered bool) Sample {
	if printTime < lo {
		printTime = lo
	}
	if printTime > hi {
		printTime = hi
	}
	seq, _ := qs.queue.FindMove(printTime)
	m := qs.queue.At(seq)
	t := printTime - m.PrintTime

	nominal := qs.nominal(m, t)
	position := nominal
	if covered {
		position = qs.kin.CalcPosition(qs.queue, seq, t)
	}
	return Sample{
		Time:     m.PrintTime + t,
		Position: position,
		Nominal:  nominal,
	}
}

// nominal projects the move coordinate onto the kinematics' active axis.
func (qs *QueueSampler) nominal(m *motion.Move, t float64) float64 {
	c := m.Coord(t)
	switch {
	case qs.kin.ActiveAxes()&kinematics.AxisX != 0:
		return c.X
	case qs.kin.ActiveAxes()&kinematics.AxisY != 0:
		return c.Y
	default:
		return c.Z
	}
}

// Status implements Sampler.
func (qs *QueueSampler) Status() map[string]any {
	st := map[string]any{
		"name":           qs.name,
		"retained_moves": qs.queue.Len(),
	}
	if qs.queue.Len() > 0 {
		first := qs.queue.At(qs.queue.Head())
		last := qs.queue.At(qs.queue.Tail() - 1)
		st["history_start"] = first.PrintTime
		st["history_end"] = last.EndTime()
	}
	if qs.status != nil {
		for k, v := range qs.status() {
			st[k] = v
		}
	}
	return st
}
