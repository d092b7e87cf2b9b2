// Extruder stepper host object - port of the pressure advance handling in
// klippy/kinematics/extruder.py
//
// Copyright (C) 2016-2021  Kevin O'Connor <kevin@koconnor.net>
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package extruder

import (
	"fmt"
	"sync"

	"klipper-stepgen/pkg/config"
	"klipper-stepgen/pkg/errors"
	"klipper-stepgen/pkg/kinematics"
	"klipper-stepgen/pkg/log"
	"klipper-stepgen/pkg/motion"
)

const (
	// Upper bound on pressure_advance_smooth_time (seconds)
	maxSmoothTime = 0.200

	defaultSmoothTime = 0.040
)

// ScanTimeFunc is notified when the stepper's smoothing half-window
// changes. Step generation code uses it to widen its move lookahead so
// the full smoothing window is always covered by retained moves.
type ScanTimeFunc func(newScanTime, oldScanTime float64)

// Stepper is an extruder stepper host object. It owns the pressure
// advance parameters, the underlying kinematics model and the link to
// the shared move queue.
type Stepper struct {
	mu sync.RWMutex

	name  string
	queue *motion.Queue
	kin   *kinematics.ExtruderStepper

	pressureAdvance float64
	smoothTime      float64

	onScanTime ScanTimeFunc
	logger     *log.Logger
}

// New creates a Stepper with default parameters (pressure advance
// disabled) attached to the given move queue.
func New(name string, queue *motion.Queue) *Stepper {
	return &Stepper{
		name:   name,
		queue:  queue,
		kin:    kinematics.NewExtruderStepper(),
		logger: log.New("extruder"),
	}
}

// NewFromConfig creates a Stepper from a config section. Recognized
// options are pressure_advance (default 0) and
// pressure_advance_smooth_time (default 0.040, maximum 0.200).
func NewFromConfig(sec *config.Section, queue *motion.Queue) (*Stepper, error) {
	pa, err := sec.GetFloatWithBounds("pressure_advance",
		config.FloatBounds{MinVal: config.Float(0.)}, 0.)
	if err != nil {
		return nil, err
	}
	smoothTime, err := sec.GetFloatWithBounds("pressure_advance_smooth_time",
		config.FloatBounds{MinVal: config.Float(0.), MaxVal: config.Float(maxSmoothTime)},
		defaultSmoothTime)
	if err != nil {
		return nil, err
	}

	s := New(sec.GetName(), queue)
	if err := s.SetPressureAdvance(pa, smoothTime); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadAll creates a Stepper for every section whose name starts with
// "extruder", all sharing one move queue.
func LoadAll(cfg *config.Config, queue *motion.Queue) ([]*Stepper, error) {
	var steppers []*Stepper
	for _, sec := range cfg.GetPrefixSections("extruder") {
		s, err := NewFromConfig(sec, queue)
		if err != nil {
			return nil, err
		}
		steppers = append(steppers, s)
	}
	return steppers, nil
}

// GetName returns the stepper name.
func (s *Stepper) GetName() string {
	return s.name
}

// Queue returns the move queue this stepper reads from.
func (s *Stepper) Queue() *motion.Queue {
	return s.queue
}

// Kinematics returns the underlying kinematics model.
func (s *Stepper) Kinematics() kinematics.StepperKinematics {
	return s.kin
}

// SetScanTimeCallback registers the scan time observer. It is invoked
// immediately with the current half-window so the caller starts in sync.
func (s *Stepper) SetScanTimeCallback(fn ScanTimeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onScanTime = fn
	if fn != nil {
		hst, _ := s.kin.ScanWindows()
		fn(hst, hst)
	}
}

// SetPressureAdvance validates and applies new pressure advance
// parameters. The scan time observer is notified before the kinematics
// model is reconfigured, so lookahead is widened before any query can
// reach beyond the old window.
func (s *Stepper) SetPressureAdvance(pressureAdvance, smoothTime float64) error {
	if pressureAdvance < 0. {
		return errors.ConfigValidationError(s.name, "pressure_advance",
			"must not be negative")
	}
	if smoothTime < 0. || smoothTime > maxSmoothTime {
		return errors.ConfigValidationError(s.name, "pressure_advance_smooth_time",
			fmt.Sprintf("must be between 0 and %g", maxSmoothTime))
	}
	// A smoothing window is meaningless without advance to smooth
	if pressureAdvance == 0. {
		smoothTime = 0.
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldHst, _ := s.kin.ScanWindows()
	newHst := 0.5 * smoothTime
	if s.onScanTime != nil {
		s.onScanTime(newHst, oldHst)
	}
	s.kin.SetPressureAdvance(pressureAdvance, smoothTime)
	s.pressureAdvance = pressureAdvance
	s.smoothTime = smoothTime

	s.logger.InfoFields("pressure advance reconfigured", log.Fields{
		"name":             s.name,
		"pressure_advance": pressureAdvance,
		"smooth_time":      smoothTime,
	})
	return nil
}

// PressureAdvance returns the current pressure advance parameters.
func (s *Stepper) PressureAdvance() (pressureAdvance, smoothTime float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pressureAdvance, s.smoothTime
}

// FindPastPosition returns the stepper position at a given print time.
// Query times clamp into the span where the smoothing window is fully
// covered by retained moves; when the history is shorter than the
// window, the nominal (unsmoothed) position is reported instead.
func (s *Stepper) FindPastPosition(printTime float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.queue.Len() == 0 {
		return s.queue.LastPosition().X
	}
	lo, hi, covered := kinematics.QueryableSpan(s.queue, s.kin)
	if !covered {
		lo = s.queue.At(s.queue.Head()).PrintTime
		hi = s.queue.At(s.queue.Tail() - 1).EndTime()
	}
	t := printTime
	if t < lo {
		t = lo
	}
	if t > hi {
		t = hi
	}
	seq, _ := s.queue.FindMove(t)
	m := s.queue.At(seq)
	if !covered {
		return m.StartPos.X + m.Distance(t-m.PrintTime)
	}
	return s.kin.CalcPosition(s.queue, seq, t-m.PrintTime)
}

// Status reports the stepper state in the form used by the report
// surfaces.
func (s *Stepper) Status() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hst, _ := s.kin.ScanWindows()
	return map[string]any{
		"name":             s.name,
		"pressure_advance": s.pressureAdvance,
		"smooth_time":      s.smoothTime,
		"half_smooth_time": hst,
	}
}
