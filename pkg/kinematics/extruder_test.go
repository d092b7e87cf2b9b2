package kinematics

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"klipper-stepgen/pkg/motion"
)

// simpson computes a composite Simpson approximation of f on [a, b].
// The integrands in these tests are piecewise polynomials of degree <= 3,
// which Simpson's rule integrates exactly (up to rounding), so it serves
// as an independent reference for the closed-form antiderivatives.
func simpson(f func(float64) float64, a, b float64, n int) float64 {
	if n%2 != 0 {
		n++
	}
	h := (b - a) / float64(n)
	sum := f(a) + f(b)
	for i := 1; i < n; i++ {
		x := a + float64(i)*h
		if i%2 == 1 {
			sum += 4 * f(x)
		} else {
			sum += 2 * f(x)
		}
	}
	return sum * h / 3
}

// singleMoveQueue builds a queue holding one constant-acceleration move
// starting at time 0 and position 0.
func singleMoveQueue(startV, halfAccel, duration float64, canPA bool) *motion.Queue {
	q := motion.NewQueue()
	q.Append(0., duration, 0., 0.,
		motion.Coord{}, motion.Coord{X: 1.}, startV, 0., 2.*halfAccel, canPA)
	return q
}

// refSmoothedArea numerically convolves the pressure advance offset with
// the triangular kernel of half-width hst centered on global time t. The
// window is split at move boundaries and at the kernel peak so that each
// piece is a single polynomial.
func refSmoothedArea(q *motion.Queue, t, pa, hst float64) float64 {
	pts := []float64{t - hst, t, t + hst}
	for seq := q.Head(); seq < q.Tail(); seq++ {
		m := q.At(seq)
		for _, b := range []float64{m.PrintTime, m.EndTime()} {
			if b > t-hst && b < t+hst {
				pts = append(pts, b)
			}
		}
	}
	sort.Float64s(pts)

	total := 0.
	for i := 0; i+1 < len(pts); i++ {
		a, b := pts[i], pts[i+1]
		if b-a < 1e-15 {
			continue
		}
		seq, ok := q.FindMove(.5 * (a + b))
		if !ok {
			continue
		}
		m := q.At(seq)
		if !m.CanPressureAdvance {
			continue
		}
		f := func(x float64) float64 {
			tau := x - m.PrintTime
			v := m.StartV + 2.*m.HalfAccel*tau
			return pa * v * (hst - math.Abs(x-t))
		}
		total += simpson(f, a, b, 64)
	}
	return total
}

func TestIntegrateMatchesQuadrature(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		base := rng.Float64()*20 - 10
		slope := rng.Float64()*20 - 10
		a := rng.Float64()*4 - 2
		b := a + rng.Float64()*2
		f := func(x float64) float64 { return base + x*slope }

		got := integrate(base, slope, a, b)
		want := simpson(f, a, b, 256)
		if diff := math.Abs(got - want); diff > 1e-9*(1+math.Abs(want)) {
			t.Errorf("integrate(%g, %g, %g, %g) = %g, quadrature %g",
				base, slope, a, b, got, want)
		}

		got = integrateTimeWeighted(base, slope, a, b)
		want = simpson(func(x float64) float64 { return x * f(x) }, a, b, 256)
		if diff := math.Abs(got - want); diff > 1e-9*(1+math.Abs(want)) {
			t.Errorf("integrateTimeWeighted(%g, %g, %g, %g) = %g, quadrature %g",
				base, slope, a, b, got, want)
		}
	}
}

func TestIntegrateDegenerateCases(t *testing.T) {
	// Zero slope degenerates to integrating a constant
	if got := integrate(3., 0., 1., 2.); got != 3. {
		t.Errorf("integrate of constant 3 over unit interval = %g, want 3", got)
	}
	// Empty interval integrates to zero
	if got := integrate(5., 7., 1.5, 1.5); got != 0. {
		t.Errorf("integrate over empty interval = %g, want 0", got)
	}
	if got := integrateTimeWeighted(5., 7., 1.5, 1.5); got != 0. {
		t.Errorf("integrateTimeWeighted over empty interval = %g, want 0", got)
	}
}

func TestDisabledModeIdentity(t *testing.T) {
	q := singleMoveQueue(5., 100., .5, true)
	es := NewExtruderStepper()

	m := q.At(q.Head())
	for i := 0; i <= 50; i++ {
		mt := float64(i) * .01
		got := es.CalcPosition(q, q.Head(), mt)
		want := m.StartPos.X + m.Distance(mt)
		if got != want {
			t.Fatalf("disabled CalcPosition(%g) = %g, want nominal %g", mt, got, want)
		}
	}
}

func TestNonEligibleMoveContributesNothing(t *testing.T) {
	q := singleMoveQueue(7., 300., 1., false)
	for _, pa := range []float64{0., .01, .05, 1.} {
		if got := paRangeIntegrate(q, q.Head(), .5, pa, .1); got != 0. {
			t.Errorf("range integral with pa=%g over non-extrude move = %g, want 0", pa, got)
		}
	}
}

func TestConstantVelocityPlateau(t *testing.T) {
	const (
		startV     = 30.
		pa         = .05
		smoothTime = .04
	)
	q := singleMoveQueue(startV, 0., 2., true)
	es := NewExtruderStepper()
	es.SetPressureAdvance(pa, smoothTime)

	m := q.At(q.Head())
	// Query times at least half a window away from either boundary
	for _, mt := range []float64{.1, .5, 1., 1.9} {
		got := es.CalcPosition(q, q.Head(), mt)
		nominal := m.StartPos.X + m.Distance(mt)
		want := nominal + pa*startV
		if diff := math.Abs(got - want); diff > 1e-9 {
			t.Errorf("plateau CalcPosition(%g) = %g, want %g (diff %g)", mt, got, want, diff)
		}
	}
}

func TestContinuityAcrossMoveBoundary(t *testing.T) {
	// Accelerate 10->30 over 0.5s, then cruise at 30: velocity is
	// continuous at the junction, so the smoothed position computed from
	// either move's local frame must agree.
	q := motion.NewQueue()
	q.Append(0., .5, 0., 0.,
		motion.Coord{}, motion.Coord{X: 1.}, 10., 30., 40., true)
	q.Append(.5, 0., .5, 0.,
		q.LastPosition(), motion.Coord{X: 1.}, 30., 30., 0., true)

	es := NewExtruderStepper()
	es.SetPressureAdvance(.05, .02)

	fromFirst := es.CalcPosition(q, q.Head(), .5)
	fromSecond := es.CalcPosition(q, q.Head()+1, 0.)
	if diff := math.Abs(fromFirst - fromSecond); diff > 1e-9 {
		t.Errorf("junction position differs between frames: %g vs %g (diff %g)",
			fromFirst, fromSecond, diff)
	}
}

func TestMultiMoveWindowAggregation(t *testing.T) {
	// Three cruise moves of 20ms each; a 25ms half-window centered 10ms
	// into the middle move spans parts of all three.
	q := motion.NewQueue()
	q.Append(0., 0., .02, 0.,
		motion.Coord{}, motion.Coord{X: 1.}, 10., 10., 0., true)
	q.Append(.02, 0., .02, 0.,
		q.LastPosition(), motion.Coord{X: 1.}, 20., 20., 0., true)
	q.Append(.04, 0., .02, 0.,
		q.LastPosition(), motion.Coord{X: 1.}, 40., 40., 0., true)

	const (
		pa  = .05
		hst = .025
	)
	mid := q.Head() + 1
	moveTime := .01
	got := paRangeIntegrate(q, mid, moveTime, pa, hst)
	want := refSmoothedArea(q, q.At(mid).PrintTime+moveTime, pa, hst)
	if diff := math.Abs(got - want); diff > 1e-9*(1+math.Abs(want)) {
		t.Errorf("multi-move range integral = %g, reference %g (diff %g)",
			got, want, got-want)
	}
}

func TestSmoothedPositionReference(t *testing.T) {
	// Single accelerating move: start_v=0, accel=2000 (half_accel=1000),
	// duration 1s, pressure_advance=0.05, smooth_time=0.04, query at 0.5s.
	const (
		halfAccel  = 1000.
		pa         = .05
		smoothTime = .04
		moveTime   = .5
	)
	q := singleMoveQueue(0., halfAccel, 1., true)
	es := NewExtruderStepper()
	es.SetPressureAdvance(pa, smoothTime)

	got := es.CalcPosition(q, q.Head(), moveTime)

	m := q.At(q.Head())
	hst := .5 * smoothTime
	nominal := m.StartPos.X + m.Distance(moveTime)
	want := nominal + refSmoothedArea(q, moveTime, pa, hst)/(hst*hst)
	if diff := math.Abs(got - want); diff > 1e-9 {
		t.Errorf("smoothed position = %.12f, reference %.12f (diff %g)", got, want, diff)
	}

	// The pressure advance offset is linear in time here, so the
	// triangular average equals the instantaneous correction:
	// 250 + 0.05 * 1000 = 300.
	if diff := math.Abs(got - 300.); diff > 1e-9 {
		t.Errorf("smoothed position = %.12f, want 300", got)
	}
}

func TestReconfigureIdempotence(t *testing.T) {
	q := singleMoveQueue(20., 50., 1., true)

	es1 := NewExtruderStepper()
	es1.SetPressureAdvance(.05, .04)
	es2 := NewExtruderStepper()
	es2.SetPressureAdvance(.05, .04)
	es2.SetPressureAdvance(.05, .04)

	for _, mt := range []float64{.1, .5, .9} {
		a, b := es1.CalcPosition(q, q.Head(), mt), es2.CalcPosition(q, q.Head(), mt)
		if a != b {
			t.Errorf("repeated configuration changed output at %g: %g vs %g", mt, a, b)
		}
	}

	// Disabling returns to the exact nominal identity
	es1.SetPressureAdvance(.05, 0.)
	fresh := NewExtruderStepper()
	for _, mt := range []float64{.1, .5, .9} {
		a, b := es1.CalcPosition(q, q.Head(), mt), fresh.CalcPosition(q, q.Head(), mt)
		if a != b {
			t.Errorf("disabled model differs from fresh model at %g: %g vs %g", mt, a, b)
		}
	}
}

func TestScanWindows(t *testing.T) {
	es := NewExtruderStepper()
	if pre, post := es.ScanWindows(); pre != 0 || post != 0 {
		t.Errorf("fresh model scan windows = (%g, %g), want (0, 0)", pre, post)
	}

	es.SetPressureAdvance(.05, .04)
	if pre, post := es.ScanWindows(); pre != .02 || post != .02 {
		t.Errorf("configured scan windows = (%g, %g), want (0.02, 0.02)", pre, post)
	}

	es.SetPressureAdvance(.05, 0.)
	if pre, post := es.ScanWindows(); pre != 0 || post != 0 {
		t.Errorf("disabled scan windows = (%g, %g), want (0, 0)", pre, post)
	}
}

func TestActiveAxes(t *testing.T) {
	es := NewExtruderStepper()
	if es.ActiveAxes() != AxisX {
		t.Errorf("extruder active axes = %v, want AxisX", es.ActiveAxes())
	}
}
