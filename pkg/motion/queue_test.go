package motion

import (
	"math"
	"testing"
)

func TestAppendSplitsTrapezoid(t *testing.T) {
	q := NewQueue()
	// Accelerate 0->100 over 0.5s, cruise 1s, decelerate 100->0 over 0.5s
	q.Append(2., .5, 1., .5,
		Coord{X: 5.}, Coord{X: 1.}, 0., 100., 200., true)

	if q.Len() != 3 {
		t.Fatalf("trapezoid should split into 3 moves, got %d", q.Len())
	}

	accel := q.At(q.Head())
	cruise := q.At(q.Head() + 1)
	decel := q.At(q.Head() + 2)

	if accel.PrintTime != 2. || accel.MoveT != .5 {
		t.Errorf("accel phase time = (%g, %g), want (2, 0.5)", accel.PrintTime, accel.MoveT)
	}
	if accel.StartV != 0. || accel.HalfAccel != 100. {
		t.Errorf("accel phase velocity = (%g, %g), want (0, 100)", accel.StartV, accel.HalfAccel)
	}

	if cruise.PrintTime != 2.5 || cruise.StartV != 100. || cruise.HalfAccel != 0. {
		t.Errorf("cruise phase = t%g v%g a%g, want t2.5 v100 a0",
			cruise.PrintTime, cruise.StartV, cruise.HalfAccel)
	}
	// Acceleration phase covers 0.5*200*0.5^2 = 25 units
	if cruise.StartPos.X != 30. {
		t.Errorf("cruise start position = %g, want 30", cruise.StartPos.X)
	}

	if decel.PrintTime != 3.5 || decel.StartV != 100. || decel.HalfAccel != -100. {
		t.Errorf("decel phase = t%g v%g a%g, want t3.5 v100 a-100",
			decel.PrintTime, decel.StartV, decel.HalfAccel)
	}
	if decel.StartPos.X != 130. {
		t.Errorf("decel start position = %g, want 130", decel.StartPos.X)
	}

	// Total distance: 25 + 100 + 25 = 150
	if got := q.LastPosition().X; got != 155. {
		t.Errorf("end position = %g, want 155", got)
	}
}

func TestAppendSkipsEmptyPhases(t *testing.T) {
	q := NewQueue()
	q.Append(0., 0., 1., 0.,
		Coord{}, Coord{X: 1.}, 0., 50., 0., false)
	if q.Len() != 1 {
		t.Fatalf("cruise-only trapezoid should queue 1 move, got %d", q.Len())
	}
	m := q.At(q.Head())
	if m.StartV != 50. || m.HalfAccel != 0. || m.MoveT != 1. {
		t.Errorf("cruise move = v%g a%g t%g, want v50 a0 t1", m.StartV, m.HalfAccel, m.MoveT)
	}
	if m.CanPressureAdvance {
		t.Error("move queued with canPressureAdvance=false should not be eligible")
	}
}

func TestMoveDistanceAndCoord(t *testing.T) {
	m := Move{
		StartV:    10.,
		HalfAccel: 50.,
		StartPos:  Coord{X: 1., Y: 2., Z: 3.},
		AxesR:     Coord{X: .6, Y: .8},
	}
	// distance(0.2) = (10 + 50*0.2)*0.2 = 4
	if got := m.Distance(.2); got != 4. {
		t.Errorf("Distance(0.2) = %g, want 4", got)
	}
	c := m.Coord(.2)
	if c.X != 1.+.6*4. || c.Y != 2.+.8*4. || c.Z != 3. {
		t.Errorf("Coord(0.2) = %+v", c)
	}
}

func TestExpire(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 4; i++ {
		q.Append(float64(i), 0., 1., 0.,
			q.LastPosition(), Coord{X: 1.}, 10., 10., 0., true)
	}

	// Nothing ends at or before t=0.5
	if n := q.Expire(.5); n != 0 {
		t.Errorf("Expire(0.5) retired %d moves, want 0", n)
	}

	// First two moves end at t=1 and t=2
	if n := q.Expire(2.); n != 2 {
		t.Errorf("Expire(2) retired %d moves, want 2", n)
	}
	if q.Head() != 2 || q.Len() != 2 {
		t.Errorf("after expire head=%d len=%d, want head=2 len=2", q.Head(), q.Len())
	}

	// Retired moves are no longer addressable
	defer func() {
		if recover() == nil {
			t.Error("At on a retired move should panic")
		}
	}()
	q.At(0)
}

func TestFindMove(t *testing.T) {
	q := NewQueue()
	q.Append(1., 0., 1., 0., Coord{}, Coord{X: 1.}, 5., 5., 0., true)
	q.Append(2., 0., 2., 0., q.LastPosition(), Coord{X: 1.}, 5., 5., 0., true)

	if _, ok := q.FindMove(.5); ok {
		t.Error("FindMove before the first move should report not found")
	}
	if seq, ok := q.FindMove(1.5); !ok || seq != q.Head() {
		t.Errorf("FindMove(1.5) = (%d, %v), want first move", seq, ok)
	}
	if seq, ok := q.FindMove(2.); !ok || seq != q.Head()+1 {
		t.Errorf("FindMove(2) = (%d, %v), want second move", seq, ok)
	}
	// Past the end resolves to the newest move
	if seq, ok := q.FindMove(100.); !ok || seq != q.Head()+1 {
		t.Errorf("FindMove(100) = (%d, %v), want newest move", seq, ok)
	}
}

func TestQueueGrowth(t *testing.T) {
	q := NewQueue()
	n := initialQueueCap*2 + 7
	for i := 0; i < n; i++ {
		q.Append(float64(i), 0., 1., 0.,
			Coord{X: float64(i)}, Coord{X: 1.}, float64(i), float64(i), 0., true)
	}
	if q.Len() != n {
		t.Fatalf("queue length = %d, want %d", q.Len(), n)
	}
	for seq := q.Head(); seq < q.Tail(); seq++ {
		m := q.At(seq)
		if m.PrintTime != float64(seq) || m.StartV != float64(seq) {
			t.Fatalf("move %d corrupted after growth: t=%g v=%g", seq, m.PrintTime, m.StartV)
		}
	}
}

func TestSequenceNumbersStableAcrossGrowth(t *testing.T) {
	q := NewQueue()
	q.Append(0., 0., 1., 0., Coord{}, Coord{X: 1.}, 3., 3., 0., true)
	first := q.Head()
	for i := 1; i < initialQueueCap+10; i++ {
		q.Append(float64(i), 0., 1., 0.,
			q.LastPosition(), Coord{X: 1.}, 3., 3., 0., true)
	}
	m := q.At(first)
	if m.PrintTime != 0. || m.StartV != 3. {
		t.Errorf("first move changed after growth: t=%g v=%g", m.PrintTime, m.StartV)
	}
}

func TestSetPosition(t *testing.T) {
	q := NewQueue()
	q.Append(0., 0., 1., 0., Coord{}, Coord{X: 1.}, 10., 10., 0., true)
	q.SetPosition(Coord{X: 42.})

	if q.Len() != 0 {
		t.Errorf("SetPosition should drop retained moves, len = %d", q.Len())
	}
	if got := q.LastPosition().X; got != 42. {
		t.Errorf("LastPosition after SetPosition = %g, want 42", got)
	}

	// Appends continue from the forced position
	q.Append(1., 0., 1., 0., q.LastPosition(), Coord{X: 1.}, 2., 2., 0., true)
	if got := q.LastPosition().X; math.Abs(got-44.) > 1e-12 {
		t.Errorf("position after append = %g, want 44", got)
	}
}
