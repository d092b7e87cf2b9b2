// Trapezoidal motion queue - port of klippy/chelper/trapq.c
//
// Copyright (C) 2018-2019  Kevin O'Connor <kevin@koconnor.net>
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package motion

import "fmt"

// initialQueueCap is the ring capacity a new queue starts with. The ring
// only grows when more moves than this are retained at once, so the
// steady-state append/retire cycle does not allocate.
const initialQueueCap = 64

// Queue holds the moves queued for step generation. Moves are addressed by
// a monotonically increasing sequence number; "previous" and "next" are
// sequence arithmetic, so references stay valid while new moves are
// appended and old ones retired.
//
// The queue is not internally synchronized. The planner that owns it must
// guarantee that moves within any consumer's scan window are not retired
// or overwritten while a position query may still reference them.
type Queue struct {
	moves   []Move
	head    int64 // sequence of the oldest retained move
	tail    int64 // one past the newest move
	lastPos Coord
}

// NewQueue returns an empty move queue.
func NewQueue() *Queue {
	return &Queue{moves: make([]Move, initialQueueCap)}
}

// Head returns the sequence number of the oldest retained move.
func (q *Queue) Head() int64 { return q.head }

// Tail returns one past the sequence number of the newest move.
func (q *Queue) Tail() int64 { return q.tail }

// Len returns the number of retained moves.
func (q *Queue) Len() int { return int(q.tail - q.head) }

// At returns the move with the given sequence number. Referencing a move
// outside the retained range is a contract violation: the caller did not
// honor the scan windows it was told about, and there is no way to
// produce a correct position, so At fails hard.
func (q *Queue) At(seq int64) *Move {
	if seq < q.head || seq >= q.tail {
		panic(fmt.Sprintf("motion: move %d outside retained range [%d,%d)",
			seq, q.head, q.tail))
	}
	return &q.moves[seq%int64(len(q.moves))]
}

// Append queues one trapezoidal velocity segment, splitting it into up to
// three constant-acceleration moves (accelerate, cruise, decelerate). The
// canPressureAdvance flag marks whether the segment participates in
// pressure-advance smoothing; the producer decides (in the original queue
// format this was encoded as a nonzero Y direction component).
func (q *Queue) Append(printTime, accelT, cruiseT, decelT float64,
	startPos, axesR Coord, startV, cruiseV, accel float64,
	canPressureAdvance bool) {
	if accelT > 0. {
		m := Move{
			PrintTime:          printTime,
			MoveT:              accelT,
			StartV:             startV,
			HalfAccel:          .5 * accel,
			StartPos:           startPos,
			AxesR:              axesR,
			CanPressureAdvance: canPressureAdvance,
		}
		q.push(m)
		printTime += accelT
		startPos = m.Coord(accelT)
	}
	if cruiseT > 0. {
		m := Move{
			PrintTime:          printTime,
			MoveT:              cruiseT,
			StartV:             cruiseV,
			HalfAccel:          0.,
			StartPos:           startPos,
			AxesR:              axesR,
			CanPressureAdvance: canPressureAdvance,
		}
		q.push(m)
		printTime += cruiseT
		startPos = m.Coord(cruiseT)
	}
	if decelT > 0. {
		m := Move{
			PrintTime:          printTime,
			MoveT:              decelT,
			StartV:             cruiseV,
			HalfAccel:          -.5 * accel,
			StartPos:           startPos,
			AxesR:              axesR,
			CanPressureAdvance: canPressureAdvance,
		}
		q.push(m)
		startPos = m.Coord(decelT)
	}
	q.lastPos = startPos
}

// Expire retires moves that complete at or before printTime. The caller
// must subtract every consumer's scan window from the flush time before
// calling, so that retained history always covers outstanding queries.
// It returns the number of moves retired.
func (q *Queue) Expire(printTime float64) int {
	retired := 0
	for q.head < q.tail {
		m := &q.moves[q.head%int64(len(q.moves))]
		if m.PrintTime+m.MoveT > printTime {
			break
		}
		q.head++
		retired++
	}
	return retired
}

// SetPosition notes an externally forced position change. All retained
// moves are dropped; subsequent appends continue from pos.
func (q *Queue) SetPosition(pos Coord) {
	q.head = q.tail
	q.lastPos = pos
}

// LastPosition returns the position at the end of the newest move (or the
// position recorded by SetPosition when the queue is empty).
func (q *Queue) LastPosition() Coord { return q.lastPos }

// FindMove returns the sequence number of the retained move whose time
// span contains printTime. Times past the end of the newest move resolve
// to the newest move; ok is false when the queue is empty or printTime
// precedes all retained moves.
func (q *Queue) FindMove(printTime float64) (int64, bool) {
	if q.head == q.tail || printTime < q.At(q.head).PrintTime {
		return 0, false
	}
	// Binary search for the last move starting at or before printTime.
	lo, hi := q.head, q.tail-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if q.At(mid).PrintTime <= printTime {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, true
}

func (q *Queue) push(m Move) {
	if int(q.tail-q.head) == len(q.moves) {
		q.grow()
	}
	q.moves[q.tail%int64(len(q.moves))] = m
	q.tail++
}

func (q *Queue) grow() {
	bigger := make([]Move, 2*len(q.moves))
	for seq := q.head; seq < q.tail; seq++ {
		bigger[seq%int64(len(bigger))] = q.moves[seq%int64(len(q.moves))]
	}
	q.moves = bigger
}
