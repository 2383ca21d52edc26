// Package pairing implements the round-robin circle method used to match
// channel members into conversation pairs without repeats across rounds.
package pairing

import (
	"errors"
	"math/rand"
)

// ErrOddMembers is returned by Rotate when the member count is odd or too
// small to pair. Callers with an odd pool use Match, which accommodates the
// extra member before invoking the engine.
var ErrOddMembers = errors.New("pairing: matching requires an even number of members, at least 2")

// Rotate performs one step of the circle method. It pairs member i with
// member n-1-i of the given circle and returns the rotated circle to feed
// back on the next call: the first member stays fixed, the last member moves
// to second position, and everyone else shifts right by one.
//
// Feeding the returned circle back each round yields n-1 rounds with no pair
// repeated, after which the circle returns to its original order. The result
// is fully deterministic for a given input.
func Rotate(circle []string) (pairs [][]string, rotated []string, err error) {
	count := len(circle)
	if count < 2 || count%2 != 0 {
		return nil, nil, ErrOddMembers
	}

	for i := 0; i < count/2; i++ {
		pairs = append(pairs, []string{circle[i], circle[count-1-i]})
	}

	rotated = make([]string, 0, count)
	rotated = append(rotated, circle[0], circle[count-1])
	rotated = append(rotated, circle[1:count-1]...)

	return pairs, rotated, nil
}

// Match pairs up the given members, accommodating an odd pool: one member is
// removed at random before rotating, then appended to a random pair (forming
// the round's single triple) and reinserted into the circle at index 1 so it
// keeps participating in future rotations.
//
// The randomness source is supplied by the caller so rounds can be reproduced
// in tests. The input slice is not modified.
func Match(members []string, rng *rand.Rand) (pairs [][]string, circle []string, err error) {
	pool := make([]string, len(members))
	copy(pool, members)

	excluded := ""
	if len(pool)%2 != 0 {
		i := rng.Intn(len(pool))
		excluded = pool[i]
		pool = append(pool[:i], pool[i+1:]...)
	}

	pairs, circle, err = Rotate(pool)
	if err != nil {
		return nil, nil, err
	}

	if excluded != "" {
		i := rng.Intn(len(pairs))
		pairs[i] = append(pairs[i], excluded)
		circle = append(circle[:1], append([]string{excluded}, circle[1:]...)...)
	}

	return pairs, circle, nil
}
