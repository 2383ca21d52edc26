package pairing

import (
	"errors"
	"math/rand"
	"reflect"
	"sort"
	"strings"
	"testing"
)

func pairKey(pair []string) string {
	sorted := append([]string(nil), pair...)
	sort.Strings(sorted)
	return strings.Join(sorted, "+")
}

func TestRotateKnownSchedule(t *testing.T) {
	members := []string{"1", "2", "3", "4", "5", "6"}

	pairs, rotated, err := Rotate(members)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	wantPairs := [][]string{{"1", "6"}, {"2", "5"}, {"3", "4"}}
	if !reflect.DeepEqual(pairs, wantPairs) {
		t.Fatalf("first round pairs = %v, want %v", pairs, wantPairs)
	}
	wantCircle := []string{"1", "6", "2", "3", "4", "5"}
	if !reflect.DeepEqual(rotated, wantCircle) {
		t.Fatalf("rotated circle = %v, want %v", rotated, wantCircle)
	}

	pairs, _, err = Rotate(rotated)
	if err != nil {
		t.Fatalf("second rotate: %v", err)
	}
	wantPairs = [][]string{{"1", "5"}, {"6", "4"}, {"2", "3"}}
	if !reflect.DeepEqual(pairs, wantPairs) {
		t.Fatalf("second round pairs = %v, want %v", pairs, wantPairs)
	}
}

func TestRotateCoversEveryMemberOnce(t *testing.T) {
	for _, count := range []int{2, 4, 8, 12} {
		circle := make([]string, count)
		for i := range circle {
			circle[i] = string(rune('a' + i))
		}

		pairs, _, err := Rotate(circle)
		if err != nil {
			t.Fatalf("rotate %d members: %v", count, err)
		}
		if len(pairs) != count/2 {
			t.Fatalf("%d members: got %d pairs, want %d", count, len(pairs), count/2)
		}

		seen := map[string]int{}
		for _, pair := range pairs {
			if len(pair) != 2 {
				t.Fatalf("pair %v has %d members", pair, len(pair))
			}
			if pair[0] == pair[1] {
				t.Fatalf("pair %v contains a duplicate member", pair)
			}
			seen[pair[0]]++
			seen[pair[1]]++
		}
		for _, member := range circle {
			if seen[member] != 1 {
				t.Fatalf("member %s appears %d times", member, seen[member])
			}
		}
	}
}

func TestRotateRoundRobinCompleteness(t *testing.T) {
	original := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	n := len(original)

	circle := original
	seen := map[string]int{}
	for round := 0; round < n-1; round++ {
		pairs, rotated, err := Rotate(circle)
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		for _, pair := range pairs {
			seen[pairKey(pair)]++
		}
		circle = rotated
	}

	// Every member must have met every other member exactly once.
	if want := n * (n - 1) / 2; len(seen) != want {
		t.Fatalf("got %d distinct pairs over %d rounds, want %d", len(seen), n-1, want)
	}
	for key, count := range seen {
		if count != 1 {
			t.Fatalf("pair %s repeated %d times", key, count)
		}
	}

	if !reflect.DeepEqual(circle, original) {
		t.Fatalf("circle after %d rounds = %v, want original %v", n-1, circle, original)
	}
}

func TestRotateInvalidInput(t *testing.T) {
	for _, circle := range [][]string{
		nil,
		{"a"},
		{"a", "b", "c"},
		{"a", "b", "c", "d", "e"},
	} {
		if _, _, err := Rotate(circle); !errors.Is(err, ErrOddMembers) {
			t.Fatalf("Rotate(%v) error = %v, want ErrOddMembers", circle, err)
		}
	}
}

func TestMatchOddPool(t *testing.T) {
	members := []string{"a", "b", "c", "d", "e", "f", "g"}
	rng := rand.New(rand.NewSource(7))

	pairs, circle, err := Match(members, rng)
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	if len(pairs) != 3 {
		t.Fatalf("got %d pairs, want 3", len(pairs))
	}
	triples := 0
	seen := map[string]int{}
	for _, pair := range pairs {
		switch len(pair) {
		case 2:
		case 3:
			triples++
		default:
			t.Fatalf("pair %v has %d members", pair, len(pair))
		}
		for _, member := range pair {
			seen[member]++
		}
	}
	if triples != 1 {
		t.Fatalf("got %d triples, want exactly 1", triples)
	}
	for _, member := range members {
		if seen[member] != 1 {
			t.Fatalf("member %s appears %d times", member, seen[member])
		}
	}

	if len(circle) != len(members) {
		t.Fatalf("circle has %d members, want %d", len(circle), len(members))
	}
	inCircle := map[string]int{}
	for _, member := range circle {
		inCircle[member]++
	}
	for _, member := range members {
		if inCircle[member] != 1 {
			t.Fatalf("circle %v misses or repeats member %s", circle, member)
		}
	}
}

func TestMatchEvenPoolIsDeterministic(t *testing.T) {
	members := []string{"1", "2", "3", "4", "5", "6"}

	pairs, circle, err := Match(members, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	// Even pools never consult the randomness source for matching.
	wantPairs := [][]string{{"1", "6"}, {"2", "5"}, {"3", "4"}}
	if !reflect.DeepEqual(pairs, wantPairs) {
		t.Fatalf("pairs = %v, want %v", pairs, wantPairs)
	}
	wantCircle := []string{"1", "6", "2", "3", "4", "5"}
	if !reflect.DeepEqual(circle, wantCircle) {
		t.Fatalf("circle = %v, want %v", circle, wantCircle)
	}
}

func TestMatchSameSeedSameResult(t *testing.T) {
	members := []string{"a", "b", "c", "d", "e"}

	first, firstCircle, err := Match(members, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	second, secondCircle, err := Match(members, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	if !reflect.DeepEqual(first, second) || !reflect.DeepEqual(firstCircle, secondCircle) {
		t.Fatalf("same seed produced different results: %v/%v vs %v/%v",
			first, firstCircle, second, secondCircle)
	}
}

func TestMatchDoesNotModifyInput(t *testing.T) {
	members := []string{"a", "b", "c", "d", "e"}
	saved := append([]string(nil), members...)

	if _, _, err := Match(members, rand.New(rand.NewSource(3))); err != nil {
		t.Fatalf("match: %v", err)
	}
	if !reflect.DeepEqual(members, saved) {
		t.Fatalf("input modified: %v, want %v", members, saved)
	}
}
