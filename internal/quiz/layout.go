package quiz

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"

	"github.com/google/uuid"
)

// Layout is the order in which one attempt presents questions and options.
// It is derived from the attempt id alone, so resume and grading rebuild the
// same order without storing it.
type Layout struct {
	order   []int            // presented position -> index into Quiz.Questions
	options map[string][]int // question id -> presented option position -> canonical index
}

func NewLayout(attemptID string, q Quiz) Layout {
	p := ResolvePolicy(q)
	rng := rand.New(rand.NewSource(layoutSeed(attemptID)))

	l := Layout{
		order:   identity(len(q.Questions)),
		options: make(map[string][]int, len(q.Questions)),
	}
	if p.ShuffleQuestions {
		rng.Shuffle(len(l.order), func(i, j int) { l.order[i], l.order[j] = l.order[j], l.order[i] })
	}
	for _, qu := range q.Questions {
		perm := identity(len(qu.Options))
		if p.ShuffleOptions {
			rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		}
		l.options[qu.ID] = perm
	}
	return l
}

// Questions renders the quiz for the student, without answer keys.
func (l Layout) Questions(q Quiz) []PublicQuestion {
	out := make([]PublicQuestion, 0, len(l.order))
	for _, idx := range l.order {
		qu := q.Questions[idx]
		perm := l.options[qu.ID]
		opts := make([]string, len(perm))
		for pos, canon := range perm {
			opts[pos] = qu.Options[canon]
		}
		out = append(out, PublicQuestion{ID: qu.ID, Prompt: qu.Prompt, Options: opts})
	}
	return out
}

// ToCanonical maps a presented option position to the authored index.
// Unanswered passes through unchanged.
func (l Layout) ToCanonical(questionID string, presented int) (int, bool) {
	perm, ok := l.options[questionID]
	if !ok {
		return 0, false
	}
	if presented == -1 {
		return -1, true
	}
	if presented < 0 || presented >= len(perm) {
		return 0, false
	}
	return perm[presented], true
}

// ToPresented is the inverse of ToCanonical.
func (l Layout) ToPresented(questionID string, canonical int) int {
	if canonical < 0 {
		return canonical
	}
	for pos, c := range l.options[questionID] {
		if c == canonical {
			return pos
		}
	}
	return canonical
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func layoutSeed(attemptID string) int64 {
	if id, err := uuid.Parse(attemptID); err == nil {
		return int64(binary.BigEndian.Uint64(id[:8]) ^ binary.BigEndian.Uint64(id[8:]))
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(attemptID))
	return int64(h.Sum64())
}
