package service

import (
	"math/rand"
	"sync"
	"time"

	"topicq/internal/domain"
)

// AnswerRandomizer shuffles option order so the correct answer does not sit at
// a predictable position. Safe for concurrent use.
type AnswerRandomizer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewAnswerRandomizer returns a randomizer seeded from the clock.
func NewAnswerRandomizer() *AnswerRandomizer {
	return NewSeededAnswerRandomizer(time.Now().UnixNano())
}

// NewSeededAnswerRandomizer returns a deterministic randomizer, for tests.
func NewSeededAnswerRandomizer(seed int64) *AnswerRandomizer {
	return &AnswerRandomizer{rnd: rand.New(rand.NewSource(seed))}
}

// Randomize returns a deep copy of doc with every question's options permuted.
// The correct index follows the original correct position, so questions with
// look-alike option text keep the right answer.
func (r *AnswerRandomizer) Randomize(doc *domain.QuizDocument) *domain.QuizDocument {
	out := doc.Clone()
	if out == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range out.Questions {
		q := &out.Questions[i]
		if len(q.Options) < 2 {
			continue
		}
		perm := r.rnd.Perm(len(q.Options))
		shuffled := make([]string, len(q.Options))
		newIndex := q.AnswerIndex
		for newPos, oldPos := range perm {
			shuffled[newPos] = q.Options[oldPos]
			if oldPos == q.AnswerIndex {
				newIndex = newPos
			}
		}
		q.Options = shuffled
		q.AnswerIndex = newIndex
	}
	return out
}
