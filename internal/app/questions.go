package app

import (
	"hash/fnv"
	"sort"

	"mln131-quiz/internal/domain"
)

// DefaultQuestionLimit caps how many bank questions a single room plays.
const DefaultQuestionLimit = 15

// RoomQuestionSet picks the ordered questions a room plays. The order is a pure function of the
// room id and the bank, so every client watching the room derives the same sequence.
func RoomQuestionSet(roomID string, bank []domain.Question, limit int) []domain.Question {
	type keyed struct {
		key uint64
		q   domain.Question
	}
	items := make([]keyed, len(bank))
	for i, q := range bank {
		items[i] = keyed{key: questionKey(roomID, q.ID), q: q}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].key < items[j].key
	})

	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	out := make([]domain.Question, limit)
	for i := range out {
		out[i] = items[i].q
	}
	return out
}

func questionKey(roomID, questionID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(roomID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(questionID))
	return h.Sum64()
}
