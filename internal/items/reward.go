package items

import (
	"math/rand"
	"sync"

	"mln131-quiz/internal/domain"
)

// Picker chooses the kind awarded for a correct answer.
type Picker func() domain.ItemKind

// UniformPicker picks each kind with equal probability.
func UniformPicker() Picker {
	return func() domain.ItemKind {
		return domain.ItemKinds[rand.Intn(len(domain.ItemKinds))]
	}
}

// SeededPicker is UniformPicker over a private source; safe for concurrent use.
func SeededPicker(seed int64) Picker {
	var mu sync.Mutex
	rnd := rand.New(rand.NewSource(seed))
	return func() domain.ItemKind {
		mu.Lock()
		defer mu.Unlock()
		return domain.ItemKinds[rnd.Intn(len(domain.ItemKinds))]
	}
}

// FixedPicker always awards kind.
func FixedPicker(kind domain.ItemKind) Picker {
	return func() domain.ItemKind { return kind }
}

// RewardOnCorrectAnswer adds one item of a picked kind when correct. Incorrect answers leave
// the inventory untouched and return a nil kind.
func RewardOnCorrectAnswer(inv domain.Inventory, isCorrect bool, pick Picker) (domain.Inventory, *domain.ItemKind) {
	if !isCorrect {
		return inv, nil
	}
	if pick == nil {
		pick = UniformPicker()
	}
	kind := pick()
	if !kind.Valid() {
		return inv, nil
	}
	return inv.Add(kind, 1), &kind
}
