package domain

import (
	"encoding/json"
	"fmt"
)

// ItemKind is one of the five tactical items.
type ItemKind uint8

const (
	ScoreBoost ItemKind = iota + 1
	TimeExtend
	Shield
	Confusion
	TimeAttack
)

const itemKindCount = 5

// ItemKinds lists every kind in catalog order.
var ItemKinds = [itemKindCount]ItemKind{ScoreBoost, TimeExtend, Shield, Confusion, TimeAttack}

var itemKindNames = [itemKindCount]string{"score_boost", "time_extend", "shield", "confusion", "time_attack"}

// Valid reports whether k is a known kind.
func (k ItemKind) Valid() bool {
	return k >= ScoreBoost && k <= TimeAttack
}

func (k ItemKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("item(%d)", uint8(k))
	}
	return itemKindNames[k-1]
}

// IsDebuff reports whether k targets another player.
func (k ItemKind) IsDebuff() bool {
	return k == Confusion || k == TimeAttack
}

// ParseItemKind maps the wire name back to a kind.
func ParseItemKind(name string) (ItemKind, error) {
	for i, n := range itemKindNames {
		if n == name {
			return ItemKind(i + 1), nil
		}
	}
	return 0, fmt.Errorf("unknown item kind %q", name)
}

func (k ItemKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid item kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *ItemKind) UnmarshalText(text []byte) error {
	parsed, err := ParseItemKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Inventory holds per-kind item counts. It is a value type; every mutation returns a copy.
type Inventory [itemKindCount]int

// Count returns the number of items of kind k held.
func (inv Inventory) Count(k ItemKind) int {
	if !k.Valid() {
		return 0
	}
	return inv[k-1]
}

// Add returns inv with n more items of kind k.
func (inv Inventory) Add(k ItemKind, n int) Inventory {
	if k.Valid() {
		inv[k-1] += n
		if inv[k-1] < 0 {
			inv[k-1] = 0
		}
	}
	return inv
}

// Take removes one item of kind k. On failure inv is returned unchanged.
func (inv Inventory) Take(k ItemKind) (Inventory, error) {
	if inv.Count(k) <= 0 {
		return inv, &InsufficientItemError{Kind: k}
	}
	inv[k-1]--
	return inv, nil
}

// Total is the sum of all counts.
func (inv Inventory) Total() int {
	total := 0
	for _, n := range inv {
		total += n
	}
	return total
}

func (inv Inventory) MarshalJSON() ([]byte, error) {
	out := make(map[string]int, itemKindCount)
	for i, k := range ItemKinds {
		out[k.String()] = inv[i]
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the object form; unknown keys are ignored and missing kinds read as zero.
func (inv *Inventory) UnmarshalJSON(data []byte) error {
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*inv = Inventory{}
	for name, n := range raw {
		k, err := ParseItemKind(name)
		if err != nil {
			continue
		}
		if n > 0 {
			inv[k-1] = n
		}
	}
	return nil
}
