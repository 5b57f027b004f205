package app

import (
	"fmt"

	"license-exam-service/internal/domain"
)

// Navigator is a bounds-checked cursor over a question sequence. Every index is
// reachable at any time; there is no forward-only locking.
type Navigator struct {
	index int
	count int
}

// NewNavigator returns a cursor at index 0 over count questions.
func NewNavigator(count int) *Navigator {
	return &Navigator{count: count}
}

// Index returns the current position.
func (n *Navigator) Index() int {
	return n.index
}

// Count returns the number of navigable questions.
func (n *Navigator) Count() int {
	return n.count
}

// Next moves forward by one, staying put on the last question.
func (n *Navigator) Next() int {
	if n.index < n.count-1 {
		n.index++
	}
	return n.index
}

// Previous moves back by one, staying put on the first question.
func (n *Navigator) Previous() int {
	if n.index > 0 {
		n.index--
	}
	return n.index
}

// GoTo jumps to index. Out-of-range requests leave the cursor unchanged.
func (n *Navigator) GoTo(index int) error {
	if index < 0 || index >= n.count {
		return fmt.Errorf("%w: index %d outside [0,%d)", domain.ErrInvalidNavigation, index, n.count)
	}
	n.index = index
	return nil
}
