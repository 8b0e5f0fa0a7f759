package court

import "fmt"

// InRange reports whether n is a playable match number for a court whose
// highest match is last.
func InRange(n, last int) bool {
	return n > 0 && n <= last
}

// ValidateQueue checks an operator edit of the next two matches.
func ValidateQueue(c Court, next, afterNext int) error {
	if !InRange(next, c.Last) {
		return fmt.Errorf("next %d not in [1, %d]: %w", next, c.Last, ErrOutOfRange)
	}
	if !InRange(afterNext, c.Last) {
		return fmt.Errorf("afterNext %d not in [1, %d]: %w", afterNext, c.Last, ErrOutOfRange)
	}
	if next == c.Next && afterNext == c.AfterNext {
		return ErrNoChange
	}
	return nil
}

// ValidateCourt checks a full court record before it is written upstream.
// Empty slots are allowed.
func ValidateCourt(c Court) error {
	if c.ID == "" {
		return ErrMissingID
	}
	if c.Last <= 0 {
		return ErrInvalidLast
	}
	slots := []struct {
		name string
		n    int
	}{
		{"current", c.Current},
		{"next", c.Next},
		{"afterNext", c.AfterNext},
	}
	for _, s := range slots {
		if s.n != 0 && !InRange(s.n, c.Last) {
			return fmt.Errorf("%s %d not in [1, %d]: %w", s.name, s.n, c.Last, ErrOutOfRange)
		}
	}
	return nil
}

// CanFinish reports whether the current match can be marked finished.
func CanFinish(c Court) error {
	if c.Current == 0 {
		return ErrIdle
	}
	return nil
}
