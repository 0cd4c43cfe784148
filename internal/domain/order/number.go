package order

import (
	"fmt"
	"strconv"
	"strings"
)

// numberOffset keeps order numbers at six digits or more for small basket ids.
const numberOffset = 100000

// NumberFor derives the order number of a basket: "<prefix>-<100000+basketID>".
// It is a pure function of its inputs, so every notification about the same
// basket carries the same number and placement can be keyed on it.
func NumberFor(prefix string, basketID int64) string {
	return fmt.Sprintf("%s-%d", prefix, basketID+numberOffset)
}

// BasketIDFromNumber is the inverse of NumberFor. The prefix is not checked;
// the numeric suffix alone identifies the basket.
func BasketIDFromNumber(number string) (int64, error) {
	idx := strings.LastIndex(number, "-")
	if idx <= 0 || idx == len(number)-1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, number)
	}
	n, err := strconv.ParseInt(number[idx+1:], 10, 64)
	if err != nil || n <= numberOffset {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, number)
	}
	return n - numberOffset, nil
}
