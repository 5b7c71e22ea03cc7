package parse

import (
	"fmt"

	"arcade-rental-backend/internal/kst"
)

// FormatClock renders an extended hour as the literal clock text stored alongside it.
// Hours 24-29 are written as 00:00-05:00.
func FormatClock(ext int) (string, error) {
	hour, _, err := kst.FromExtended(ext)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:00", hour), nil
}
