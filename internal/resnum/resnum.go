// Package resnum formats human-facing reservation numbers.
package resnum

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"arcade-rental-backend/internal/kst"
)

// MaxSequence is the largest per-date sequence the three-digit suffix can carry.
const MaxSequence = 999

var numberRe = regexp.MustCompile(`^(\d{6})-(\d{3})$`)

// Prefix is the YYMMDD part shared by every number issued for a business date.
func Prefix(businessDate time.Time) string {
	return businessDate.In(kst.Location).Format("060102")
}

// Format renders the canonical YYMMDD-NNN number for a business date.
func Format(businessDate time.Time, seq int) (string, error) {
	if seq < 1 || seq > MaxSequence {
		return "", fmt.Errorf("sequence %d out of range 1-%d", seq, MaxSequence)
	}
	return fmt.Sprintf("%s-%03d", Prefix(businessDate), seq), nil
}

// Parse splits a number back into its date prefix and sequence.
func Parse(number string) (prefix string, seq int, err error) {
	m := numberRe.FindStringSubmatch(number)
	if m == nil {
		return "", 0, fmt.Errorf("malformed reservation number %q", number)
	}
	seq, err = strconv.Atoi(m[2])
	if err != nil {
		return "", 0, err
	}
	return m[1], seq, nil
}
