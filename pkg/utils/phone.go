package utils

import (
	"regexp"
	"strings"
)

// e164 accepts an optional leading "+" and 10 to 15 digits without a leading zero.
var e164 = regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)

// IsE164 reports whether s (after trimming spaces) is a dialable E.164 number.
func IsE164(s string) bool {
	return e164.MatchString(strings.TrimSpace(s))
}

// SplitPhones trims each candidate and partitions the non-empty ones into valid and rejected, keeping order.
func SplitPhones(candidates []string) (valid, rejected []string) {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if e164.MatchString(c) {
			valid = append(valid, c)
		} else {
			rejected = append(rejected, c)
		}
	}
	return valid, rejected
}
