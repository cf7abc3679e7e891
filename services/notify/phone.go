package notifysvc

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	nonDigits = regexp.MustCompile(`\D`)

	errInvalidNumber = errors.New("invalid phone number")
)

// NormalizeNumber reduces a phone number to its international digits.
// Local 11-digit numbers starting with 8 are rewritten to the +7 country code.
func NormalizeNumber(number string) (string, error) {
	digits := nonDigits.ReplaceAllString(strings.TrimPrefix(strings.TrimSpace(number), "+"), "")
	if len(digits) == 11 && digits[0] == '8' {
		digits = "7" + digits[1:]
	}
	if len(digits) < 10 || len(digits) > 15 {
		return "", errors.Wrapf(errInvalidNumber, "%q", number)
	}
	return digits, nil
}
