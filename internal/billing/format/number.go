package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

const DefaultBillNumberTemplate = "B-{YYYY}{MM}{DD}-{SEQ4}"

// FormatBillNumber renders template for a bill issued at issuedAt with the
// given per-day sequence. It has no side effects.
func FormatBillNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("bill number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid bill sequence: %d", seq)
	}

	out := template
	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", issuedAt.Format("02"))
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in bill number format: %s", out)
	}
	return out, nil
}

// FormatMoney renders an amount in minor units, e.g. 12345 with exponent 2
// and currency "USD" becomes "USD 123.45".
func FormatMoney(amount int64, currency string, exponent int) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	if exponent > 0 {
		if len(digits) <= exponent {
			digits = strings.Repeat("0", exponent-len(digits)+1) + digits
		}
		cut := len(digits) - exponent
		digits = digits[:cut] + "." + digits[cut:]
	}
	if currency == "" {
		return sign + digits
	}
	return currency + " " + sign + digits
}
