package geo

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	postcodeRe = regexp.MustCompile(`\b([A-Z]{1,2}[0-9][0-9A-Z]?)\s*([0-9][ABD-HJLNP-UW-Z]{2})\b`)
	gridRefRe  = regexp.MustCompile(`^([A-HJ-Z]{1,2})\s*([0-9]+)\s*([0-9]+)?$`)
)

// ExtractPostcode finds a UK postcode in s and returns it in the canonical
// "OUTWARD INWARD" form.
func ExtractPostcode(s string) (string, bool) {
	m := postcodeRe.FindStringSubmatch(strings.ToUpper(s))
	if m == nil {
		return "", false
	}
	return m[1] + " " + m[2], true
}

// ParseGridRef converts a lettered grid reference such as "TQ 30080 80190"
// (GB) or "O 15904 34671" (IE) to an easting and northing in metres.
func ParseGridRef(grid Grid, ref string) (easting, northing float64, err error) {
	m := gridRefRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(ref)))
	if m == nil {
		return 0, 0, fmt.Errorf("invalid grid reference %q", ref)
	}
	letters, eDigits, nDigits := m[1], m[2], m[3]

	if nDigits == "" {
		if len(eDigits)%2 != 0 {
			return 0, 0, fmt.Errorf("grid reference %q has an odd number of digits", ref)
		}
		half := len(eDigits) / 2
		eDigits, nDigits = eDigits[:half], eDigits[half:]
	}
	if len(eDigits) != len(nDigits) || len(eDigits) > 5 {
		return 0, 0, fmt.Errorf("grid reference %q has mismatched digits", ref)
	}

	var e100, n100 int
	switch grid {
	case GB:
		if len(letters) != 2 {
			return 0, 0, fmt.Errorf("GB grid reference %q needs two letters", ref)
		}
		l1, l2 := letterIndex(letters[0]), letterIndex(letters[1])
		e100 = ((l1-2)%5)*5 + l2%5
		n100 = (19 - (l1/5)*5) - l2/5
		if e100 < 0 || n100 < 0 {
			return 0, 0, fmt.Errorf("grid reference %q is outside the GB grid", ref)
		}
	case IE:
		if len(letters) != 1 {
			return 0, 0, fmt.Errorf("IE grid reference %q needs one letter", ref)
		}
		l := letterIndex(letters[0])
		e100 = l % 5
		n100 = 4 - l/5
	default:
		return 0, 0, ErrUnknownGrid
	}

	e, _ := strconv.Atoi(padRight(eDigits))
	n, _ := strconv.Atoi(padRight(nDigits))
	return float64(e100*100000 + e), float64(n100*100000 + n), nil
}

// letterIndex maps A..Z to 0..24 skipping I.
func letterIndex(c byte) int {
	i := int(c - 'A')
	if i > 7 {
		i--
	}
	return i
}

func padRight(digits string) string {
	return digits + strings.Repeat("0", 5-len(digits))
}
