package card

import (
	"fmt"
	"io"
	"strings"
)

const (
	numberLength = 16
	cvvLength    = 3
)

// randomDigits reads n uniformly distributed decimal digits from r.
func randomDigits(r io.Reader, n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	buf := make([]byte, n)
	for b.Len() < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random digits: %w", err)
		}
		for _, v := range buf {
			// 250 is the largest multiple of 10 below 256; rejecting above it keeps digits unbiased.
			if v >= 250 {
				continue
			}
			b.WriteByte('0' + v%10)
			if b.Len() == n {
				break
			}
		}
	}
	return b.String(), nil
}

// generateNumber builds a Luhn-valid card number starting with bin.
func generateNumber(r io.Reader, bin string) (string, error) {
	if len(bin) >= numberLength {
		return "", fmt.Errorf("bin %q too long for %d digit card number", bin, numberLength)
	}
	body, err := randomDigits(r, numberLength-len(bin)-1)
	if err != nil {
		return "", err
	}
	payload := bin + body
	return payload + string(luhnCheckDigit(payload)), nil
}

func generateCVV(r io.Reader) (string, error) {
	return randomDigits(r, cvvLength)
}

func luhnCheckDigit(payload string) byte {
	sum := 0
	double := true
	for i := len(payload) - 1; i >= 0; i-- {
		d := int(payload[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return byte('0' + (10-sum%10)%10)
}

// ValidNumber reports whether number is all digits and passes the Luhn check.
func ValidNumber(number string) bool {
	if len(number) < 12 || len(number) > 19 {
		return false
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return false
		}
	}
	return luhnCheckDigit(number[:len(number)-1]) == number[len(number)-1]
}

// Mask renders a card number showing only its last four digits.
func Mask(number string) string {
	if len(number) < 4 {
		return "****"
	}
	return "**** **** **** " + number[len(number)-4:]
}
