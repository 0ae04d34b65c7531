package crow

import (
	"fmt"
	"strings"
)

// macLength is the number of hex characters in a normalised MAC.
const macLength = 12

// NormalizeMAC converts a panel MAC address to lowercase hex with no
// separators. Accepted input separators: ':', '-', '.', and spaces.
//
// Returns ErrInvalidMAC if the result is not 12 hexadecimal characters.
func NormalizeMAC(mac string) (string, error) {
	var b strings.Builder
	b.Grow(macLength)

	for _, r := range mac {
		switch {
		case r == ':' || r == '-' || r == '.' || r == ' ':
			continue
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'a' && r <= 'f':
			b.WriteRune(r)
		case r >= 'A' && r <= 'F':
			b.WriteRune(r + ('a' - 'A'))
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
		}
	}

	if b.Len() != macLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	return b.String(), nil
}

// FormatMAC renders a MAC address as uppercase pairs joined by
// separator (e.g. "AA:BB:CC:DD:EE:FF").
func FormatMAC(mac, separator string) (string, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}

	pairs := make([]string, 0, macLength/2)
	for i := 0; i < macLength; i += 2 {
		pairs = append(pairs, strings.ToUpper(normalized[i:i+2]))
	}
	return strings.Join(pairs, separator), nil
}

// ValidMAC reports whether mac normalises to a valid panel MAC.
func ValidMAC(mac string) bool {
	_, err := NormalizeMAC(mac)
	return err == nil
}
