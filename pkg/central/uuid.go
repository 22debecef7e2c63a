package central

import (
	"fmt"
	"strings"
)

// UUID is a normalized Bluetooth identifier: lowercase hex without dashes or 0x prefix.
// UUIDs in the Bluetooth SIG base range are shortened to their 16-bit form.
type UUID string

const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts s to the normalized form. It does not validate the result.
func NormalizeUUID(s string) UUID {
	u := strings.ToLower(strings.TrimSpace(s))
	u = strings.TrimPrefix(u, "{")
	u = strings.TrimSuffix(u, "}")
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return UUID(u[4:8])
	}
	if len(u) == 8 && strings.HasPrefix(u, "0000") {
		return UUID(u[4:])
	}
	return UUID(u)
}

// ParseUUID normalizes and validates s. Accepted lengths are 16, 32 and 128 bits.
func ParseUUID(s string) (UUID, error) {
	u := NormalizeUUID(s)
	switch len(u) {
	case 4, 8, 32:
	default:
		return "", fmt.Errorf("invalid UUID %q: unexpected length %d", s, len(u))
	}
	for _, r := range u {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("invalid UUID %q: non-hex character %q", s, r)
		}
	}
	return u, nil
}

// ParseUUIDs validates every element of ss. A nil input returns nil.
func ParseUUIDs(ss ...string) ([]UUID, error) {
	if ss == nil {
		return nil, nil
	}
	out := make([]UUID, 0, len(ss))
	for i, s := range ss {
		u, err := ParseUUID(s)
		if err != nil {
			return nil, fmt.Errorf("UUID at index %d: %w", i, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// String returns the normalized form.
func (u UUID) String() string {
	return string(u)
}

// Short returns the first eight characters of long UUIDs, for display.
func (u UUID) Short() string {
	if len(u) > 8 {
		return string(u[:8])
	}
	return string(u)
}

// isSubset reports whether every element of sub is contained in set.
func isSubset(sub, set []UUID) bool {
	if len(sub) == 0 {
		return true
	}
	have := make(map[UUID]struct{}, len(set))
	for _, u := range set {
		have[u] = struct{}{}
	}
	for _, u := range sub {
		if _, ok := have[u]; !ok {
			return false
		}
	}
	return true
}

// shouldBeIncluded treats a nil filter as accept-all, else tests membership.
func shouldBeIncluded(u UUID, filter []UUID) bool {
	if filter == nil {
		return true
	}
	for _, f := range filter {
		if f == u {
			return true
		}
	}
	return false
}
