package services

import (
	"context"
	"strconv"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func defaultIfEmpty(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// formatAmount renders a monetary amount with thousands separators, matching
// the formatting the mobile app expects ("1,250,000").
func formatAmount(amount int64) string {
	raw := strconv.FormatInt(amount, 10)
	negative := false
	if len(raw) > 0 && raw[0] == '-' {
		negative = true
		raw = raw[1:]
	}

	var out []byte
	for i, digit := range []byte(raw) {
		if i > 0 && (len(raw)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digit)
	}
	if negative {
		return "-" + string(out)
	}
	return string(out)
}
