package preflight

import (
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

func ntpOffset(pool string) (time.Duration, error) {
	resp, err := ntp.Query(pool)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", pool, err)
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("invalid NTP response from %s: %w", pool, err)
	}
	return resp.ClockOffset, nil
}
