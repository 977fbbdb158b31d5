package identity

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// RequestContext carries the contextual facts a permission check evaluates
// constraints against. Anomaly or power verdicts from external models are
// not part of this context; they are handled above the registry.
type RequestContext struct {
	Time     time.Time `json:"time"`
	IP       string    `json:"ip,omitempty"`
	Location string    `json:"location,omitempty"`
}

// Constraints narrow when and where a granted permission applies. The set
// of constraint kinds is closed; unknown keys in an incoming grant are a
// decode-time error, not silently ignored.
type Constraints struct {
	TimeRange  *TimeRange `json:"timeRange,omitempty"`
	AllowedIPs []string   `json:"allowedIPs,omitempty"` // exact IPs or CIDR blocks
	Location   string     `json:"location,omitempty"`
}

// Validate checks constraint values at grant time so a malformed grant
// fails loudly instead of denying every later check.
func (c *Constraints) Validate() error {
	if c == nil {
		return nil
	}
	if tr := c.TimeRange; tr != nil {
		if tr.Start < 0 || tr.Start >= 24*60 || tr.End < 0 || tr.End >= 24*60 {
			return fmt.Errorf("%w: time range %s out of bounds", ErrInvalidConstraint, tr)
		}
	}
	for _, entry := range c.AllowedIPs {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("%w: bad CIDR %q", ErrInvalidConstraint, entry)
			}
		} else if net.ParseIP(entry) == nil {
			return fmt.Errorf("%w: bad IP %q", ErrInvalidConstraint, entry)
		}
	}
	return nil
}

// Check evaluates every configured constraint against the request context.
// The first failing constraint determines the denial reason; an empty
// constraint set always passes.
func (c *Constraints) Check(rc RequestContext) (bool, string) {
	if c == nil {
		return true, ""
	}
	if c.TimeRange != nil && !c.TimeRange.Contains(rc.Time) {
		return false, ReasonTimeRange
	}
	if len(c.AllowedIPs) > 0 && !ipAllowed(rc.IP, c.AllowedIPs) {
		return false, ReasonIPNotAllowed
	}
	if c.Location != "" && rc.Location != c.Location {
		return false, ReasonLocationMismatch
	}
	return true, ""
}

func ipAllowed(ipStr string, allowed []string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, entry := range allowed {
		if strings.Contains(entry, "/") {
			if _, cidr, err := net.ParseCIDR(entry); err == nil && cidr.Contains(ip) {
				return true
			}
		} else if allowedIP := net.ParseIP(entry); allowedIP != nil && allowedIP.Equal(ip) {
			return true
		}
	}
	return false
}

// TimeRange is a daily clock window in minutes since midnight.
//
// Start < End is a same-day window, inclusive of Start and exclusive of
// End. Start > End wraps past midnight: [Start,24:00) plus [00:00,End), so
// "22:00-06:00" keeps access overnight. Start == End never matches.
//
// On the wire it is the "HH:MM-HH:MM" string; the {"start","end"}
// minutes-since-midnight object form is accepted on decode as well.
type TimeRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// MarshalJSON renders the window in its "HH:MM-HH:MM" form.
func (tr TimeRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(tr.String())
}

// UnmarshalJSON accepts either "HH:MM-HH:MM" or {"start":m,"end":m}.
func (tr *TimeRange) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseTimeRange(s)
		if err != nil {
			return err
		}
		*tr = parsed
		return nil
	}
	var raw struct {
		Start int `json:"start"`
		End   int `json:"end"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*tr = TimeRange{Start: raw.Start, End: raw.End}
	return nil
}

// ParseTimeRange parses "HH:MM-HH:MM" into a TimeRange.
func ParseTimeRange(s string) (TimeRange, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return TimeRange{}, fmt.Errorf("%w: time range must be HH:MM-HH:MM, got %q", ErrInvalidConstraint, s)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return TimeRange{}, err
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return TimeRange{}, err
	}
	return TimeRange{Start: start, End: end}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: bad clock time %q", ErrInvalidConstraint, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether the time-of-day of t falls inside the window.
func (tr TimeRange) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	switch {
	case tr.Start < tr.End:
		return m >= tr.Start && m < tr.End
	case tr.Start > tr.End:
		return m >= tr.Start || m < tr.End
	default:
		return false
	}
}

// String renders the window back into HH:MM-HH:MM form.
func (tr TimeRange) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", tr.Start/60, tr.Start%60, tr.End/60, tr.End%60)
}
