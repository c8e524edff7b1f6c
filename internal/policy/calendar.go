package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultTimezone is where weekends and holidays are observed.
	DefaultTimezone = "Asia/Kolkata"

	// freezeLayout is the format of news freeze window bounds.
	freezeLayout = "2006-01-02 15:04"

	dateLayout = "2006-01-02"

	defaultFreezeTag = "FREEZE"
)

// DefaultMarkets are the markets checked against the holiday calendars.
var DefaultMarkets = []string{"NSE", "BANKNIFTY", "FINNIFTY", "BTCUSD"}

// Calendar is the on-disk calendar policy.
//
//	markets:
//	  NSE: ["2024-03-08", "2024-03-25"]
//	news_freezes:
//	  - {start: "2024-04-05 09:55", end: "2024-04-05 10:30", tz: Asia/Kolkata, tag: RBI}
type Calendar struct {
	Markets     map[string][]string `yaml:"markets"`
	NewsFreezes []FreezeWindow      `yaml:"news_freezes"`
}

// FreezeWindow is one news freeze. Start and End are inclusive, in TZ (default UTC).
type FreezeWindow struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	TZ    string `yaml:"tz"`
	Tag   string `yaml:"tag"`
}

// LoadCalendar reads a calendar YAML file. An empty path yields an empty calendar.
func LoadCalendar(path string) (*Calendar, error) {
	cal := &Calendar{}
	if path == "" {
		return cal, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cal); err != nil {
		return nil, fmt.Errorf("failed to parse calendar %s: %w", path, err)
	}
	return cal, nil
}

// CalendarStatus is what the calendar says about one instant.
type CalendarStatus struct {
	Weekend       bool
	Holiday       bool
	HolidayReason string
	Freeze        bool
	FreezeTag     string
}

type freezeSpan struct {
	start, end time.Time
	tag        string
}

// Evaluator answers CalendarStatus queries against a parsed Calendar.
type Evaluator struct {
	loc      *time.Location
	markets  []string
	holidays map[string]map[string]bool
	freezes  []freezeSpan
}

// NewEvaluator validates cal and prepares it for evaluation.
//
// Parameters:
//   - cal: Parsed calendar
//   - timezone: Zone for weekend and holiday dates (default Asia/Kolkata)
//   - markets: Markets to check for holidays (default DefaultMarkets)
//
// Returns:
//   - *Evaluator, or an error naming the first invalid zone or window
func NewEvaluator(cal *Calendar, timezone string, markets []string) (*Evaluator, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar timezone %q: %w", timezone, err)
	}
	if len(markets) == 0 {
		markets = DefaultMarkets
	}

	e := &Evaluator{
		loc:      loc,
		holidays: make(map[string]map[string]bool),
	}

	seen := make(map[string]bool)
	for _, m := range markets {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		e.markets = append(e.markets, m)
	}

	for market, days := range cal.Markets {
		set := make(map[string]bool, len(days))
		for _, d := range days {
			d = strings.TrimSpace(d)
			if _, err := time.Parse(dateLayout, d); err != nil {
				return nil, fmt.Errorf("invalid holiday %q for market %s: %w", d, market, err)
			}
			set[d] = true
		}
		e.holidays[strings.ToUpper(market)] = set
	}

	for i, w := range cal.NewsFreezes {
		span, err := parseFreeze(w)
		if err != nil {
			return nil, fmt.Errorf("invalid news freeze #%d: %w", i, err)
		}
		e.freezes = append(e.freezes, span)
	}
	sort.SliceStable(e.freezes, func(i, j int) bool { return e.freezes[i].start.Before(e.freezes[j].start) })

	return e, nil
}

func parseFreeze(w FreezeWindow) (freezeSpan, error) {
	tz := w.TZ
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return freezeSpan{}, fmt.Errorf("timezone %q: %w", tz, err)
	}
	start, err := time.ParseInLocation(freezeLayout, strings.TrimSpace(w.Start), loc)
	if err != nil {
		return freezeSpan{}, fmt.Errorf("start %q: %w", w.Start, err)
	}
	end, err := time.ParseInLocation(freezeLayout, strings.TrimSpace(w.End), loc)
	if err != nil {
		return freezeSpan{}, fmt.Errorf("end %q: %w", w.End, err)
	}
	if end.Before(start) {
		return freezeSpan{}, fmt.Errorf("end %s before start %s", w.End, w.Start)
	}
	tag := w.Tag
	if tag == "" {
		tag = defaultFreezeTag
	}
	return freezeSpan{start: start, end: end, tag: tag}, nil
}

// Evaluate returns the calendar status at now.
func (e *Evaluator) Evaluate(now time.Time) CalendarStatus {
	local := now.In(e.loc)
	status := CalendarStatus{
		Weekend: local.Weekday() == time.Saturday || local.Weekday() == time.Sunday,
	}

	date := local.Format(dateLayout)
	var closed []string
	for _, m := range e.markets {
		if e.holidays[m][date] {
			closed = append(closed, m)
		}
	}
	if len(closed) > 0 {
		status.Holiday = true
		status.HolidayReason = fmt.Sprintf("holiday:%s@%s", strings.Join(closed, ","), date)
	}

	for _, f := range e.freezes {
		if !now.Before(f.start) && !now.After(f.end) {
			status.Freeze = true
			status.FreezeTag = f.tag
			break
		}
	}

	return status
}
