package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	crondesc "github.com/lnquy/cron"
	"github.com/robfig/cron/v3"
)

// Job cron strings are five-field expressions evaluated in UTC unless they
// carry their own CRON_TZ prefix.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

const starBit = 1 << 63

// describer renders the shifted fields in English with a 24-hour clock.
var describer = sync.OnceValues(func() (*crondesc.ExpressionDescriptor, error) {
	return crondesc.NewDescriptor(crondesc.Use24HourTimeFormat(true))
})

func Parse(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("cron expression cannot be empty")
	}
	if !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
		expr = "CRON_TZ=UTC " + expr
	}

	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// Next returns the first activation of expr strictly after from.
func Next(expr string, from time.Time) (time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Describe renders expr as an English phrase such as "At 03:00, only on Monday".
// Times are shown in loc; a nil loc keeps the expression's own zone.
func Describe(expr string, loc *time.Location) (string, error) {
	return DescribeAt(expr, loc, time.Now())
}

// DescribeAt is Describe with the zone offsets taken at ref.
func DescribeAt(expr string, loc *time.Location, ref time.Time) (string, error) {
	sched, err := Parse(expr)
	if err != nil {
		return "", err
	}

	switch s := sched.(type) {
	case cron.ConstantDelaySchedule:
		return "Every " + formatDelay(s.Delay), nil
	case *cron.SpecSchedule:
		return describeSpec(s, loc, ref)
	default:
		return "", fmt.Errorf("unsupported schedule type %T", sched)
	}
}

type fields struct {
	minutes []int
	hours   []int
	doms    []int
	months  []int
	dows    []int
	domStar bool
	dowStar bool
}

func describeSpec(s *cron.SpecSchedule, loc *time.Location, ref time.Time) (string, error) {
	f := fields{
		minutes: bitList(s.Minute, 0, 59),
		hours:   bitList(s.Hour, 0, 23),
		doms:    bitList(s.Dom, 1, 31),
		months:  bitList(s.Month, 1, 12),
		dows:    bitList(s.Dow, 0, 6),
		domStar: s.Dom&starBit != 0,
		dowStar: s.Dow&starBit != 0,
	}

	suffix := ""
	if loc != nil && s.Location != nil {
		shift := offsetMinutes(loc, ref) - offsetMinutes(s.Location, ref)
		if !f.shift(shift) {
			suffix = " (" + s.Location.String() + ")"
		}
	}

	desc, err := describer()
	if err != nil {
		return "", err
	}
	phrase, err := desc.ToDescription(f.expr(), crondesc.Locale_en)
	if err != nil {
		return "", fmt.Errorf("failed to describe %q: %w", f.expr(), err)
	}
	return phrase + suffix, nil
}

// shift moves the hour and minute fields by the given number of minutes. It
// reports false when the fields cannot be expressed in the shifted zone.
func (f *fields) shift(minutes int) bool {
	if minutes == 0 || len(f.hours) == 24 && (minutes%60 == 0 || len(f.minutes) == 60) {
		return true
	}

	dayShift := 0
	switch {
	case minutes%60 == 0:
		if len(f.hours) == 1 {
			h := f.hours[0] + minutes/60
			dayShift = floorDiv(h, 24)
		}
		for i, h := range f.hours {
			f.hours[i] = mod(h+minutes/60, 24)
		}
		sort.Ints(f.hours)
	case len(f.hours) == 1 && len(f.minutes) == 1:
		total := f.hours[0]*60 + f.minutes[0] + minutes
		dayShift = floorDiv(total, 24*60)
		total = mod(total, 24*60)
		f.hours[0], f.minutes[0] = total/60, total%60
	default:
		return false
	}

	if dayShift != 0 && !f.dowStar {
		for i, d := range f.dows {
			f.dows[i] = mod(d+dayShift, 7)
		}
		sort.Ints(f.dows)
	}
	return true
}

// expr writes the fields back as a five-field cron expression.
func (f *fields) expr() string {
	return strings.Join([]string{
		timeField(f.minutes, 60),
		timeField(f.hours, 24),
		dayField(f.doms, f.domStar),
		dayField(f.months, len(f.months) == 12),
		dayField(f.dows, f.dowStar),
	}, " ")
}

func timeField(vals []int, span int) string {
	if len(vals) == span {
		return "*"
	}
	if step, ok := stepOf(vals, span); ok {
		return "*/" + strconv.Itoa(step)
	}
	return joinInts(vals)
}

// dayField collapses runs of three or more consecutive values into ranges.
func dayField(vals []int, all bool) string {
	if all {
		return "*"
	}
	var parts []string
	for i := 0; i < len(vals); {
		j := i
		for j+1 < len(vals) && vals[j+1] == vals[j]+1 {
			j++
		}
		if j-i >= 2 {
			parts = append(parts, fmt.Sprintf("%d-%d", vals[i], vals[j]))
		} else {
			for _, v := range vals[i : j+1] {
				parts = append(parts, strconv.Itoa(v))
			}
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

func bitList(bits uint64, min, max int) []int {
	var out []int
	for i := min; i <= max; i++ {
		if bits&(1<<uint(i)) != 0 {
			out = append(out, i)
		}
	}
	return out
}

// stepOf detects ranges written as */n that start at zero and cover the whole span.
func stepOf(vals []int, span int) (int, bool) {
	if len(vals) < 2 || vals[0] != 0 {
		return 0, false
	}
	step := vals[1] - vals[0]
	for i := 2; i < len(vals); i++ {
		if vals[i]-vals[i-1] != step {
			return 0, false
		}
	}
	if vals[len(vals)-1]+step < span {
		return 0, false
	}
	return step, true
}

func offsetMinutes(loc *time.Location, ref time.Time) int {
	_, off := ref.In(loc).Zone()
	return off / 60
}

func formatDelay(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func mod(a, b int) int {
	return ((a % b) + b) % b
}
