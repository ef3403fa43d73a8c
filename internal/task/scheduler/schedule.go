package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind tells the runner how to space cycles.
type SpecKind int

const (
	// SpecCron runs cycles on a cron timetable (wall clock).
	SpecCron SpecKind = iota
	// SpecInterval waits Every after each cycle finishes.
	SpecInterval
)

// ParsedSpec is a validated poll.schedule value.
//
// The changelog page rarely changes more than a few times a day, so most
// setups poll on a short interval:
//
//	"30s", "2m"              wait this long after each check
//	"00:05"                  same, written as HH:MM (5 minutes)
//	"*/5 * * * *"            check on the wall clock, every 5 minutes
//	"*/20 * * * * *"         six fields: leading seconds
//	"@hourly", "@every 10m"  cron descriptors
//
// "cron:" and "interval:" (alias "every:") force one reading when a value
// is ambiguous.
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
	// Source names the accepted form: "cron", "duration" or "hhmm".
	Source string
}

var errEmptySchedule = errors.New(`schedule is empty (try "30s" or "*/5 * * * *")`)

// errNotInterval marks a value that is not an interval at all, as opposed
// to a well-formed but non-positive one.
var errNotInterval = errors.New("not a poll interval")

var hhmm = regexp.MustCompile(`^(\d{1,3}):([0-5]\d)$`)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (p ParsedSpec) String() string {
	if p.Kind == SpecCron {
		return "cron " + p.Cron
	}
	return "every " + p.Every.String()
}

// ParseSchedule accepts the forms listed on ParsedSpec.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, errEmptySchedule
	}

	if rest, ok := cutPrefixFold(s, "cron:"); ok {
		return parseCron(rest)
	}
	for _, prefix := range []string{"interval:", "every:"} {
		if rest, ok := cutPrefixFold(s, prefix); ok {
			return parseInterval(rest)
		}
	}

	// Fields separated by blanks or a descriptor can only be cron.
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	spec, err := parseInterval(s)
	if errors.Is(err, errNotInterval) {
		return ParsedSpec{}, fmt.Errorf(
			"schedule %q is neither a poll interval (\"30s\", \"00:05\") nor a cron expression (\"*/5 * * * *\")", raw)
	}
	return spec, err
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func parseCron(expr string) (ParsedSpec, error) {
	if expr == "" {
		return ParsedSpec{}, errEmptySchedule
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return ParsedSpec{}, fmt.Errorf("cron schedule %q: %w", expr, err)
	}
	return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
}

func parseInterval(v string) (ParsedSpec, error) {
	if v == "" {
		return ParsedSpec{}, errEmptySchedule
	}
	spec := ParsedSpec{Kind: SpecInterval, Source: "duration"}
	if m := hhmm.FindStringSubmatch(v); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		spec.Every = time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute
		spec.Source = "hhmm"
	} else {
		d, err := time.ParseDuration(v)
		if err != nil {
			return ParsedSpec{}, fmt.Errorf("poll interval %q: use a Go duration like \"30s\" or HH:MM like \"00:05\": %w", v, errNotInterval)
		}
		spec.Every = d
	}
	if spec.Every <= 0 {
		return ParsedSpec{}, fmt.Errorf("poll interval %q must be longer than zero", v)
	}
	return spec, nil
}
