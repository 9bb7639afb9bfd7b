package flowtest

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/framework/helpers"
)

// SearchOption changes how FindInLogs matches text.
type SearchOption interface {
	apply(*searchOptions)
}

type searchOptions struct {
	ignoreCase bool
	regexp     bool
}

type ignoreCaseOption bool

func (o ignoreCaseOption) apply(s *searchOptions) { s.ignoreCase = bool(o) }

// IgnoreCase selects case-insensitive matching. This is the default.
func IgnoreCase(ignore bool) SearchOption { return ignoreCaseOption(ignore) }

type regexpOption bool

func (o regexpOption) apply(s *searchOptions) { s.regexp = bool(o) }

// Regexp treats the search text as a regular expression instead of a literal substring.
func Regexp(isRegexp bool) SearchOption { return regexpOption(isRegexp) }

func newSearchOptions(options []SearchOption) searchOptions {
	s := searchOptions{ignoreCase: true}
	for _, o := range options {
		o.apply(&s)
	}
	return s
}

// MatchLog reports whether text occurs in logText. With isRegexp, text is compiled as a Go
// regular expression and may match anywhere in the log; otherwise it is a literal substring.
func MatchLog(logText, text string, ignoreCase, isRegexp bool) (bool, error) {
	if isRegexp {
		pattern := text
		if ignoreCase {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid log search pattern %q: %w", text, err)
		}
		return re.MatchString(logText), nil
	}
	if ignoreCase {
		return strings.Contains(strings.ToLower(logText), strings.ToLower(text)), nil
	}
	return strings.Contains(logText, text), nil
}

// FindInLogs fetches the current text of one of a device's logs and reports whether text occurs
// in it. Failing to read the log, or an invalid pattern, fails the test.
func (b *Base) FindInLogs(device devices.DeviceType, log devices.LogType, text string, options ...SearchOption) bool {
	found, err := b.findInLogs(device, log, text, newSearchOptions(options))
	if err != nil {
		b.t.Errorf("%s", err)
		b.t.FailNow()
		return false
	}
	return found
}

func (b *Base) findInLogs(device devices.DeviceType, log devices.LogType, text string, s searchOptions) (bool, error) {
	logText, err := b.system.Log(device, log)
	if err != nil {
		return false, fmt.Errorf("cannot read %s log on %s: %w", log, device, err)
	}
	found, err := MatchLog(logText, text, s.ignoreCase, s.regexp)
	if err != nil {
		return false, err
	}
	result := helpers.IfElse(found, "FOUND", "NOT FOUND")
	b.Debug(fmt.Sprintf("Looking for '%s' in %s log on %s ... %s", text, log, device, result))
	return found, nil
}

// pollLogs searches the log at once and then at each interval until text is found or the timeout
// elapses. A failed search stops polling and is returned.
func (b *Base) pollLogs(
	device devices.DeviceType,
	log devices.LogType,
	text string,
	s searchOptions,
	timeout, interval time.Duration,
) (bool, error) {
	var lastErr error
	check := func() bool {
		found, err := b.findInLogs(device, log, text, s)
		if err != nil {
			lastErr = err
			return true
		}
		return found
	}
	if check() {
		return lastErr == nil, lastErr
	}
	seen := helpers.PollForSpecificResultValue(check, timeout, interval, true)
	return seen && lastErr == nil, lastErr
}

// RequireInLogsEventually polls the log until text appears in it, and fails the test if it has
// not appeared when the timeout elapses. A failed search fails the test at once.
func (b *Base) RequireInLogsEventually(
	device devices.DeviceType,
	log devices.LogType,
	text string,
	timeout, interval time.Duration,
	options ...SearchOption,
) {
	seen, err := b.pollLogs(device, log, text, newSearchOptions(options), timeout, interval)
	if err != nil {
		b.t.Errorf("%s", err)
		b.t.FailNow()
		return
	}
	if !seen {
		b.t.Errorf("'%s' did not appear in %s log on %s within %s", text, log, device, timeout)
		b.t.FailNow()
	}
}

// AssertNotInLogs polls the log for the whole timeout, and fails the test, without stopping it,
// if text ever appears. It returns true if the text was never seen. The log is searched once
// before polling starts, and a failed search stops the test.
func (b *Base) AssertNotInLogs(
	device devices.DeviceType,
	log devices.LogType,
	text string,
	timeout, interval time.Duration,
	options ...SearchOption,
) bool {
	seen, err := b.pollLogs(device, log, text, newSearchOptions(options), timeout, interval)
	if err != nil {
		b.t.Errorf("%s", err)
		b.t.FailNow()
		return false
	}
	if seen {
		b.t.Errorf("'%s' unexpectedly appeared in %s log on %s", text, log, device)
		return false
	}
	return true
}
