package templates

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrUnresolved is returned when a placeholder has no value in the mapping.
var ErrUnresolved = errors.New("unresolved placeholders")

var (
	percentOrPlaceholder = regexp.MustCompile(`%(?:\(\w+\)s)?`)
	leadingPlaceholder   = regexp.MustCompile(`^%\((\w+)\)s`)
	normalizer           = strings.NewReplacer("\n", "", "\r", "")
)

// Escape doubles every % that does not start a %(key)s placeholder, so literal percent
// signs survive Expand.
func Escape(s string) string {
	return percentOrPlaceholder.ReplaceAllStringFunc(s, func(m string) string {
		if m == "%" {
			return "%%"
		}
		return m
	})
}

// Expand substitutes every %(key)s placeholder in s with values[key] and collapses %% to %.
// Placeholders without a value are reported as ErrUnresolved, never left in place.
func Expand(s string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	missing := map[string]struct{}{}
	for i := 0; i < len(s); {
		if s[i] != '%' {
			b.WriteByte(s[i])
			i++
			continue
		}
		if strings.HasPrefix(s[i:], "%%") {
			b.WriteByte('%')
			i += 2
			continue
		}
		m := leadingPlaceholder.FindStringSubmatch(s[i:])
		if m == nil {
			return "", fmt.Errorf("unsupported format directive at offset %d", i)
		}
		if v, ok := values[m[1]]; ok {
			b.WriteString(v)
		} else {
			missing[m[1]] = struct{}{}
		}
		i += len(m[0])
	}
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("%w: %s", ErrUnresolved, strings.Join(keys, ", "))
	}
	return b.String(), nil
}

// Render escapes literal percent signs in a template body and expands its placeholders.
func Render(body string, values map[string]string) (string, error) {
	return Expand(Escape(body), values)
}

// Normalize strips line endings and surrounding whitespace so that content differing only
// in those does not count as a change.
func Normalize(s string) string {
	return strings.TrimSpace(normalizer.Replace(s))
}
