package proclog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const prefix = "proc::"

// ParseLine parses a single log line. The second return value is false when
// the line does not match the grammar; that is not an error condition.
func ParseLine(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, prefix) {
		return Entry{}, false
	}
	rest := line[len(prefix):]

	// Function name: [A-Za-z0-9_]+ up to the opening paren.
	open := strings.IndexByte(rest, '(')
	if open <= 0 {
		return Entry{}, false
	}
	function := rest[:open]
	if !isIdent(function) {
		return Entry{}, false
	}
	rest = rest[open+1:]

	// Parameters end at the first ")@"; parameter values never contain
	// that sequence in practice.
	close := strings.Index(rest, ")@")
	if close < 0 {
		return Entry{}, false
	}
	rawParams := strings.TrimSpace(rest[:close])
	timestamp := rest[close+2:]
	if timestamp == "" {
		return Entry{}, false
	}

	// The timestamp may carry a trailing terminator character.
	if z := strings.IndexByte(timestamp, 'Z'); z >= 0 {
		timestamp = timestamp[:z]
	}

	params := make(map[string]any)
	if rawParams != "" {
		for _, part := range splitParams(rawParams) {
			key, value, ok := strings.Cut(part, "=")
			if !ok {
				continue
			}
			params[strings.TrimSpace(key)] = coerce(strings.TrimSpace(value))
		}
	}

	return Entry{
		Function:  function,
		Params:    params,
		RawParams: rawParams,
		Timestamp: strings.TrimSpace(timestamp),
	}, true
}

// Parse reads one instruction per line from r. Entries keep their 1-based
// physical line number as Order; unparseable lines are skipped without
// disturbing the numbering of later entries.
func Parse(r io.Reader) (Macro, error) {
	var macro Macro
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		entry, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		entry.Order = lineNo
		macro = append(macro, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	return macro, nil
}

// ParseFile parses a log file. A read failure returns a nil macro and an
// error, distinguishable from a readable file that simply contains no
// proc:: lines (empty macro, nil error).
func ParseFile(path string) (Macro, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is a user-chosen log file
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// splitParams splits a parameter list on commas, ignoring commas inside
// double-quoted values.
func splitParams(s string) []string {
	var (
		parts    []string
		start    int
		inQuotes bool
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts
}

// coerce applies value coercion in priority order: boolean, then numeric
// (unsigned digits with at most one dot), then string with one layer of
// surrounding double quotes stripped. Coercion failure falls back to the
// raw trimmed string.
func coerce(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}

	if isNumeric(value) {
		if strings.Contains(value, ".") {
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				return f
			}
		} else {
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				return n
			}
		}
		return value
	}

	return strings.Trim(value, `"`)
}

// isNumeric reports whether s is all digits with at most one dot. Signs are
// not numeric here; "-3" stays a string, matching the log emitters.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	dots := 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
		case s[i] == '.':
			dots++
			if dots > 1 {
				return false
			}
		default:
			return false
		}
	}
	return dots < len(s)
}

func isIdent(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			continue
		}
		return false
	}
	return s != ""
}
