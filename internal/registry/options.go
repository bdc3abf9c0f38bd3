package registry

import "fmt"

// Placeholder is the reserved first entry of the bulk-select option list.
const Placeholder = "Select Options..."

var ordinalWords = []string{
	"First", "Second", "Third", "Fourth", "Fifth", "Sixth", "Seventh", "Eighth",
}

// nthOptions builds the option labels for selecting the Nth channel of
// every resource, sized to the maximum channel count across resources.
func nthOptions(maxChannels int) []string {
	options := make([]string, 0, maxChannels+1)
	options = append(options, Placeholder)
	for i := 0; i < maxChannels; i++ {
		options = append(options, fmt.Sprintf("%s Datachannels", ordinal(i+1)))
	}
	return options
}

// ordinal spells 1..8 as words and falls back to numeric suffix form.
func ordinal(n int) string {
	if n >= 1 && n <= len(ordinalWords) {
		return ordinalWords[n-1]
	}
	suffix := "th"
	switch {
	case n%10 == 1 && n != 11:
		suffix = "st"
	case n%10 == 2 && n != 12:
		suffix = "nd"
	case n%10 == 3 && n != 13:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
