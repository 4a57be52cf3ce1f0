package wsjtx

import "strings"

// modeSymbols maps the single character the decode window uses for a mode to
// the mode's name.
var modeSymbols = map[string]string{
	"~": "FT8",
	"+": "FT4",
	"#": "JT65",
	"@": "JT9",
	":": "Q65",
	"&": "MSK144",
	"$": "JT4",
	"`": "FST4",
}

// ModeName normalizes a mode as found in a Decode message. Symbols are
// translated, names are upper-cased and returned as is.
func ModeName(mode string) string {
	mode = strings.TrimSpace(mode)
	if name, ok := modeSymbols[mode]; ok {
		return name
	}
	return strings.ToUpper(mode)
}

// ModeSymbol is the inverse of ModeName. Unknown names return "".
func ModeSymbol(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	for sym, n := range modeSymbols {
		if n == name {
			return sym
		}
	}
	return ""
}
