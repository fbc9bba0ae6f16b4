package codegen

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/models"
)

// date token -> Go layout
var dateLayouts = map[string]string{
	"YYYY":     "2006",
	"YY":       "06",
	"MM":       "01",
	"DD":       "02",
	"YYYYMM":   "200601",
	"YYYYMMDD": "20060102",
	"YYMMDD":   "060102",
}

// Validate checks a component list and fills counter defaults.
// A rule renders exactly one counter.
func Validate(components []models.CodeComponent) ([]models.CodeComponent, error) {
	if len(components) == 0 {
		return nil, apperr.Validation("code rule needs at least one component")
	}

	out := make([]models.CodeComponent, len(components))
	counters := 0
	for i, c := range components {
		switch c.Type {
		case models.ComponentText:
			if c.Value == "" {
				return nil, apperr.Validation("component %d: text value is empty", i)
			}
		case models.ComponentDate:
			if _, ok := dateLayouts[c.Format]; !ok {
				return nil, apperr.Validation("component %d: unsupported date format %q", i, c.Format)
			}
		case models.ComponentCounter:
			counters++
			if c.Width < 0 || c.Width > 18 {
				return nil, apperr.Validation("component %d: width must be between 0 and 18", i)
			}
			if c.Step == 0 {
				c.Step = 1
			}
			if c.Step < 0 {
				return nil, apperr.Validation("component %d: step must be positive", i)
			}
			if c.Initial == nil {
				start := c.Start()
				c.Initial = &start
			}
			if *c.Initial < 0 {
				return nil, apperr.Validation("component %d: initial must not be negative", i)
			}
			if c.Reset == "" {
				c.Reset = models.ResetNever
			}
			switch c.Reset {
			case models.ResetNever, models.ResetDaily, models.ResetMonthly, models.ResetYearly:
			default:
				return nil, apperr.Validation("component %d: unknown reset policy %q", i, c.Reset)
			}
			if c.Pad && c.PadChar == "" {
				c.PadChar = "0"
			}
			if len([]rune(c.PadChar)) > 1 {
				return nil, apperr.Validation("component %d: pad_char must be a single character", i)
			}
		default:
			return nil, apperr.Validation("component %d: unknown type %q", i, c.Type)
		}
		out[i] = c
	}
	if counters != 1 {
		return nil, apperr.Validation("code rule needs exactly one counter component, got %d", counters)
	}
	return out, nil
}

// Render concatenates the components for value at now. now must already be
// in the configured zone. A counter wider than its width is rendered in full.
func Render(components []models.CodeComponent, now time.Time, value int64) string {
	var b strings.Builder
	for _, c := range components {
		switch c.Type {
		case models.ComponentText:
			b.WriteString(c.Value)
		case models.ComponentDate:
			b.WriteString(now.Format(dateLayouts[c.Format]))
		case models.ComponentCounter:
			b.WriteString(formatCounter(c, value))
		}
	}
	return b.String()
}

func formatCounter(c models.CodeComponent, value int64) string {
	digits := strconv.FormatInt(value, 10)
	if !c.Pad || len(digits) >= c.Width {
		return digits
	}
	return strings.Repeat(c.PadChar, c.Width-len(digits)) + digits
}

var tokenPattern = regexp.MustCompile(`\{([A-Z]+)(?::(\d+))?\}`)

// ParseExpression converts a legacy template such as "SO{YYYYMMDD}{SEQ:4}"
// into components. SEQ:n becomes a zero-padded counter of width n.
func ParseExpression(expr string, initial, step int64, reset string) ([]models.CodeComponent, error) {
	var components []models.CodeComponent
	last := 0

	for _, m := range tokenPattern.FindAllStringSubmatchIndex(expr, -1) {
		if m[0] > last {
			components = append(components, models.CodeComponent{Type: models.ComponentText, Value: expr[last:m[0]]})
		}
		token := expr[m[2]:m[3]]

		switch {
		case token == "SEQ":
			width := 4
			if m[4] >= 0 {
				w, err := strconv.Atoi(expr[m[4]:m[5]])
				if err != nil {
					return nil, apperr.Validation("invalid SEQ width in %q", expr)
				}
				width = w
			}
			components = append(components, models.CodeComponent{
				Type:    models.ComponentCounter,
				Width:   width,
				Pad:     true,
				PadChar: "0",
				Initial: &initial,
				Step:    step,
				Reset:   reset,
			})
		case dateLayouts[token] != "":
			components = append(components, models.CodeComponent{Type: models.ComponentDate, Format: token})
		default:
			return nil, apperr.Validation("unknown token {%s} in %q", token, expr)
		}
		last = m[1]
	}
	if last < len(expr) {
		components = append(components, models.CodeComponent{Type: models.ComponentText, Value: expr[last:]})
	}

	return Validate(components)
}
