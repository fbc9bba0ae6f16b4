package crud

import (
	"strconv"
	"strings"

	"gorm.io/gorm/clause"

	"github.com/xelth-com/riveredgego/internal/models"
)

// Filter turns one query parameter into a predicate.
type Filter func(value string) (clause.Expression, error)

func col(name string) clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: name}
}

// Equals matches the column exactly.
func Equals(column string) Filter {
	return func(value string) (clause.Expression, error) {
		return clause.Eq{Column: col(column), Value: value}, nil
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Contains matches a substring of the column.
func Contains(column string) Filter {
	return func(value string) (clause.Expression, error) {
		return clause.Expr{
			SQL:  "? LIKE ? ESCAPE '\\'",
			Vars: []interface{}{col(column), "%" + likeEscaper.Replace(value) + "%"},
		}, nil
	}
}

// OneOf accepts only the listed values.
func OneOf(column string, allowed ...string) Filter {
	return func(value string) (clause.Expression, error) {
		for _, a := range allowed {
			if a == value {
				return clause.Eq{Column: col(column), Value: value}, nil
			}
		}
		return nil, fieldError(column, "must be one of %s", strings.Join(allowed, ", "))
	}
}

// Status matches a status given in any known spelling, including rows
// still stored under a legacy spelling.
func Status(column string) Filter {
	return func(value string) (clause.Expression, error) {
		s, ok := models.NormalizeStatus(value)
		if !ok {
			return nil, fieldError(column, "unknown status %q", value)
		}
		spellings := s.Spellings()
		values := make([]interface{}, len(spellings))
		for i, sp := range spellings {
			values[i] = sp
		}
		return clause.IN{Column: col(column), Values: values}, nil
	}
}

// Bool matches a boolean column given as true/false/1/0.
func Bool(column string) Filter {
	return func(value string) (clause.Expression, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fieldError(column, "must be true or false")
		}
		return clause.Eq{Column: col(column), Value: b}, nil
	}
}
