package queryir

import (
	"fmt"
	"regexp"

	"github.com/roach88/factmirror/internal/fact"
)

// attrNamePattern restricts attribute names to identifiers.
// Attribute names end up inside a JSON path in SQL, so nothing else is allowed.
var attrNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateAttr reports whether name is a legal attribute name.
func ValidateAttr(name string) error {
	if !attrNamePattern.MatchString(name) {
		return fmt.Errorf("invalid attribute name %q", name)
	}
	return nil
}

// Validate checks a predicate tree before compilation.
// Returns the first problem found, walking predicates depth-first.
func Validate(p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case Eq:
		return validateComparison("eq", pred.Attr, pred.Value)
	case Gt:
		return validateComparison("gt", pred.Attr, pred.Value)
	case Lt:
		return validateComparison("lt", pred.Attr, pred.Value)
	case Le:
		return validateComparison("le", pred.Attr, pred.Value)
	case Exists:
		return ValidateAttr(pred.Attr)
	case And:
		for i, sub := range pred.Predicates {
			if sub == nil {
				return fmt.Errorf("and[%d]: nil predicate", i)
			}
			if err := Validate(sub); err != nil {
				return fmt.Errorf("and[%d]: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func validateComparison(op, attr string, v fact.Value) error {
	if err := ValidateAttr(attr); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch v.(type) {
	case fact.String, fact.Int, fact.Bool:
		return nil
	case nil:
		return fmt.Errorf("%s %s: value is required", op, attr)
	default:
		return fmt.Errorf("%s %s: %T cannot be compared", op, attr, v)
	}
}
