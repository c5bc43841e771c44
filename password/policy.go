package password

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Policy is the registration-time password rule set.
type Policy struct {
	MinLength     int
	MaxLength     int
	RequireLetter bool
	RequireDigit  bool
}

// DefaultPolicy returns a 10..128 character policy requiring a letter and
// a digit.
func DefaultPolicy() Policy {
	return Policy{MinLength: 10, MaxLength: 128, RequireLetter: true, RequireDigit: true}
}

// Check validates password and its confirmation. It returns a field name to
// message map, empty when the input is acceptable. Lengths count runes.
func (p Policy) Check(password, confirmation string) map[string]string {
	problems := make(map[string]string)

	n := utf8.RuneCountInString(password)
	switch {
	case n == 0:
		problems["password"] = "is required"
	case p.MinLength > 0 && n < p.MinLength:
		problems["password"] = fmt.Sprintf("must be at least %d characters", p.MinLength)
	case p.MaxLength > 0 && n > p.MaxLength:
		problems["password"] = fmt.Sprintf("must be at most %d characters", p.MaxLength)
	default:
		var letter, digit bool
		for _, r := range password {
			letter = letter || unicode.IsLetter(r)
			digit = digit || unicode.IsDigit(r)
		}
		if p.RequireLetter && !letter {
			problems["password"] = "must contain a letter"
		} else if p.RequireDigit && !digit {
			problems["password"] = "must contain a digit"
		}
	}

	if password != confirmation {
		problems["password_confirmation"] = "does not match password"
	}

	return problems
}
