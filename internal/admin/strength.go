package admin

import "unicode"

type Strength int

const (
	Weak Strength = iota
	Medium
	Strong
)

func (s Strength) String() string {
	switch s {
	case Medium:
		return "Medium"
	case Strong:
		return "Strong"
	default:
		return "Weak"
	}
}

// PasswordStrength rates password by how many of five criteria it meets:
// length of at least 8, an upper-case letter, a lower-case letter, a digit
// and a symbol. Three criteria give Medium, all five give Strong.
func PasswordStrength(password string) (Strength, int) {
	var upper, lower, digit, other bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}

	met := 0
	for _, ok := range []bool{len(password) >= 8, upper, lower, digit, other} {
		if ok {
			met++
		}
	}

	switch {
	case met == 5:
		return Strong, met
	case met >= 3:
		return Medium, met
	default:
		return Weak, met
	}
}
