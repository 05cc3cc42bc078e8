package service

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 20
	codeLength        = 6
)

var (
	validate     = validator.New()
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isValidEmail exige la forma local@dominio.tld y un email RFC valido.
func isValidEmail(email string) bool {
	if !emailPattern.MatchString(email) {
		return false
	}
	return validate.Var(email, "email") == nil
}

// isStrongPassword: 8 a 20 caracteres con al menos una mayuscula, una minuscula y un digito.
func isStrongPassword(password string) bool {
	n := len([]rune(password))
	if n < minPasswordLength || n > maxPasswordLength {
		return false
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return upper && lower && digit
}

func isValidOTPCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for _, r := range code {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

type field struct {
	name  string
	value string
}

// missingFields devuelve los nombres de los campos vacios, en el orden recibido.
func missingFields(fields ...field) error {
	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingFieldsError{Fields: missing}
}
