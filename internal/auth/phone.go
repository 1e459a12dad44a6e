package auth

import (
	"regexp"
	"strings"

	"callstack/internal/domain"
)

var (
	e164Regex = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
	otpRegex  = regexp.MustCompile(`^\d{6}$`)
)

// NormalizePhone turns user input into E.164. Numbers typed without a leading "+"
// get countryCode prepended unless they already start with it.
func NormalizePhone(value string, countryCode string) (string, error) {
	trimmed := strings.TrimSpace(value)
	digits := onlyDigits(trimmed)
	if digits == "" {
		return "", domain.ErrInvalidPhone
	}

	countryCode = onlyDigits(countryCode)
	if countryCode == "" {
		countryCode = "1"
	}

	phone := "+" + digits
	if !strings.HasPrefix(trimmed, "+") && !strings.HasPrefix(digits, countryCode) {
		phone = "+" + countryCode + digits
	}
	if !e164Regex.MatchString(phone) {
		return "", domain.ErrInvalidPhone
	}
	return phone, nil
}

// ValidateOTP strips separators and requires exactly six digits.
func ValidateOTP(code string) (string, error) {
	digits := onlyDigits(code)
	if !otpRegex.MatchString(digits) {
		return "", domain.ErrInvalidOTP
	}
	return digits, nil
}

func onlyDigits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
