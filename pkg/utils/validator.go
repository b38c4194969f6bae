package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	unsafeFileChar = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

const maxBillNumberLength = 64

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateBillNumber checks a user-entered bill number before it becomes a primary key
func ValidateBillNumber(billNumber string) error {
	if billNumber == "" {
		return fmt.Errorf("bill number is required")
	}
	if len(billNumber) > maxBillNumberLength {
		return fmt.Errorf("bill number exceeds %d characters", maxBillNumberLength)
	}
	if controlChars.MatchString(billNumber) {
		return fmt.Errorf("bill number contains control characters")
	}
	return nil
}

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// SanitizeFilename reduces an uploaded filename to a safe base name
func SanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeFileChar.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "bill"
	}
	return base
}
