package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bill.jpg", "bill.jpg"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\asha\lunch bill (1).pdf`, "lunch_bill_1_.pdf"},
		{"..", "bill"},
		{"", "bill"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestValidateBillNumber(t *testing.T) {
	assert.NoError(t, ValidateBillNumber("INV-2024/0042"))
	assert.Error(t, ValidateBillNumber(""))
	assert.Error(t, ValidateBillNumber("B\x00"))
	assert.Error(t, ValidateBillNumber(strings.Repeat("9", 65)))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Asha", SanitizeString("  As\x07ha\n"))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("asha@example.com"))
	assert.Error(t, ValidateEmail("asha@"))
}
