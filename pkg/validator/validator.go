package validator

import (
	"net/mail"
	"strings"
	"time"
	"unicode"
)

const (
	maxMessageLength = 2000
	maxPlaceNameLen  = 200
	maxPlaceAddrLen  = 500
	maxActivityTitle = 150
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var msgs []string
	for _, e := range v {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any errors
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Add adds a validation error
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// ValidatePassword validates password strength
func ValidatePassword(password string) ValidationErrors {
	var errors ValidationErrors

	if len(password) < 8 {
		errors.Add("password", "must be at least 8 characters")
		return errors
	}

	var hasLetter, hasNumber bool
	for _, c := range password {
		switch {
		case unicode.IsLetter(c):
			hasLetter = true
		case unicode.IsDigit(c):
			hasNumber = true
		}
	}

	if !hasLetter {
		errors.Add("password", "must contain at least one letter")
	}
	if !hasNumber {
		errors.Add("password", "must contain at least one number")
	}

	return errors
}

// ValidateName validates a user or activity display name
func ValidateName(name string) bool {
	name = strings.TrimSpace(name)
	return len(name) >= 2 && len(name) <= 100
}

// ValidateMessageBody checks a chat message body
func ValidateMessageBody(body string) ValidationErrors {
	var errors ValidationErrors
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		errors.Add("content", "cannot be empty")
	}
	if len(body) > maxMessageLength {
		errors.Add("content", "too long")
	}
	return errors
}

// ValidateProposalTime checks a proposed meetup instant
func ValidateProposalTime(when time.Time, now time.Time) ValidationErrors {
	var errors ValidationErrors
	if when.IsZero() {
		errors.Add("when", "is required")
		return errors
	}
	if when.Before(now) {
		errors.Add("when", "must be in the future")
	}
	return errors
}

// ValidatePlace checks a proposed meetup location
func ValidatePlace(name, address string, lat, lng float64) ValidationErrors {
	var errors ValidationErrors
	if strings.TrimSpace(name) == "" {
		errors.Add("name", "is required")
	}
	if len(name) > maxPlaceNameLen {
		errors.Add("name", "too long")
	}
	if len(address) > maxPlaceAddrLen {
		errors.Add("address", "too long")
	}
	if lat < -90 || lat > 90 {
		errors.Add("lat", "out of range")
	}
	if lng < -180 || lng > 180 {
		errors.Add("lng", "out of range")
	}
	return errors
}

// ValidateActivityTitle checks a group activity title
func ValidateActivityTitle(title string) ValidationErrors {
	var errors ValidationErrors
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		errors.Add("title", "cannot be empty")
	}
	if len(title) > maxActivityTitle {
		errors.Add("title", "too long")
	}
	return errors
}

// SanitizeString trims whitespace and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}

// SanitizeEmail normalizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
