// Package validation provides input validation for the Trunggian API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxDescriptionLength bounds free-text fields (descriptions, dispute text)
const MaxDescriptionLength = 5000

var (
	// customerIDRegex validates platform customer IDs
	customerIDRegex = regexp.MustCompile(`^cus_[a-f0-9]{24}$`)
	// usernameRegex validates customer usernames
	usernameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_.]{2,31}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidCustomerID checks if a string is a well-formed customer ID
func IsValidCustomerID(id string) bool {
	return customerIDRegex.MatchString(id)
}

// IsValidUsername checks if a string is a valid username
func IsValidUsername(s string) bool {
	return usernameRegex.MatchString(s)
}

// SanitizeString trims whitespace, removes null bytes and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs the given validators and collects their errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidCustomerID checks if a field is a well-formed customer ID
func ValidCustomerID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidCustomerID(value) {
			return &ValidationError{Field: field, Message: "must be a valid customer ID (cus_...)"}
		}
		return nil
	}
}

// PositiveAmount checks that an amount is positive and within the given bounds
func PositiveAmount(field string, value, min, max int64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		if value < min {
			return &ValidationError{Field: field, Message: "is below the platform minimum"}
		}
		if max > 0 && value > max {
			return &ValidationError{Field: field, Message: "exceeds the platform maximum"}
		}
		return nil
	}
}

// DurationHours checks the escrow duration bounds (1..max hours)
func DurationHours(field string, value, max int) func() *ValidationError {
	return func() *ValidationError {
		if value < 1 || value > max {
			return &ValidationError{Field: field, Message: "must be between 1 and 168 hours"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// CustomerIDParamMiddleware validates the :id URL parameter on routes that
// use it. Rejects malformed customer IDs before they reach handlers.
func CustomerIDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id != "" && strings.HasPrefix(id, "cus_") && !IsValidCustomerID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_customer_id",
				"message": "Mã khách hàng không hợp lệ",
			})
			return
		}
		c.Next()
	}
}
