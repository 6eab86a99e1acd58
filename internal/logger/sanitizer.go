package logger

import (
	"regexp"
)

const (
	// RedactedText replaces sensitive values.
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// bearer tokens and provider keys such as sk-... or sk-ant-...
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_.]+`)
	secretPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9-_]{16,}`)

	// user:pass@host
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`)

	// go-sql-driver/mysql DSN form user:pass@tcp(host)
	mysqlDSNPattern = regexp.MustCompile(`^([^:@/\s]+):[^@\s]*@(tcp|unix)\(`)
)

// SanitizeConnectionString removes credentials from a DSN or URL before logging.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
	sanitized = mysqlDSNPattern.ReplaceAllString(sanitized, "${1}:"+RedactedText+"@${2}(")
	return sanitized
}

// SanitizeError returns the error text with secrets removed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = secretPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
	return sanitized
}

// TruncateString truncates s to maxLen bytes and adds an ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
