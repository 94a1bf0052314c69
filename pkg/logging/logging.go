// Package logging provides the structured logger and the human-facing
// console used by ssh-deploy.
package logging

import (
	"log/slog"
	"os"
	"regexp"
	"strings"
)

var (
	// Default logger instance
	logger *slog.Logger

	// Level of the default logger, adjustable at runtime
	level = new(slog.LevelVar)

	// Patterns for detecting sensitive data
	sensitivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(password|secret|token|auth)[\s]*[:=][\s]*[^\s]+`),
		regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		regexp.MustCompile(`(?i)Basic\s+[A-Za-z0-9+/]+=*`),
		regexp.MustCompile(`AKIA[0-9A-Z]{16}`),        // AWS Access Key
		regexp.MustCompile(`hvs\.[A-Za-z0-9_-]{20,}`), // Vault service token
	}

	privateKeyBlock = regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`)
)

func init() {
	level.Set(slog.LevelInfo)

	// Check for debug mode from environment
	if os.Getenv("SSH_DEPLOY_DEBUG") == "true" {
		level.Set(slog.LevelDebug)
	}

	// stdout belongs to the console banners and the output of ssh/rsync
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SetLogger allows overriding the default logger
func SetLogger(l *slog.Logger) {
	logger = l
}

// GetLogger returns the current logger instance
func GetLogger() *slog.Logger {
	return logger
}

// SetDebug switches the default logger between debug and info level.
func SetDebug(enabled bool) {
	if enabled {
		level.Set(slog.LevelDebug)
		return
	}
	level.Set(slog.LevelInfo)
}

// SanitizeString removes or masks sensitive data from strings
func SanitizeString(s string) string {
	sanitized := privateKeyBlock.ReplaceAllString(s, "[REDACTED PRIVATE KEY]")
	for _, pattern := range sensitivePatterns {
		sanitized = pattern.ReplaceAllStringFunc(sanitized, func(match string) string {
			// Extract the key part before the value
			parts := strings.SplitN(match, ":", 2)
			if len(parts) == 2 {
				return parts[0] + ": [REDACTED]"
			}
			parts = strings.SplitN(match, "=", 2)
			if len(parts) == 2 {
				return parts[0] + "=[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return sanitized
}

// SanitizeMap creates a sanitized copy of a map, redacting sensitive keys
func SanitizeMap(m map[string]interface{}) map[string]interface{} {
	sanitized := make(map[string]interface{})
	sensitiveKeys := map[string]bool{
		"password":          true,
		"secret":            true,
		"secret_id":         true,
		"token":             true,
		"key":               true,
		"auth":              true,
		"credential":        true,
		"private_key":       true,
		"access_key":        true,
		"secret_key":        true,
		"access_key_id":     true,
		"secret_access_key": true,
		"client_secret":     true,
	}

	for k, v := range m {
		lowerKey := strings.ToLower(k)
		if sensitiveKeys[lowerKey] {
			sanitized[k] = "[REDACTED]"
		} else if strVal, ok := v.(string); ok {
			sanitized[k] = SanitizeString(strVal)
		} else {
			sanitized[k] = v
		}
	}
	return sanitized
}

// Info logs an informational message
func Info(msg string, args ...any) {
	logger.Info(msg, args...)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	logger.Error(msg, args...)
}

// InfoContext logs with additional context fields
func InfoContext(msg string, contextFields map[string]interface{}, args ...any) {
	logger.Info(msg, withFields(contextFields, args)...)
}

// ErrorContext logs an error with additional context fields
func ErrorContext(msg string, contextFields map[string]interface{}, args ...any) {
	logger.Error(msg, withFields(contextFields, args)...)
}

func withFields(contextFields map[string]interface{}, args []any) []any {
	sanitized := SanitizeMap(contextFields)
	allArgs := make([]any, 0, len(args)+len(sanitized)*2)
	allArgs = append(allArgs, args...)
	for k, v := range sanitized {
		allArgs = append(allArgs, k, v)
	}
	return allArgs
}
