package oauth

import (
	"regexp"
	"strings"
)

const redacted = "***REDACTED***"

var sensitiveParams = []string{
	"access_token",
	"refresh_token",
	"client_secret",
	"device_code",
	"code",
	"token",
}

var (
	bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9\-_\.]+`)
	jsonPattern   = regexp.MustCompile(`(?i)("(?:access_token|refresh_token|client_secret|device_code|token|secret)"\s*:\s*")[^"]*(")`)
	paramPatterns = compileParamPatterns()
)

func compileParamPatterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(sensitiveParams))
	for _, p := range sensitiveParams {
		out = append(out, regexp.MustCompile(`(?i)\b(`+p+`=)[^&\s"]+`))
	}
	return out
}

// RedactSensitiveData strips tokens and secrets from upstream bodies, URLs
// and headers before they are logged.
func RedactSensitiveData(data string) string {
	if data == "" {
		return data
	}
	result := bearerPattern.ReplaceAllString(data, "${1}"+redacted)
	result = jsonPattern.ReplaceAllString(result, "${1}"+redacted+"${2}")
	for _, p := range paramPatterns {
		result = p.ReplaceAllString(result, "${1}"+redacted)
	}
	return result
}

// truncate bounds logged bodies.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
