package logs

import (
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// SecretSanitizer wraps a zapcore.Core and masks provider tokens, bearer
// headers, JWTs and explicitly registered secret values before they are
// encoded.
type SecretSanitizer struct {
	zapcore.Core
	patterns []secretPattern
	resolved *sync.Map
}

type secretPattern struct {
	regex *regexp.Regexp
	mask  func(string) string
}

var defaultPatterns = []secretPattern{
	{
		// GitHub OAuth, PAT, user-to-server and refresh tokens.
		regex: regexp.MustCompile(`\bgh[poushr]_[A-Za-z0-9]{20,255}\b`),
		mask:  func(s string) string { return s[:4] + "***" + s[len(s)-2:] },
	},
	{
		// ClickUp tokens: numeric user id, underscore, long alphanumeric tail.
		regex: regexp.MustCompile(`\b\d{4,}_[A-Za-z0-9]{24,}\b`),
		mask: func(s string) string {
			i := strings.IndexByte(s, '_')
			return s[:i+1] + "***" + s[len(s)-2:]
		},
	},
	{
		regex: regexp.MustCompile(`\bBearer\s+[A-Za-z0-9\-\._~\+\/]+=*`),
		mask: func(s string) string {
			tok := strings.TrimSpace(strings.TrimPrefix(s, "Bearer"))
			if len(tok) <= 6 {
				return "Bearer ****"
			}
			return "Bearer " + tok[:4] + "***" + tok[len(tok)-2:]
		},
	},
	{
		regex: regexp.MustCompile(`\beyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+\b`),
		mask: func(s string) string {
			return s[:strings.IndexByte(s, '.')] + ".***"
		},
	},
}

// NewSecretSanitizer creates a sanitizing core around core.
func NewSecretSanitizer(core zapcore.Core) *SecretSanitizer {
	return &SecretSanitizer{
		Core:     core,
		patterns: defaultPatterns,
		resolved: &sync.Map{},
	}
}

// RegisterResolvedSecret masks value verbatim from now on. Short values are
// ignored to avoid masking ordinary words.
func (s *SecretSanitizer) RegisterResolvedSecret(value string) {
	if len(value) < 8 {
		return
	}
	s.resolved.Store(value, struct{}{})
}

func (s *SecretSanitizer) sanitize(str string) string {
	out := str
	s.resolved.Range(func(key, _ interface{}) bool {
		secret := key.(string)
		out = strings.ReplaceAll(out, secret, maskValue(secret))
		return true
	})
	for _, p := range s.patterns {
		out = p.regex.ReplaceAllStringFunc(out, p.mask)
	}
	return out
}

func (s *SecretSanitizer) sanitizeField(f zapcore.Field) zapcore.Field {
	switch f.Type {
	case zapcore.StringType:
		f.String = s.sanitize(f.String)
	case zapcore.ByteStringType:
		if b, ok := f.Interface.([]byte); ok {
			f.Interface = []byte(s.sanitize(string(b)))
		}
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			msg := err.Error()
			if clean := s.sanitize(msg); clean != msg {
				return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: clean}
			}
		}
	case zapcore.StringerType:
		if st, ok := f.Interface.(interface{ String() string }); ok {
			raw := st.String()
			if clean := s.sanitize(raw); clean != raw {
				return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: clean}
			}
		}
	}
	return f
}

func (s *SecretSanitizer) sanitizeFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = s.sanitizeField(f)
	}
	return out
}

// Write sanitizes the entry before writing
func (s *SecretSanitizer) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = s.sanitize(entry.Message)
	return s.Core.Write(entry, s.sanitizeFields(fields))
}

// With creates a sanitizing child core
func (s *SecretSanitizer) With(fields []zapcore.Field) zapcore.Core {
	return &SecretSanitizer{
		Core:     s.Core.With(s.sanitizeFields(fields)),
		patterns: s.patterns,
		resolved: s.resolved,
	}
}

// Check delegates to the wrapped core
func (s *SecretSanitizer) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s.Enabled(entry.Level) {
		return ce.AddCore(entry, s)
	}
	return ce
}

func maskValue(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:3] + "***" + value[len(value)-2:]
}
