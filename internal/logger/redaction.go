package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

type redactRule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor masks credentials in log lines. Rules that match a named field
// keep the name and quoting so JSON lines stay valid.
type Redactor struct {
	rules []redactRule
}

// NewRedactor returns a redactor loaded with the built-in rules.
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []redactRule{
			// "api_key": "...", password=..., qdrant_api_key ...
			{
				re:   regexp.MustCompile(`(?i)("?\b(?:[a-z]+_)?(?:api[_-]?key|apikey|password|pwd|secret|token)"?\s*[:=]\s*"?)[^\s",}&]+`),
				repl: "${1}" + redacted,
			},
			// ?key=... on embedding endpoints
			{
				re:   regexp.MustCompile(`(?i)([?&]key=)[^&\s"]+`),
				repl: "${1}" + redacted,
			},
			{
				re:   regexp.MustCompile(`(Bearer\s+)[A-Za-z0-9._~+/=-]+`),
				repl: "${1}" + redacted,
			},
			// OpenAI keys, including project keys
			{re: regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`), repl: redacted},
			// AWS access key IDs
			{re: regexp.MustCompile(`AKIA[0-9A-Z]{16}`), repl: redacted},
		},
	}
}

// AddPattern masks every match of pattern in full.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, redactRule{re: re, repl: redacted})
	return nil
}

// Redact applies every rule to s.
func (r *Redactor) Redact(s string) string {
	for _, rule := range r.rules {
		s = rule.re.ReplaceAllString(s, rule.repl)
	}
	return s
}

// Wrap returns a writer that redacts each write before passing it to w.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{out: w, redactor: r}
}

type redactingWriter struct {
	out      io.Writer
	redactor *Redactor
}

// Write reports len(p) on success even though the redacted line may differ
// in length, so callers never see a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(w.out, w.redactor.Redact(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
