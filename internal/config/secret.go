package config

import "log/slog"

const redacted = "[REDACTED]"

// Secret holds a credential: a database password, a Redis password or a
// webhook URL carrying its token. fmt verbs and slog print it as [REDACTED].
// YAML and JSON encoding still write the raw value.
type Secret string

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// LogValue keeps the raw value out of structured logs even when a handler
// ignores fmt.Stringer.
func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

// Value returns the raw secret for DSNs and outbound requests.
func (s Secret) Value() string { return string(s) }

// IsEmpty reports whether the secret is unset.
func (s Secret) IsEmpty() bool { return s == "" }
