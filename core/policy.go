package core

import (
	"fmt"
	"strings"
)

// OverwritePolicy decides whether an existing artifact may be reused.
type OverwritePolicy string

const (
	// OverwriteForce always recomputes while keeping the version lineage.
	OverwriteForce OverwritePolicy = "force"
	// OverwriteSkip reuses any existing artifact.
	OverwriteSkip OverwritePolicy = "skip"
	// OverwriteFail raises StrictOverwriteError if the artifact exists.
	OverwriteFail OverwritePolicy = "fail"
	// OverwriteTimestamp recomputes when the inputs are newer than the artifact.
	OverwriteTimestamp OverwritePolicy = "timestamp"
	// OverwriteExact recomputes when the request hash changed.
	OverwriteExact OverwritePolicy = "exact"
)

// ParseOverwritePolicy validates s. The empty string maps to OverwriteFail.
func ParseOverwritePolicy(s string) (OverwritePolicy, error) {
	switch p := OverwritePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return OverwriteFail, nil
	case OverwriteForce, OverwriteSkip, OverwriteFail, OverwriteTimestamp, OverwriteExact:
		return p, nil
	default:
		return "", fmt.Errorf("invalid overwrite policy %q", s)
	}
}

// OutputFormat is the declared shape of a generation result.
type OutputFormat string

const (
	FormatString   OutputFormat = "string"
	FormatJSON     OutputFormat = "json"
	FormatMarkdown OutputFormat = "markdown"
)

// ParseOutputFormat validates s. The empty string maps to FormatString.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatString, nil
	case FormatString, FormatJSON, FormatMarkdown:
		return f, nil
	default:
		return "", fmt.Errorf("invalid output format %q", s)
	}
}

// Extension returns the file extension used for generated output names.
func (f OutputFormat) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	default:
		return "out"
	}
}

// ContentType maps the format onto the stored artifact content type.
func (f OutputFormat) ContentType() ContentType {
	switch f {
	case FormatJSON:
		return ContentJSON
	case FormatMarkdown:
		return ContentMarkdown
	default:
		return ContentText
	}
}

// FormatForName infers the output format from a file name extension.
func FormatForName(name string, fallback OutputFormat) OutputFormat {
	switch {
	case strings.HasSuffix(name, ".json"):
		return FormatJSON
	case strings.HasSuffix(name, ".md"):
		return FormatMarkdown
	case strings.HasSuffix(name, ".txt"):
		return FormatString
	default:
		return fallback
	}
}
