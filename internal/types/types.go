package types

import (
	"fmt"
	"go/token"
	"strconv"
	"strings"
)

// Rule names reported by the engine.
const (
	RuleMissingPermission    = "missing-permission"
	RuleLoopNotStable        = "loop-not-stable"
	RuleUnsupportedConstruct = "unsupported-construct"
	RuleProverFailure        = "prover-failure"
)

// Severity is the level an issue is reported at.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityOff
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityInfo:
		return "INFO"
	case SeverityOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity parses ERROR, WARNING, INFO or OFF, ignoring case.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return SeverityError, nil
	case "WARNING":
		return SeverityWarning, nil
	case "INFO":
		return SeverityInfo, nil
	case "OFF":
		return SeverityOff, nil
	}
	return SeverityError, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalYAML() (any, error) {
	return s.String(), nil
}

func (s *Severity) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	raw, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("severity must be a string: %w", err)
	}
	v, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ConfigRule is the per-rule configuration entry.
type ConfigRule struct {
	Severity Severity `yaml:"severity"`
}

// DefaultRules is the rule configuration used when none is given.
func DefaultRules() map[string]ConfigRule {
	return map[string]ConfigRule{
		RuleMissingPermission:    {Severity: SeverityError},
		RuleLoopNotStable:        {Severity: SeverityError},
		RuleUnsupportedConstruct: {Severity: SeverityWarning},
		RuleProverFailure:        {Severity: SeverityError},
	}
}

// Issue represents a verification issue found in a program file.
type Issue struct {
	Rule       string
	Category   string
	Filename   string
	Procedure  string
	Message    string
	Permission string
	StmtKind   string
	Note       string
	Severity   Severity
	Start      token.Position
	End        token.Position
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s: %s", i.Start, i.Severity, i.Rule, i.Message)
}
