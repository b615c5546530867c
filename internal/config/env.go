package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} and ${VAR:default} placeholders.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// Substitute resolves environment placeholders across an arbitrary
// config tree. Maps and slices are walked element-wise; non-string
// scalars pass through untouched. A set variable wins even when empty;
// an inline default is used verbatim otherwise; a placeholder with
// neither fails the whole value.
func Substitute(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return substituteString(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			sub, err := Substitute(elem)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			sub, err := Substitute(elem)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	}
	return value, nil
}

func substituteString(s string) (string, error) {
	matches := envVarPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		name := s[m[2]:m[3]]
		if val, ok := os.LookupEnv(name); ok {
			b.WriteString(val)
		} else if m[4] != -1 {
			// Inline default, kept verbatim including inner whitespace.
			b.WriteString(s[m[4]:m[5]])
		} else {
			return "", &MissingEnvError{Var: name}
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}
