package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yurifrl/budgetu/pkg/models"
)

// ErrMissingColumn is returned when a required field has no header.
var ErrMissingColumn = errors.New("missing required column")

// ResolveColumns picks, for every canonical field, the first alias that is
// present verbatim in headers. Optional fields with no match are left out of
// the mapping; a missing required field fails the whole import.
func ResolveColumns(headers []string, aliases Aliases) (models.FieldMapping, error) {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}

	mapping := make(models.FieldMapping)
	for _, f := range models.Fields {
		for _, alias := range aliases[f] {
			if present[alias] {
				mapping[f] = alias
				break
			}
		}
	}

	if err := Validate(mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// Validate applies the required-field rule to a mapping, whether it was
// resolved from aliases or picked by the user.
func Validate(m models.FieldMapping) error {
	missing := m.Missing()
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(missing))
	for i, f := range missing {
		names[i] = string(f)
	}
	return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(names, ", "))
}

// CheckHeaders verifies that every header named by m exists in headers.
// Explicit mappings go through this before rows are read.
func CheckHeaders(m models.FieldMapping, headers []string) error {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	for _, f := range models.Fields {
		h := m[f]
		if h != "" && !present[h] {
			return fmt.Errorf("%w: %s mapped to unknown header %q", ErrMissingColumn, f, h)
		}
	}
	return nil
}
