package collector

import (
	"strings"

	"github.com/google/uuid"
)

// sensitiveFragments are substrings that suggest a field name is itself
// leaking something it should not (credentials, identifiers).
var sensitiveFragments = []string{
	"password",
	"secret",
	"token",
	"ssn",
	"credit_card",
	"creditcard",
	"api_key",
	"apikey",
	"private_key",
}

// maxFieldNameLen flags names long enough to plausibly be values that
// were mislabeled as names upstream.
const maxFieldNameLen = 100

// auditFieldNames warns about suspicious field names but never blocks
// collection. The names come from the workflow definition, not from
// records, so a hit means the workflow author should rename a field,
// not that data was exfiltrated.
func (c *Collector) auditFieldNames(executionID uuid.UUID, fields []string) {
	for _, field := range fields {
		lower := strings.ToLower(field)
		for _, frag := range sensitiveFragments {
			if strings.Contains(lower, frag) {
				c.logger.Warn("field name matches sensitive pattern",
					"execution_id", executionID,
					"field", field,
					"pattern", frag,
				)
				break
			}
		}
		if len(field) > maxFieldNameLen {
			c.logger.Warn("field name suspiciously long",
				"execution_id", executionID,
				"field_len", len(field),
			)
		}
	}
}
