package models

// Field is a canonical transaction field a statement column can map to.
type Field string

const (
	FieldDate        Field = "date"
	FieldAmount      Field = "amount"
	FieldDescription Field = "description"
	FieldCategory    Field = "category"
	FieldType        Field = "type"
	FieldStatus      Field = "status"
	FieldNotes       Field = "notes"
)

// Fields lists every canonical field in resolution order.
var Fields = []Field{
	FieldDate,
	FieldAmount,
	FieldDescription,
	FieldCategory,
	FieldType,
	FieldStatus,
	FieldNotes,
}

// RequiredFields must all map to a header before any row is processed.
var RequiredFields = []Field{FieldDate, FieldAmount, FieldDescription}

// FieldMapping maps canonical fields to the header used in the current file.
type FieldMapping map[Field]string

// Has reports whether f maps to a non-empty header.
func (m FieldMapping) Has(f Field) bool {
	return m[f] != ""
}

// Missing returns the required fields without a header, in RequiredFields order.
func (m FieldMapping) Missing() []Field {
	var missing []Field
	for _, f := range RequiredFields {
		if !m.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// ParseField returns the Field named s.
func ParseField(s string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}
