package model

// Field is a canonical account attribute that an export column can map to.
type Field string

const (
	FieldSiteName Field = "site_name"
	FieldSiteURL  Field = "site_url"
	FieldUsername Field = "username"
	FieldSecret   Field = "secret"
	FieldEmail    Field = "email"
	FieldNotes    Field = "notes"
	FieldType     Field = "type" // Item kind, when the export mixes logins with other records.
)

// FormatMapping describes one password manager's CSV export layout.
type FormatMapping struct {
	ID      string
	Name    string
	Columns []string
	Fields  map[Field]string
}

// Column returns the export column mapped to f, or "".
func (m FormatMapping) Column(f Field) string {
	return m.Fields[f]
}

// HasEmailField reports whether the export carries a dedicated email column.
func (m FormatMapping) HasEmailField() bool {
	return m.Fields[FieldEmail] != ""
}

// CriticalColumns returns the columns holding the URL, username, and password.
func (m FormatMapping) CriticalColumns() []string {
	var cols []string
	for _, f := range []Field{FieldSiteURL, FieldUsername, FieldSecret} {
		if c := m.Fields[f]; c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}
