package relational

import "fmt"

// ColumnKind is the logical type of a column; each dialect maps it to a concrete SQL type.
type ColumnKind int

const (
	Serial ColumnKind = iota
	SessionID
	Text
	ShortText
	Address
	Timestamp
	Integer
	Boolean
	Digest
)

// Column describes one column of the logical schema.
type Column struct {
	Name       string
	Kind       ColumnKind
	PrimaryKey bool
}

// ForeignKey ties Column to References(id).
type ForeignKey struct {
	Column     string
	References string
}

// Table is one table of the logical schema shared by every backend.
type Table struct {
	Name       string
	Columns    []Column
	ForeignKey *ForeignKey
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks a column up by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

const (
	TableSessions  = "sessions"
	TableEvents    = "events"
	TableAuth      = "auth"
	TableCommands  = "commands"
	TableDownloads = "downloads"
)

var sessionFK = &ForeignKey{Column: "session", References: TableSessions}

// Schema lists every table in creation order. Child tables reference
// sessions; events does not, so events for unknown sessions are still recorded.
var Schema = []Table{
	{
		Name: TableSessions,
		Columns: []Column{
			{Name: "id", Kind: SessionID, PrimaryKey: true},
			{Name: "starttime", Kind: Timestamp},
			{Name: "endtime", Kind: Timestamp},
			{Name: "sensor", Kind: ShortText},
			{Name: "ip", Kind: Address},
			{Name: "termsize", Kind: ShortText},
			{Name: "client", Kind: ShortText},
		},
	},
	{
		Name: TableEvents,
		Columns: []Column{
			{Name: "id", Kind: Serial, PrimaryKey: true},
			{Name: "eventid", Kind: ShortText},
			{Name: "session", Kind: SessionID},
			{Name: "timestamp", Kind: Timestamp},
			{Name: "message", Kind: Text},
			{Name: "src_ip", Kind: Address},
			{Name: "src_port", Kind: Integer},
			{Name: "dst_ip", Kind: Address},
			{Name: "dst_port", Kind: Integer},
			{Name: "threat_level", Kind: ShortText},
			{Name: "risk_score", Kind: Integer},
			{Name: "data", Kind: Text},
		},
	},
	{
		Name: TableAuth,
		Columns: []Column{
			{Name: "id", Kind: Serial, PrimaryKey: true},
			{Name: "session", Kind: SessionID},
			{Name: "success", Kind: Boolean},
			{Name: "username", Kind: ShortText},
			{Name: "password", Kind: ShortText},
			{Name: "timestamp", Kind: Timestamp},
		},
		ForeignKey: sessionFK,
	},
	{
		Name: TableCommands,
		Columns: []Column{
			{Name: "id", Kind: Serial, PrimaryKey: true},
			{Name: "session", Kind: SessionID},
			{Name: "timestamp", Kind: Timestamp},
			{Name: "command", Kind: Text},
		},
		ForeignKey: sessionFK,
	},
	{
		Name: TableDownloads,
		Columns: []Column{
			{Name: "id", Kind: Serial, PrimaryKey: true},
			{Name: "session", Kind: SessionID},
			{Name: "timestamp", Kind: Timestamp},
			{Name: "url", Kind: Text},
			{Name: "outfile", Kind: ShortText},
			{Name: "shasum", Kind: Digest},
		},
		ForeignKey: sessionFK,
	},
}

// TableNames returns the names of all tables in creation order.
func TableNames() []string {
	names := make([]string, len(Schema))
	for i, t := range Schema {
		names[i] = t.Name
	}
	return names
}

// LookupTable finds a table of the logical schema by name.
func LookupTable(name string) (Table, error) {
	for _, t := range Schema {
		if t.Name == name {
			return t, nil
		}
	}
	return Table{}, fmt.Errorf("unknown table %q", name)
}
