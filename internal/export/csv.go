// Package export serializes the tag index to CSV.
//
// Every field is double-quoted with embedded quotes doubled, tags are joined with "|",
// rows follow object id order and are joined by "\n" with no trailing newline.
package export

import (
	"strings"

	"github.com/zjrosen/tagsync/internal/tags"
)

// TagDelimiter joins an object's tags inside the tags column.
const TagDelimiter = "|"

// Header selects the column header row.
type Header string

const (
	// NodeHeader is the default header: nodeId,nodeName,nodeType,tags.
	NodeHeader Header = "node"
	// ItemHeader is the item variant: itemId,itemName,description,tags.
	ItemHeader Header = "item"
)

func (h Header) columns() []string {
	if h == ItemHeader {
		return []string{"itemId", "itemName", "description", "tags"}
	}
	return []string{"nodeId", "nodeName", "nodeType", "tags"}
}

// ParseHeader maps a config value onto a Header, defaulting to NodeHeader.
func ParseHeader(s string) Header {
	if Header(strings.ToLower(strings.TrimSpace(s))) == ItemHeader {
		return ItemHeader
	}
	return NodeHeader
}

// Scope selects which objects are exported.
type Scope string

const (
	// TaggedOnly exports objects with at least one tag.
	TaggedOnly Scope = "tagged"
	// AllObjects exports every indexed object.
	AllObjects Scope = "all"
)

// ParseScope maps a config value onto a Scope, defaulting to TaggedOnly.
func ParseScope(s string) Scope {
	if Scope(strings.ToLower(strings.TrimSpace(s))) == AllObjects {
		return AllObjects
	}
	return TaggedOnly
}

// Options configures CSV output.
type Options struct {
	Header Header
	Scope  Scope
}

// Table is an encoded export.
type Table struct {
	CSV  string
	Rows int
}

// CSV encodes idx as CSV text.
func CSV(idx tags.Index, opts Options) Table {
	objects := idx.Objects()
	if opts.Scope != AllObjects {
		objects = idx.Tagged()
	}

	lines := make([]string, 0, len(objects)+1)
	lines = append(lines, strings.Join(opts.Header.columns(), ","))
	for _, o := range objects {
		lines = append(lines, Row(o))
	}
	return Table{CSV: strings.Join(lines, "\n"), Rows: len(objects)}
}

// Row encodes a single object as a quoted CSV row.
func Row(o tags.TaggedObject) string {
	fields := []string{
		o.ID,
		o.Name,
		string(o.Kind),
		strings.Join(tags.Normalize(o.Tags), TagDelimiter),
	}
	for i, f := range fields {
		fields[i] = quote(f)
	}
	return strings.Join(fields, ",")
}

func quote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
