// Package tags holds the tag data model: the registry of known tags and their display
// metadata, the per-object tag index, tag-set normalization and the JSON blob formats
// the registry and per-object tag sets are persisted in.
//
// Tag names are case-sensitive natural keys and are never normalized beyond dropping
// blank entries. Tag sets are always kept deduplicated and sorted ascending so that two
// equal sets serialize to identical bytes.
package tags
