// Package protocol defines the messages exchanged between the Controller and the View.
//
// Messages form a closed set. Each is a flat JSON object carrying a "type"
// discriminator; anything outside the set, or missing a required field, is rejected
// with a MalformedMessageError.
package protocol

import (
	"github.com/zjrosen/tagsync/internal/tags"
)

// Type is the message discriminator.
type Type string

// View→Controller intents.
const (
	TypeGetBootstrap Type = "get-bootstrap"
	TypeCreateTag    Type = "create-tag"
	TypeDeleteTag    Type = "delete-tag"
	TypeRenameTag    Type = "rename-tag"
	TypeMergeTags    Type = "merge-tags"
	TypeAssignTags   Type = "assign-tags"
	TypeRemoveTags   Type = "remove-tags"
	TypeFindByTag    Type = "find-by-tag"
	TypeExport       Type = "export"
)

// Controller→View pushes.
const (
	TypeBootstrap        Type = "bootstrap"
	TypeRegistryUpdated  Type = "registry-updated"
	TypeObjectUpdated    Type = "object-updated"
	TypeSelectionChanged Type = "selection-changed"
	TypeExportReady      Type = "export-ready"
	TypeError            Type = "error"
)

// Error codes carried by Error pushes.
const (
	CodeDuplicateTag     = "duplicate_tag"
	CodeMalformedMessage = "malformed_message"
	CodeInternal         = "internal"
)

// Message is any protocol message.
type Message interface {
	MessageType() Type
}

// Intent is a View→Controller message.
type Intent interface {
	Message
	// Validate reports a MalformedMessageError when a required field is missing.
	Validate() error
	// Request returns the optional caller-chosen correlation id.
	Request() string
}

// Push is a Controller→View message.
type Push interface {
	Message
	push()
}

// === Intents ===

// GetBootstrap asks for a full bootstrap snapshot.
type GetBootstrap struct {
	RequestID string `json:"requestId,omitempty"`
}

// CreateTag registers a new tag.
type CreateTag struct {
	RequestID string `json:"requestId,omitempty"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

// Meta returns the tag metadata carried by the intent.
func (m CreateTag) Meta() tags.Meta {
	return tags.Meta{Color: m.Color, Emoji: m.Emoji}
}

// DeleteTag removes a tag everywhere.
type DeleteTag struct {
	RequestID string `json:"requestId,omitempty"`
	Name      string `json:"name"`
}

// RenameTag relabels a tag.
type RenameTag struct {
	RequestID string `json:"requestId,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// MergeTags folds From into Into.
type MergeTags struct {
	RequestID string   `json:"requestId,omitempty"`
	Into      string   `json:"into"`
	From      []string `json:"from"`
}

// AssignTags adds Tags to every object in ObjectIDs.
type AssignTags struct {
	RequestID string   `json:"requestId,omitempty"`
	ObjectIDs []string `json:"objectIds"`
	Tags      []string `json:"tags"`
}

// RemoveTags removes Tags from every object in ObjectIDs.
type RemoveTags struct {
	RequestID string   `json:"requestId,omitempty"`
	ObjectIDs []string `json:"objectIds"`
	Tags      []string `json:"tags"`
}

// FindByTag selects and focuses every object carrying Tag on the host canvas.
// It produces no data reply; the resulting selection-changed push follows from the host.
type FindByTag struct {
	RequestID string `json:"requestId,omitempty"`
	Tag       string `json:"tag"`
}

// Export requests a CSV export. Header and Scope override the configured defaults.
type Export struct {
	RequestID string `json:"requestId,omitempty"`
	Header    string `json:"header,omitempty"`
	Scope     string `json:"scope,omitempty"`
}

// === Pushes ===

// Bootstrap is the full state sent on connect and on GetBootstrap.
type Bootstrap struct {
	RequestID string              `json:"requestId,omitempty"`
	Registry  tags.Registry       `json:"registry"`
	Objects   []tags.TaggedObject `json:"objects"`
	Selection []string            `json:"selection"`
}

// RegistryUpdated carries the registry and index after a registry-affecting mutation.
// Registry mutations cascade into object tag sets, so the full index travels with it.
type RegistryUpdated struct {
	RequestID string              `json:"requestId,omitempty"`
	Cause     Type                `json:"cause"`
	Affected  int                 `json:"affected"`
	Registry  tags.Registry       `json:"registry"`
	Objects   []tags.TaggedObject `json:"objects"`
}

// ObjectUpdated carries snapshots of every object an assign or remove intent targeted.
type ObjectUpdated struct {
	RequestID string              `json:"requestId,omitempty"`
	Cause     Type                `json:"cause"`
	Affected  int                 `json:"affected"`
	Objects   []tags.TaggedObject `json:"objects"`
	Skipped   []string            `json:"skipped,omitempty"`
}

// SelectionChanged mirrors the host selection.
type SelectionChanged struct {
	IDs []string `json:"ids"`
}

// ExportReady answers an Export intent.
type ExportReady struct {
	RequestID string `json:"requestId,omitempty"`
	CSV       string `json:"csv"`
	Rows      int    `json:"rows"`
}

// Error reports a failed intent. No state changed.
type Error struct {
	RequestID   string `json:"requestId,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	RequestType Type   `json:"requestType,omitempty"`
}

func (GetBootstrap) MessageType() Type { return TypeGetBootstrap }
func (CreateTag) MessageType() Type    { return TypeCreateTag }
func (DeleteTag) MessageType() Type    { return TypeDeleteTag }
func (RenameTag) MessageType() Type    { return TypeRenameTag }
func (MergeTags) MessageType() Type    { return TypeMergeTags }
func (AssignTags) MessageType() Type   { return TypeAssignTags }
func (RemoveTags) MessageType() Type   { return TypeRemoveTags }
func (FindByTag) MessageType() Type    { return TypeFindByTag }
func (Export) MessageType() Type       { return TypeExport }

func (m GetBootstrap) Request() string { return m.RequestID }
func (m CreateTag) Request() string    { return m.RequestID }
func (m DeleteTag) Request() string    { return m.RequestID }
func (m RenameTag) Request() string    { return m.RequestID }
func (m MergeTags) Request() string    { return m.RequestID }
func (m AssignTags) Request() string   { return m.RequestID }
func (m RemoveTags) Request() string   { return m.RequestID }
func (m FindByTag) Request() string    { return m.RequestID }
func (m Export) Request() string       { return m.RequestID }

func (Bootstrap) MessageType() Type        { return TypeBootstrap }
func (RegistryUpdated) MessageType() Type  { return TypeRegistryUpdated }
func (ObjectUpdated) MessageType() Type    { return TypeObjectUpdated }
func (SelectionChanged) MessageType() Type { return TypeSelectionChanged }
func (ExportReady) MessageType() Type      { return TypeExportReady }
func (Error) MessageType() Type            { return TypeError }

func (Bootstrap) push()        {}
func (RegistryUpdated) push()  {}
func (ObjectUpdated) push()    {}
func (SelectionChanged) push() {}
func (ExportReady) push()      {}
func (Error) push()            {}
