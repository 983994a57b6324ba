package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MalformedMessageError reports a message that failed to decode or validate.
type MalformedMessageError struct {
	Type   Type
	Reason string
}

func (e *MalformedMessageError) Error() string {
	if e.Type == "" {
		return "malformed message: " + e.Reason
	}
	return fmt.Sprintf("malformed %s message: %s", e.Type, e.Reason)
}

func malformed(t Type, format string, args ...any) *MalformedMessageError {
	return &MalformedMessageError{Type: t, Reason: fmt.Sprintf(format, args...)}
}

// Encode marshals m as a flat JSON object with its "type" discriminator.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.MessageType(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.MessageType(), err)
	}
	typ, _ := json.Marshal(m.MessageType())
	fields["type"] = typ
	return json.Marshal(fields)
}

type envelope struct {
	Type Type `json:"type"`
}

var intentDecoders = map[Type]func([]byte) (Intent, error){
	TypeGetBootstrap: decodeIntent[GetBootstrap],
	TypeCreateTag:    decodeIntent[CreateTag],
	TypeDeleteTag:    decodeIntent[DeleteTag],
	TypeRenameTag:    decodeIntent[RenameTag],
	TypeMergeTags:    decodeIntent[MergeTags],
	TypeAssignTags:   decodeIntent[AssignTags],
	TypeRemoveTags:   decodeIntent[RemoveTags],
	TypeFindByTag:    decodeIntent[FindByTag],
	TypeExport:       decodeIntent[Export],
}

var pushDecoders = map[Type]func([]byte) (Push, error){
	TypeBootstrap:        decodePush[Bootstrap],
	TypeRegistryUpdated:  decodePush[RegistryUpdated],
	TypeObjectUpdated:    decodePush[ObjectUpdated],
	TypeSelectionChanged: decodePush[SelectionChanged],
	TypeExportReady:      decodePush[ExportReady],
	TypeError:            decodePush[Error],
}

// DecodeIntent parses a View→Controller message.
// Every failure is a *MalformedMessageError.
func DecodeIntent(data []byte) (Intent, error) {
	t, err := peekType(data)
	if err != nil {
		return nil, err
	}
	dec, ok := intentDecoders[t]
	if !ok {
		return nil, malformed(t, "unknown intent type")
	}
	return dec(data)
}

// DecodePush parses a Controller→View message.
func DecodePush(data []byte) (Push, error) {
	t, err := peekType(data)
	if err != nil {
		return nil, err
	}
	dec, ok := pushDecoders[t]
	if !ok {
		return nil, malformed(t, "unknown push type")
	}
	return dec(data)
}

func peekType(data []byte) (Type, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", malformed("", "invalid json: %v", err)
	}
	if env.Type == "" {
		return "", malformed("", "missing type")
	}
	return env.Type, nil
}

func decodeIntent[T Intent](data []byte) (Intent, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, malformed(v.MessageType(), "%v", err)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func decodePush[T Push](data []byte) (Push, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, malformed(v.MessageType(), "%v", err)
	}
	return v, nil
}

// === Validation ===

func required(t Type, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return malformed(t, "missing %s", field)
	}
	return nil
}

func requiredList(t Type, field string, values []string) error {
	if values == nil {
		return malformed(t, "missing %s", field)
	}
	return nil
}

// namesList is requiredList for tag names: every entry must be non-blank.
func namesList(t Type, field string, values []string) error {
	if err := requiredList(t, field, values); err != nil {
		return err
	}
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			return malformed(t, "blank %s[%d]", field, i)
		}
	}
	return nil
}

func (GetBootstrap) Validate() error { return nil }
func (Export) Validate() error       { return nil }

func (m CreateTag) Validate() error { return required(TypeCreateTag, "name", m.Name) }
func (m DeleteTag) Validate() error { return required(TypeDeleteTag, "name", m.Name) }
func (m FindByTag) Validate() error { return required(TypeFindByTag, "tag", m.Tag) }

func (m RenameTag) Validate() error {
	if err := required(TypeRenameTag, "from", m.From); err != nil {
		return err
	}
	return required(TypeRenameTag, "to", m.To)
}

func (m MergeTags) Validate() error {
	if err := required(TypeMergeTags, "into", m.Into); err != nil {
		return err
	}
	return namesList(TypeMergeTags, "from", m.From)
}

func (m AssignTags) Validate() error {
	if err := requiredList(TypeAssignTags, "objectIds", m.ObjectIDs); err != nil {
		return err
	}
	return namesList(TypeAssignTags, "tags", m.Tags)
}

func (m RemoveTags) Validate() error {
	if err := requiredList(TypeRemoveTags, "objectIds", m.ObjectIDs); err != nil {
		return err
	}
	return namesList(TypeRemoveTags, "tags", m.Tags)
}
