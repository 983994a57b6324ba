package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/tagsync/internal/tags"
)

func TestDecodeIntent_AllTypes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Intent
	}{
		{"get-bootstrap", `{"type":"get-bootstrap","requestId":"r1"}`, GetBootstrap{RequestID: "r1"}},
		{"create-tag", `{"type":"create-tag","name":"Hero","color":"#f00","emoji":"🔥"}`,
			CreateTag{Name: "Hero", Color: "#f00", Emoji: "🔥"}},
		{"delete-tag", `{"type":"delete-tag","name":"old"}`, DeleteTag{Name: "old"}},
		{"rename-tag", `{"type":"rename-tag","from":"a","to":"b"}`, RenameTag{From: "a", To: "b"}},
		{"merge-tags", `{"type":"merge-tags","into":"c","from":["a","b"]}`,
			MergeTags{Into: "c", From: []string{"a", "b"}}},
		{"assign-tags", `{"type":"assign-tags","objectIds":["1"],"tags":["x"]}`,
			AssignTags{ObjectIDs: []string{"1"}, Tags: []string{"x"}}},
		{"remove-tags", `{"type":"remove-tags","objectIds":[],"tags":["x"]}`,
			RemoveTags{ObjectIDs: []string{}, Tags: []string{"x"}}},
		{"find-by-tag", `{"type":"find-by-tag","tag":"x"}`, FindByTag{Tag: "x"}},
		{"export", `{"type":"export","scope":"all"}`, Export{Scope: "all"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeIntent([]byte(tt.raw))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, Type(tt.name), got.MessageType())
		})
	}
}

func TestDecodeIntent_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType Type
	}{
		{"not json", `{`, ""},
		{"no type", `{"name":"x"}`, ""},
		{"unknown type", `{"type":"explode"}`, "explode"},
		{"push type sent as intent", `{"type":"bootstrap"}`, TypeBootstrap},
		{"create without name", `{"type":"create-tag"}`, TypeCreateTag},
		{"create blank name", `{"type":"create-tag","name":"  "}`, TypeCreateTag},
		{"rename without to", `{"type":"rename-tag","from":"a"}`, TypeRenameTag},
		{"merge without from", `{"type":"merge-tags","into":"a"}`, TypeMergeTags},
		{"assign without ids", `{"type":"assign-tags","tags":["a"]}`, TypeAssignTags},
		{"remove without tags", `{"type":"remove-tags","objectIds":["1"]}`, TypeRemoveTags},
		{"assign blank tag", `{"type":"assign-tags","objectIds":["1"],"tags":["a"," "]}`, TypeAssignTags},
		{"remove empty tag", `{"type":"remove-tags","objectIds":["1"],"tags":[""]}`, TypeRemoveTags},
		{"merge blank source", `{"type":"merge-tags","into":"a","from":["\t"]}`, TypeMergeTags},
		{"find without tag", `{"type":"find-by-tag"}`, TypeFindByTag},
		{"wrong field type", `{"type":"delete-tag","name":7}`, TypeDeleteTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeIntent([]byte(tt.raw))
			require.Error(t, err)
			var mm *MalformedMessageError
			require.True(t, errors.As(err, &mm))
			require.Equal(t, tt.wantType, mm.Type)
			require.NotEmpty(t, mm.Reason)
		})
	}
}

func TestEncode_FlatObjectWithType(t *testing.T) {
	data, err := Encode(ObjectUpdated{
		RequestID: "r9",
		Cause:     TypeAssignTags,
		Affected:  1,
		Objects:   []tags.TaggedObject{{ID: "1", Name: "Btn", Kind: tags.KindFrame, Tags: []string{"a"}}},
	})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Equal(t, "object-updated", fields["type"])
	require.Equal(t, "r9", fields["requestId"])
	require.Equal(t, "assign-tags", fields["cause"])
	require.NotContains(t, fields, "skipped")
}

func TestEncodeDecodePush(t *testing.T) {
	pushes := []Push{
		Bootstrap{
			Registry:  tags.Registry{"a": {Color: "#fff"}},
			Objects:   []tags.TaggedObject{{ID: "1", Name: "n", Kind: tags.KindText, Tags: []string{"a"}}},
			Selection: []string{"1"},
		},
		RegistryUpdated{Cause: TypeDeleteTag, Affected: 2, Registry: tags.Registry{}, Objects: []tags.TaggedObject{}},
		SelectionChanged{IDs: []string{"2", "1"}},
		ExportReady{RequestID: "x", CSV: "h", Rows: 0},
		Error{Code: CodeDuplicateTag, Message: "dup", RequestType: TypeCreateTag},
	}
	for _, p := range pushes {
		t.Run(string(p.MessageType()), func(t *testing.T) {
			data, err := Encode(p)
			require.NoError(t, err)
			got, err := DecodePush(data)
			require.NoError(t, err)
			require.Equal(t, p, got)
		})
	}
}

func TestEncodeDecodeIntent(t *testing.T) {
	in := MergeTags{RequestID: "m", Into: "z", From: []string{"x", "y"}}
	data, err := Encode(in)
	require.NoError(t, err)
	got, err := DecodeIntent(data)
	require.NoError(t, err)
	require.Equal(t, in, got)
	require.Equal(t, "m", got.Request())
}

func TestCreateTag_Meta(t *testing.T) {
	m := CreateTag{Name: "a", Color: "#000", Emoji: "⭐"}
	require.Equal(t, tags.Meta{Color: "#000", Emoji: "⭐"}, m.Meta())
}
