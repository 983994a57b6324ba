package mutate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/tagsync/internal/tags"
)

func stateWith(reg tags.Registry, objects ...tags.TaggedObject) State {
	if reg == nil {
		reg = tags.Registry{}
	}
	return State{Registry: reg, Index: tags.NewIndex(objects...)}
}

func TestCreateTag_InsertsWithMetadata(t *testing.T) {
	res, err := CreateTag(NewState(), "Persona: Admin", tags.Meta{Color: "#ff0000"})
	require.NoError(t, err)
	require.Equal(t, tags.Registry{"Persona: Admin": {Color: "#ff0000"}}, res.State.Registry)
	require.True(t, res.RegistryChanged)
	require.Zero(t, res.Affected)
}

func TestCreateTag_Duplicate(t *testing.T) {
	s := stateWith(tags.Registry{"bug": {Color: "#f00"}})

	_, err := CreateTag(s, "bug", tags.Meta{})
	require.Error(t, err)
	require.True(t, IsDuplicateTag(err))

	var dup *DuplicateTagError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "bug", dup.Name)
	require.Equal(t, tags.Meta{Color: "#f00"}, s.Registry["bug"], "input state untouched")

	// Case-sensitive: "Bug" is a different tag.
	res, err := CreateTag(s, "Bug", tags.Meta{})
	require.NoError(t, err)
	require.Len(t, res.State.Registry, 2)
}

func TestCreateTag_BlankName(t *testing.T) {
	_, err := CreateTag(NewState(), "  ", tags.Meta{})
	require.ErrorIs(t, err, ErrBlankTagName)
}

func TestDeleteTag_CascadesToObjects(t *testing.T) {
	s := stateWith(
		tags.Registry{"a": {}, "b": {}},
		tags.TaggedObject{ID: "1", Tags: []string{"a", "b"}},
		tags.TaggedObject{ID: "2", Tags: []string{"b"}},
		tags.TaggedObject{ID: "3", Tags: []string{"c"}},
	)

	res := DeleteTag(s, "b")
	require.Equal(t, 2, res.Affected)
	require.Equal(t, []string{"1", "2"}, res.Changed)
	require.False(t, res.State.Registry.Has("b"))
	require.Equal(t, []string{"a"}, res.State.Index["1"].Tags)
	require.Equal(t, []string{}, res.State.Index["2"].Tags)
	require.Equal(t, []string{"c"}, res.State.Index["3"].Tags)

	// Input not modified.
	require.True(t, s.Registry.Has("b"))
	require.Equal(t, []string{"a", "b"}, s.Index["1"].Tags)
}

func TestDeleteTag_AbsentIsNoop(t *testing.T) {
	s := stateWith(tags.Registry{"a": {}}, tags.TaggedObject{ID: "1", Tags: []string{"a"}})
	res := DeleteTag(s, "missing")
	require.Zero(t, res.Affected)
	require.False(t, res.RegistryChanged)
	require.True(t, res.State.Equal(s))
}

func TestDeleteTag_StripsOrphanReferences(t *testing.T) {
	s := stateWith(nil, tags.TaggedObject{ID: "1", Tags: []string{"orphan"}})
	res := DeleteTag(s, "orphan")
	require.Equal(t, 1, res.Affected)
	require.False(t, res.RegistryChanged)
	require.Empty(t, res.State.Index["1"].Tags)
}

func TestRenameTag_Relabels(t *testing.T) {
	s := stateWith(
		tags.Registry{"old": {Color: "#123456"}},
		tags.TaggedObject{ID: "1", Tags: []string{"old", "x"}},
	)

	res, err := RenameTag(s, "old", "new")
	require.NoError(t, err)
	require.Equal(t, tags.Registry{"new": {Color: "#123456"}}, res.State.Registry)
	require.Equal(t, []string{"new", "x"}, res.State.Index["1"].Tags)
	require.Equal(t, 1, res.Affected)
}

func TestRenameTag_OntoExistingSourceMetadataWins(t *testing.T) {
	s := stateWith(tags.Registry{
		"from": {Color: "#aaaaaa"},
		"to":   {Color: "#bbbbbb", Emoji: "🔥"},
	})

	res, err := RenameTag(s, "from", "to")
	require.NoError(t, err)
	require.Equal(t, tags.Registry{"to": {Color: "#aaaaaa"}}, res.State.Registry)
}

func TestRenameTag_ObjectWithBothGetsSingleTarget(t *testing.T) {
	s := stateWith(
		tags.Registry{"from": {}, "to": {}},
		tags.TaggedObject{ID: "1", Tags: []string{"from", "to"}},
	)

	res, err := RenameTag(s, "from", "to")
	require.NoError(t, err)
	require.Equal(t, []string{"to"}, res.State.Index["1"].Tags)
	require.Equal(t, 1, res.Affected)
}

func TestRenameTag_SameNameIsNoop(t *testing.T) {
	s := stateWith(tags.Registry{"a": {}}, tags.TaggedObject{ID: "1", Tags: []string{"a"}})
	res, err := RenameTag(s, "a", "a")
	require.NoError(t, err)
	require.Zero(t, res.Affected)
	require.False(t, res.RegistryChanged)
	require.True(t, res.State.Equal(s))
}

func TestMergeTags_IntoNewTag(t *testing.T) {
	s := stateWith(
		tags.Registry{"urgent": {Color: "#ff0000"}, "bug": {Emoji: "🐛"}},
		tags.TaggedObject{ID: "1", Tags: []string{"urgent"}},
		tags.TaggedObject{ID: "2", Tags: []string{"bug", "urgent"}},
	)

	res, err := MergeTags(s, "triage", []string{"urgent", "bug"})
	require.NoError(t, err)
	require.Equal(t, 2, res.Affected)
	require.Equal(t, []string{"triage"}, res.State.Index["1"].Tags)
	require.Equal(t, []string{"triage"}, res.State.Index["2"].Tags)
	require.False(t, res.State.Registry.Has("urgent"))
	require.False(t, res.State.Registry.Has("bug"))
	require.Equal(t, tags.Meta{Color: "#ff0000", Emoji: "🐛"}, res.State.Registry["triage"])
}

func TestMergeTags_ExistingIntoMetadataWins(t *testing.T) {
	s := stateWith(tags.Registry{
		"into": {Color: "#000000"},
		"a":    {Color: "#111111", Emoji: "🅰"},
		"b":    {Emoji: "🅱"},
	})

	res, err := MergeTags(s, "into", []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, tags.Registry{"into": {Color: "#000000", Emoji: "🅰"}}, res.State.Registry)
}

func TestMergeTags_IgnoresUnknownAndSelf(t *testing.T) {
	s := stateWith(
		tags.Registry{"into": {Color: "#000000"}},
		tags.TaggedObject{ID: "1", Tags: []string{"into"}},
	)

	res, err := MergeTags(s, "into", []string{"into", "ghost"})
	require.NoError(t, err)
	require.Zero(t, res.Affected)
	require.False(t, res.RegistryChanged)
	require.True(t, res.State.Equal(s))
}
