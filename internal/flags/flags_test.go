package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Enabled(t *testing.T) {
	tests := []struct {
		name     string
		registry *Registry
		flag     string
		expected bool
	}{
		{"set to true", New(map[string]bool{FlagAdoptOrphans: true}), FlagAdoptOrphans, true},
		{"set to false", New(map[string]bool{FlagAdoptOrphans: false}), FlagAdoptOrphans, false},
		{"not configured", New(map[string]bool{FlagAdoptOrphans: true}), FlagDebugEndpoints, false},
		{"nil registry", nil, FlagAdoptOrphans, false},
		{"nil map", New(nil), FlagAdoptOrphans, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.registry.Enabled(tt.flag))
		})
	}
}

func TestNew_CopiesInput(t *testing.T) {
	in := map[string]bool{FlagDebugEndpoints: true}
	r := New(in)
	in[FlagDebugEndpoints] = false

	require.True(t, r.Enabled(FlagDebugEndpoints))
}

func TestRegistry_All_ReturnsCopy(t *testing.T) {
	r := New(map[string]bool{FlagAdoptOrphans: true})

	all := r.All()
	all[FlagAdoptOrphans] = false
	all["extra"] = true

	require.True(t, r.Enabled(FlagAdoptOrphans))
	require.Equal(t, map[string]bool{FlagAdoptOrphans: true}, r.All())
	require.Equal(t, map[string]bool{}, (*Registry)(nil).All())
}

func TestRegistry_Undeclared(t *testing.T) {
	r := New(map[string]bool{"adopt-orphan": true, FlagAdoptOrphans: true, "zzz": false})
	require.Equal(t, []string{"adopt-orphan", "zzz"}, r.Undeclared())
	require.Nil(t, (*Registry)(nil).Undeclared())
}

func TestKnown_DescribesEveryFlag(t *testing.T) {
	for _, name := range []string{FlagAdoptOrphans, FlagDebugEndpoints} {
		require.NotEmpty(t, Known[name], name)
	}
}
