package scope_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scribehub/scribe-auth/internal/scope"
)

func TestValidateRejectsUnknownScopes(t *testing.T) {
	require.True(t, scope.Validate([]string{scope.DocumentsRead, scope.EphemeralRun}))
	require.True(t, scope.Validate(nil))
	require.False(t, scope.Validate([]string{scope.DocumentsRead, "admin:everything"}))
}

func TestFilterDropsUnknownScopes(t *testing.T) {
	g := scope.Filter([]string{scope.DocumentsRead, "admin:everything", scope.CollabWrite})
	require.Equal(t, []string{scope.DocumentsRead, scope.CollabWrite}, g.Granted)
	require.Equal(t, []string{"admin:everything"}, g.Dropped)
}

func TestFilterDeduplicates(t *testing.T) {
	g := scope.Filter([]string{scope.DocumentsRead, scope.DocumentsRead, scope.ProfileRead})
	require.Equal(t, []string{scope.DocumentsRead, scope.ProfileRead}, g.Granted)
	require.Empty(t, g.Dropped)
}

func TestFilterEmptyRequestYieldsDefault(t *testing.T) {
	g := scope.Filter(nil)
	require.Equal(t, scope.Default, g.Granted)

	// All-unknown requests also fall back to the default grant.
	g = scope.Filter([]string{"bogus:one", "bogus:two"})
	require.Equal(t, scope.Default, g.Granted)
	require.Len(t, g.Dropped, 2)
}

func TestParseAndJoin(t *testing.T) {
	scopes := scope.Parse("  documents:read   profile:read ")
	require.Equal(t, []string{scope.DocumentsRead, scope.ProfileRead}, scopes)
	require.Equal(t, "documents:read profile:read", scope.Join(scopes))
	require.Empty(t, scope.Parse(""))
}

func TestContains(t *testing.T) {
	granted := []string{scope.DocumentsRead, scope.EphemeralRun}
	require.True(t, scope.Contains(granted, scope.EphemeralRun))
	require.False(t, scope.Contains(granted, scope.CollabWrite))
	require.False(t, scope.Contains(nil, scope.DocumentsRead))
}

func TestAllIsSortedAndComplete(t *testing.T) {
	all := scope.All()
	require.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		require.Less(t, all[i-1], all[i])
	}
	for _, s := range all {
		require.True(t, scope.Supported(s))
	}
}
