package irtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/internal/ir"
)

func TestParseDirectives(t *testing.T) {
	src := `// opt: dce
// opt: inline blocks=2 instrs=20 stack=16
// check: ret v1
// not: call helper
module m
`
	d, err := ParseDirectives(src)
	require.NoError(t, err)

	require.Len(t, d.Passes, 2)
	assert.Equal(t, "dce", d.Passes[0].Name)
	assert.Equal(t, "inline", d.Passes[1].Name)
	assert.Equal(t, 2, d.Passes[1].Policy.MaxBlocks)
	assert.Equal(t, 20, d.Passes[1].Policy.MaxInstrs)
	assert.Equal(t, 16, d.Passes[1].Policy.MaxStackBytes)

	assert.Equal(t, []string{"ret v1"}, d.Checks)
	assert.Equal(t, []string{"call helper"}, d.Nots)
}

func TestParseDirectivesInlineAll(t *testing.T) {
	d, err := ParseDirectives("// opt: inline all\n")
	require.NoError(t, err)
	require.Len(t, d.Passes, 1)
	assert.True(t, d.Passes[0].Policy.All)
}

func TestParseDirectivesBudgetDefaultsUnlimited(t *testing.T) {
	d, err := ParseDirectives("// opt: inline blocks=3\n")
	require.NoError(t, err)

	policy := d.Passes[0].Policy
	assert.False(t, policy.All)
	assert.Equal(t, 3, policy.MaxBlocks)
	assert.Equal(t, unlimited, policy.MaxInstrs)
	assert.Equal(t, unlimited, policy.MaxStackBytes)
}

func TestParseDirectivesPolicyErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"all with budget", "// opt: inline all blocks=2\n"},
		{"duplicate key", "// opt: inline blocks=2 blocks=3\n"},
		{"unknown key", "// opt: inline depth=2\n"},
		{"bad value", "// opt: inline blocks=two\n"},
		{"malformed", "// opt: inline blocks\n"},
		{"unknown pass", "// opt: unroll\n"},
		{"dce with args", "// opt: dce hard\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDirectives(tc.src)
			require.Error(t, err)
			var pe *ir.PolicyError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestDirectivesIgnorePlainComments(t *testing.T) {
	d, err := ParseDirectives("// a stray remark\nmodule m\n// another\n")
	require.NoError(t, err)
	assert.Empty(t, d.Passes)
	assert.Empty(t, d.Checks)
	assert.Empty(t, d.Nots)
}

func TestExpect(t *testing.T) {
	d := &Directives{
		Checks: []string{"ret v1", "store"},
		Nots:   []string{"call helper"},
	}

	assert.Empty(t, d.Expect("store x, v2\nret v1\n"))

	errs := d.Expect("call helper(x)\nret v1\n")
	assert.Len(t, errs, 2)
}
