package irtext

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sable/internal/ir"
)

// The .sir files under testdata drive the optimizer end to end: each file
// states its passes and its expectations about the printed result in
// directive comments.
func TestFixtures(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.sir"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			source, err := os.ReadFile(path)
			require.NoError(t, err)

			directives, err := ParseDirectives(string(source))
			require.NoError(t, err)

			m, _, err := Parse(path, string(source))
			require.NoError(t, err)
			require.NoError(t, ir.VerifyModule(m))

			require.NoError(t, directives.Run(m))
			require.NoError(t, ir.VerifyModule(m))

			var printer ir.Printer
			printed := printer.Print(m)
			for _, ferr := range directives.Expect(printed) {
				t.Errorf("%s: %v\n%s", path, ferr, printed)
			}
		})
	}
}
