package collector

import (
	"bytes"
	"go/format"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourcesAreGofmtClean(t *testing.T) {
	for _, dir := range []string{".", "../config"} {
		files, err := filepath.Glob(filepath.Join(dir, "*.go"))
		require.NoError(t, err)
		require.NotEmpty(t, files, dir)
		for _, name := range files {
			src, err := os.ReadFile(name)
			require.NoError(t, err)
			formatted, err := format.Source(src)
			require.NoError(t, err, name)
			assert.True(t, bytes.Equal(src, formatted), "%s is not gofmt-formatted", name)
		}
	}
}
