package render

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestZip writes entries into buf as a zip archive and returns the
// *zip.Writer (already closed) for callers that don't need it further.
func newTestZip(t *testing.T, buf *bytes.Buffer, entries map[string]string) *zip.Writer {
	t.Helper()
	zw := zip.NewWriter(buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return zw
}
