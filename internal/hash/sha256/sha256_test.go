package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestIsStable(t *testing.T) {
	t.Parallel()

	got := Digest([]byte(`{"identifier":"20771","name":"Whole Milk 1L"}` + "\n"))
	require.Len(t, got, 64)
	require.Equal(t, got, Digest([]byte(`{"identifier":"20771","name":"Whole Milk 1L"}`+"\n")))

	require.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Digest(nil), "empty input digests to the well known empty hash")
}
