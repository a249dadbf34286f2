package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestExitErrorMessage(t *testing.T) {
	t.Parallel()

	wrapped := errors.New("harvest aborted: storefront session revoked")
	exitErr := &ExitError{Code: 4, Err: wrapped}
	require.Equal(t, "harvest aborted: storefront session revoked", exitErr.Error())
	require.ErrorIs(t, exitErr, wrapped)

	bare := &ExitError{Code: 3}
	require.Equal(t, "exit code 3", bare.Error())
}

func TestResolveRunID(t *testing.T) {
	t.Parallel()

	generated, err := resolveRunID("")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, generated)
	require.Equal(t, uuid.Version(7), generated.Version())

	explicit, err := resolveRunID("0190a2f0-1234-7abc-8def-0123456789ab")
	require.NoError(t, err)
	require.Equal(t, "0190a2f0-1234-7abc-8def-0123456789ab", explicit.String())

	_, err = resolveRunID("not-a-uuid")
	require.ErrorContains(t, err, "invalid --run-id")
}

func TestResolveAppRequiresInjection(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.ErrorContains(t, err, "not initialized")
}

func TestRootRegistersSubcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	names := make([]string, 0, len(root.Commands()))
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	require.Subset(t, names, []string{"crawl", "taxonomy", "serve"})
}
