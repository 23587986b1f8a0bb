package fake

import (
	"context"
	"testing"

	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier"
	"github.com/stretchr/testify/require"
)

func TestClient_Lookup_Deterministic(t *testing.T) {
	c := New()
	first, err := c.Lookup(context.Background(), carrier.CodeDHL, "A1")
	require.NoError(t, err)
	second, err := c.Lookup(context.Background(), carrier.CodeDHL, "A1")
	require.NoError(t, err)
	require.Equal(t, first.Phase, second.Phase)
	require.Equal(t, first.Failure, second.Failure)
}

func TestClient_Lookup_AutoFallsBackToDHL(t *testing.T) {
	c := New()
	res, err := c.Lookup(context.Background(), carrier.CodeAuto, "A1")
	require.NoError(t, err)
	if !res.Failed() {
		require.Equal(t, carrier.CodeDHL, res.Carrier)
		require.NotEmpty(t, res.Events)
	}
}
