package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeIsUnitNormAndDeterministic(t *testing.T) {
	e := New(64, "search_query: ", "search_document: ", 16)
	defer e.Close()

	ctx := context.Background()
	v1, err := e.EncodeQuery(ctx, "use JWT for auth")
	require.NoError(t, err)
	v2, err := e.EncodeQuery(ctx, "use JWT for auth")
	require.NoError(t, err)

	require.Equal(t, v1, v2)
	require.InDelta(t, 1.0, Cosine(v1, v1), 1e-6)
}

func TestAsymmetricPrefixesDiffer(t *testing.T) {
	e := New(64, "search_query: ", "search_document: ", 16)
	defer e.Close()

	ctx := context.Background()
	q, err := e.EncodeQuery(ctx, "auth")
	require.NoError(t, err)
	d, err := e.EncodeDocument(ctx, "auth")
	require.NoError(t, err)

	require.NotEqual(t, q, d)
}

func TestEmptyTextFallsBackToUnitVector(t *testing.T) {
	e := New(32, "q: ", "d: ", 16)
	defer e.Close()
	v, err := e.EncodeQuery(context.Background(), "")
	require.NoError(t, err)
	require.InDelta(t, 1.0, Cosine(v, v), 1e-6)
}
