package ownership

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestRegistry_ClaimIsExclusive(t *testing.T) {
	var r Registry

	require.NoError(t, r.Claim("products"))
	require.ErrorIs(t, r.Claim("products"), domain.ErrStorageInUse)
	require.NoError(t, r.Claim("carts"))

	r.Release("products")
	require.NoError(t, r.Claim("products"))
}

func TestRegistry_Revisions(t *testing.T) {
	var r Registry
	require.Zero(t, r.Expected("products"))

	r.Observe("products", 3)
	require.Equal(t, int64(3), r.Expected("products"))

	r.Release("products")
	require.Zero(t, r.Expected("products"))
}

func TestConflict(t *testing.T) {
	err := Conflict("products", 0)
	require.ErrorIs(t, err, domain.ErrStorageInUse)
	require.Contains(t, err.Error(), "created by another writer")

	err = Conflict("products", 4)
	require.ErrorIs(t, err, domain.ErrStorageInUse)
	require.Contains(t, err.Error(), "revision 4")
}
