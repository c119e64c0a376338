package venue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_engine/internal/core"
	"trade_engine/internal/venue"
	apperrors "trade_engine/pkg/errors"
)

func TestRegistry_GetRegistered(t *testing.T) {
	r := venue.NewRegistry()
	raydium := venue.NewAMMVenue(core.VenueRaydium, nil)
	r.Register(raydium)

	got, err := r.Get(core.VenueRaydium)
	require.NoError(t, err)
	assert.Same(t, raydium, got)
}

func TestRegistry_GetUnknownVenue(t *testing.T) {
	r := venue.NewRegistry()

	_, err := r.Get(core.VenueSerum)
	assert.ErrorIs(t, err, apperrors.ErrUnknownVenue)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := venue.NewRegistry()
	first := venue.NewAMMVenue(core.VenueJupiter, nil)
	second := venue.NewAMMVenue(core.VenueJupiter, nil)
	r.Register(first)
	r.Register(second)

	got, err := r.Get(core.VenueJupiter)
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestRegistry_Kinds(t *testing.T) {
	r := venue.NewRegistry()
	assert.Empty(t, r.Kinds())

	r.Register(venue.NewAMMVenue(core.VenueRaydium, nil))
	r.Register(venue.NewAMMVenue(core.VenueSerum, nil))
	assert.ElementsMatch(t, []core.VenueKind{core.VenueRaydium, core.VenueSerum}, r.Kinds())
}
