package billing_test

import (
	"testing"

	"github.com/d9705996/artisan/internal/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevisLifecycle_Check(t *testing.T) {
	lc := billing.DevisLifecycle
	allowed := [][2]billing.DevisStatus{
		{billing.DevisDraft, billing.DevisSent},
		{billing.DevisSent, billing.DevisAccepted},
		{billing.DevisSent, billing.DevisRefused},
		{billing.DevisSent, billing.DevisExpired},
		{billing.DevisAccepted, billing.DevisPaid},
		{billing.DevisSent, billing.DevisSent},
	}
	for _, tr := range allowed {
		assert.NoError(t, lc.Check(tr[0], tr[1]), "%s → %s", tr[0], tr[1])
	}

	rejected := [][2]billing.DevisStatus{
		{billing.DevisDraft, billing.DevisAccepted},
		{billing.DevisRefused, billing.DevisAccepted},
		{billing.DevisPaid, billing.DevisDraft},
		{billing.DevisExpired, billing.DevisSent},
	}
	for _, tr := range rejected {
		assert.ErrorIs(t, lc.Check(tr[0], tr[1]), billing.ErrInvalidTransition, "%s → %s", tr[0], tr[1])
	}

	assert.ErrorIs(t, lc.Check(billing.DevisDraft, "archived"), billing.ErrUnknownStatus)
}

func TestFactureLifecycle_Check(t *testing.T) {
	lc := billing.FactureLifecycle
	require.NoError(t, lc.Check(billing.FactureSent, billing.FactureOverdue))
	require.NoError(t, lc.Check(billing.FactureOverdue, billing.FacturePaid))
	assert.ErrorIs(t, lc.Check(billing.FacturePaid, billing.FactureDraft), billing.ErrInvalidTransition)
	assert.ErrorIs(t, lc.Check(billing.FactureDraft, billing.FacturePaid), billing.ErrInvalidTransition)
}

func TestLifecycle_Terminal(t *testing.T) {
	for _, s := range []billing.DevisStatus{billing.DevisRefused, billing.DevisExpired, billing.DevisPaid} {
		assert.True(t, billing.DevisLifecycle.Terminal(s), s)
	}
	assert.False(t, billing.DevisLifecycle.Terminal(billing.DevisSent))
	assert.True(t, billing.FactureLifecycle.Terminal(billing.FacturePaid))
	assert.False(t, billing.FactureLifecycle.Terminal("bogus"))
}

func TestLifecycle_Stamp(t *testing.T) {
	assert.Equal(t, "date_envoi", billing.DevisLifecycle.Stamp(billing.DevisSent))
	assert.Equal(t, "date_acceptation", billing.DevisLifecycle.Stamp(billing.DevisAccepted))
	assert.Empty(t, billing.DevisLifecycle.Stamp(billing.DevisRefused))
	assert.Equal(t, "date_paiement", billing.FactureLifecycle.Stamp(billing.FacturePaid))
}

func TestLifecycle_Parse(t *testing.T) {
	s, err := billing.FactureLifecycle.Parse("overdue")
	require.NoError(t, err)
	assert.Equal(t, billing.FactureOverdue, s)

	_, err = billing.FactureLifecycle.Parse("accepted")
	assert.ErrorIs(t, err, billing.ErrUnknownStatus)
}

func TestNumbering(t *testing.T) {
	assert.Equal(t, "DEV-2026-0007", billing.Numero(billing.PrefixDevis, 2026, 7))
	assert.Equal(t, 1, billing.NextSeq(billing.PrefixFacture, 2026))
	assert.Equal(t, 13, billing.NextSeq(billing.PrefixFacture, 2026,
		"FAC-2026-0003", "FAC-2026-0012", "FAC-2025-0099", "FAC-2026-x"))
}
