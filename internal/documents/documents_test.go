package documents_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/d9705996/artisan/internal/billing"
	"github.com/d9705996/artisan/internal/config"
	"github.com/d9705996/artisan/internal/db"
	"github.com/d9705996/artisan/internal/documents"
	"github.com/d9705996/artisan/internal/integration"
	"github.com/d9705996/artisan/internal/integration/mail"
	"github.com/d9705996/artisan/internal/integration/pdf"
	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/notify"
	"github.com/d9705996/artisan/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
)

type fakeRenderer struct{}

func (fakeRenderer) Render(context.Context, string) ([]byte, error) { return []byte("%PDF-1.4"), nil }

type fakeSender struct {
	mu   sync.Mutex
	sent []mail.Email
	err  error
}

func (f *fakeSender) Send(_ context.Context, e mail.Email) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, e)
	return "msg-" + e.Subject + "@plomberie-martin.fr", nil
}

type fixture struct {
	st     documents.Stores
	notes  *store.NotificationStore
	sender *fakeSender
	client *model.Client
	now    time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	gormDB, _, err := db.New(ctx, &config.DBConfig{Driver: "sqlite", File: filepath.Join(t.TempDir(), "docs.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &fixture{
		st: documents.Stores{
			Devis:    store.NewDevisStore(gormDB),
			Factures: store.NewFactureStore(gormDB),
			Clients:  store.NewClientStore(gormDB),
			Entreprises: store.NewEntrepriseStore(gormDB, store.EntrepriseDefaults{
				VATPct: decimal.NewFromInt(10), ValidityDays: 30, PaymentDays: 30,
			}),
		},
		notes:  store.NewNotificationStore(gormDB),
		sender: &fakeSender{},
		now:    time.Now().UTC(),
	}
	require.NoError(t, f.st.Entreprises.Upsert(ctx, &model.Entreprise{
		TenantID: tenantA, RaisonSociale: "Plomberie Martin", Email: "contact@plomberie-martin.fr",
		TVADefaut: decimal.NewFromInt(10), ValiditeDevisJours: 15, DelaiPaiementJours: 45,
	}))
	f.client = &model.Client{Nom: "Durand", Prenom: "Paul", Email: "paul.durand@example.fr"}
	require.NoError(t, f.st.Clients.Create(ctx, tenantA, f.client))
	return f
}

func (f *fixture) service(t *testing.T, opts ...documents.Option) *documents.Service {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen, err := pdf.NewGenerator(fakeRenderer{}, nil, log)
	require.NoError(t, err)
	dedup := notify.NewMemoryDeduplicator(30*time.Second, time.Minute, notify.WithoutSweeper())
	t.Cleanup(func() { _ = dedup.Close() })
	n, err := notify.NewService(f.notes, dedup, log)
	require.NoError(t, err)
	opts = append([]documents.Option{documents.WithClock(func() time.Time { return f.now })}, opts...)
	return documents.New(f.st, gen, n, log, opts...)
}

func lignes() []model.Ligne {
	return []model.Ligne{{
		Designation: "Main d'oeuvre",
		Quantity:    decimal.NewFromInt(2),
		UnitPriceHT: decimal.NewFromInt(100),
		VATPct:      decimal.NewFromInt(10),
	}}
}

func (f *fixture) devis(t *testing.T, in store.DevisInput) *model.Devis {
	t.Helper()
	in.ClientID = f.client.ID
	in.Lignes = lignes()
	d, err := f.st.Devis.Create(context.Background(), tenantA, in)
	require.NoError(t, err)
	return d
}

func TestSendDevis(t *testing.T) {
	f := setup(t)
	svc := f.service(t, documents.WithMail(f.sender))
	ctx := context.Background()
	d := f.devis(t, store.DevisInput{Objet: "Salle de bain"})

	out, sent, err := svc.SendDevis(ctx, tenantA, d.ID, documents.SendOptions{Message: "Suite à notre visite,"})
	require.NoError(t, err)
	assert.Equal(t, billing.DevisSent, out.Status)
	require.NotNil(t, out.DateEnvoi)
	require.NotNil(t, out.DateValidite, "validity defaulted from the tenant profile")
	assert.WithinDuration(t, f.now.AddDate(0, 0, 15), *out.DateValidite, time.Second)
	assert.Equal(t, "paul.durand@example.fr", sent.To)

	require.Len(t, f.sender.sent, 1)
	e := f.sender.sent[0]
	assert.Equal(t, "Devis "+d.Numero+" - Plomberie Martin", e.Subject)
	assert.Equal(t, "contact@plomberie-martin.fr", e.ReplyTo)
	assert.Contains(t, e.Text, "Suite à notre visite,")
	assert.Contains(t, e.Text, "LÉO")
	require.Len(t, e.Attachments, 1)
	assert.Equal(t, d.Numero+".pdf", e.Attachments[0].Name)
	assert.Equal(t, "application/pdf", e.Attachments[0].ContentType)

	notes, err := f.notes.List(ctx, tenantA, false, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotificationDevisSent, notes[0].Type)
	assert.Equal(t, d.ID, notes[0].Payload["devis_id"])

	// Resending keeps the first send date and is deduplicated.
	again, _, err := svc.SendDevis(ctx, tenantA, d.ID, documents.SendOptions{})
	require.NoError(t, err)
	assert.True(t, out.DateEnvoi.Equal(*again.DateEnvoi))
	assert.Len(t, f.sender.sent, 2)
	notes, err = f.notes.List(ctx, tenantA, false, 10)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestSendDevis_Refusals(t *testing.T) {
	ctx := context.Background()

	t.Run("mail not configured", func(t *testing.T) {
		f := setup(t)
		d := f.devis(t, store.DevisInput{})
		_, _, err := f.service(t).SendDevis(ctx, tenantA, d.ID, documents.SendOptions{})
		assert.ErrorIs(t, err, integration.ErrNotConfigured)
	})

	t.Run("accepted quote cannot be sent", func(t *testing.T) {
		f := setup(t)
		d := f.devis(t, store.DevisInput{})
		_, err := f.st.Devis.SetStatus(ctx, tenantA, d.ID, billing.DevisSent)
		require.NoError(t, err)
		_, err = f.st.Devis.SetStatus(ctx, tenantA, d.ID, billing.DevisAccepted)
		require.NoError(t, err)

		_, _, err = f.service(t, documents.WithMail(f.sender)).SendDevis(ctx, tenantA, d.ID, documents.SendOptions{})
		assert.ErrorIs(t, err, billing.ErrInvalidTransition)
		assert.Empty(t, f.sender.sent)
	})

	t.Run("delivery failure leaves the quote in draft", func(t *testing.T) {
		f := setup(t)
		f.sender.err = &integration.UpstreamError{Provider: "smtp", Message: "550 domain not verified"}
		d := f.devis(t, store.DevisInput{})
		_, _, err := f.service(t, documents.WithMail(f.sender)).SendDevis(ctx, tenantA, d.ID, documents.SendOptions{})
		var up *integration.UpstreamError
		require.ErrorAs(t, err, &up)

		got, err := f.st.Devis.Get(ctx, tenantA, d.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.DevisDraft, got.Status)
		assert.Nil(t, got.DateEnvoi)
	})

	t.Run("client without email", func(t *testing.T) {
		f := setup(t)
		c := &model.Client{Nom: "Sans", Telephone: "0600000000"}
		require.NoError(t, f.st.Clients.Create(ctx, tenantA, c))
		d, err := f.st.Devis.Create(ctx, tenantA, store.DevisInput{ClientID: c.ID, Lignes: lignes()})
		require.NoError(t, err)
		_, _, err = f.service(t, documents.WithMail(f.sender)).SendDevis(ctx, tenantA, d.ID, documents.SendOptions{})
		assert.ErrorIs(t, err, documents.ErrNoRecipient)

		_, sent, err := f.service(t, documents.WithMail(f.sender)).SendDevis(ctx, tenantA, d.ID, documents.SendOptions{To: "chantier@example.fr"})
		require.NoError(t, err)
		assert.Equal(t, "chantier@example.fr", sent.To)
	})

	t.Run("other tenant", func(t *testing.T) {
		f := setup(t)
		d := f.devis(t, store.DevisInput{})
		_, _, err := f.service(t, documents.WithMail(f.sender)).SendDevis(ctx, tenantB, d.ID, documents.SendOptions{})
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, _, err = f.service(t).DevisPDF(ctx, tenantB, d.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestSendFacture(t *testing.T) {
	f := setup(t)
	svc := f.service(t, documents.WithMail(f.sender))
	ctx := context.Background()
	fac, err := f.st.Factures.Create(ctx, tenantA, store.FactureInput{ClientID: f.client.ID, Lignes: lignes()})
	require.NoError(t, err)

	out, _, err := svc.SendFacture(ctx, tenantA, fac.ID, documents.SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, billing.FactureSent, out.Status)
	require.NotNil(t, out.DateEcheance)
	assert.WithinDuration(t, f.now.AddDate(0, 0, 45), *out.DateEcheance, time.Second)
	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0].Text, "220,00")
	assert.Contains(t, f.sender.sent[0].Text, "payable avant le "+pdf.FormatDate(out.DateEcheance))
}

func TestDocumentPDF(t *testing.T) {
	f := setup(t)
	svc := f.service(t)
	d := f.devis(t, store.DevisInput{})

	doc, data, err := svc.DevisPDF(context.Background(), tenantA, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)
	assert.Equal(t, "Plomberie Martin", doc.Entreprise.RaisonSociale)
	assert.Equal(t, "Durand", doc.Client.Nom)
	assert.True(t, doc.Totals.TTC.Equal(decimal.NewFromInt(220)))
}

func TestMarkOverdueFactures(t *testing.T) {
	f := setup(t)
	svc := f.service(t)
	ctx := context.Background()
	past := f.now.AddDate(0, 0, -1)
	future := f.now.AddDate(0, 0, 10)

	late, err := f.st.Factures.Create(ctx, tenantA, store.FactureInput{ClientID: f.client.ID, DateEcheance: &past, Lignes: lignes()})
	require.NoError(t, err)
	onTime, err := f.st.Factures.Create(ctx, tenantA, store.FactureInput{ClientID: f.client.ID, DateEcheance: &future, Lignes: lignes()})
	require.NoError(t, err)
	draft, err := f.st.Factures.Create(ctx, tenantA, store.FactureInput{ClientID: f.client.ID, DateEcheance: &past, Lignes: lignes()})
	require.NoError(t, err)
	for _, id := range []string{late.ID, onTime.ID} {
		_, err := f.st.Factures.SetStatus(ctx, tenantA, id, billing.FactureSent)
		require.NoError(t, err)
	}

	n, err := svc.MarkOverdueFactures(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.st.Factures.Get(ctx, tenantA, late.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.FactureOverdue, got.Status)
	got, err = f.st.Factures.Get(ctx, tenantA, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.FactureDraft, got.Status)

	notes, err := f.notes.List(ctx, tenantA, true, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotificationFactureOverdue, notes[0].Type)

	n, err = svc.MarkOverdueFactures(ctx, f.now)
	require.NoError(t, err)
	assert.Zero(t, n, "sweep is idempotent")
}

func TestExpireDevis(t *testing.T) {
	f := setup(t)
	svc := f.service(t)
	ctx := context.Background()
	past := f.now.AddDate(0, 0, -2)

	d := f.devis(t, store.DevisInput{DateValidite: &past})
	_, err := f.st.Devis.SetStatus(ctx, tenantA, d.ID, billing.DevisSent)
	require.NoError(t, err)

	n, err := svc.ExpireDevis(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := f.st.Devis.Get(ctx, tenantA, d.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.DevisExpired, got.Status)

	_, err = f.st.Devis.SetStatus(ctx, tenantA, d.ID, billing.DevisAccepted)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition, "expired is terminal")
}

func TestSweepSkipsFailedNotifications(t *testing.T) {
	f := setup(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen, err := pdf.NewGenerator(fakeRenderer{}, nil, log)
	require.NoError(t, err)
	svc := documents.New(f.st, gen, failingNotifier{}, log)
	ctx := context.Background()
	past := f.now.AddDate(0, 0, -2)
	d := f.devis(t, store.DevisInput{DateValidite: &past})
	_, err = f.st.Devis.SetStatus(ctx, tenantA, d.ID, billing.DevisSent)
	require.NoError(t, err)

	n, err := svc.ExpireDevis(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, *model.Notification) (bool, error) {
	return false, errors.New("db locked")
}
