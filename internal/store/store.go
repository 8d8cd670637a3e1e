// Package store is the data access layer. Every read and write is scoped by
// tenant id; a row owned by another tenant is reported as ErrNotFound.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/d9705996/artisan/internal/billing"
	"github.com/d9705996/artisan/internal/model"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a row does not exist for the tenant.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when the row's state forbids the operation or
	// changed concurrently.
	ErrConflict = errors.New("conflict")
	// ErrClientInUse is returned when deleting a client still referenced by
	// quotes or invoices.
	ErrClientInUse = errors.New("client is referenced by quotes or invoices")
)

// numeroAttempts bounds retries when two writers race for the same number.
const numeroAttempts = 3

type clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func scoped(db *gorm.DB, tenantID, id string) *gorm.DB {
	return db.Where("tenant_id = ? AND id = ?", tenantID, id)
}

func orderedLines(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// requireClient checks the client exists for the tenant.
func requireClient(tx *gorm.DB, tenantID, clientID string) error {
	var n int64
	if err := scoped(tx.Model(&model.Client{}), tenantID, clientID).Count(&n).Error; err != nil {
		return fmt.Errorf("check client: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("client %s: %w", clientID, ErrNotFound)
	}
	return nil
}

// nextNumero returns the next free document number of the tenant's series.
func nextNumero(tx *gorm.DB, table any, tenantID, prefix string, year int) (string, error) {
	var existing []string
	if err := tx.Model(table).
		Where("tenant_id = ? AND numero LIKE ?", tenantID, billing.NumeroPrefix(prefix, year)+"%").
		Pluck("numero", &existing).Error; err != nil {
		return "", fmt.Errorf("read numbering: %w", err)
	}
	return billing.Numero(prefix, year, billing.NextSeq(prefix, year, existing...)), nil
}

// withNumero runs create until it succeeds without a duplicate number.
func withNumero(create func() error) error {
	var err error
	for range numeroAttempts {
		err = create()
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return fmt.Errorf("allocate document number: %w", ErrConflict)
}

// statusUpdates builds the single UPDATE applied on a transition: the new
// status plus its date stamp, never overwriting an existing stamp.
func statusUpdates(status, stampColumn string, now time.Time) map[string]any {
	updates := map[string]any{"status": status}
	if stampColumn != "" {
		updates[stampColumn] = gorm.Expr("COALESCE("+stampColumn+", ?)", now)
	}
	return updates
}

func totalsUpdates(t billing.Totals) map[string]any {
	return map[string]any{"montant_ht": t.HT, "montant_tva": t.TVA, "montant_ttc": t.TTC}
}
