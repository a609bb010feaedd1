// internal/app/store/organizations/organizationstore_test.go
package organizationstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"github.com/dalemusser/esiagate/internal/domain/models"
)

func orgRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "esia_oid", "prn_oid", "full_name", "short_name", "ogrn", "inn",
		"kpp", "org_type", "leg", "oktmo", "phone", "email", "is_chief",
		"is_admin", "is_active", "has_right_of_substitution",
		"has_approval_tab_access", "is_liquidated", "staff_count",
		"agency_ter_range", "agency_type", "e_tag", "created_at", "updated_at",
	})
}

func addOrgRow(rows *sqlmock.Rows, id, esiaOID int64, active bool) *sqlmock.Rows {
	now := time.Now().UTC()
	return rows.AddRow(id, esiaOID, nil, "Full Name", "Short", nil, nil, nil,
		nil, nil, nil, nil, nil, false, false, active, false, false, false,
		nil, nil, nil, nil, now, now)
}

func TestCreateDuplicateOID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	s := New(db)
	_, err = s.Create(context.Background(), models.Organization{ESIAOID: 42})
	if gwerr.KindOf(err) != gwerr.KindValidation {
		t.Fatalf("error kind = %v, want validation", gwerr.KindOf(err))
	}
}

func TestUpsertCreatesInactiveWhenFlagged(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM organizations WHERE esia_oid").
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnRows(addOrgRow(orgRows(), 1, 42, false))

	s := New(db)
	inactive := false
	o, created, err := s.Upsert(context.Background(), 42, Patch{IsActive: &inactive})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !created {
		t.Fatal("Upsert did not report create")
	}
	if o.IsActive {
		t.Fatal("liquidated organization created as active")
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM organizations WHERE esia_oid").
		WithArgs(int64(42)).
		WillReturnRows(addOrgRow(orgRows(), 8, 42, true))
	mock.ExpectQuery("UPDATE organizations SET").
		WillReturnRows(addOrgRow(orgRows(), 8, 42, true))

	s := New(db)
	name := "Renamed"
	o, created, err := s.Upsert(context.Background(), 42, Patch{ShortName: &name})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if created {
		t.Fatal("Upsert reported create for an existing organization")
	}
	if o.ID != 8 {
		t.Fatalf("internal id not preserved: %d", o.ID)
	}
}

func TestDeleteCascades(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM organization_addresses WHERE organization_id").
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM organization_groups WHERE organization_id").
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM user_organizations WHERE organization_id").
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM organizations WHERE id").
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := New(db)
	if err := s.Delete(context.Background(), 8); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
