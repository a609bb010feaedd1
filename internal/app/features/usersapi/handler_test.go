// internal/app/features/usersapi/handler_test.go
package usersapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	userstore "github.com/dalemusser/esiagate/internal/app/store/users"
	"github.com/dalemusser/esiagate/internal/domain/models"
)

func newTestHandler(db *sql.DB) *Handler {
	return NewHandler(userstore.New(db), zap.NewNop())
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "esia_uid", "first_name", "last_name", "middle_name", "trusted",
		"status", "verifying", "r_id_doc", "contains_up_cfm_code", "e_tag",
		"updated_on", "state_facts", "created_at", "updated_at",
	})
}

func TestListPassesPagination(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .* FROM users ORDER BY id OFFSET").
		WithArgs(20, 50).
		WillReturnRows(userRows().AddRow(
			int64(21), "uid-21", nil, nil, nil, false, nil, false, nil, false,
			nil, nil, nil, now, now))

	req := httptest.NewRequest(http.MethodGet, "/?skip=20&limit=50", nil)
	w := httptest.NewRecorder()
	Routes(newTestHandler(db)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var users []models.User
	if err := json.NewDecoder(w.Body).Decode(&users); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(users) != 1 || users[0].ESIAUID != "uid-21" {
		t.Fatalf("unexpected list: %+v", users)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM users WHERE id").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/99", nil)
	w := httptest.NewRecorder()
	Routes(newTestHandler(db)).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestGetRejectsNonNumericID(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	req := httptest.NewRequest(http.MethodGet, "/abc", nil)
	w := httptest.NewRecorder()
	Routes(newTestHandler(db)).ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestGetByESIAUID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .* FROM users WHERE esia_uid").
		WithArgs("uid-1").
		WillReturnRows(userRows().AddRow(
			int64(1), "uid-1", "Ivan", nil, nil, true, nil, false, nil, false,
			nil, nil, nil, now, now))

	req := httptest.NewRequest(http.MethodGet, "/esia/uid-1", nil)
	w := httptest.NewRecorder()
	Routes(newTestHandler(db)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var u models.User
	if err := json.NewDecoder(w.Body).Decode(&u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.ID != 1 || u.ESIAUID != "uid-1" {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestCreateDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	body := `{"esia_uid":"uid-1","first_name":"Ivan"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()
	Routes(newTestHandler(db)).ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if !strings.Contains(w.Body.String(), "already exists") {
		t.Fatalf("body: %s", w.Body.String())
	}
}

func TestCreateRequiresESIAUID(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	Routes(newTestHandler(db)).ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestUpdatePartial(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("UPDATE users SET").
		WillReturnRows(userRows().AddRow(
			int64(1), "uid-1", "Ivan", "Sidorov", nil, true, nil, false, nil,
			false, nil, nil, nil, now, now))

	body := `{"last_name":"Sidorov"}`
	req := httptest.NewRequest(http.MethodPut, "/1", strings.NewReader(body))
	w := httptest.NewRecorder()
	Routes(newTestHandler(db)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var u models.User
	if err := json.NewDecoder(w.Body).Decode(&u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.LastName == nil || *u.LastName != "Sidorov" {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestDeleteCascades(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM user_tokens").
		WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM user_organizations").
		WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM users").
		WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodDelete, "/1", nil)
	w := httptest.NewRecorder()
	Routes(newTestHandler(db)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM user_tokens").
		WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM user_organizations").
		WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM users").
		WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	req := httptest.NewRequest(http.MethodDelete, "/9", nil)
	w := httptest.NewRecorder()
	Routes(newTestHandler(db)).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
