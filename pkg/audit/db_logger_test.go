package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestDBLoggerInsertsEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	logger, err := NewDBLogger(db)
	if err != nil {
		t.Fatalf("NewDBLogger: %v", err)
	}

	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	userID := int64(7)
	err = logger.LogAuthentication(context.Background(), EventTypeAuthLogin, &userID, "a@example.com", EventStatusSuccess, "login")
	if err != nil {
		t.Fatalf("LogAuthentication: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDBLoggerSurfacesInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	logger, _ := NewDBLogger(db)
	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnError(errors.New("connection reset"))

	err = logger.LogAuthorization(context.Background(), EventTypeAccessDenied, nil, ResourceTypeItem, "42", EventStatusDenied, "not admin")
	if err == nil {
		t.Fatal("expected error from failed insert")
	}
}

func TestNewDBLoggerRequiresHandle(t *testing.T) {
	if _, err := NewDBLogger(nil); err == nil {
		t.Fatal("expected error for nil database handle")
	}
}
