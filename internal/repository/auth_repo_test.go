// auth_repo_test.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	"robot_control/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockOperators(t *testing.T) (*OperatorRepository, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	repo := NewOperatorRepository(db)
	cleanup := func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
		_ = db.Close()
	}
	return repo, mock, cleanup
}

func TestOperatorRepository_Create(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		hash        string
		mockExpect  func(sqlmock.Sqlmock)
		wantID      int
		errContains string
	}{
		{
			name:     "success",
			username: "alice",
			hash:     "h123",
			mockExpect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertOperatorSQL)).
					WithArgs("alice", "h123").
					WillReturnResult(sqlmock.NewResult(42, 1))
			},
			wantID: 42,
		},
		{
			name:     "duplicate username",
			username: "bob",
			hash:     "h456",
			mockExpect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertOperatorSQL)).
					WithArgs("bob", "h456").
					WillReturnError(errors.New("UNIQUE constraint failed: operators.username"))
			},
			errContains: `insert operator "bob"`,
		},
		{
			name:     "last insert id error",
			username: "carol",
			hash:     "h789",
			mockExpect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertOperatorSQL)).
					WithArgs("carol", "h789").
					WillReturnResult(sqlmock.NewErrorResult(errors.New("no last id")))
			},
			errContains: `operator "carol" id`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := newMockOperators(t)
			defer cleanup()
			tt.mockExpect(mock)

			id, err := repo.Create(context.Background(), tt.username, tt.hash)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("expected error containing %q, got %v", tt.errContains, err)
				}
				if id != 0 {
					t.Fatalf("expected id=0 on error, got %d", id)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.wantID {
				t.Fatalf("id = %d, want %d", id, tt.wantID)
			}
		})
	}
}

func TestOperatorRepository_GetByUsername(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		mockExpect  func(sqlmock.Sqlmock)
		want        *models.User
		errContains string
	}{
		{
			name:     "found",
			username: "alice",
			mockExpect: func(m sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "username", "password_hash"}).AddRow(7, "alice", "h123")
				m.ExpectQuery(regexp.QuoteMeta(selectOperatorByUsernameSQL)).WithArgs("alice").WillReturnRows(rows)
			},
			want: &models.User{ID: 7, Username: "alice", PasswordHash: "h123"},
		},
		{
			name:     "not found",
			username: "missing",
			mockExpect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta(selectOperatorByUsernameSQL)).WithArgs("missing").WillReturnError(sql.ErrNoRows)
			},
		},
		{
			name:     "query error",
			username: "bob",
			mockExpect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta(selectOperatorByUsernameSQL)).WithArgs("bob").WillReturnError(errors.New("disk I/O error"))
			},
			errContains: `select operator "bob"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := newMockOperators(t)
			defer cleanup()
			tt.mockExpect(mock)

			u, err := repo.GetByUsername(context.Background(), tt.username)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("expected error containing %q, got %v", tt.errContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want == nil {
				if u != nil {
					t.Fatalf("expected nil user, got %+v", u)
				}
				return
			}
			if u == nil || *u != *tt.want {
				t.Fatalf("user = %+v, want %+v", u, tt.want)
			}
		})
	}
}
