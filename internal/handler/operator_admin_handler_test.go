package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/octobees/supplier-outreach/internal/dto"
	"github.com/octobees/supplier-outreach/internal/repository"
	"github.com/octobees/supplier-outreach/internal/service"
)

func newOperatorAdminHandler(t *testing.T) (*OperatorAdminHandler, *service.OperatorService) {
	t.Helper()
	svc := service.NewOperatorService(repository.NewMemoryStore())
	return NewOperatorAdminHandler(svc), svc
}

func TestOperatorAdminHandler_Create(t *testing.T) {
	e := echo.New()

	tests := map[string]struct {
		body       string
		expectCode int
	}{
		"invalid payload":  {body: "{", expectCode: http.StatusBadRequest},
		"missing password": {body: `{"email":"ops@example.com"}`, expectCode: http.StatusBadRequest},
		"unknown role":     {body: `{"email":"ops@example.com","password":"secret","role":"root"}`, expectCode: http.StatusBadRequest},
		"duplicate":        {body: `{"email":"taken@example.com","password":"secret"}`, expectCode: http.StatusConflict},
		"success":          {body: `{"email":"ops@example.com","password":"secret"}`, expectCode: http.StatusCreated},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h, svc := newOperatorAdminHandler(t)
			if _, err := svc.CreateOperator(context.Background(), dto.CreateOperatorRequest{Email: "taken@example.com", Password: "secret"}); err != nil {
				t.Fatalf("seed: %v", err)
			}

			c, rec := postJSON(e, "/admin/operators", tt.body)
			if err := h.Create(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.expectCode {
				t.Fatalf("expected %d, got %d: %s", tt.expectCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOperatorAdminHandler_UpdateDeleteList(t *testing.T) {
	e := echo.New()
	h, svc := newOperatorAdminHandler(t)
	op, err := svc.CreateOperator(context.Background(), dto.CreateOperatorRequest{Email: "ops@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	c, rec := postJSON(e, "/admin/operators/"+op.ID, `{"role":"admin"}`)
	c.SetParamNames("id")
	c.SetParamValues(op.ID)
	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d", rec.Code)
	}

	c, rec = postJSON(e, "/admin/operators/not-a-uuid", `{"role":"admin"}`)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	_ = h.Update(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid id, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/operators", nil)
	rec = httptest.NewRecorder()
	if err := h.List(e.NewContext(req, rec)); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("list = %d, %v", rec.Code, err)
	}

	for _, expect := range []int{http.StatusOK, http.StatusNotFound} {
		req := httptest.NewRequest(http.MethodDelete, "/admin/operators/"+op.ID, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(op.ID)
		_ = h.Delete(c)
		if rec.Code != expect {
			t.Fatalf("expected %d on delete, got %d", expect, rec.Code)
		}
	}
}
