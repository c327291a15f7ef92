package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-order-gateway/internal/domain"
)

func TestPersistSession_Success(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/token" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":null,"message":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, zerolog.Nop())
	if err := c.PersistSession(context.Background(), "at", "rt"); err != nil {
		t.Fatalf("PersistSession: %v", err)
	}
	if gotBody["accessToken"] != "at" || gotBody["refreshToken"] != "rt" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestPersistSession_FailureCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Refresh token đã hết hạn"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, zerolog.Nop())
	err := c.PersistSession(context.Background(), "at", "rt")
	var xe *ExchangeError
	if !errors.As(err, &xe) {
		t.Fatalf("expected *ExchangeError, got %v", err)
	}
	if xe.Status != http.StatusUnauthorized {
		t.Fatalf("status = %d", xe.Status)
	}
	if xe.UserMessage() != "Refresh token đã hết hạn" {
		t.Fatalf("user message = %q", xe.UserMessage())
	}
}

func TestPersistSession_GarbledErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>boom</html>`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, zerolog.Nop())
	err := c.PersistSession(context.Background(), "at", "rt")
	var xe *ExchangeError
	if !errors.As(err, &xe) {
		t.Fatalf("expected *ExchangeError, got %v", err)
	}
	if xe.UserMessage() != "" {
		t.Fatalf("user message = %q, want empty for garbled body", xe.UserMessage())
	}
}

func TestListOrders_DecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/guest/orders" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = w.Write([]byte(`{
			"data": [
				{"id":1,"dishSnapshot":{"id":10,"name":"Phở","price":50000,"image":""},"quantity":2,"status":"Pending"},
				{"id":2,"dishSnapshot":{"id":11,"name":"Chả giò","price":30000,"image":""},"quantity":1,"status":"Paid"}
			],
			"message": "Lấy danh sách đơn hàng thành công"
		}`))
	}))
	defer srv.Close()

	api := New(srv.URL, 5*time.Second, zerolog.Nop()).Authorized("tok-1")
	orders, err := api.ListOrders(context.Background())
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("len = %d, want 2", len(orders))
	}
	if orders[0].DishSnapshot.Name != "Phở" || orders[0].Status != domain.OrderPending {
		t.Fatalf("orders[0] = %+v", orders[0])
	}
}

func TestListOrders_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"token không hợp lệ"}`))
	}))
	defer srv.Close()

	api := New(srv.URL, 5*time.Second, zerolog.Nop()).Authorized("bad")
	if _, err := api.ListOrders(context.Background()); err == nil {
		t.Fatal("expected error on 403")
	}
}
