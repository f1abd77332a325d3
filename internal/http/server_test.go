package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"divvy/internal/ledger/memory"
	"divvy/internal/services"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.New()
	srv := NewServer(":0",
		store,
		services.NewExpenseService(store, nil),
		services.NewBalanceService(store),
	)
	t.Cleanup(func() { srv.limiter.Stop() })
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func createMember(t *testing.T, srv *Server, name, email string) memberJSON {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/users", map[string]string{"name": name, "email": email})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create member: status %d, body %s", rr.Code, rr.Body.String())
	}
	return decode[memberJSON](t, rr)
}

func createGroup(t *testing.T, srv *Server, name string, memberIDs []int64) groupJSON {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/groups", map[string]any{"name": name, "member_ids": memberIDs})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create group: status %d, body %s", rr.Code, rr.Body.String())
	}
	return decode[groupJSON](t, rr)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)

	if rr := do(t, srv, http.MethodGet, "/healthz", nil); rr.Code != http.StatusOK {
		t.Errorf("healthz = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/readyz", nil); rr.Code != http.StatusOK {
		t.Errorf("readyz = %d", rr.Code)
	}
}

func TestCreateExpenseEqualSplit(t *testing.T) {
	srv := newTestServer(t)
	ada := createMember(t, srv, "Ada", "ada@example.com")
	ben := createMember(t, srv, "Ben", "ben@example.com")
	cam := createMember(t, srv, "Cam", "cam@example.com")
	group := createGroup(t, srv, "flat", []int64{ada.ID, ben.ID, cam.ID})

	rr := do(t, srv, http.MethodPost, fmt.Sprintf("/groups/%d/expenses", group.ID), map[string]any{
		"description": "dinner",
		"amount":      "100.00",
		"paid_by":     ada.ID,
		"split_type":  "equal",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}

	exp := decode[expenseJSON](t, rr)
	if exp.AmountCents != 10000 || exp.Amount != "100.00" {
		t.Errorf("amount = %d / %s", exp.AmountCents, exp.Amount)
	}
	if len(exp.Splits) != 3 {
		t.Fatalf("splits = %+v", exp.Splits)
	}
	// Extra cent lands on the lowest member ID; splits come back ordered.
	wantCents := []int64{3334, 3333, 3333}
	for i, split := range exp.Splits {
		if split.AmountCents != wantCents[i] {
			t.Errorf("split[%d] = %d, want %d", i, split.AmountCents, wantCents[i])
		}
	}
}

func TestCreateExpensePercentageSplit(t *testing.T) {
	srv := newTestServer(t)
	ada := createMember(t, srv, "Ada", "ada@example.com")
	ben := createMember(t, srv, "Ben", "ben@example.com")
	cam := createMember(t, srv, "Cam", "cam@example.com")
	group := createGroup(t, srv, "trip", []int64{ada.ID, ben.ID, cam.ID})

	rr := do(t, srv, http.MethodPost, fmt.Sprintf("/groups/%d/expenses", group.ID), map[string]any{
		"description": "hotel",
		"amount":      "50.00",
		"paid_by":     ben.ID,
		"split_type":  "percentage",
		"weights": []map[string]any{
			{"member_id": ada.ID, "percent": "33.33"},
			{"member_id": ben.ID, "percent": "33.33"},
			{"member_id": cam.ID, "percent": "33.34"},
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}

	exp := decode[expenseJSON](t, rr)
	var sum int64
	for _, split := range exp.Splits {
		sum += split.AmountCents
	}
	if sum != 5000 {
		t.Errorf("splits sum to %d, want 5000", sum)
	}
	wantCents := map[int64]int64{ada.ID: 1667, ben.ID: 1666, cam.ID: 1667}
	for _, split := range exp.Splits {
		if split.AmountCents != wantCents[split.MemberID] {
			t.Errorf("member %d share = %d, want %d", split.MemberID, split.AmountCents, wantCents[split.MemberID])
		}
		if split.WeightBps == nil {
			t.Errorf("member %d missing weight_bps", split.MemberID)
		}
	}
}

func TestCreateExpenseErrors(t *testing.T) {
	srv := newTestServer(t)
	ada := createMember(t, srv, "Ada", "ada@example.com")
	ben := createMember(t, srv, "Ben", "ben@example.com")
	group := createGroup(t, srv, "flat", []int64{ada.ID, ben.ID})

	tests := []struct {
		name       string
		path       string
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{
			name: "unknown group",
			path: "/groups/999/expenses",
			body: map[string]any{
				"description": "x", "amount": "10.00", "paid_by": ada.ID, "split_type": "equal",
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "unknown_group",
		},
		{
			name: "payer outside group",
			path: fmt.Sprintf("/groups/%d/expenses", group.ID),
			body: map[string]any{
				"description": "x", "amount": "10.00", "paid_by": 999, "split_type": "equal",
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "unknown_member",
		},
		{
			name: "weights under tolerance",
			path: fmt.Sprintf("/groups/%d/expenses", group.ID),
			body: map[string]any{
				"description": "x", "amount": "10.00", "paid_by": ada.ID, "split_type": "percentage",
				"weights": []map[string]any{
					{"member_id": ada.ID, "percent": "50.00"},
					{"member_id": ben.ID, "percent": "49.50"},
				},
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "invalid_split",
		},
		{
			name: "negative amount",
			path: fmt.Sprintf("/groups/%d/expenses", group.ID),
			body: map[string]any{
				"description": "x", "amount": "-5.00", "paid_by": ada.ID, "split_type": "equal",
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "invalid_amount",
		},
		{
			name: "unknown split type",
			path: fmt.Sprintf("/groups/%d/expenses", group.ID),
			body: map[string]any{
				"description": "x", "amount": "10.00", "paid_by": ada.ID, "split_type": "shares",
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "invalid_split",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, tt.path, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			var e errorBody
			if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if e.Error != tt.wantCode {
				t.Errorf("error code = %q, want %q", e.Error, tt.wantCode)
			}
		})
	}
}

func TestCreateExpenseMalformedBody(t *testing.T) {
	srv := newTestServer(t)
	ada := createMember(t, srv, "Ada", "ada@example.com")
	group := createGroup(t, srv, "solo", []int64{ada.ID})

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/groups/%d/expenses", group.ID),
		bytes.NewBufferString(`{"description": `))
	rr := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestDuplicateEmailConflict(t *testing.T) {
	srv := newTestServer(t)
	createMember(t, srv, "Ada", "ada@example.com")

	rr := do(t, srv, http.MethodPost, "/users", map[string]string{"name": "Imposter", "email": "ada@example.com"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %s)", rr.Code, rr.Body.String())
	}
}

func TestGroupBalancesEndpoint(t *testing.T) {
	srv := newTestServer(t)
	ada := createMember(t, srv, "Ada", "ada@example.com")
	ben := createMember(t, srv, "Ben", "ben@example.com")
	group := createGroup(t, srv, "flat", []int64{ada.ID, ben.ID})

	rr := do(t, srv, http.MethodPost, fmt.Sprintf("/groups/%d/expenses", group.ID), map[string]any{
		"description": "groceries", "amount": "30.00", "paid_by": ada.ID, "split_type": "equal",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("record expense: %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, fmt.Sprintf("/groups/%d/balances", group.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("balances status = %d", rr.Code)
	}
	view := decode[groupBalancesJSON](t, rr)
	if len(view.Members) != 2 {
		t.Fatalf("members = %+v", view.Members)
	}
	if view.Members[0].MemberID != ada.ID || view.Members[0].NetCents != 1500 {
		t.Errorf("ada balance = %+v", view.Members[0])
	}
	if view.Members[1].MemberID != ben.ID || view.Members[1].NetCents != -1500 {
		t.Errorf("ben balance = %+v", view.Members[1])
	}
	if len(view.Members[1].OwesTo) != 1 || view.Members[1].OwesTo[0].Amount != "15.00" {
		t.Errorf("ben owes = %+v", view.Members[1].OwesTo)
	}
}

func TestUserBalancesEndpoint(t *testing.T) {
	srv := newTestServer(t)
	ada := createMember(t, srv, "Ada", "ada@example.com")
	ben := createMember(t, srv, "Ben", "ben@example.com")
	cam := createMember(t, srv, "Cam", "cam@example.com")
	flat := createGroup(t, srv, "flat", []int64{ada.ID, ben.ID})
	trip := createGroup(t, srv, "trip", []int64{ada.ID, cam.ID})

	// Ada is owed 10.00 in flat and owes 4.00 in trip.
	rr := do(t, srv, http.MethodPost, fmt.Sprintf("/groups/%d/expenses", flat.ID), map[string]any{
		"description": "wifi", "amount": "20.00", "paid_by": ada.ID, "split_type": "equal",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("flat expense: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, srv, http.MethodPost, fmt.Sprintf("/groups/%d/expenses", trip.ID), map[string]any{
		"description": "fuel", "amount": "8.00", "paid_by": cam.ID, "split_type": "equal",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("trip expense: %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, fmt.Sprintf("/users/%d/balances", ada.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("user balances status = %d", rr.Code)
	}
	view := decode[userBalancesJSON](t, rr)
	if view.TotalCents != 600 || view.Total != "6.00" {
		t.Errorf("total = %d / %s", view.TotalCents, view.Total)
	}
	if len(view.Groups) != 2 {
		t.Fatalf("groups = %+v", view.Groups)
	}
	if view.Groups[0].GroupID != flat.ID || view.Groups[0].NetCents != 1000 {
		t.Errorf("flat summary = %+v", view.Groups[0])
	}
	if view.Groups[1].GroupID != trip.ID || view.Groups[1].NetCents != -400 {
		t.Errorf("trip summary = %+v", view.Groups[1])
	}

	// Unknown member maps to 404.
	if rr := do(t, srv, http.MethodGet, "/users/999/balances", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown member status = %d", rr.Code)
	}
}

func TestGetGroupDetail(t *testing.T) {
	srv := newTestServer(t)
	ada := createMember(t, srv, "Ada", "ada@example.com")
	ben := createMember(t, srv, "Ben", "ben@example.com")
	group := createGroup(t, srv, "flat", []int64{ben.ID, ada.ID})

	for _, exp := range []map[string]any{
		{"description": "rent", "amount": "100.00", "paid_by": ada.ID, "split_type": "equal"},
		{"description": "wifi", "amount": "24.50", "paid_by": ben.ID, "split_type": "equal"},
	} {
		rr := do(t, srv, http.MethodPost, fmt.Sprintf("/groups/%d/expenses", group.ID), exp)
		if rr.Code != http.StatusCreated {
			t.Fatalf("create expense status = %d, body %s", rr.Code, rr.Body.String())
		}
	}

	rr := do(t, srv, http.MethodGet, fmt.Sprintf("/groups/%d", group.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	got := decode[groupDetailJSON](t, rr)
	if got.Name != "flat" || len(got.Members) != 2 {
		t.Fatalf("group = %+v", got)
	}
	if got.Members[0].ID != ada.ID || got.Members[1].ID != ben.ID {
		t.Errorf("members not ordered by ID: %+v", got.Members)
	}
	if len(got.Expenses) != 2 || got.Expenses[0].Description != "rent" {
		t.Errorf("expenses not in insertion order: %+v", got.Expenses)
	}
	if got.TotalSpentCents != 12450 || got.TotalSpent != "124.50" {
		t.Errorf("total spent = %d (%q), want 12450 (124.50)", got.TotalSpentCents, got.TotalSpent)
	}

	if rr := do(t, srv, http.MethodGet, "/groups/999", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown group status = %d", rr.Code)
	}
}

func TestGetMember(t *testing.T) {
	srv := newTestServer(t)
	ada := createMember(t, srv, "Ada", "ada@example.com")

	rr := do(t, srv, http.MethodGet, fmt.Sprintf("/users/%d", ada.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	got := decode[memberJSON](t, rr)
	if got.ID != ada.ID || got.Email != "ada@example.com" {
		t.Errorf("member = %+v", got)
	}

	if rr := do(t, srv, http.MethodGet, "/users/999", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown member status = %d", rr.Code)
	}
}
