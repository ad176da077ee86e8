package control_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"plutus/pkg/control"
	"plutus/pkg/provider"
	"plutus/pkg/store"

	jsoniter "github.com/json-iterator/go"
)

func serve(t *testing.T, h *control.Handler) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for _, rt := range h.Routes() {
		mux.Handle(rt.Pattern, rt.Handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = jsoniter.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func unset(t *testing.T, reg *provider.Registry, session string) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := reg.Provider(ctx, session)
	return errors.Is(err, provider.ErrTimeout)
}

func TestSetProviderRequired(t *testing.T) {
	t.Parallel()

	reg := provider.NewRegistry()
	srv := serve(t, control.New(reg, nil))

	for _, body := range []string{`{}`, `{"provider":null}`, `{"provider":""}`, `{"address":"0xabc"}`} {
		status, out := do(t, http.MethodPost, srv.URL+"/api/set-provider", body)
		if status != http.StatusBadRequest || out["error"] != "Provider is required." {
			t.Fatalf("%s: status = %d body = %v", body, status, out)
		}
	}
	if !unset(t, reg, provider.DefaultSession) {
		t.Fatal("registry was modified")
	}

	status, _ := do(t, http.MethodPost, srv.URL+"/api/set-provider", `{not json`)
	if status != http.StatusBadRequest {
		t.Fatalf("malformed status = %d", status)
	}
}

func TestSetProvider(t *testing.T) {
	t.Parallel()

	reg := provider.NewRegistry()
	srv := serve(t, control.New(reg, nil))

	status, out := do(t, http.MethodPost, srv.URL+"/api/set-provider",
		`{"provider":{"isMetaMask":true},"address":"0xAbC","sessionId":"tab-1"}`)
	if status != http.StatusOK || out["success"] != true || out["message"] != "Web3 provider set successfully." {
		t.Fatalf("status = %d body = %v", status, out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h, err := reg.Provider(ctx, "tab-1")
	if err != nil || string(h) != `{"isMetaMask":true}` {
		t.Fatalf("handle = %s, err = %v", h, err)
	}
	addr, err := reg.Address(ctx, "tab-1")
	if err != nil || addr != "0xAbC" {
		t.Fatalf("address = %s, err = %v", addr, err)
	}
	if !unset(t, reg, provider.DefaultSession) {
		t.Fatal("default session should stay unset")
	}
}

func TestSetProviderReleasesWaiter(t *testing.T) {
	t.Parallel()

	reg := provider.NewRegistry()
	srv := serve(t, control.New(reg, nil))

	got := make(chan provider.Handle, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h, _ := reg.Provider(ctx, provider.DefaultSession)
		got <- h
	}()

	time.Sleep(20 * time.Millisecond)
	if status, _ := do(t, http.MethodPost, srv.URL+"/api/set-provider", `{"provider":"injected"}`); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	select {
	case h := <-got:
		if string(h) != `"injected"` {
			t.Fatalf("handle = %s", h)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter not released")
	}
}

type brokenRegistry struct{}

func (brokenRegistry) SetProvider(string, provider.Handle) error { return errors.New("slot poisoned") }
func (brokenRegistry) SetAddress(string, string) error           { return nil }

func TestSetProviderFailure(t *testing.T) {
	t.Parallel()

	srv := serve(t, control.New(brokenRegistry{}, nil))
	status, out := do(t, http.MethodPost, srv.URL+"/api/set-provider", `{"provider":{}}`)
	if status != http.StatusInternalServerError || out["error"] != "Failed to set provider." {
		t.Fatalf("status = %d body = %v", status, out)
	}
}

func TestRecordEndpoints(t *testing.T) {
	t.Parallel()

	records, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer records.Close()
	srv := serve(t, control.New(provider.NewRegistry(), records))

	if status, _ := do(t, http.MethodGet, srv.URL+"/api/users/dana@example.com", ""); status != http.StatusNotFound {
		t.Fatalf("missing user status = %d", status)
	}
	if status, _ := do(t, http.MethodPost, srv.URL+"/api/add-user", `{"name":"no email"}`); status != http.StatusBadRequest {
		t.Fatalf("add-user without email status = %d", status)
	}

	status, out := do(t, http.MethodPost, srv.URL+"/api/add-user", `{"email":"dana@example.com","name":"Dana"}`)
	if status != http.StatusOK || out["name"] != "Dana" {
		t.Fatalf("add-user = %d %v", status, out)
	}

	status, out = do(t, http.MethodPost, srv.URL+"/api/saved-wallets", `{"email":"dana@example.com","address":"0x1","nickname":"main"}`)
	if status != http.StatusOK {
		t.Fatalf("saved-wallets = %d %v", status, out)
	}
	if status, _ := do(t, http.MethodPost, srv.URL+"/api/saved-wallets", `{"email":"eve@example.com","address":"0x1"}`); status != http.StatusNotFound {
		t.Fatalf("saved-wallets for missing user = %d", status)
	}

	resp, err := http.Get(srv.URL + "/api/saved-wallets/dana@example.com")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var wallets []store.Wallet
	if err := jsoniter.NewDecoder(resp.Body).Decode(&wallets); err != nil {
		t.Fatal(err)
	}
	if len(wallets) != 1 || wallets[0].Nickname != "main" {
		t.Fatalf("wallets = %+v", wallets)
	}

	status, _ = do(t, http.MethodPost, srv.URL+"/api/set-provider", `{"provider":{},"address":"0xD","email":"dana@example.com"}`)
	if status != http.StatusOK {
		t.Fatalf("set-provider = %d", status)
	}
	u, err := records.FindByEmail(context.Background(), "dana@example.com")
	if err != nil || u.Address != "0xD" {
		t.Fatalf("u = %+v, err = %v", u, err)
	}
}

func TestRecordsDisabled(t *testing.T) {
	t.Parallel()

	srv := serve(t, control.New(provider.NewRegistry(), nil))
	if status, _ := do(t, http.MethodGet, srv.URL+"/api/users/x@example.com", ""); status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", status)
	}
}
