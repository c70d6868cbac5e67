package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vaultkeeper/internal/api"
	"vaultkeeper/internal/engine"
	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/testsupport"
)

type fixture struct {
	server *httptest.Server
	auth   *testsupport.FakeAuthority
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	auth := testsupport.NewFakeAuthority()
	eng := testsupport.NewEngine(t, auth)
	testsupport.MustApply(t, eng, testsupport.NewSnapshot(testsupport.At(10), testsupport.CharA).
		Item(inventory.Vault(), testsupport.HashAutoRifle, "rifle").
		Item(inventory.Inventory(testsupport.CharA), testsupport.HashHandCannon, "cannon").
		Build())
	d, err := New(cfg, eng, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(d.apiSrv.routes())
	t.Cleanup(srv.Close)
	return fixture{server: srv, auth: auth}
}

func (f fixture) do(t *testing.T, method, path string, body any, dst any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestAPIItems(t *testing.T) {
	f := newFixture(t)

	var resp api.ItemsResponse
	if code := f.do(t, http.MethodGet, "/api/items?location=vault", nil, &resp); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(resp.Items) != 1 || resp.Items[0].InstanceID != "rifle" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}

	var detail api.ItemDetail
	if code := f.do(t, http.MethodGet, "/api/items/cannon", nil, &detail); code != http.StatusOK || detail.Name != "Round Robin" {
		t.Fatalf("item = %d %+v", code, detail)
	}

	var failure api.ErrorResponse
	if code := f.do(t, http.MethodGet, "/api/items/ghost", nil, &failure); code != http.StatusNotFound || failure.Kind != "not_found" {
		t.Fatalf("missing item = %d %+v", code, failure.Error)
	}
}

func TestAPITransfer(t *testing.T) {
	f := newFixture(t)

	var resp api.TransferResponse
	code := f.do(t, http.MethodPost, "/api/transfer", api.TransferRequest{InstanceID: "rifle", Target: "inventory:" + testsupport.CharA}, &resp)
	if code != http.StatusOK || len(resp.Hops) != 1 {
		t.Fatalf("transfer = %d %+v", code, resp)
	}

	var failure api.ErrorResponse
	code = f.do(t, http.MethodPost, "/api/transfer", api.TransferRequest{InstanceID: "rifle", Target: "nowhere"}, &failure)
	if code != http.StatusBadRequest || failure.Kind != "validation" {
		t.Fatalf("bad target = %d %+v", code, failure.Error)
	}
}

func TestAPIRejectsUnknownFields(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/api/lock", strings.NewReader(`{"instanceId":"cannon","lockd":true}`))
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestAPIMethodRouting(t *testing.T) {
	f := newFixture(t)
	if code := f.do(t, http.MethodGet, "/api/transfer", nil, nil); code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/transfer = %d", code)
	}
}

func TestAPILoadoutPartial(t *testing.T) {
	f := newFixture(t)

	var failure struct {
		Kind   string              `json:"kind"`
		Result api.LoadoutResponse `json:"result"`
	}
	code := f.do(t, http.MethodPost, "/api/loadout", api.LoadoutRequest{
		Definition:  "name: Snipe\nweapons:\n  - name: Succession\n",
		CharacterID: testsupport.CharA,
	}, &failure)
	if code != http.StatusUnprocessableEntity || failure.Kind != "missing" {
		t.Fatalf("loadout = %d %+v", code, failure)
	}
	if len(failure.Result.Missing) != 1 || failure.Result.Missing[0] != "Succession" {
		t.Fatalf("partial result = %+v", failure.Result)
	}
}

func TestAPIEventsLongPoll(t *testing.T) {
	f := newFixture(t)

	var first api.EventsResponse
	if code := f.do(t, http.MethodGet, "/api/events", nil, &first); code != http.StatusOK || len(first.Events) == 0 {
		t.Fatalf("events = %d %+v", code, first)
	}

	done := make(chan api.EventsResponse, 1)
	go func() {
		var next api.EventsResponse
		resp, err := f.server.Client().Get(f.server.URL + "/api/events?wait=1&since=" + strconv.FormatUint(first.Next, 10))
		if err == nil {
			_ = json.NewDecoder(resp.Body).Decode(&next)
			resp.Body.Close()
		}
		done <- next
	}()
	time.Sleep(50 * time.Millisecond)
	f.do(t, http.MethodPost, "/api/lock", api.LockRequest{InstanceID: "cannon", Locked: true}, nil)

	select {
	case next := <-done:
		if len(next.Events) == 0 || next.Next <= first.Next {
			t.Fatalf("long poll returned %+v", next)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("long poll did not wake")
	}
}

func TestAPIEventsWebsocket(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var evt engine.Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read: %v", err)
	}
	if evt.Type != engine.EventChange || evt.Sequence == 0 {
		t.Fatalf("unexpected first event %+v", evt)
	}
}

func TestAPIAuth(t *testing.T) {
	f := newFixture(t, testsupport.WithAPIToken("secret"))

	if code := f.do(t, http.MethodGet, "/api/status", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", code)
	}
	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("with token = %d", resp.StatusCode)
	}
}
