package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/splito-labs/settlement_gateway/internal/app"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	"github.com/splito-labs/settlement_gateway/internal/app/events"
	settlementsvc "github.com/splito-labs/settlement_gateway/internal/app/services/settlement"
	"github.com/splito-labs/settlement_gateway/internal/chain/chaintest"
	"github.com/splito-labs/settlement_gateway/internal/chain/stellar"
	"github.com/splito-labs/settlement_gateway/internal/config"
	"github.com/splito-labs/settlement_gateway/internal/httputil"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

const (
	session    = "sess-ana"
	passphrase = "Test SDF Network ; September 2015"
)

// fakeBackend mimics the Splito REST API for one user, ana.
type fakeBackend struct {
	mu       sync.Mutex
	unsigned string
	created  []map[string]interface{}
	invites  []string
	submits  int
}

func (b *fakeBackend) handler() http.Handler {
	r := mux.NewRouter()
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			if c, err := req.Cookie("splito.session"); err != nil || c.Value != session {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
				return
			}
			h(w, req)
		}
	}
	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	r.HandleFunc("/users/me", authed(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]string{"id": "ana", "name": "Ana", "email": "ana@example.com"})
	}))
	r.HandleFunc("/users/friends", authed(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"bob","name":"Bob","balances":[{"currency":"USD","amount":50},{"currency":"EUR","amount":-10}]},
			{"id":"cy","name":"Cy","balances":[{"currency":"EUR","amount":20}]}
		]`))
	}))
	r.HandleFunc("/users/friends/invite", authed(func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(req.Body).Decode(&body)
		b.mu.Lock()
		b.invites = append(b.invites, body["email"])
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/balances", authed(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`[
			{"groupId":"g1","userId":"ana","friendId":"bob","currency":"USD","amount":12.5},
			{"groupId":"g1","userId":"ana","friendId":"cy","currency":"USD","amount":-2.5}
		]`))
	}))
	r.HandleFunc("/api/pricing/price", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("baseCurrency") != "USD" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]float64{"price": 2})
	})
	r.HandleFunc("/api/exchange-rate", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.HandleFunc("/groups/settle-transaction/create", authed(func(w http.ResponseWriter, req *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(req.Body).Decode(&body)
		b.mu.Lock()
		b.created = append(b.created, body)
		n := len(b.created)
		b.mu.Unlock()
		writeJSON(w, map[string]interface{}{"id": "remote-" + string(rune('0'+n)), "serializedTx": b.unsigned})
	})).Methods(http.MethodPost)
	r.HandleFunc("/groups/settle-transaction/submit", authed(func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		b.submits++
		b.mu.Unlock()
		writeJSON(w, map[string]string{"id": "remote-1", "status": "pending", "txHash": "abc123"})
	})).Methods(http.MethodPost)
	r.HandleFunc("/invoices/{id}", authed(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]interface{}{"id": mux.Vars(req)["id"], "kind": "invoice", "status": "DRAFT", "amount": 10, "currency": "USD"})
	})).Methods(http.MethodGet)
	r.HandleFunc("/invoices/{id}/status", authed(func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(req.Body).Decode(&body)
		writeJSON(w, map[string]interface{}{"id": mux.Vars(req)["id"], "kind": "invoice", "status": body["status"], "amount": 10, "currency": "USD"})
	})).Methods(http.MethodPatch)
	return r
}

type harness struct {
	backend *fakeBackend
	app     *app.Application
	server  *Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fb := &fakeBackend{}
	upstream := httptest.NewServer(fb.handler())
	t.Cleanup(upstream.Close)

	cfg := &config.Config{}
	cfg.Server = config.ServerConfig{Port: 8080, RateLimitPerSec: 1000, RateLimitBurst: 1000, SessionCacheTTL: time.Minute}
	cfg.Backend = config.BackendConfig{BaseURL: upstream.URL, SessionName: "splito.session", Timeout: 5 * time.Second}
	cfg.Pricing.WarmSchedule = "@every 1h"
	require.NoError(t, cfg.Validate())

	application, err := app.New(cfg, app.Stores{}, logger.Discard())
	require.NoError(t, err)
	srv, err := NewServer(application, logger.Discard())
	require.NoError(t, err)
	return &harness{backend: fb, app: application, server: srv}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.AddCookie(&http.Cookie{Name: "splito.session", Value: session})
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func stellarClient(t *testing.T) (*stellar.KeypairSigner, string) {
	t.Helper()
	client, err := stellar.NewKeypairSigner(chaintest.StellarSeed(t, 7))
	require.NoError(t, err)
	return client, chaintest.StellarPayment(t, client.Address(), 10_000_000)
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "settlement-poller")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequiresSession(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/balances", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/balances", nil)
	req.AddCookie(&http.Cookie{Name: "splito.session", Value: "stolen"})
	rec = httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[httputil.ErrorBody](t, rec)
	assert.Equal(t, "unauthenticated", string(body.Error.Code))
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/v2/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"not_found"`)
}

func TestBalances(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/v1/balances", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[balance.Summary](t, rec)
	totals := map[string]balance.CurrencyTotals{}
	for _, c := range summary.Currencies {
		totals[c.Currency] = c
	}
	assert.True(t, totals["USD"].Owe.Equal(decimal.NewFromInt(50)))
	assert.True(t, totals["EUR"].Owe.Equal(decimal.NewFromInt(20)))
	assert.True(t, totals["EUR"].Owed.Equal(decimal.NewFromInt(10)))

	rec = h.do(t, http.MethodGet, "/v1/balances/plan?exclude=cy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"excluded":["cy"]`)
	assert.NotContains(t, rec.Body.String(), `"friendId":"cy"`)

	rec = h.do(t, http.MethodGet, "/v1/groups/g1/balances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	group := decode[balance.Summary](t, rec)
	require.Len(t, group.Currencies, 1)
	assert.True(t, group.Currencies[0].Net().Equal(decimal.NewFromInt(10)))
}

func TestTokensAndQuotes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/v1/tokens?chainId=aptos-testnet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"APT"`)
	assert.NotContains(t, rec.Body.String(), `"XLM"`)

	rec = h.do(t, http.MethodGet, "/v1/tokens?chainId=dogecoin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/quotes", convertRequest{
		TokenID: "stellar",
		ChainID: "stellar-testnet",
		Debts: []balance.Debt{
			{Currency: "USD", Amount: decimal.NewFromInt(50)},
			{Currency: "EUR", Amount: decimal.NewFromInt(10)},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	conv := decode[settlement.Conversion](t, rec)
	require.Len(t, conv.Lines, 2)
	// USD converts at 2, EUR has no quote and falls back to 1:1.
	assert.True(t, conv.Total.Equal(decimal.NewFromInt(35)), conv.Total.String())

	rec = h.do(t, http.MethodPost, "/v1/quotes", convertRequest{TokenID: "aptos", ChainID: "stellar-testnet",
		Debts: []balance.Debt{{Currency: "USD", Amount: decimal.NewFromInt(1)}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"invalid_token"`)
}

func TestSettleOneWithExternalStellarWallet(t *testing.T) {
	h := newHarness(t)
	client, unsigned := stellarClient(t)
	h.backend.unsigned = unsigned

	rec := h.do(t, http.MethodPost, "/v1/friends/bob/settlements", map[string]interface{}{
		"tokenId":    "stellar",
		"chainId":    "stellar-testnet",
		"currencies": []string{"usd"},
		"wallet":     map[string]interface{}{"signTransaction": true, "address": client.Address()},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	res := decode[settlementsvc.Result](t, rec)
	assert.Equal(t, settlement.StatusSigning, res.Settlement.Status)
	assert.Equal(t, unsigned, res.Settlement.UnsignedTx)
	assert.True(t, res.Conversion.Total.Equal(decimal.NewFromInt(25)))
	require.Len(t, h.backend.created, 1)
	assert.Equal(t, "bob", h.backend.created[0]["settleWithId"])

	signed, err := client.SignEnvelope(unsigned, passphrase)
	require.NoError(t, err)
	rec = h.do(t, http.MethodPost, "/v1/settlements/"+res.Settlement.ID+"/signed", signedRequest{SignedTx: signed})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, settlement.StatusSubmitted, decode[settlement.Settlement](t, rec).Status)
	assert.Equal(t, 1, h.backend.submits)

	rec = h.do(t, http.MethodPost, "/v1/settlements/"+res.Settlement.ID+"/signed", signedRequest{SignedTx: signed})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/settlements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]settlement.Settlement](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "abc123", list[0].TxHash)
}

func TestSettleAllRejectedInWallet(t *testing.T) {
	h := newHarness(t)
	client, unsigned := stellarClient(t)
	h.backend.unsigned = unsigned

	rec := h.do(t, http.MethodPost, "/v1/settlements", settleAllRequest{
		TokenID: "stellar",
		ChainID: "stellar-testnet",
		Wallet:  &walletPayload{Kind: "stellar", Address: client.Address()},
		Exclude: []string{"cy"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	res := decode[settlementsvc.Result](t, rec)
	require.NotNil(t, res.Plan)
	assert.Equal(t, []string{"cy"}, res.Plan.Excluded)

	rec = h.do(t, http.MethodPost, "/v1/settlements/"+res.Settlement.ID+"/signed", signedRequest{Rejection: "User declined the request"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_rejected"`)

	rec = h.do(t, http.MethodGet, "/v1/settlements/"+res.Settlement.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	failed := decode[settlement.Settlement](t, rec)
	assert.Equal(t, settlement.StatusFailed, failed.Status)
	assert.Equal(t, "user_rejected", failed.ErrorCode)
	assert.Zero(t, h.backend.submits)
}

func TestSettleRequiresWallet(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/settlements", settleAllRequest{TokenID: "stellar", ChainID: "stellar-testnet"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"wallet_not_connected"`)

	rec = h.do(t, http.MethodPost, "/v1/settlements", map[string]interface{}{
		"tokenId": "aptos", "chainId": "aptos-testnet",
		"wallet": map[string]interface{}{"connected": false, "account": map[string]string{"address": "0x1"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, h.backend.created)
}

func TestInviteAndInvoices(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/friends/invite", map[string]string{"email": "dee@example.com"})
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"dee@example.com"}, h.backend.invites)

	rec = h.do(t, http.MethodPost, "/v1/friends/invite", map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPatch, "/v1/invoices/inv-1/status", map[string]string{"status": "sent"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"SENT"`)

	rec = h.do(t, http.MethodPatch, "/v1/invoices/inv-1/status", map[string]string{"status": "CLEARED"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trail := decode[[]auditEntry](t, rec)
	require.Len(t, trail, 4)
	assert.Equal(t, "/v1/friends/invite", trail[0].Path)
	assert.Equal(t, "ana", trail[0].User)
}

func TestOnboarding(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/v1/onboarding/settle-intro", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"seen":false`)

	rec = h.do(t, http.MethodPut, "/v1/onboarding/Settle-Intro", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"seen":true`)

	rec = h.do(t, http.MethodGet, "/v1/onboarding", nil)
	assert.Contains(t, rec.Body.String(), `"tutorial":"settle-intro"`)

	rec = h.do(t, http.MethodDelete, "/v1/onboarding/settle-intro", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/onboarding/settle-intro", nil)
	assert.Contains(t, rec.Body.String(), `"seen":false`)

	rec = h.do(t, http.MethodPut, "/v1/onboarding/..%2f", nil)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestEventStream(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.server)
	defer ts.Close()

	header := http.Header{}
	header.Set("Cookie", "splito.session="+session)
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/events", header)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return h.app.Events.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	h.app.Events.Publish(context.Background(), events.Event{Type: events.TypeBalancesChanged, UserIDs: []string{"someone"}})
	h.app.Events.Publish(context.Background(), events.Event{Type: events.TypeSettlementConfirmed, SettlementID: "s1", UserIDs: []string{"ana"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got events.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, events.TypeSettlementConfirmed, got.Type)
	assert.Equal(t, "s1", got.SettlementID)
}

func TestEventStreamRejectsForeignOrigin(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.server)
	defer ts.Close()

	header := http.Header{}
	header.Set("Cookie", "splito.session="+session)
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/events", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
