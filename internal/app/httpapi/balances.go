package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
	"github.com/splito-labs/settlement_gateway/internal/httputil"
	"github.com/splito-labs/settlement_gateway/internal/middleware"
)

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		httputil.WriteError(w, apperr.New(apperr.CodeUnauthenticated, "authentication required"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (s *Server) balances(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	summary, err := s.app.Balances.Summary(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) balancePlan(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	plan, err := s.app.Balances.Plan(r.Context(), userID, listQuery(r, "exclude"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, plan)
}

func (s *Server) groupBalances(w http.ResponseWriter, r *http.Request) {
	summary, err := s.app.Balances.GroupSummary(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) friends(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	friends, err := s.app.Balances.Friends(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if friends == nil {
		friends = []balance.Friend{}
	}
	httputil.WriteJSON(w, http.StatusOK, friends)
}

func (s *Server) inviteFriend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := httputil.DecodeJSON(w, r, &payload); err != nil {
		httputil.WriteError(w, err)
		return
	}
	email := strings.TrimSpace(payload.Email)
	if !strings.Contains(email, "@") {
		httputil.WriteError(w, apperr.New(apperr.CodeInvalidRequest, "a valid email is required"))
		return
	}
	if err := s.app.Backend.InviteFriend(r.Context(), email); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) chains(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.app.Tokens.Chains())
}

func (s *Server) tokens(w http.ResponseWriter, r *http.Request) {
	opts, err := s.app.Tokens.Options(r.URL.Query().Get("chainId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, opts)
}

type convertRequest struct {
	TokenID string         `json:"tokenId"`
	ChainID string         `json:"chainId"`
	Debts   []balance.Debt `json:"debts"`
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sel, err := s.app.Tokens.Resolve(req.TokenID, req.ChainID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(req.Debts) == 0 {
		httputil.WriteError(w, apperr.New(apperr.CodeInvalidRequest, "debts are required"))
		return
	}
	conv, err := s.app.Pricing.Convert(r.Context(), sel, req.Debts)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, conv)
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	currency := strings.TrimSpace(r.URL.Query().Get("currency"))
	if currency == "" {
		httputil.WriteError(w, apperr.New(apperr.CodeInvalidRequest, "currency is required"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.app.Pricing.Quote(r.Context(), mux.Vars(r)["tokenId"], currency))
}
