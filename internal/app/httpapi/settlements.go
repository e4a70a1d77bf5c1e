package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	domain "github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	settlementsvc "github.com/splito-labs/settlement_gateway/internal/app/services/settlement"
	"github.com/splito-labs/settlement_gateway/internal/httputil"
	"github.com/splito-labs/settlement_gateway/internal/middleware"
)

type settleAllRequest struct {
	GroupID string         `json:"groupId"`
	TokenID string         `json:"tokenId"`
	ChainID string         `json:"chainId"`
	Wallet  *walletPayload `json:"wallet"`
	Exclude []string       `json:"exclude"`
}

type settleOneRequest struct {
	GroupID    string         `json:"groupId"`
	TokenID    string         `json:"tokenId"`
	ChainID    string         `json:"chainId"`
	Wallet     *walletPayload `json:"wallet"`
	Currencies []string       `json:"currencies"`
}

type signedRequest struct {
	SignedTx  string `json:"signedTx"`
	Rejection string `json:"rejection"`
}

func (s *Server) settleAll(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req settleAllRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	wal, err := req.Wallet.wallet()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := s.app.Settlements.SettleAll(r.Context(), settlementsvc.AllRequest{
		UserID:  userID,
		GroupID: req.GroupID,
		TokenID: req.TokenID,
		ChainID: req.ChainID,
		Wallet:  wal,
		Exclude: req.Exclude,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, statusFor(res.Settlement), res)
}

func (s *Server) settleOne(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req settleOneRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	wal, err := req.Wallet.wallet()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := s.app.Settlements.SettleOne(r.Context(), settlementsvc.OneRequest{
		UserID:     userID,
		GroupID:    req.GroupID,
		FriendID:   mux.Vars(r)["id"],
		TokenID:    req.TokenID,
		ChainID:    req.ChainID,
		Wallet:     wal,
		Currencies: req.Currencies,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, statusFor(res.Settlement), res)
}

func (s *Server) submitSigned(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req signedRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := s.app.Settlements.SubmitSigned(r.Context(), userID, mux.Vars(r)["id"], req.SignedTx, req.Rejection)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) getSettlement(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := s.app.Settlements.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) listSettlements(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	recs, err := s.app.Settlements.List(r.Context(), userID, intQuery(r, "limit", 50))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.Settlement{}
	}
	httputil.WriteJSON(w, http.StatusOK, recs)
}

// statusFor answers 202 while the client still has to sign.
func statusFor(rec domain.Settlement) int {
	if rec.Status == domain.StatusSigning {
		return http.StatusAccepted
	}
	return http.StatusCreated
}
