package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/onboarding"
	"github.com/splito-labs/settlement_gateway/internal/httputil"
	"github.com/splito-labs/settlement_gateway/internal/middleware"
)

func (s *Server) listOnboarding(w http.ResponseWriter, r *http.Request) {
	flags, err := s.app.Onboarding.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if flags == nil {
		flags = []onboarding.Flag{}
	}
	httputil.WriteJSON(w, http.StatusOK, flags)
}

func (s *Server) onboardingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.app.Onboarding.Status(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["tutorial"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (s *Server) markOnboarding(w http.ResponseWriter, r *http.Request) {
	status, err := s.app.Onboarding.MarkSeen(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["tutorial"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (s *Server) resetOnboarding(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Onboarding.Reset(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["tutorial"]); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
