package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/identitylab/fedsync/pkg/credentials"
	"github.com/identitylab/fedsync/pkg/identity"
	"github.com/identitylab/fedsync/pkg/observability"
	"github.com/identitylab/fedsync/pkg/store/sqlstore"
	"github.com/identitylab/fedsync/pkg/syncer"
)

// newRouter assembles the daemon's HTTP surface: candidate intake,
// attribute definition registration, credential operations and the
// operational endpoints.
func newRouter(svc *syncer.Service, prov *credentials.Provisioner, st *sqlstore.Store, metrics *observability.Metrics, log *logrus.Logger) http.Handler {
	r := mux.NewRouter()

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", observability.HealthHandler(map[string]observability.HealthCheck{
		"database": st.Ping,
	})).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	h := &handlers{svc: svc, prov: prov, st: st, log: log}
	api.HandleFunc("/candidates", h.enqueueCandidate).Methods(http.MethodPost)
	api.HandleFunc("/definitions", h.registerDefinition).Methods(http.MethodPost)
	api.HandleFunc("/queue", h.queueStats).Methods(http.MethodGet)
	api.HandleFunc("/users/{id:[0-9]+}/password/{namespace}", h.changePassword).Methods(http.MethodPut)

	return r
}

type handlers struct {
	svc  *syncer.Service
	prov *credentials.Provisioner
	st   *sqlstore.Store
	log  *logrus.Logger
}

func (h *handlers) enqueueCandidate(w http.ResponseWriter, r *http.Request) {
	var cand identity.Candidate
	if err := json.NewDecoder(r.Body).Decode(&cand); err != nil {
		writeError(w, http.StatusBadRequest, "invalid candidate payload: "+err.Error())
		return
	}
	if cand.ID == "" && cand.PrimaryRef == nil {
		writeError(w, http.StatusBadRequest, "candidate needs an ID or a primary ref")
		return
	}

	accepted := h.svc.Enqueue(&cand)
	status := http.StatusAccepted
	if !accepted {
		// Duplicate of a candidate already in flight; not an error.
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"accepted": accepted})
}

func (h *handlers) registerDefinition(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid definition payload: "+err.Error())
		return
	}
	if payload.Name == "" {
		writeError(w, http.StatusBadRequest, "definition name is required")
		return
	}
	kind, err := identity.ParseValueKind(payload.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.st.RegisterDefinition(r.Context(), identity.AttributeDefinition{Name: payload.Name, Kind: kind}); err != nil {
		h.log.WithError(err).Error("failed to register attribute definition")
		writeError(w, http.StatusInternalServerError, "failed to register definition")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": payload.Name, "kind": kind.String()})
}

func (h *handlers) queueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"waiting": h.svc.WaitingJobs(),
		"running": h.svc.RunningJobs(),
		"workers": h.svc.Workers(),
	})
}

func (h *handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := parseID(vars["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}
	var payload struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
		CheckOld    bool   `json:"check_old"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid password payload: "+err.Error())
		return
	}

	user := identity.User{ID: userID}
	err = h.prov.ChangePassword(r.Context(), user, vars["namespace"], payload.OldPassword, payload.NewPassword, payload.CheckOld)
	if err != nil {
		status := http.StatusBadGateway
		var opErr *credentials.OpError
		switch {
		case errors.Is(err, credentials.ErrEmptyPassword):
			status = http.StatusBadRequest
		case errors.As(err, &opErr):
			switch opErr.Kind {
			case credentials.FailureMismatch, credentials.FailureStrength:
				status = http.StatusUnprocessableEntity
			case credentials.FailureLoginNotFound:
				status = http.StatusNotFound
			}
		}
		h.log.WithError(err).WithField("user", userID).Warn("password change failed")
		writeError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
