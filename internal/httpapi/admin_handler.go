package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"doc_gateway/internal/auth"
	"doc_gateway/internal/models"
	"doc_gateway/internal/storage"
	"doc_gateway/internal/utils"
)

type adminHandlers struct {
	deps *Dependencies
}

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func (a *adminHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, "email and password are required")
		return
	}

	user, err := a.deps.AdminUsers.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrAdminUserNotFound) {
			utils.RespondWithError(w, http.StatusUnauthorized, utils.KindUnauthenticated, "Invalid credentials")
			return
		}
		a.internalError(w, r, "failed to load admin user", err)
		return
	}

	valid, err := utils.VerifyPasswordArgon2(req.Password, user.PasswordHash)
	if err != nil || !valid || !user.IsValid() {
		utils.RespondWithError(w, http.StatusUnauthorized, utils.KindUnauthenticated, "Invalid credentials")
		return
	}

	token, expiresAt, err := auth.GenerateAdminJWT(user.ID.String(), user.Email, a.deps.Config)
	if err != nil {
		a.internalError(w, r, "failed to generate token", err)
		return
	}

	if err := a.deps.AdminUsers.UpdateLastLogin(r.Context(), user.ID); err != nil {
		a.deps.Logger.Warn("failed to update last login", "admin_id", user.ID, "error", err)
	}

	utils.RespondWithJSON(w, http.StatusOK, adminLoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

type adminKeyView struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Revoked    bool       `json:"revoked"`
	Balance    int        `json:"balance"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func (a *adminHandlers) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := a.deps.Registry.List(r.Context())
	if err != nil {
		a.internalError(w, r, "failed to list keys", err)
		return
	}

	views := make([]adminKeyView, 0, len(keys))
	for _, key := range keys {
		view := adminKeyView{
			ID:         key.ID,
			Name:       key.Name,
			Revoked:    key.Revoked,
			CreatedAt:  key.CreatedAt,
			LastUsedAt: key.LastUsedAt,
		}
		if balance, err := a.deps.Ledger.Balance(r.Context(), key.ID); err == nil {
			view.Balance = balance
		}
		views = append(views, view)
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"keys": views})
}

func (a *adminHandlers) revokeKey(w http.ResponseWriter, r *http.Request) {
	keyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, utils.KindNotFound, "Key not found")
		return
	}

	if err := a.deps.Registry.Revoke(r.Context(), keyID); err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, utils.KindNotFound, "Key not found")
			return
		}
		a.internalError(w, r, "failed to revoke key", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type grantCreditsRequest struct {
	Credits int `json:"credits"`
}

func (a *adminHandlers) grantCredits(w http.ResponseWriter, r *http.Request) {
	keyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, utils.KindNotFound, "Key not found")
		return
	}

	var req grantCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Credits <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, "credits must be positive")
		return
	}

	balance, err := a.deps.Ledger.Credit(r.Context(), keyID, req.Credits, models.UsageRecord{
		Outcome:  models.OutcomeSuccess,
		Endpoint: "admin_grant",
	})
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, utils.KindNotFound, "Key not found")
			return
		}
		a.internalError(w, r, "failed to grant credits", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]int{"balance": balance})
}

func (a *adminHandlers) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, utils.KindNotFound, "Job not found")
		return
	}

	job, err := a.deps.Tracker.Status(r.Context(), jobID, uuid.Nil, true)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, utils.KindNotFound, "Job not found")
			return
		}
		a.internalError(w, r, "failed to load job", err)
		return
	}

	h := &handlers{deps: a.deps}
	utils.RespondWithJSON(w, http.StatusOK, h.jobToView(r.Context(), job))
}

func (a *adminHandlers) anomalies(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": a.deps.Tracker.Anomalies(),
	})
}

func (a *adminHandlers) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	a.deps.Logger.Error(msg, "path", r.URL.Path, "error", err)
	utils.RespondWithError(w, http.StatusInternalServerError, utils.KindInternal, "Internal error")
}
