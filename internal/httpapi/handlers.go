package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"doc_gateway/internal/backend"
	"doc_gateway/internal/middleware"
	"doc_gateway/internal/models"
	"doc_gateway/internal/payment"
	"doc_gateway/internal/storage"
	"doc_gateway/internal/utils"
)

type handlers struct {
	deps *Dependencies
}

type issueKeyRequest struct {
	Name           string `json:"name"`
	InitialCredits int    `json:"initial_credits"`
}

type issueKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"` // raw secret, shown exactly once
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *handlers) issueKey(w http.ResponseWriter, r *http.Request) {
	var req issueKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, "name is required")
		return
	}
	if req.InitialCredits < 0 {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, "initial_credits must not be negative")
		return
	}

	key, secret, err := h.deps.Registry.Issue(r.Context(), req.Name, req.InitialCredits)
	if err != nil {
		h.internalError(w, r, "failed to issue key", err)
		return
	}

	annotateAudit(r, func(info *auditInfo) { info.keyID = key.ID.String() })
	utils.RespondWithJSON(w, http.StatusCreated, issueKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		Key:       secret,
		Credits:   req.InitialCredits,
		CreatedAt: key.CreatedAt,
	})
}

type keyInfoResponse struct {
	ID               uuid.UUID          `json:"id"`
	Name             string             `json:"name"`
	CreatedAt        time.Time          `json:"created_at"`
	LastUsedAt       *time.Time         `json:"last_used_at,omitempty"`
	Balance          int                `json:"balance"`
	LifetimeIssued   int                `json:"lifetime_issued"`
	LifetimeConsumed int                `json:"lifetime_consumed"`
	Usage            []usageRecordView  `json:"usage"`
}

type usageRecordView struct {
	JobID        *uuid.UUID `json:"job_id,omitempty"`
	Credits      int        `json:"credits"`
	Outcome      string     `json:"outcome"`
	Endpoint     string     `json:"endpoint"`
	ProcessingMS int        `json:"processing_ms,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (h *handlers) keyInfo(w http.ResponseWriter, r *http.Request) {
	key, _ := middleware.GetAPIKey(r.Context())
	annotateAudit(r, func(info *auditInfo) { info.keyID = key.ID.String() })

	account, err := h.deps.Ledger.Account(r.Context(), key.ID)
	if err != nil {
		h.internalError(w, r, "failed to load account", err)
		return
	}

	records, err := h.deps.Ledger.Usage(r.Context(), key.ID, 50)
	if err != nil {
		h.internalError(w, r, "failed to load usage", err)
		return
	}

	usage := make([]usageRecordView, 0, len(records))
	for _, rec := range records {
		usage = append(usage, usageRecordView{
			JobID:        rec.JobID,
			Credits:      rec.Credits,
			Outcome:      rec.Outcome,
			Endpoint:     rec.Endpoint,
			ProcessingMS: rec.ProcessingMS,
			CreatedAt:    rec.CreatedAt,
		})
	}

	utils.RespondWithJSON(w, http.StatusOK, keyInfoResponse{
		ID:               key.ID,
		Name:             key.Name,
		CreatedAt:        key.CreatedAt,
		LastUsedAt:       key.LastUsedAt,
		Balance:          account.Balance,
		LifetimeIssued:   account.LifetimeIssued,
		LifetimeConsumed: account.LifetimeConsumed,
		Usage:            usage,
	})
}

func (h *handlers) selfRevoke(w http.ResponseWriter, r *http.Request) {
	key, _ := middleware.GetAPIKey(r.Context())
	annotateAudit(r, func(info *auditInfo) { info.keyID = key.ID.String() })

	if err := h.deps.Registry.Revoke(r.Context(), key.ID); err != nil {
		h.internalError(w, r, "failed to revoke key", err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type convertRequest struct {
	URL             string `json:"url,omitempty"`
	Content         string `json:"content,omitempty"` // base64 document data
	Filename        string `json:"filename,omitempty"`
	OutputFormat    string `json:"output_format,omitempty"`
	EnableOCR       bool   `json:"enable_ocr,omitempty"`
	TableExtraction bool   `json:"enable_table_extraction,omitempty"`
}

func (req *convertRequest) validate() (backend.Request, error) {
	if (req.URL == "") == (req.Content == "") {
		return backend.Request{}, errors.New("exactly one of url or content is required")
	}
	if req.Content != "" && req.Filename == "" {
		return backend.Request{}, errors.New("filename is required with content")
	}

	format := req.OutputFormat
	if format == "" {
		format = "markdown"
	}
	switch format {
	case "markdown", "json", "both":
	default:
		return backend.Request{}, errors.New("output_format must be markdown, json, or both")
	}

	return backend.Request{
		Source: backend.Source{
			URL:      req.URL,
			Data:     req.Content,
			Filename: req.Filename,
		},
		Options: backend.Options{
			OutputFormat:    format,
			EnableOCR:       req.EnableOCR,
			TableExtraction: req.TableExtraction,
		},
	}, nil
}

type convertResponse struct {
	Markdown       string          `json:"markdown,omitempty"`
	JSON           json.RawMessage `json:"json,omitempty"`
	Pages          int             `json:"pages"`
	ProcessingMS   int             `json:"processing_time_ms"`
	CreditsCharged int             `json:"credits_charged"`
	Balance        int             `json:"balance"`
}

// convertSync runs the full gate order: the key middleware has already
// authenticated, then rate limit, then balance pre-check, then the backend
// call, and the debit happens only after the backend reports success.
func (h *handlers) convertSync(w http.ResponseWriter, r *http.Request) {
	key, _ := middleware.GetAPIKey(r.Context())
	annotateAudit(r, func(info *auditInfo) { info.keyID = key.ID.String() })

	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, "Invalid JSON body")
		return
	}
	backendReq, err := req.validate()
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, err.Error())
		return
	}

	if !h.gateRateAndBalance(w, r, key.ID) {
		return
	}

	// detached from the client connection so a disconnect after the
	// backend accepted the document cannot dodge the debit
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.deps.Config.Backend.RequestTimeout)
	defer cancel()

	result, err := h.deps.Backend.Convert(ctx, backendReq)
	if err != nil {
		h.respondBackendError(w, r, err)
		return
	}

	credits := h.priceSync(result.Pages)
	balance, err := h.deps.Ledger.Debit(ctx, key.ID, credits, models.UsageRecord{
		Outcome:      models.OutcomeSuccess,
		Endpoint:     "/v1/convert",
		ProcessingMS: result.ProcessingMS,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientCredit) {
			// converted but the balance no longer covers the price; the
			// output is withheld and nothing is charged
			annotateAudit(r, func(info *auditInfo) { info.outcome = utils.KindInsufficientCredit })
			utils.RespondWithError(w, http.StatusPaymentRequired, utils.KindInsufficientCredit,
				"Balance does not cover the conversion price")
			return
		}
		h.internalError(w, r, "debit failed after successful conversion", err)
		return
	}

	annotateAudit(r, func(info *auditInfo) { info.credits = credits })
	utils.RespondWithJSON(w, http.StatusOK, convertResponse{
		Markdown:       result.Markdown,
		JSON:           result.JSON,
		Pages:          result.Pages,
		ProcessingMS:   result.ProcessingMS,
		CreditsCharged: credits,
		Balance:        balance,
	})
}

type jobView struct {
	ID          uuid.UUID       `json:"id"`
	State       string          `json:"state"`
	Credits     int             `json:"credits"`
	Markdown    string          `json:"markdown,omitempty"`
	JSON        json.RawMessage `json:"json,omitempty"`
	Pages       int             `json:"pages,omitempty"`
	Error       *string         `json:"error,omitempty"`
	Retryable   *bool           `json:"retryable,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (h *handlers) convertAsync(w http.ResponseWriter, r *http.Request) {
	key, _ := middleware.GetAPIKey(r.Context())
	annotateAudit(r, func(info *auditInfo) { info.keyID = key.ID.String() })

	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, "Invalid JSON body")
		return
	}
	backendReq, err := req.validate()
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, err.Error())
		return
	}

	if !h.gateRateAndBalance(w, r, key.ID) {
		return
	}

	job, err := h.deps.Tracker.Submit(r.Context(), key.ID, backendReq, h.priceAsync())
	if err != nil {
		h.internalError(w, r, "failed to submit job", err)
		return
	}

	annotateAudit(r, func(info *auditInfo) { info.jobID = job.ID.String() })
	utils.RespondWithJSON(w, http.StatusAccepted, jobView{
		ID:          job.ID,
		State:       job.State,
		Credits:     job.Credits,
		SubmittedAt: job.SubmittedAt,
	})
}

func (h *handlers) jobStatus(w http.ResponseWriter, r *http.Request) {
	key, _ := middleware.GetAPIKey(r.Context())
	annotateAudit(r, func(info *auditInfo) { info.keyID = key.ID.String() })

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, utils.KindNotFound, "Job not found")
		return
	}

	job, err := h.deps.Tracker.Status(r.Context(), jobID, key.ID, false)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, utils.KindNotFound, "Job not found")
			return
		}
		h.internalError(w, r, "failed to load job", err)
		return
	}

	annotateAudit(r, func(info *auditInfo) { info.jobID = job.ID.String() })
	utils.RespondWithJSON(w, http.StatusOK, h.jobToView(r.Context(), job))
}

// jobToView inlines the stored output for succeeded jobs so pollers get
// the converted content from the status endpoint.
func (h *handlers) jobToView(ctx context.Context, job *models.ConversionJob) jobView {
	view := jobView{
		ID:          job.ID,
		State:       job.State,
		Credits:     job.Credits,
		Error:       job.ErrorDetail,
		Retryable:   job.Retryable,
		SubmittedAt: job.SubmittedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.State == models.JobSucceeded && job.ResultRef != nil {
		if output, err := h.deps.Tracker.Result(ctx, *job.ResultRef); err == nil {
			view.Markdown = output.Markdown
			view.JSON = output.JSON
			view.Pages = output.Pages
		}
	}
	return view
}

type topupRequest struct {
	PackageID    string `json:"package_id"`
	PaymentToken string `json:"payment_token"`
}

type topupResponse struct {
	CreditsAdded int `json:"credits_added"`
	Balance      int `json:"balance"`
}

func (h *handlers) topup(w http.ResponseWriter, r *http.Request) {
	key, _ := middleware.GetAPIKey(r.Context())
	annotateAudit(r, func(info *auditInfo) { info.keyID = key.ID.String() })

	var req topupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, "Invalid JSON body")
		return
	}
	if req.PaymentToken == "" {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, "payment_token is required")
		return
	}
	pkg, ok := payment.FindPackage(req.PackageID)
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, utils.KindInvalidRequest, "unknown package_id")
		return
	}

	if err := h.deps.Payment.Authorize(r.Context(), req.PaymentToken, pkg.PriceCents); err != nil {
		if errors.Is(err, payment.ErrDeclined) {
			utils.RespondWithError(w, http.StatusPaymentRequired, utils.KindInvalidRequest, "Payment declined")
			return
		}
		h.internalError(w, r, "payment authorization failed", err)
		return
	}

	balance, err := h.deps.Ledger.Credit(r.Context(), key.ID, pkg.Credits, models.UsageRecord{
		Outcome:  models.OutcomeSuccess,
		Endpoint: "/v1/billing/topup",
	})
	if err != nil {
		h.internalError(w, r, "credit after authorized payment failed", err)
		return
	}

	annotateAudit(r, func(info *auditInfo) { info.credits = pkg.Credits })
	utils.RespondWithJSON(w, http.StatusOK, topupResponse{
		CreditsAdded: pkg.Credits,
		Balance:      balance,
	})
}

func (h *handlers) packages(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"packages": payment.Packages(),
	})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		if err := h.deps.Health(r.Context()); err != nil {
			utils.RespondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// gateRateAndBalance applies the rate limit then the balance pre-check, in
// that order. Rejections write the response and return false; neither
// rejection touches the ledger.
func (h *handlers) gateRateAndBalance(w http.ResponseWriter, r *http.Request, keyID uuid.UUID) bool {
	decision := h.deps.Limiter.Allow(r.Context(), keyID.String())
	if !decision.Allowed {
		annotateAudit(r, func(info *auditInfo) { info.outcome = utils.KindRateLimited })
		utils.RespondWithRateLimit(w, int(decision.RetryAfter.Seconds())+1)
		return false
	}

	balance, err := h.deps.Ledger.Balance(r.Context(), keyID)
	if err != nil {
		h.internalError(w, r, "failed to check balance", err)
		return false
	}
	if balance < h.priceAsync() {
		annotateAudit(r, func(info *auditInfo) { info.outcome = utils.KindInsufficientCredit })
		utils.RespondWithError(w, http.StatusPaymentRequired, utils.KindInsufficientCredit,
			"Balance is too low for this conversion")
		return false
	}
	return true
}

// priceSync charges per page with a per-document floor.
func (h *handlers) priceSync(pages int) int {
	price := pages * h.deps.Config.Pricing.CreditsPerPage
	if min := h.deps.Config.Pricing.MinCreditsPerDocument; price < min {
		price = min
	}
	return price
}

// priceAsync is the flat price fixed at submission, before the page count
// is known.
func (h *handlers) priceAsync() int {
	return h.deps.Config.Pricing.MinCreditsPerDocument
}

func (h *handlers) respondBackendError(w http.ResponseWriter, r *http.Request, err error) {
	annotateAudit(r, func(info *auditInfo) { info.outcome = utils.KindBackendFailure })

	var be *backend.Error
	if errors.As(err, &be) {
		utils.RespondWithBackendError(w, be.Reason, be.Retryable)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		utils.RespondWithBackendError(w, "Conversion timed out", true)
		return
	}
	utils.RespondWithBackendError(w, "Conversion backend unavailable", true)
}

// internalError logs the detail and surfaces a generic failure.
func (h *handlers) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.deps.Logger.Error(msg, "path", r.URL.Path, "error", err)
	annotateAudit(r, func(info *auditInfo) { info.outcome = utils.KindInternal })
	utils.RespondWithError(w, http.StatusInternalServerError, utils.KindInternal, "Internal error")
}
