// Package httpapi exposes the orchestrator over a JSON REST surface.
// Authentication is delegated to the front proxy; the caller identity
// arrives in the X-User-ID header.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/coduet-labs/escrow-layer/internal/chain"
	"github.com/coduet-labs/escrow-layer/internal/escrow"
	"github.com/coduet-labs/escrow-layer/internal/market"
	"github.com/coduet-labs/escrow-layer/internal/storage"
	"github.com/coduet-labs/escrow-layer/pkg/logger"
)

const userHeader = "X-User-ID"

// Handler serves the marketplace API.
type Handler struct {
	svc *escrow.Service
	log *logger.Logger
}

// New builds the router.
func New(svc *escrow.Service, metricsHandler http.Handler, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &Handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", h.health)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/posts", h.listOpenPosts)
		r.Get("/posts/{postID}", h.postDetail)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/posts", h.createPost)
			r.Post("/posts/reindex", h.reindexPost)
			r.Post("/posts/{postID}/complete", h.completePost)
			r.Post("/posts/{postID}/cancel", h.cancelPost)
			r.Post("/posts/{postID}/cancel-accepted", h.cancelAcceptedBid)
			r.Get("/my/posts", h.myPosts)

			r.Post("/posts/{postID}/applications", h.apply)
			r.Post("/applications/{appID}/accept", h.acceptApplication)
			r.Post("/applications/{appID}/reject", h.rejectApplication)
			r.Get("/applications/{appID}/contact", h.applicationContact)

			r.Put("/profile", h.saveProfile)
			r.Get("/profile", h.myProfile)
		})
	})

	return r
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(userHeader) == "" {
			writeError(w, http.StatusUnauthorized, "missing "+userHeader+" header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string { return r.Header.Get(userHeader) }

// Wire types -----------------------------------------------------------------

type createPostRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	Value       string     `json:"value"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

type applyRequest struct {
	Message   string `json:"message"`
	BidAmount string `json:"bid_amount,omitempty"`
}

type profileRequest struct {
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Phone         string   `json:"phone"`
	Skype         string   `json:"skype"`
	Country       string   `json:"country"`
	Specialties   []string `json:"specialties"`
	WalletAddress string   `json:"wallet_address"`
}

type postResponse struct {
	ID               string     `json:"id"`
	PostID           uint64     `json:"post_id,string"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Category         string     `json:"category,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	Value            string     `json:"value"`
	PlatformFee      string     `json:"platform_fee"`
	TotalDeposit     string     `json:"total_deposit"`
	Status           string     `json:"status"`
	PublisherID      string     `json:"publisher_id"`
	PublisherAddress string     `json:"publisher_address"`
	TxSignature      string     `json:"tx_signature,omitempty"`
	NeedsSync        bool       `json:"needs_sync,omitempty"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type applicationResponse struct {
	ID            string    `json:"id"`
	PostRowID     string    `json:"post_id"`
	HelperID      string    `json:"helper_id"`
	HelperAddress string    `json:"helper_address"`
	Message       string    `json:"message"`
	BidAmount     string    `json:"bid_amount,omitempty"`
	Status        string    `json:"status"`
	TxSignature   string    `json:"tx_signature,omitempty"`
	AppliedAt     time.Time `json:"applied_at"`
}

type postDetailResponse struct {
	Post         postResponse          `json:"post"`
	Applications []applicationResponse `json:"applications"`
}

type contactResponse struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Skype string `json:"skype,omitempty"`
}

type profileResponse struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id"`
	Name          string   `json:"name"`
	Country       string   `json:"country,omitempty"`
	Specialties   []string `json:"specialties,omitempty"`
	WalletAddress string   `json:"wallet_address"`
}

func toPostResponse(p market.Post) postResponse {
	resp := postResponse{
		ID:               p.ID,
		PostID:           p.PostID,
		Title:            p.Title,
		Description:      p.Description,
		Category:         p.Category,
		Tags:             p.Tags,
		Value:            p.Value.String(),
		PlatformFee:      p.PlatformFee.String(),
		TotalDeposit:     p.TotalDeposit.String(),
		Status:           string(p.Status),
		PublisherID:      p.PublisherID,
		PublisherAddress: p.PublisherAddress,
		TxSignature:      p.TxSignature,
		NeedsSync:        p.NeedsSync,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if !p.Deadline.IsZero() {
		d := p.Deadline
		resp.Deadline = &d
	}
	return resp
}

func toApplicationResponse(a market.Application) applicationResponse {
	resp := applicationResponse{
		ID:            a.ID,
		PostRowID:     a.PostRowID,
		HelperID:      a.HelperID,
		HelperAddress: a.HelperAddress,
		Message:       a.Message,
		Status:        string(a.Status),
		TxSignature:   a.TxSignature,
		AppliedAt:     a.AppliedAt,
	}
	if !a.BidAmount.IsZero() {
		resp.BidAmount = a.BidAmount.String()
	}
	return resp
}

// Handlers -------------------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listOpenPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.OpenPosts(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) myPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.PostsByPublisher(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) postDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.PostDetail(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	resp := postDetailResponse{Post: toPostResponse(detail.Post)}
	for _, a := range detail.Applications {
		resp.Applications = append(resp.Applications, toApplicationResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "value must be a decimal string")
		return
	}
	draft := escrow.PostDraft{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
		Value:       value,
	}
	if req.Deadline != nil {
		draft.Deadline = *req.Deadline
	}
	post, err := h.svc.CreatePost(r.Context(), userID(r), draft)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

// reindexPost retries the index write for a post whose escrow funding
// succeeded but whose row never landed. The funded row travels back to the
// client inside the original error payload and is replayed here verbatim.
func (h *Handler) reindexPost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Post postResponse `json:"post"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Post.PublisherID != userID(r) {
		writeError(w, http.StatusForbidden, "not the publisher of this post")
		return
	}
	post, err := postFromResponse(req.Post)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.ReindexPost(r.Context(), post)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(created))
}

func (h *Handler) completePost(w http.ResponseWriter, r *http.Request) {
	post, err := h.svc.Complete(r.Context(), userID(r), chi.URLParam(r, "postID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func (h *Handler) cancelPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.svc.CancelPost(r.Context(), userID(r), chi.URLParam(r, "postID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func (h *Handler) cancelAcceptedBid(w http.ResponseWriter, r *http.Request) {
	post, err := h.svc.CancelAcceptedBid(r.Context(), userID(r), chi.URLParam(r, "postID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	bid := decimal.Zero
	if req.BidAmount != "" {
		var err error
		if bid, err = decimal.NewFromString(req.BidAmount); err != nil {
			writeError(w, http.StatusBadRequest, "bid_amount must be a decimal string")
			return
		}
	}
	app, err := h.svc.Apply(r.Context(), userID(r), chi.URLParam(r, "postID"), req.Message, bid)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

func (h *Handler) acceptApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.svc.Accept(r.Context(), userID(r), chi.URLParam(r, "appID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) rejectApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.svc.Reject(r.Context(), userID(r), chi.URLParam(r, "appID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) applicationContact(w http.ResponseWriter, r *http.Request) {
	card, err := h.svc.ApplicationContact(r.Context(), userID(r), chi.URLParam(r, "appID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contactResponse{
		Name:  card.Name,
		Email: card.Email,
		Phone: card.Phone,
		Skype: card.Skype,
	})
}

func (h *Handler) saveProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	profile, err := h.svc.SaveProfile(r.Context(), market.Profile{
		UserID:        userID(r),
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Skype:         req.Skype,
		Country:       req.Country,
		Specialties:   req.Specialties,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (h *Handler) myProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.svc.Profile(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

func toProfileResponse(p market.Profile) profileResponse {
	return profileResponse{
		ID:            p.ID,
		UserID:        p.UserID,
		Name:          p.Name,
		Country:       p.Country,
		Specialties:   p.Specialties,
		WalletAddress: p.WalletAddress,
	}
}

func postFromResponse(in postResponse) (market.Post, error) {
	value, err := decimal.NewFromString(in.Value)
	if err != nil {
		return market.Post{}, errors.New("value must be a decimal string")
	}
	fee, err := decimal.NewFromString(in.PlatformFee)
	if err != nil {
		return market.Post{}, errors.New("platform_fee must be a decimal string")
	}
	deposit, err := decimal.NewFromString(in.TotalDeposit)
	if err != nil {
		return market.Post{}, errors.New("total_deposit must be a decimal string")
	}
	post := market.Post{
		PostID:           in.PostID,
		Title:            in.Title,
		Description:      in.Description,
		Category:         in.Category,
		Tags:             in.Tags,
		Value:            value,
		PlatformFee:      fee,
		TotalDeposit:     deposit,
		Status:           market.PostStatus(in.Status),
		PublisherID:      in.PublisherID,
		PublisherAddress: in.PublisherAddress,
		TxSignature:      in.TxSignature,
	}
	if in.Deadline != nil {
		post.Deadline = *in.Deadline
	}
	if post.Status == "" {
		post.Status = market.PostOpen
	}
	return post, nil
}

// Error mapping --------------------------------------------------------------

type errorResponse struct {
	Error     string `json:"error"`
	Category  string `json:"category,omitempty"`
	ChainCode int    `json:"chain_code,omitempty"`
	// TxSignature is populated on partial successes so the client keeps the
	// confirmed-on-ledger proof and knows not to repeat the transaction.
	TxSignature string `json:"tx_signature,omitempty"`
	// Post is populated on funded-not-indexed failures so the client can
	// replay the index write via /posts/reindex.
	Post *postResponse `json:"post,omitempty"`
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var fni *escrow.FundedNotIndexedError
	if errors.As(err, &fni) {
		p := toPostResponse(fni.Post)
		writeJSON(w, http.StatusAccepted, errorResponse{
			Error:       "escrow funded but not yet indexed, retry via /posts/reindex",
			TxSignature: fni.Post.TxSignature,
			Post:        &p,
		})
		return
	}

	var lag *escrow.IndexLagError
	if errors.As(err, &lag) {
		writeJSON(w, http.StatusAccepted, errorResponse{
			Error:       "confirmed on ledger but the index is lagging, re-read the post shortly",
			TxSignature: lag.TxSignature,
		})
		return
	}

	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error()}

	var pe *chain.ProgramError
	switch {
	case errors.As(err, &pe):
		resp.Category = string(pe.Category)
		resp.ChainCode = pe.Code
		status = statusForCategory(pe.Category)
	case errors.Is(err, escrow.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, escrow.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, escrow.ErrStateConflict):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, chain.ErrAmbiguousOutcome):
		// The ledger call may or may not have landed. 502 tells the client
		// to re-query state, never to blind-retry.
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.log.Errorf("internal error: %v", err)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func statusForCategory(cat chain.ErrorCategory) int {
	switch cat {
	case chain.CategoryValidation:
		return http.StatusBadRequest
	case chain.CategoryFunds:
		return http.StatusPaymentRequired
	case chain.CategoryAuthorization:
		return http.StatusForbidden
	case chain.CategoryExpiry:
		return http.StatusGone
	default:
		return http.StatusConflict
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
