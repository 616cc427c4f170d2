package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookgate/bookgate/pkg/bookgate"
)

// LibraryHandler exposes the reader-facing endpoints: code checking,
// redemption, the user's library and file downloads.
type LibraryHandler struct {
	service bookgate.Service
	logger  *zap.Logger
}

func NewLibraryHandler(service bookgate.Service, logger *zap.Logger) *LibraryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LibraryHandler{service: service, logger: logger}
}

// Routes returns the router for library endpoints
func (h *LibraryHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/codes/check", h.CheckCode)
	r.Post("/codes/redeem", h.Redeem)
	r.Get("/entitlements", h.ListEntitlements)
	r.Get("/resources/{resource_id}/files/{kind}", h.DownloadFile)
	return r
}

type codeValueRequest struct {
	CodeValue string `json:"code_value"`
}

func (h *LibraryHandler) CheckCode(w http.ResponseWriter, r *http.Request) {
	var body codeValueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	check, err := h.service.CheckCode(r.Context(), body.CodeValue)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, check)
}

func (h *LibraryHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Code: "unauthorized", Message: "a valid identity token is required"})
		return
	}

	var body codeValueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	resource, err := h.service.Redeem(r.Context(), bookgate.RedeemRequest{
		CodeValue: body.CodeValue,
		UserID:    id.UserID,
		Role:      id.Role,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resource)
}

func (h *LibraryHandler) ListEntitlements(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Code: "unauthorized", Message: "a valid identity token is required"})
		return
	}

	entitlements, err := h.service.ListEntitlements(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, entitlements)
}

// entitled reports whether the caller currently holds access to the
// resource. Admin tokens bypass the check.
func (h *LibraryHandler) entitled(r *http.Request, id *identity, resourceID uuid.UUID) (bool, error) {
	if id.Admin {
		return true, nil
	}
	entitlements, err := h.service.ListEntitlements(r.Context(), id.UserID)
	if err != nil {
		return false, err
	}
	for _, e := range entitlements {
		if e.Resource.ID == resourceID {
			return true, nil
		}
	}
	return false, nil
}

func (h *LibraryHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Code: "unauthorized", Message: "a valid identity token is required"})
		return
	}

	resourceID, err := uuid.Parse(chi.URLParam(r, "resource_id"))
	if err != nil {
		writeBadRequest(w, r, "invalid resource id")
		return
	}

	ok, err := h.entitled(r, id, resourceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, ErrorResponse{Code: "not_entitled", Message: "no active entitlement for this resource"})
		return
	}

	req := bookgate.OpenFileRequest{
		ResourceID: resourceID,
		Kind:       bookgate.FileKind(chi.URLParam(r, "kind")),
	}
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, r, "invalid page number")
			return
		}
		req.PageNumber = &page
	}

	download, err := h.service.OpenResourceFile(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer download.Body.Close()

	w.Header().Set("Content-Type", download.ContentType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": download.FileName}))
	if _, err := io.Copy(w, download.Body); err != nil {
		// Headers are gone at this point, just note the broken stream.
		h.logger.Warn("file relay interrupted",
			zap.String("resource_id", resourceID.String()),
			zap.Error(err))
	}
}
