package api

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/bookgate/bookgate/pkg/bookgate"
)

// maxUploadBytes bounds an admin multipart upload held in memory
// before spooling to disk.
const maxUploadBytes = 512 << 20

// AdminHandler exposes the catalog-management endpoints: resources,
// activation codes and grants.
type AdminHandler struct {
	service bookgate.Service
}

func NewAdminHandler(service bookgate.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// Routes returns the router for admin endpoints
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/resources", h.CreateResource)
	r.Get("/resources", h.ListResources)
	r.Get("/resources/{resource_id}", h.GetResource)
	r.Put("/resources/{resource_id}", h.UpdateResource)
	r.Delete("/resources/{resource_id}", h.DeleteResource)
	r.Delete("/resources/{resource_id}/items", h.DeleteResourceItem)
	r.Post("/resources/{resource_id}/materials", h.AddMaterials)
	r.Post("/resources/{resource_id}/classroom", h.SetClassroom)
	r.Post("/resources/{resource_id}/glossary", h.AddGlossary)

	r.Post("/codes", h.IssueCode)
	r.Get("/codes", h.ListCodes)
	r.Patch("/codes/{code_id}", h.UpdateCode)
	r.Delete("/codes/{code_id}", h.RevokeCode)
	r.Get("/codes/{code_id}/activations", h.CountActivations)

	r.Get("/grants", h.ListGrants)
	r.Delete("/grants/{grant_id}", h.RevokeGrant)
	r.Delete("/users/{user_id}/grants", h.RevokeUserGrants)

	return r
}

// multipart helpers

type formCloser struct {
	files []multipart.File
}

func (c *formCloser) add(f multipart.File) {
	c.files = append(c.files, f)
}

func (c *formCloser) Close() {
	for _, f := range c.files {
		f.Close()
	}
}

func (c *formCloser) upload(header *multipart.FileHeader) (*bookgate.FileUpload, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	c.add(file)
	return &bookgate.FileUpload{
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Reader:   file,
	}, nil
}

// singleFile returns the first uploaded file under the field, or nil.
func (c *formCloser) singleFile(r *http.Request, field string) (*bookgate.FileUpload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, nil
	}
	return c.upload(headers[0])
}

func (c *formCloser) allFiles(r *http.Request, field string) ([]bookgate.FileUpload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var uploads []bookgate.FileUpload
	for _, header := range r.MultipartForm.File[field] {
		upload, err := c.upload(header)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, *upload)
	}
	return uploads, nil
}

// pagesFromForm parses a comma-separated list of page numbers.
func pagesFromForm(r *http.Request, field string) ([]int, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	pages := make([]int, 0, len(parts))
	for _, part := range parts {
		page, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func resourceIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "resource_id"))
}

// Resource endpoints

func (h *AdminHandler) CreateResource(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeBadRequest(w, r, "invalid multipart form")
		return
	}
	closer := &formCloser{}
	defer closer.Close()

	req := bookgate.CreateResourceRequest{
		Title:      r.FormValue("title"),
		TargetRole: bookgate.Role(r.FormValue("target_role")),
	}

	var err error
	if req.Cover, err = closer.singleFile(r, "cover"); err != nil {
		writeBadRequest(w, r, "unreadable cover upload")
		return
	}
	if req.Document, err = closer.singleFile(r, "document"); err != nil {
		writeBadRequest(w, r, "unreadable document upload")
		return
	}
	if req.PageAudio, err = closer.allFiles(r, "page_audio"); err != nil {
		writeBadRequest(w, r, "unreadable audio upload")
		return
	}
	if req.PageVideo, err = closer.allFiles(r, "page_video"); err != nil {
		writeBadRequest(w, r, "unreadable video upload")
		return
	}
	if req.AudioPages, err = pagesFromForm(r, "audio_pages"); err != nil {
		writeBadRequest(w, r, "invalid audio_pages")
		return
	}
	if req.VideoPages, err = pagesFromForm(r, "video_pages"); err != nil {
		writeBadRequest(w, r, "invalid video_pages")
		return
	}

	resource, err := h.service.CreateResource(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resource)
}

func (h *AdminHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.service.ListResources(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resources)
}

func (h *AdminHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	id, err := resourceIDParam(r)
	if err != nil {
		writeBadRequest(w, r, "invalid resource id")
		return
	}
	resource, err := h.service.GetResource(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resource)
}

func (h *AdminHandler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	id, err := resourceIDParam(r)
	if err != nil {
		writeBadRequest(w, r, "invalid resource id")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeBadRequest(w, r, "invalid multipart form")
		return
	}
	closer := &formCloser{}
	defer closer.Close()

	req := bookgate.UpdateResourceRequest{
		ID:         id,
		Title:      r.FormValue("title"),
		TargetRole: bookgate.Role(r.FormValue("target_role")),
	}

	// Kept page media arrives as JSON arrays of {page_number, url}.
	if err := json.Unmarshal([]byte(formValueOr(r, "keep_audio", "[]")), &req.KeepAudio); err != nil {
		writeBadRequest(w, r, "invalid keep_audio")
		return
	}
	if err := json.Unmarshal([]byte(formValueOr(r, "keep_video", "[]")), &req.KeepVideo); err != nil {
		writeBadRequest(w, r, "invalid keep_video")
		return
	}

	if req.Cover, err = closer.singleFile(r, "cover"); err != nil {
		writeBadRequest(w, r, "unreadable cover upload")
		return
	}
	if req.Document, err = closer.singleFile(r, "document"); err != nil {
		writeBadRequest(w, r, "unreadable document upload")
		return
	}
	if req.PageAudio, err = closer.allFiles(r, "page_audio"); err != nil {
		writeBadRequest(w, r, "unreadable audio upload")
		return
	}
	if req.PageVideo, err = closer.allFiles(r, "page_video"); err != nil {
		writeBadRequest(w, r, "unreadable video upload")
		return
	}
	if req.AudioPages, err = pagesFromForm(r, "audio_pages"); err != nil {
		writeBadRequest(w, r, "invalid audio_pages")
		return
	}
	if req.VideoPages, err = pagesFromForm(r, "video_pages"); err != nil {
		writeBadRequest(w, r, "invalid video_pages")
		return
	}

	resource, err := h.service.UpdateResource(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resource)
}

func formValueOr(r *http.Request, field, fallback string) string {
	if v := r.FormValue(field); v != "" {
		return v
	}
	return fallback
}

func (h *AdminHandler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	id, err := resourceIDParam(r)
	if err != nil {
		writeBadRequest(w, r, "invalid resource id")
		return
	}
	if err := h.service.DeleteResource(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

type deleteItemRequest struct {
	Kind       string `json:"kind"`
	Title      string `json:"title,omitempty"`
	PageNumber *int   `json:"page_number,omitempty"`
	ExactURL   string `json:"exact_url,omitempty"`
}

func (h *AdminHandler) DeleteResourceItem(w http.ResponseWriter, r *http.Request) {
	id, err := resourceIDParam(r)
	if err != nil {
		writeBadRequest(w, r, "invalid resource id")
		return
	}
	var body deleteItemRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	resource, err := h.service.DeleteResourceItem(r.Context(), bookgate.DeleteResourceItemRequest{
		ResourceID: id,
		Kind:       bookgate.ItemKind(body.Kind),
		Title:      body.Title,
		PageNumber: body.PageNumber,
		ExactURL:   body.ExactURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resource)
}

func (h *AdminHandler) AddMaterials(w http.ResponseWriter, r *http.Request) {
	id, err := resourceIDParam(r)
	if err != nil {
		writeBadRequest(w, r, "invalid resource id")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeBadRequest(w, r, "invalid multipart form")
		return
	}
	closer := &formCloser{}
	defer closer.Close()

	files, err := closer.allFiles(r, "files")
	if err != nil {
		writeBadRequest(w, r, "unreadable file upload")
		return
	}

	resource, err := h.service.AddMaterials(r.Context(), bookgate.AddMaterialsRequest{
		ResourceID: id,
		Kind:       bookgate.ItemKind(r.FormValue("kind")),
		Title:      r.FormValue("title"),
		Files:      files,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resource)
}

func (h *AdminHandler) SetClassroom(w http.ResponseWriter, r *http.Request) {
	id, err := resourceIDParam(r)
	if err != nil {
		writeBadRequest(w, r, "invalid resource id")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeBadRequest(w, r, "invalid multipart form")
		return
	}
	closer := &formCloser{}
	defer closer.Close()

	req := bookgate.SetClassroomRequest{ResourceID: id}
	if req.Document, err = closer.singleFile(r, "document"); err != nil {
		writeBadRequest(w, r, "unreadable document upload")
		return
	}
	if req.Media, err = closer.allFiles(r, "media"); err != nil {
		writeBadRequest(w, r, "unreadable media upload")
		return
	}
	if req.MediaPages, err = pagesFromForm(r, "media_pages"); err != nil {
		writeBadRequest(w, r, "invalid media_pages")
		return
	}

	resource, err := h.service.SetClassroom(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resource)
}

type glossaryEntryForm struct {
	Term        string `json:"term"`
	Description string `json:"description"`
}

func (h *AdminHandler) AddGlossary(w http.ResponseWriter, r *http.Request) {
	id, err := resourceIDParam(r)
	if err != nil {
		writeBadRequest(w, r, "invalid resource id")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeBadRequest(w, r, "invalid multipart form")
		return
	}
	closer := &formCloser{}
	defer closer.Close()

	var entries []glossaryEntryForm
	if err := json.Unmarshal([]byte(formValueOr(r, "entries", "[]")), &entries); err != nil {
		writeBadRequest(w, r, "invalid entries")
		return
	}

	req := bookgate.AddGlossaryRequest{ResourceID: id}
	for i, entry := range entries {
		input := bookgate.GlossaryInput{Term: entry.Term, Description: entry.Description}
		// Optional illustration per entry, field name image_<index>.
		image, err := closer.singleFile(r, "image_"+strconv.Itoa(i))
		if err != nil {
			writeBadRequest(w, r, "unreadable image upload")
			return
		}
		input.Image = image
		req.Entries = append(req.Entries, input)
	}

	resource, err := h.service.AddGlossaryEntries(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resource)
}

// Activation code endpoints

type issueCodeRequest struct {
	ResourceID     string     `json:"resource_id"`
	CodeValue      string     `json:"code_value"`
	MaxActivations int        `json:"max_activations"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
}

func (h *AdminHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	var body issueCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	resourceID, err := uuid.Parse(body.ResourceID)
	if err != nil {
		writeBadRequest(w, r, "invalid resource id")
		return
	}

	code, err := h.service.IssueCode(r.Context(), bookgate.IssueCodeRequest{
		ResourceID:     resourceID,
		CodeValue:      body.CodeValue,
		MaxActivations: body.MaxActivations,
		ExpiryDate:     body.ExpiryDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, code)
}

func (h *AdminHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	usages, err := h.service.ListCodes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, usages)
}

type updateCodeRequest struct {
	IsActive    *bool      `json:"is_active,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	ClearExpiry bool       `json:"clear_expiry,omitempty"`
}

func (h *AdminHandler) UpdateCode(w http.ResponseWriter, r *http.Request) {
	codeID, err := uuid.Parse(chi.URLParam(r, "code_id"))
	if err != nil {
		writeBadRequest(w, r, "invalid code id")
		return
	}
	var body updateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	code, err := h.service.UpdateCode(r.Context(), bookgate.UpdateCodeRequest{
		CodeID:      codeID,
		IsActive:    body.IsActive,
		ExpiryDate:  body.ExpiryDate,
		ClearExpiry: body.ClearExpiry,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, code)
}

func (h *AdminHandler) RevokeCode(w http.ResponseWriter, r *http.Request) {
	codeID, err := uuid.Parse(chi.URLParam(r, "code_id"))
	if err != nil {
		writeBadRequest(w, r, "invalid code id")
		return
	}
	if err := h.service.RevokeCode(r.Context(), codeID); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (h *AdminHandler) CountActivations(w http.ResponseWriter, r *http.Request) {
	codeID, err := uuid.Parse(chi.URLParam(r, "code_id"))
	if err != nil {
		writeBadRequest(w, r, "invalid code id")
		return
	}
	count, err := h.service.CountActivations(r.Context(), codeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]int{"current_users": count})
}

// Grant endpoints

func (h *AdminHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListGrants(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, records)
}

func (h *AdminHandler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	grantID, err := uuid.Parse(chi.URLParam(r, "grant_id"))
	if err != nil {
		writeBadRequest(w, r, "invalid grant id")
		return
	}
	if err := h.service.RevokeGrant(r.Context(), grantID); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (h *AdminHandler) RevokeUserGrants(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeBadRequest(w, r, "invalid user id")
		return
	}
	if err := h.service.RevokeUserGrants(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}
