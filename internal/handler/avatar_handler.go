package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rainbow-buyers/internal/middleware"
	"rainbow-buyers/internal/model"
	"rainbow-buyers/internal/service"
	"rainbow-buyers/pkg/apierror"
)

// multipart framing allowance on top of the image itself
const multipartOverhead = 64 << 10

type AvatarHandler struct {
	service *service.AvatarService
	cookies middleware.Cookies
	resp    *Responder
	now     func() time.Time
}

func NewAvatarHandler(service *service.AvatarService, cookies middleware.Cookies, resp *Responder) *AvatarHandler {
	return &AvatarHandler{service: service, cookies: cookies, resp: resp, now: time.Now}
}

func (h *AvatarHandler) Upload(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.resp.error(w, model.ErrUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.service.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(h.service.MaxBytes()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.resp.error(w, apierror.New("FILE_TOO_LARGE", "Avatar is too large", "", http.StatusRequestEntityTooLarge))
			return
		}
		h.resp.error(w, apierror.New("BAD_REQUEST", "Invalid multipart form", err.Error(), http.StatusBadRequest))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, _, err := r.FormFile("avatar")
	if err != nil {
		h.resp.error(w, apierror.New("BAD_REQUEST", "avatar file is required", "avatar", http.StatusBadRequest))
		return
	}
	defer file.Close()

	session, err := h.service.Upload(r.Context(), claims.UserID(), file, actorFromRequest(r))
	if err != nil {
		h.resp.error(w, err)
		return
	}

	h.cookies.Set(w, middleware.AccessTokenCookie, session.AccessToken, session.AccessExpiresAt, h.now())
	h.resp.success(w, http.StatusOK, "Avatar updated successfully", newSessionUser(session.User))
}

func (h *AvatarHandler) Get(w http.ResponseWriter, r *http.Request) {
	file, info, err := h.service.Open(chi.URLParam(r, "id"))
	if err != nil {
		h.resp.error(w, err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}
