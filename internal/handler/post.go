package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/auth"
	"github.com/sakif/postboard/internal/media"
	"github.com/sakif/postboard/internal/model"
	"github.com/sakif/postboard/internal/service"
)

// Posts is the post lifecycle service as seen by the HTTP layer.
type Posts interface {
	Create(ctx context.Context, actorID string, in service.CreatePostInput) (*model.Post, error)
	Feed(ctx context.Context, actorID string) ([]model.Post, error)
	Drafts(ctx context.Context, actorID string) ([]model.Post, error)
	Publish(ctx context.Context, actorID, postID string) (*model.Post, error)
	Update(ctx context.Context, actorID, postID string, patch service.PostPatch) (*model.Post, error)
	Delete(ctx context.Context, actorID, postID string) error
}

// multipartMemory is how much of a multipart body is kept in memory
// before parts spill to temp files.
const multipartMemory = 8 << 20

// PostHandler serves /posts. Every route sits behind RequireAuth, and the
// acting user always comes from the token, never from the body.
type PostHandler struct {
	posts    Posts
	maxBytes int64
	logger   *slog.Logger
}

// NewPostHandler creates a PostHandler. maxUploadBytes caps one media file;
// a non-positive value uses media.DefaultMaxBytes.
func NewPostHandler(posts Posts, maxUploadBytes int64, logger *slog.Logger) *PostHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = media.DefaultMaxBytes
	}
	return &PostHandler{
		posts:    posts,
		maxBytes: maxUploadBytes,
		logger:   logger,
	}
}

// CreatePostResponse is the 201 body of POST /posts.
type CreatePostResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Post    *model.Post `json:"post"`
}

// postForm is the decoded body of a create or update request. Absent
// fields stay nil.
type postForm struct {
	Caption *string
	Status  *string
	Media   *media.Upload
	closer  func()
}

func (f *postForm) close() {
	if f.closer != nil {
		f.closer()
	}
}

// HandleCreate creates a post.
//
// HTTP: POST /posts
// Body: multipart/form-data with optional caption, status and media file;
// a urlencoded or JSON body without a file works too.
// Response: 201 {"success": true, "message": "...", "post": {...}}
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.actor(w, r)
	if !ok {
		return
	}

	form, err := h.readForm(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer form.close()

	in := service.CreatePostInput{Status: form.Status, Media: form.Media}
	if form.Caption != nil {
		in.Caption = *form.Caption
	}

	post, err := h.posts.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreatePostResponse{
		Success: true,
		Message: "Post created successfully",
		Post:    post,
	})
}

// HandleFeed lists the caller's published posts.
//
// HTTP: GET /posts/feed
func (h *PostHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.posts.Feed)
}

// HandleDrafts lists the caller's drafts.
//
// HTTP: GET /posts/drafts
func (h *PostHandler) HandleDrafts(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.posts.Drafts)
}

func (h *PostHandler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context, string) ([]model.Post, error)) {
	userID, ok := h.actor(w, r)
	if !ok {
		return
	}

	posts, err := fetch(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, posts)
}

// HandlePublish flips an owned post to published.
//
// HTTP: PUT /posts/{id}/publish
func (h *PostHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.actor(w, r)
	if !ok {
		return
	}

	post, err := h.posts.Publish(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// HandleUpdate edits an owned post's caption and/or media.
//
// HTTP: PUT /posts/{id}
func (h *PostHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.actor(w, r)
	if !ok {
		return
	}

	form, err := h.readForm(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer form.close()

	post, err := h.posts.Update(r.Context(), userID, chi.URLParam(r, "id"), service.PostPatch{
		Caption: form.Caption,
		Media:   form.Media,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// HandleDelete removes an owned post.
//
// HTTP: DELETE /posts/{id}
// Response: 200 {"message": "Deleted"}
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.posts.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Deleted"})
}

func (h *PostHandler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperror.Unauthorized("No token, authorization denied"))
		return "", false
	}
	return userID, true
}

// readForm decodes a create/update body. The whole body is capped a little
// above the per-file limit to leave room for the other fields.
func (h *PostHandler) readForm(w http.ResponseWriter, r *http.Request) (*postForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		return h.readMultipart(r)
	case "application/json":
		var body struct {
			Caption *string `json:"caption"`
			Status  *string `json:"status"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return nil, err
		}
		return &postForm{Caption: body.Caption, Status: body.Status}, nil
	default:
		if err := r.ParseForm(); err != nil {
			return nil, h.bodyError(err)
		}
		return &postForm{
			Caption: formValue(r.PostForm, "caption"),
			Status:  formValue(r.PostForm, "status"),
		}, nil
	}
}

func (h *PostHandler) readMultipart(r *http.Request) (*postForm, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, h.bodyError(err)
	}

	form := &postForm{
		Caption: formValue(r.MultipartForm.Value, "caption"),
		Status:  formValue(r.MultipartForm.Value, "status"),
		closer: func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				h.logger.Warn("failed to clean up multipart temp files", slog.String("error", err.Error()))
			}
		},
	}

	headers := r.MultipartForm.File["media"]
	if len(headers) == 0 {
		return form, nil
	}
	if len(headers) > 1 {
		form.close()
		return nil, apperror.ValidationFailed("media", "Only one media file is allowed")
	}

	fh := headers[0]
	if fh.Size > h.maxBytes {
		form.close()
		return nil, h.tooLarge()
	}

	file, err := fh.Open()
	if err != nil {
		form.close()
		return nil, fmt.Errorf("handler: opening uploaded file: %w", err)
	}
	removeAll := form.closer
	form.closer = func() {
		file.Close()
		removeAll()
	}
	form.Media = &media.Upload{
		Filename:    fh.Filename,
		ContentType: partContentType(fh),
		Content:     file,
	}
	return form, nil
}

func (h *PostHandler) bodyError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return h.tooLarge()
	}
	return apperror.ValidationFailed("", "Invalid request body")
}

func (h *PostHandler) tooLarge() error {
	return apperror.ValidationFailed("media", fmt.Sprintf("File too large (max %d MB)", h.maxBytes>>20))
}

func partContentType(fh *multipart.FileHeader) string {
	return fh.Header.Get("Content-Type")
}

// formValue returns a pointer to the first value of key, or nil if the
// field was not sent at all.
func formValue(values map[string][]string, key string) *string {
	v, ok := values[key]
	if !ok || len(v) == 0 {
		return nil
	}
	return &v[0]
}
