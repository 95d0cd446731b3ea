package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/events"
	"github.com/sakif/postboard/internal/media"
	"github.com/sakif/postboard/internal/model"
	"github.com/sakif/postboard/internal/repository"
)

// MediaStore is the part of media.Store the post service uses. Tests swap
// in a fake that never touches the disk.
type MediaStore interface {
	Save(ctx context.Context, up media.Upload, kind model.MediaType) (model.Media, error)
	Remove(url string) error
}

// CreatePostInput is everything a client may send when creating a post.
type CreatePostInput struct {
	Caption string
	Status  *string // nil means draft
	Media   *media.Upload
}

// PostPatch is a partial edit. A nil or empty Caption leaves the caption
// as it is; a nil Media keeps the current attachment.
type PostPatch struct {
	Caption *string
	Media   *media.Upload
}

// PostService runs the draft → published lifecycle. Every operation on an
// existing post is scoped to the acting user: a post owned by someone else
// is reported exactly like a missing one.
type PostService struct {
	repo   repository.PostRepository
	media  MediaStore
	events events.Publisher
	logger *slog.Logger
}

// NewPostService wires a PostService. A nil publisher disables events.
func NewPostService(
	repo repository.PostRepository,
	store MediaStore,
	publisher events.Publisher,
	logger *slog.Logger,
) *PostService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &PostService{
		repo:   repo,
		media:  store,
		events: publisher,
		logger: logger,
	}
}

// Create validates input, stores the optional media file and inserts the
// post owned by actorID.
//
// Order: caption length, status, media type. The file is only written once
// all three pass, and it is removed again if the insert fails.
func (s *PostService) Create(ctx context.Context, actorID string, in CreatePostInput) (*model.Post, error) {
	if actorID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	if captionTooLong(in.Caption) {
		return nil, apperror.ValidationFailed("caption",
			fmt.Sprintf("Caption too long (max %d characters)", MaxCaptionLength))
	}

	status := model.StatusDraft
	if in.Status != nil {
		status = model.PostStatus(*in.Status)
		if !status.Valid() {
			return nil, apperror.ValidationFailed("status", "Invalid post status")
		}
	}

	var kind model.MediaType
	if in.Media != nil {
		var err error
		kind, err = media.ClassifyStrict(in.Media.ContentType)
		if err != nil {
			return nil, err
		}
	}

	post := &model.Post{
		UserID:    actorID,
		Caption:   strings.TrimSpace(in.Caption),
		Status:    status,
		MediaType: model.MediaNone,
	}

	if in.Media != nil {
		stored, err := s.media.Save(ctx, *in.Media, kind)
		if err != nil {
			return nil, s.mediaError("storing media", err)
		}
		post.MediaType = stored.Type
		post.MediaURL = stored.URL
	}

	if err := s.repo.Create(ctx, post); err != nil {
		s.discard(post.MediaURL)
		s.logger.Error("failed to create post",
			slog.String("userID", actorID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/post: creating post: %w", err)
	}

	s.logger.Info("post created",
		slog.String("id", post.ID),
		slog.String("userID", actorID),
		slog.String("status", string(post.Status)),
	)
	s.emit(events.SubjectPostCreated, post.ID, s.events.PostCreated(ctx, post))

	return post, nil
}

// Feed returns the actor's published posts, newest first.
func (s *PostService) Feed(ctx context.Context, actorID string) ([]model.Post, error) {
	return s.list(ctx, actorID, model.StatusPublished)
}

// Drafts returns the actor's unpublished posts, newest first.
func (s *PostService) Drafts(ctx context.Context, actorID string) ([]model.Post, error) {
	return s.list(ctx, actorID, model.StatusDraft)
}

func (s *PostService) list(ctx context.Context, actorID string, status model.PostStatus) ([]model.Post, error) {
	if actorID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	posts, err := s.repo.List(ctx, repository.PostFilter{OwnerID: actorID, Status: status})
	if err != nil {
		s.logger.Error("failed to list posts",
			slog.String("userID", actorID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/post: listing %s posts: %w", status, err)
	}
	return posts, nil
}

// Publish moves an owned post to published. Already published posts stay
// published and the call still succeeds.
func (s *PostService) Publish(ctx context.Context, actorID, postID string) (*model.Post, error) {
	if err := checkTarget(actorID, &postID); err != nil {
		return nil, err
	}

	post, err := s.repo.Publish(ctx, actorID, postID)
	if err != nil {
		return nil, s.repoError("publishing", postID, err)
	}

	s.logger.Info("post published", slog.String("id", post.ID), slog.String("userID", actorID))
	s.emit(events.SubjectPostPublished, post.ID, s.events.PostPublished(ctx, post))

	return post, nil
}

// Update applies a partial edit to an owned post.
//
// A replacement file is classified leniently: a content type starting with
// "video" makes a video and anything else an image. The caption is stored
// as sent, without trimming. A replaced media file is removed once the
// row points at the new one.
func (s *PostService) Update(ctx context.Context, actorID, postID string, patch PostPatch) (*model.Post, error) {
	if err := checkTarget(actorID, &postID); err != nil {
		return nil, err
	}

	var update repository.PostUpdate
	if patch.Caption != nil && *patch.Caption != "" {
		if captionTooLong(*patch.Caption) {
			return nil, apperror.ValidationFailed("caption",
				fmt.Sprintf("Caption too long (max %d characters)", MaxCaptionLength))
		}
		update.Caption = patch.Caption
	}

	var (
		post     *model.Post
		replaced string
		err      error
	)
	if patch.Media != nil {
		post, replaced, err = s.swapMedia(ctx, actorID, postID, update, patch.Media)
		if err != nil {
			return nil, err
		}
	} else {
		post, err = s.repo.Update(ctx, actorID, postID, update)
		if err != nil {
			return nil, s.repoError("updating", postID, err)
		}
	}
	s.discard(replaced)

	s.logger.Info("post updated", slog.String("id", post.ID), slog.String("userID", actorID))

	return post, nil
}

// maxMediaSwaps bounds how often swapMedia retries after losing a race.
const maxMediaSwaps = 3

// swapMedia stores up and points the post at it, returning the URL it
// replaced. The UPDATE only applies while the post still carries the URL
// read just before it, so concurrent replacements each get back exactly
// the file they overwrote. A lost race re-reads the post and tries again.
//
// The post is read before the file is written, so a stranger's upload
// never reaches the disk.
func (s *PostService) swapMedia(ctx context.Context, actorID, postID string, update repository.PostUpdate, up *media.Upload) (*model.Post, string, error) {
	var stored *model.Media
	for attempt := 1; ; attempt++ {
		current, err := s.repo.GetOwned(ctx, actorID, postID)
		if err != nil {
			if stored != nil {
				s.discard(stored.URL)
			}
			return nil, "", s.repoError("loading", postID, err)
		}

		if stored == nil {
			m, err := s.media.Save(ctx, *up, media.ClassifyLenient(up.ContentType))
			if err != nil {
				return nil, "", s.mediaError("storing media", err)
			}
			stored = &m
			update.Media = stored
		}

		previous := current.MediaURL
		update.ExpectMediaURL = &previous

		post, err := s.repo.Update(ctx, actorID, postID, update)
		switch {
		case err == nil:
			return post, previous, nil
		case !errors.Is(err, apperror.ErrNotFound):
			s.discard(stored.URL)
			return nil, "", s.repoError("updating", postID, err)
		case attempt == maxMediaSwaps:
			s.discard(stored.URL)
			s.logger.Warn("giving up on media swap",
				slog.String("id", postID),
				slog.Int("attempts", attempt),
			)
			return nil, "", apperror.Conflict("media", "Post was changed by another request, try again")
		}
	}
}

// Delete removes an owned post and its media file.
func (s *PostService) Delete(ctx context.Context, actorID, postID string) error {
	if err := checkTarget(actorID, &postID); err != nil {
		return err
	}

	post, err := s.repo.Delete(ctx, actorID, postID)
	if err != nil {
		return s.repoError("deleting", postID, err)
	}
	s.discard(post.MediaURL)

	s.logger.Info("post deleted", slog.String("id", postID), slog.String("userID", actorID))
	s.emit(events.SubjectPostDeleted, postID, s.events.PostDeleted(ctx, actorID, postID))

	return nil
}

// checkTarget rejects anonymous callers and maps a blank post ID to
// NotFound, the same answer a wrong ID gets.
func checkTarget(actorID string, postID *string) error {
	if actorID == "" {
		return apperror.Unauthorized("authentication required")
	}
	*postID = strings.TrimSpace(*postID)
	if *postID == "" {
		return apperror.NotFound("post", "")
	}
	return nil
}

func (s *PostService) repoError(op, postID string, err error) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	s.logger.Error("post "+op+" failed",
		slog.String("id", postID),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("service/post: %s post %s: %w", op, postID, err)
}

func (s *PostService) mediaError(op string, err error) error {
	if errors.Is(err, apperror.ErrValidation) {
		return err
	}
	s.logger.Error("media "+op+" failed", slog.String("error", err.Error()))
	return fmt.Errorf("service/post: %s: %w", op, err)
}

// discard removes a stored file that no longer backs any post. Failures
// leave an orphan on disk and are only logged.
func (s *PostService) discard(url string) {
	if url == "" {
		return
	}
	if err := s.media.Remove(url); err != nil {
		s.logger.Warn("failed to remove media file",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PostService) emit(subject, postID string, err error) {
	if err != nil {
		s.logger.Warn("failed to publish event",
			slog.String("subject", subject),
			slog.String("postID", postID),
			slog.String("error", err.Error()),
		)
	}
}
