package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/model"
	"github.com/sakif/postboard/internal/repository"
)

func strPtr(s string) *string { return &s }

func createTestPost(t *testing.T, p *PostDB, ownerID, caption string, status model.PostStatus) *model.Post {
	t.Helper()
	post := &model.Post{UserID: ownerID, Caption: caption, Status: status}
	if err := p.Create(context.Background(), post); err != nil {
		t.Fatalf("failed to create test post: %v", err)
	}
	return post
}

// newPostFixture returns the post store plus two registered owners.
func newPostFixture(t *testing.T) (*PostDB, *model.User, *model.User) {
	t.Helper()
	db := newTestDB(t)
	alice := createTestUser(t, db.Users(), "Alice Smith", "alice@example.com")
	bob := createTestUser(t, db.Users(), "Bob Jones", "bob@example.com")
	return db.Posts(), alice, bob
}

// =========================================================================
// CREATE
// =========================================================================

func TestPostCreate_Defaults(t *testing.T) {
	p, alice, _ := newPostFixture(t)

	post := &model.Post{UserID: alice.ID, Caption: "hi"}
	if err := p.Create(context.Background(), post); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if post.ID == "" {
		t.Error("Create() did not set post.ID")
	}
	if post.Status != model.StatusDraft {
		t.Errorf("Status = %q, want draft", post.Status)
	}
	if post.MediaType != model.MediaNone || post.MediaURL != "" {
		t.Errorf("media = (%q, %q), want (none, \"\")", post.MediaType, post.MediaURL)
	}
}

func TestPostCreate_UnknownOwnerRejected(t *testing.T) {
	p, _, _ := newPostFixture(t)

	err := p.Create(context.Background(), &model.Post{UserID: "ghost"})
	if err == nil {
		t.Fatal("Create() should fail the foreign key check for an unknown owner")
	}
}

func TestPostCreate_MediaInvariantEnforced(t *testing.T) {
	p, alice, _ := newPostFixture(t)

	err := p.Create(context.Background(), &model.Post{
		UserID:    alice.ID,
		MediaType: model.MediaImage,
		MediaURL:  "",
	})
	if err == nil {
		t.Fatal("Create() should reject an image post without a URL")
	}
}

// =========================================================================
// LIST
// =========================================================================

func TestPostList_FiltersByOwnerAndStatusNewestFirst(t *testing.T) {
	p, alice, bob := newPostFixture(t)

	first := createTestPost(t, p, alice.ID, "first", model.StatusPublished)
	createTestPost(t, p, alice.ID, "a draft", model.StatusDraft)
	second := createTestPost(t, p, alice.ID, "second", model.StatusPublished)
	createTestPost(t, p, bob.ID, "bob's", model.StatusPublished)

	posts, err := p.List(context.Background(), repository.PostFilter{
		OwnerID: alice.ID,
		Status:  model.StatusPublished,
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if len(posts) != 2 {
		t.Fatalf("List() returned %d posts, want 2", len(posts))
	}
	if posts[0].ID != second.ID || posts[1].ID != first.ID {
		t.Errorf("order = [%s %s], want [%s %s]", posts[0].ID, posts[1].ID, second.ID, first.ID)
	}
	for _, post := range posts {
		if post.UserName != "Alice Smith" {
			t.Errorf("UserName = %q, want %q", post.UserName, "Alice Smith")
		}
	}
}

func TestPostList_DraftsCarryOwnerName(t *testing.T) {
	p, alice, _ := newPostFixture(t)
	createTestPost(t, p, alice.ID, "a draft", model.StatusDraft)

	posts, err := p.List(context.Background(), repository.PostFilter{OwnerID: alice.ID, Status: model.StatusDraft})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(posts) != 1 || posts[0].UserName != "Alice Smith" {
		t.Errorf("List() = %+v, want one draft with UserName %q", posts, "Alice Smith")
	}
}

func TestPostList_EmptyIsNotNil(t *testing.T) {
	p, alice, _ := newPostFixture(t)

	posts, err := p.List(context.Background(), repository.PostFilter{OwnerID: alice.ID, Status: model.StatusDraft})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if posts == nil {
		t.Error("List() returned nil, want empty slice")
	}
}

// =========================================================================
// PUBLISH
// =========================================================================

func TestPostPublish(t *testing.T) {
	p, alice, _ := newPostFixture(t)
	draft := createTestPost(t, p, alice.ID, "hi", model.StatusDraft)

	published, err := p.Publish(context.Background(), alice.ID, draft.ID)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if published.Status != model.StatusPublished {
		t.Errorf("Status = %q, want published", published.Status)
	}

	// Idempotent.
	again, err := p.Publish(context.Background(), alice.ID, draft.ID)
	if err != nil {
		t.Fatalf("second Publish() error = %v", err)
	}
	if again.Status != model.StatusPublished {
		t.Errorf("Status after second publish = %q", again.Status)
	}
}

func TestPostPublish_OtherOwnerIsNotFoundAndUnchanged(t *testing.T) {
	p, alice, bob := newPostFixture(t)
	draft := createTestPost(t, p, alice.ID, "mine", model.StatusDraft)

	_, err := p.Publish(context.Background(), bob.ID, draft.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Publish() by non-owner error = %v, want ErrNotFound", err)
	}

	stored, err := p.GetOwned(context.Background(), alice.ID, draft.ID)
	if err != nil {
		t.Fatalf("GetOwned() error = %v", err)
	}
	if stored.Status != model.StatusDraft {
		t.Errorf("Status = %q, want draft", stored.Status)
	}
}

// =========================================================================
// UPDATE
// =========================================================================

func TestPostUpdate_CaptionOnlyKeepsMedia(t *testing.T) {
	p, alice, _ := newPostFixture(t)

	post := &model.Post{
		UserID:    alice.ID,
		Caption:   "old",
		MediaType: model.MediaVideo,
		MediaURL:  "/uploads/clip.mp4",
	}
	if err := p.Create(context.Background(), post); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := p.Update(context.Background(), alice.ID, post.ID, repository.PostUpdate{Caption: strPtr("new")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.Caption != "new" {
		t.Errorf("Caption = %q, want %q", updated.Caption, "new")
	}
	if updated.MediaType != model.MediaVideo || updated.MediaURL != "/uploads/clip.mp4" {
		t.Errorf("media = (%q, %q), want unchanged", updated.MediaType, updated.MediaURL)
	}
}

func TestPostUpdate_MediaOnlyKeepsCaption(t *testing.T) {
	p, alice, _ := newPostFixture(t)
	post := createTestPost(t, p, alice.ID, "keep me", model.StatusDraft)

	updated, err := p.Update(context.Background(), alice.ID, post.ID, repository.PostUpdate{
		Media: &model.Media{Type: model.MediaImage, URL: "/uploads/a.png"},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.Caption != "keep me" {
		t.Errorf("Caption = %q, want unchanged", updated.Caption)
	}
	if updated.MediaType != model.MediaImage || updated.MediaURL != "/uploads/a.png" {
		t.Errorf("media = (%q, %q)", updated.MediaType, updated.MediaURL)
	}
}

func TestPostUpdate_ExpectMediaURL(t *testing.T) {
	p, alice, _ := newPostFixture(t)
	post := createTestPost(t, p, alice.ID, "swap", model.StatusDraft)

	first := &model.Media{Type: model.MediaImage, URL: "/uploads/first.png"}
	if _, err := p.Update(context.Background(), alice.ID, post.ID, repository.PostUpdate{
		Media:          first,
		ExpectMediaURL: strPtr(""),
	}); err != nil {
		t.Fatalf("Update() from no media error = %v", err)
	}

	// A writer that still believes the post has no media loses.
	_, err := p.Update(context.Background(), alice.ID, post.ID, repository.PostUpdate{
		Media:          &model.Media{Type: model.MediaImage, URL: "/uploads/stale.png"},
		ExpectMediaURL: strPtr(""),
	})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("stale Update() error = %v, want ErrNotFound", err)
	}

	stored, err := p.GetOwned(context.Background(), alice.ID, post.ID)
	if err != nil {
		t.Fatalf("GetOwned() error = %v", err)
	}
	if stored.MediaURL != first.URL {
		t.Errorf("MediaURL = %q, want %q", stored.MediaURL, first.URL)
	}

	updated, err := p.Update(context.Background(), alice.ID, post.ID, repository.PostUpdate{
		Media:          &model.Media{Type: model.MediaVideo, URL: "/uploads/second.mp4"},
		ExpectMediaURL: strPtr(first.URL),
	})
	if err != nil {
		t.Fatalf("Update() with current URL error = %v", err)
	}
	if updated.MediaURL != "/uploads/second.mp4" || updated.MediaType != model.MediaVideo {
		t.Errorf("media = (%q, %q)", updated.MediaType, updated.MediaURL)
	}
}

func TestPostUpdate_EmptyReturnsPost(t *testing.T) {
	p, alice, bob := newPostFixture(t)
	post := createTestPost(t, p, alice.ID, "same", model.StatusDraft)

	got, err := p.Update(context.Background(), alice.ID, post.ID, repository.PostUpdate{})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Caption != "same" {
		t.Errorf("Caption = %q", got.Caption)
	}

	_, err = p.Update(context.Background(), bob.ID, post.ID, repository.PostUpdate{})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("empty Update() by non-owner error = %v, want ErrNotFound", err)
	}
}

func TestPostUpdate_OtherOwnerIsNotFound(t *testing.T) {
	p, alice, bob := newPostFixture(t)
	post := createTestPost(t, p, alice.ID, "mine", model.StatusDraft)

	_, err := p.Update(context.Background(), bob.ID, post.ID, repository.PostUpdate{Caption: strPtr("hijacked")})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}

	stored, _ := p.GetOwned(context.Background(), alice.ID, post.ID)
	if stored.Caption != "mine" {
		t.Errorf("Caption = %q, want unchanged", stored.Caption)
	}
}

// =========================================================================
// DELETE
// =========================================================================

func TestPostDelete(t *testing.T) {
	p, alice, bob := newPostFixture(t)
	post := &model.Post{UserID: alice.ID, Caption: "bye", MediaType: model.MediaImage, MediaURL: "/uploads/x.png"}
	if err := p.Create(context.Background(), post); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := p.Delete(context.Background(), bob.ID, post.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Delete() by non-owner error = %v, want ErrNotFound", err)
	}

	deleted, err := p.Delete(context.Background(), alice.ID, post.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted.MediaURL != "/uploads/x.png" {
		t.Errorf("deleted MediaURL = %q, want the removed row's URL", deleted.MediaURL)
	}

	if _, err := p.Delete(context.Background(), alice.ID, post.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
	if _, err := p.Publish(context.Background(), alice.ID, post.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Publish() after delete error = %v, want ErrNotFound", err)
	}
}
