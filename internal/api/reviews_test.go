package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Kashikuroni/api-yamdb/internal/api/access"
	"github.com/Kashikuroni/api-yamdb/internal/model"
)

func TestCreateReview_AnonymousGets401(t *testing.T) {
	s := newTestServer(t)
	s.titles = &mockTitleStore{}
	s.reviews = &mockReviewStore{}

	payload, _ := json.Marshal(map[string]any{"text": "great", "score": 8})
	w := perform(nil, http.MethodPost, "/titles/:id/reviews", "/titles/1/reviews", s.handleCreateReview, payload)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCreateReview_UnknownTitleGets404(t *testing.T) {
	s := newTestServer(t)
	s.titles = &mockTitleStore{}
	s.reviews = &mockReviewStore{}

	id := &access.Identity{UserID: 1, Username: "alice", Role: model.RoleUser}
	payload, _ := json.Marshal(map[string]any{"text": "great", "score": 8})
	w := perform(id, http.MethodPost, "/titles/:id/reviews", "/titles/42/reviews", s.handleCreateReview, payload)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCreateReview_SecondReviewForSameTitleGets400(t *testing.T) {
	s := newTestServer(t)
	s.titles = &mockTitleStore{
		byIDFunc: func(ctx context.Context, id uint) (*model.Title, error) {
			return &model.Title{ID: id, Name: "Dune"}, nil
		},
	}
	reviews := &mockReviewStore{
		existsFunc: func(ctx context.Context, authorID, titleID uint) (bool, error) { return true, nil },
	}
	s.reviews = reviews

	id := &access.Identity{UserID: 1, Username: "alice", Role: model.RoleUser}
	payload, _ := json.Marshal(map[string]any{"text": "again", "score": 5})
	w := perform(id, http.MethodPost, "/titles/:id/reviews", "/titles/1/reviews", s.handleCreateReview, payload)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(reviews.created) != 0 {
		t.Fatalf("duplicate review must not be created")
	}
}

func TestCreateReview_ScoreOutOfRangeGets400(t *testing.T) {
	s := newTestServer(t)
	s.titles = &mockTitleStore{
		byIDFunc: func(ctx context.Context, id uint) (*model.Title, error) {
			return &model.Title{ID: id}, nil
		},
	}
	s.reviews = &mockReviewStore{}

	id := &access.Identity{UserID: 1, Username: "alice", Role: model.RoleUser}
	for _, score := range []int{-1, 11} {
		payload, _ := json.Marshal(map[string]any{"text": "x", "score": score})
		w := perform(id, http.MethodPost, "/titles/:id/reviews", "/titles/1/reviews", s.handleCreateReview, payload)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("score %d: expected 400, got %d", score, w.Code)
		}
	}
}

func TestCreateReview_ValidGets201(t *testing.T) {
	s := newTestServer(t)
	s.titles = &mockTitleStore{
		byIDFunc: func(ctx context.Context, id uint) (*model.Title, error) {
			return &model.Title{ID: id}, nil
		},
	}
	reviews := &mockReviewStore{}
	s.reviews = reviews

	id := &access.Identity{UserID: 7, Username: "alice", Role: model.RoleUser}
	payload, _ := json.Marshal(map[string]any{"text": "great", "score": 10})
	w := perform(id, http.MethodPost, "/titles/:id/reviews", "/titles/3/reviews", s.handleCreateReview, payload)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(reviews.created) != 1 {
		t.Fatalf("expected one review created")
	}
	created := reviews.created[0]
	if created.TitleID != 3 || created.AuthorID != 7 || created.Score != 10 {
		t.Fatalf("unexpected review: %+v", created)
	}

	var resp reviewResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if resp.Author != "alice" {
		t.Fatalf("expected author alice, got %q", resp.Author)
	}
}

func TestPatchReview_NonAuthorGets403(t *testing.T) {
	s := newTestServer(t)
	reviews := &mockReviewStore{
		byIDFunc: func(ctx context.Context, titleID, reviewID uint) (*model.Review, error) {
			return &model.Review{ID: reviewID, TitleID: titleID, AuthorID: 1, Text: "orig", Score: 5}, nil
		},
	}
	s.reviews = reviews

	other := &access.Identity{UserID: 2, Username: "bob", Role: model.RoleUser}
	payload, _ := json.Marshal(map[string]any{"text": "hijacked"})
	w := perform(other, http.MethodPatch, "/titles/:id/reviews/:rid", "/titles/1/reviews/9", s.handlePatchReview, payload)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if reviews.saveCalls != 0 {
		t.Fatalf("review must not be saved")
	}
}

func TestPatchReview_ModeratorCanEdit(t *testing.T) {
	s := newTestServer(t)
	reviews := &mockReviewStore{
		byIDFunc: func(ctx context.Context, titleID, reviewID uint) (*model.Review, error) {
			return &model.Review{ID: reviewID, TitleID: titleID, AuthorID: 1, Text: "orig", Score: 5}, nil
		},
	}
	s.reviews = reviews

	moderator := &access.Identity{UserID: 3, Username: "mod", Role: model.RoleModerator}
	payload, _ := json.Marshal(map[string]any{"score": 2})
	w := perform(moderator, http.MethodPatch, "/titles/:id/reviews/:rid", "/titles/1/reviews/9", s.handlePatchReview, payload)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if reviews.saveCalls != 1 {
		t.Fatalf("expected one save")
	}
}

func TestDeleteReview_AuthorCanDelete(t *testing.T) {
	s := newTestServer(t)
	reviews := &mockReviewStore{
		byIDFunc: func(ctx context.Context, titleID, reviewID uint) (*model.Review, error) {
			return &model.Review{ID: reviewID, TitleID: titleID, AuthorID: 5}, nil
		},
	}
	s.reviews = reviews

	author := &access.Identity{UserID: 5, Username: "alice", Role: model.RoleUser}
	w := perform(author, http.MethodDelete, "/titles/:id/reviews/:rid", "/titles/1/reviews/9", s.handleDeleteReview, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if reviews.delCalls != 1 {
		t.Fatalf("expected one delete")
	}
}

func TestCreateComment_UnknownReviewGets404(t *testing.T) {
	s := newTestServer(t)
	s.comments = &mockCommentStore{
		existsFunc: func(ctx context.Context, reviewID uint) (bool, error) { return false, nil },
	}

	id := &access.Identity{UserID: 1, Username: "alice", Role: model.RoleUser}
	payload, _ := json.Marshal(map[string]any{"text": "nice"})
	w := perform(id, http.MethodPost, "/reviews/:id/comments", "/reviews/99/comments", s.handleCreateComment, payload)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCreateComment_ValidGets201(t *testing.T) {
	s := newTestServer(t)
	comments := &mockCommentStore{
		existsFunc: func(ctx context.Context, reviewID uint) (bool, error) { return true, nil },
	}
	s.comments = comments

	id := &access.Identity{UserID: 4, Username: "bob", Role: model.RoleUser}
	payload, _ := json.Marshal(map[string]any{"text": "nice"})
	w := perform(id, http.MethodPost, "/reviews/:id/comments", "/reviews/2/comments", s.handleCreateComment, payload)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(comments.created) != 1 || comments.created[0].ReviewID != 2 || comments.created[0].AuthorID != 4 {
		t.Fatalf("unexpected comment: %+v", comments.created)
	}
}

func TestDeleteComment_NonAuthorGets403(t *testing.T) {
	s := newTestServer(t)
	comments := &mockCommentStore{
		byIDFunc: func(ctx context.Context, reviewID, commentID uint) (*model.Comment, error) {
			return &model.Comment{ID: commentID, ReviewID: reviewID, AuthorID: 1}, nil
		},
	}
	s.comments = comments

	other := &access.Identity{UserID: 2, Username: "bob", Role: model.RoleUser}
	w := perform(other, http.MethodDelete, "/reviews/:id/comments/:cid", "/reviews/1/comments/5", s.handleDeleteComment, nil)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if comments.delCalls != 0 {
		t.Fatalf("comment must not be deleted")
	}
}
