package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/Kashikuroni/api-yamdb/internal/api/access"
	"github.com/Kashikuroni/api-yamdb/internal/api/auth"
	"github.com/Kashikuroni/api-yamdb/internal/api/middleware"
	"github.com/Kashikuroni/api-yamdb/internal/model"

	"github.com/gin-gonic/gin"
)

const (
	maxReviewTextLen = 1024
	minScore         = 0
	maxScore         = 10
)

type reviewRequest struct {
	Text  *string `json:"text"`
	Score *int    `json:"score"`
}

type reviewResponse struct {
	ID      uint      `json:"id"`
	Text    string    `json:"text"`
	Author  string    `json:"author"`
	Score   int       `json:"score"`
	PubDate time.Time `json:"pub_date"`
}

type commentRequest struct {
	Text *string `json:"text"`
}

type commentResponse struct {
	ID      uint      `json:"id"`
	Text    string    `json:"text"`
	Author  string    `json:"author"`
	PubDate time.Time `json:"pub_date"`
}

func toReviewResponse(r *model.Review) reviewResponse {
	resp := reviewResponse{
		ID:      r.ID,
		Text:    r.Text,
		Score:   r.Score,
		PubDate: r.CreatedAt,
	}
	if r.Author != nil {
		resp.Author = r.Author.Username
	}
	return resp
}

func toCommentResponse(cm *model.Comment) commentResponse {
	resp := commentResponse{
		ID:      cm.ID,
		Text:    cm.Text,
		PubDate: cm.CreatedAt,
	}
	if cm.Author != nil {
		resp.Author = cm.Author.Username
	}
	return resp
}

// validateReviewText 校验评论/跟帖正文。
func validateReviewText(text *string) []string {
	if text == nil || *text == "" {
		return []string{"required"}
	}
	if len(*text) > maxReviewTextLen {
		return []string{"must be at most 1024 characters"}
	}
	return nil
}

// handleListReviews 返回某作品的评论列表（对所有人开放，按发布时间倒序）。
//
// GET /api/v1/titles/:id/reviews
func (s *Server) handleListReviews(c *gin.Context) {
	titleID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title id"})
		return
	}

	ctx := c.Request.Context()
	if _, err := s.titles.ByID(ctx, titleID); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "title not found"})
			return
		}
		s.logError("query title failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query title failed"})
		return
	}

	limit, offset := s.pageParams(c)
	reviews, total, err := s.reviews.ListByTitle(ctx, titleID, limit, offset)
	if err != nil {
		s.logError("list reviews failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list reviews failed"})
		return
	}

	results := make([]reviewResponse, 0, len(reviews))
	for i := range reviews {
		results = append(results, toReviewResponse(&reviews[i]))
	}
	c.JSON(http.StatusOK, gin.H{"count": total, "results": results})
}

// handleCreateReview 发布评论（需登录，每人每作品一条）。
//
// POST /api/v1/titles/:id/reviews
func (s *Server) handleCreateReview(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanCreateContribution(id) {
		abortDenied(c, id)
		return
	}

	titleID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title id"})
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fieldErrs := map[string][]string{}
	if msgs := validateReviewText(req.Text); len(msgs) > 0 {
		fieldErrs["text"] = msgs
	}
	if req.Score == nil {
		fieldErrs["score"] = []string{"required"}
	} else if *req.Score < minScore || *req.Score > maxScore {
		fieldErrs["score"] = []string{"must be between 0 and 10"}
	}
	if len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, fieldErrs)
		return
	}

	ctx := c.Request.Context()
	if _, err := s.titles.ByID(ctx, titleID); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "title not found"})
			return
		}
		s.logError("query title failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query title failed"})
		return
	}

	exists, err := s.reviews.ExistsByAuthorAndTitle(ctx, id.UserID, titleID)
	if err != nil {
		s.logError("query review failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query review failed"})
		return
	}
	if exists {
		c.JSON(http.StatusBadRequest, map[string][]string{"title": {"you have already reviewed this title"}})
		return
	}

	review := &model.Review{
		Text:     *req.Text,
		Score:    *req.Score,
		TitleID:  titleID,
		AuthorID: id.UserID,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		s.logError("create review failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create review failed"})
		return
	}

	review.Author = &model.User{Username: id.Username}
	c.JSON(http.StatusCreated, toReviewResponse(review))
}

// handleGetReview 返回单条评论（对所有人开放）。
func (s *Server) handleGetReview(c *gin.Context) {
	titleID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title id"})
		return
	}
	reviewID, ok := parseUintParam(c, "rid")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}

	review, err := s.reviews.ByID(c.Request.Context(), titleID, reviewID)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		return
	}
	if err != nil {
		s.logError("query review failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query review failed"})
		return
	}
	c.JSON(http.StatusOK, toReviewResponse(review))
}

// handlePatchReview 修改评论（作者本人、版主或管理员）。
//
// PATCH /api/v1/titles/:id/reviews/:rid
func (s *Server) handlePatchReview(c *gin.Context) {
	id := middleware.Identity(c)

	titleID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title id"})
		return
	}
	reviewID, ok := parseUintParam(c, "rid")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	review, err := s.reviews.ByID(ctx, titleID, reviewID)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		return
	}
	if err != nil {
		s.logError("query review failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query review failed"})
		return
	}

	if !access.CanModifyContribution(id, review.AuthorID) {
		abortDenied(c, id)
		return
	}

	fieldErrs := map[string][]string{}
	if req.Text != nil {
		if msgs := validateReviewText(req.Text); len(msgs) > 0 {
			fieldErrs["text"] = msgs
		}
	}
	if req.Score != nil && (*req.Score < minScore || *req.Score > maxScore) {
		fieldErrs["score"] = []string{"must be between 0 and 10"}
	}
	if len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, fieldErrs)
		return
	}

	if req.Text != nil {
		review.Text = *req.Text
	}
	if req.Score != nil {
		review.Score = *req.Score
	}

	if err := s.reviews.Save(ctx, review); err != nil {
		s.logError("update review failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update review failed"})
		return
	}
	c.JSON(http.StatusOK, toReviewResponse(review))
}

// handleDeleteReview 删除评论及其跟帖（作者本人、版主或管理员）。
func (s *Server) handleDeleteReview(c *gin.Context) {
	id := middleware.Identity(c)

	titleID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title id"})
		return
	}
	reviewID, ok := parseUintParam(c, "rid")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}

	ctx := c.Request.Context()
	review, err := s.reviews.ByID(ctx, titleID, reviewID)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		return
	}
	if err != nil {
		s.logError("query review failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query review failed"})
		return
	}

	if !access.CanModifyContribution(id, review.AuthorID) {
		abortDenied(c, id)
		return
	}

	if err := s.reviews.Delete(ctx, review); err != nil {
		s.logError("delete review failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete review failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": review.ID})
}

// handleListComments 返回某评论下的跟帖列表（对所有人开放，按时间正序）。
//
// GET /api/v1/reviews/:id/comments
func (s *Server) handleListComments(c *gin.Context) {
	reviewID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}

	ctx := c.Request.Context()
	exists, err := s.comments.ReviewExists(ctx, reviewID)
	if err != nil {
		s.logError("query review failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query review failed"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		return
	}

	limit, offset := s.pageParams(c)
	comments, total, err := s.comments.ListByReview(ctx, reviewID, limit, offset)
	if err != nil {
		s.logError("list comments failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list comments failed"})
		return
	}

	results := make([]commentResponse, 0, len(comments))
	for i := range comments {
		results = append(results, toCommentResponse(&comments[i]))
	}
	c.JSON(http.StatusOK, gin.H{"count": total, "results": results})
}

// handleCreateComment 发布跟帖（需登录）。
//
// POST /api/v1/reviews/:id/comments
func (s *Server) handleCreateComment(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanCreateContribution(id) {
		abortDenied(c, id)
		return
	}

	reviewID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msgs := validateReviewText(req.Text); len(msgs) > 0 {
		c.JSON(http.StatusBadRequest, map[string][]string{"text": msgs})
		return
	}

	ctx := c.Request.Context()
	exists, err := s.comments.ReviewExists(ctx, reviewID)
	if err != nil {
		s.logError("query review failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query review failed"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		return
	}

	comment := &model.Comment{
		Text:     *req.Text,
		ReviewID: reviewID,
		AuthorID: id.UserID,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		s.logError("create comment failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create comment failed"})
		return
	}

	comment.Author = &model.User{Username: id.Username}
	c.JSON(http.StatusCreated, toCommentResponse(comment))
}

// handleGetComment 返回单条跟帖（对所有人开放）。
func (s *Server) handleGetComment(c *gin.Context) {
	reviewID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}
	commentID, ok := parseUintParam(c, "cid")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return
	}

	comment, err := s.comments.ByID(c.Request.Context(), reviewID, commentID)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
		return
	}
	if err != nil {
		s.logError("query comment failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query comment failed"})
		return
	}
	c.JSON(http.StatusOK, toCommentResponse(comment))
}

// handlePatchComment 修改跟帖（作者本人、版主或管理员）。
func (s *Server) handlePatchComment(c *gin.Context) {
	id := middleware.Identity(c)

	reviewID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}
	commentID, ok := parseUintParam(c, "cid")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msgs := validateReviewText(req.Text); len(msgs) > 0 {
		c.JSON(http.StatusBadRequest, map[string][]string{"text": msgs})
		return
	}

	ctx := c.Request.Context()
	comment, err := s.comments.ByID(ctx, reviewID, commentID)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
		return
	}
	if err != nil {
		s.logError("query comment failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query comment failed"})
		return
	}

	if !access.CanModifyContribution(id, comment.AuthorID) {
		abortDenied(c, id)
		return
	}

	comment.Text = *req.Text
	if err := s.comments.Save(ctx, comment); err != nil {
		s.logError("update comment failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update comment failed"})
		return
	}
	c.JSON(http.StatusOK, toCommentResponse(comment))
}

// handleDeleteComment 删除跟帖（作者本人、版主或管理员）。
func (s *Server) handleDeleteComment(c *gin.Context) {
	id := middleware.Identity(c)

	reviewID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}
	commentID, ok := parseUintParam(c, "cid")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return
	}

	ctx := c.Request.Context()
	comment, err := s.comments.ByID(ctx, reviewID, commentID)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
		return
	}
	if err != nil {
		s.logError("query comment failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query comment failed"})
		return
	}

	if !access.CanModifyContribution(id, comment.AuthorID) {
		abortDenied(c, id)
		return
	}

	if err := s.comments.Delete(ctx, comment); err != nil {
		s.logError("delete comment failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete comment failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": comment.ID})
}
