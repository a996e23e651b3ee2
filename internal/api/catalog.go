package api

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/Kashikuroni/api-yamdb/internal/api/access"
	"github.com/Kashikuroni/api-yamdb/internal/api/auth"
	"github.com/Kashikuroni/api-yamdb/internal/api/middleware"
	"github.com/Kashikuroni/api-yamdb/internal/model"

	"github.com/gin-gonic/gin"
)

const (
	maxCatalogNameLen = 256
	maxSlugLen        = 50
)

var slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

type slugEntityRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type slugEntityResponse struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type titleRequest struct {
	Name        *string  `json:"name"`
	Year        *int     `json:"year"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Genre       []string `json:"genre"`
}

type titleResponse struct {
	ID          uint                 `json:"id"`
	Name        string               `json:"name"`
	Year        int                  `json:"year"`
	Rating      *float64             `json:"rating"`
	Description string               `json:"description"`
	Genre       []slugEntityResponse `json:"genre"`
	Category    *slugEntityResponse  `json:"category"`
}

// validateSlugEntity 校验分类/体裁的公共字段。
func validateSlugEntity(name, slug string) map[string][]string {
	errs := map[string][]string{}
	if name == "" {
		errs["name"] = []string{"required"}
	} else if len(name) > maxCatalogNameLen {
		errs["name"] = []string{"must be at most 256 characters"}
	}
	if slug == "" {
		errs["slug"] = []string{"required"}
	} else {
		if len(slug) > maxSlugLen {
			errs["slug"] = append(errs["slug"], "must be at most 50 characters")
		}
		if !slugPattern.MatchString(slug) {
			errs["slug"] = append(errs["slug"], "may contain only letters, digits, hyphens and underscores")
		}
	}
	return errs
}

func toTitleResponse(t *model.Title, rating *float64) titleResponse {
	resp := titleResponse{
		ID:          t.ID,
		Name:        t.Name,
		Year:        t.Year,
		Rating:      rating,
		Description: t.Description,
		Genre:       make([]slugEntityResponse, 0, len(t.Genres)),
	}
	for _, g := range t.Genres {
		resp.Genre = append(resp.Genre, slugEntityResponse{Name: g.Name, Slug: g.Slug})
	}
	if t.Category != nil {
		resp.Category = &slugEntityResponse{Name: t.Category.Name, Slug: t.Category.Slug}
	}
	return resp
}

// handleListCategories 返回分类列表（对所有人开放）。
//
// GET /api/v1/categories?search=&limit=&offset=
func (s *Server) handleListCategories(c *gin.Context) {
	limit, offset := s.pageParams(c)
	categories, total, err := s.categories.List(c.Request.Context(), c.Query("search"), limit, offset)
	if err != nil {
		s.logError("list categories failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list categories failed"})
		return
	}
	results := make([]slugEntityResponse, 0, len(categories))
	for _, cat := range categories {
		results = append(results, slugEntityResponse{Name: cat.Name, Slug: cat.Slug})
	}
	c.JSON(http.StatusOK, gin.H{"count": total, "results": results})
}

// handleCreateCategory 创建分类（仅管理员）。
func (s *Server) handleCreateCategory(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanWriteCatalog(id) {
		abortDenied(c, id)
		return
	}

	var req slugEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if fieldErrs := validateSlugEntity(req.Name, req.Slug); len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, fieldErrs)
		return
	}

	ctx := c.Request.Context()
	taken, err := s.categories.SlugTaken(ctx, req.Slug)
	if err != nil {
		s.logError("query category failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query category failed"})
		return
	}
	if taken {
		c.JSON(http.StatusConflict, map[string][]string{"slug": {"already in use"}})
		return
	}

	category := &model.Category{Name: req.Name, Slug: req.Slug}
	if err := s.categories.Create(ctx, category); err != nil {
		s.logError("create category failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create category failed"})
		return
	}
	c.JSON(http.StatusCreated, slugEntityResponse{Name: category.Name, Slug: category.Slug})
}

// handlePatchCategory 更新分类名称（仅管理员，slug 不可改）。
func (s *Server) handlePatchCategory(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanWriteCatalog(id) {
		abortDenied(c, id)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == "" || len(req.Name) > maxCatalogNameLen {
		c.JSON(http.StatusBadRequest, map[string][]string{"name": {"must be 1 to 256 characters"}})
		return
	}

	ctx := c.Request.Context()
	category, err := s.categories.BySlug(ctx, c.Param("slug"))
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	if err != nil {
		s.logError("query category failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query category failed"})
		return
	}

	category.Name = req.Name
	if err := s.categories.Save(ctx, category); err != nil {
		s.logError("update category failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update category failed"})
		return
	}
	c.JSON(http.StatusOK, slugEntityResponse{Name: category.Name, Slug: category.Slug})
}

// handleDeleteCategory 删除分类（仅管理员）。关联作品保留，分类字段置空。
func (s *Server) handleDeleteCategory(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanWriteCatalog(id) {
		abortDenied(c, id)
		return
	}

	ctx := c.Request.Context()
	category, err := s.categories.BySlug(ctx, c.Param("slug"))
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	if err != nil {
		s.logError("query category failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query category failed"})
		return
	}

	if err := s.categories.Delete(ctx, category); err != nil {
		s.logError("delete category failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete category failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": category.Slug})
}

// handleListGenres 返回体裁列表（对所有人开放）。
func (s *Server) handleListGenres(c *gin.Context) {
	limit, offset := s.pageParams(c)
	genres, total, err := s.genres.List(c.Request.Context(), c.Query("search"), limit, offset)
	if err != nil {
		s.logError("list genres failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list genres failed"})
		return
	}
	results := make([]slugEntityResponse, 0, len(genres))
	for _, g := range genres {
		results = append(results, slugEntityResponse{Name: g.Name, Slug: g.Slug})
	}
	c.JSON(http.StatusOK, gin.H{"count": total, "results": results})
}

// handleCreateGenre 创建体裁（仅管理员）。
func (s *Server) handleCreateGenre(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanWriteCatalog(id) {
		abortDenied(c, id)
		return
	}

	var req slugEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if fieldErrs := validateSlugEntity(req.Name, req.Slug); len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, fieldErrs)
		return
	}

	ctx := c.Request.Context()
	taken, err := s.genres.SlugTaken(ctx, req.Slug)
	if err != nil {
		s.logError("query genre failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query genre failed"})
		return
	}
	if taken {
		c.JSON(http.StatusConflict, map[string][]string{"slug": {"already in use"}})
		return
	}

	genre := &model.Genre{Name: req.Name, Slug: req.Slug}
	if err := s.genres.Create(ctx, genre); err != nil {
		s.logError("create genre failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create genre failed"})
		return
	}
	c.JSON(http.StatusCreated, slugEntityResponse{Name: genre.Name, Slug: genre.Slug})
}

// handlePatchGenre 更新体裁名称（仅管理员，slug 不可改）。
func (s *Server) handlePatchGenre(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanWriteCatalog(id) {
		abortDenied(c, id)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == "" || len(req.Name) > maxCatalogNameLen {
		c.JSON(http.StatusBadRequest, map[string][]string{"name": {"must be 1 to 256 characters"}})
		return
	}

	ctx := c.Request.Context()
	genre, err := s.genres.BySlug(ctx, c.Param("slug"))
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "genre not found"})
		return
	}
	if err != nil {
		s.logError("query genre failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query genre failed"})
		return
	}

	genre.Name = req.Name
	if err := s.genres.Save(ctx, genre); err != nil {
		s.logError("update genre failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update genre failed"})
		return
	}
	c.JSON(http.StatusOK, slugEntityResponse{Name: genre.Name, Slug: genre.Slug})
}

// handleDeleteGenre 删除体裁（仅管理员）。
func (s *Server) handleDeleteGenre(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanWriteCatalog(id) {
		abortDenied(c, id)
		return
	}

	ctx := c.Request.Context()
	genre, err := s.genres.BySlug(ctx, c.Param("slug"))
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "genre not found"})
		return
	}
	if err != nil {
		s.logError("query genre failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query genre failed"})
		return
	}

	if err := s.genres.Delete(ctx, genre); err != nil {
		s.logError("delete genre failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete genre failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": genre.Slug})
}

// handleListTitles 返回作品列表，支持按分类、体裁、年份和名称过滤。
//
// GET /api/v1/titles?category=&genre=&year=&name=&limit=&offset=
func (s *Server) handleListTitles(c *gin.Context) {
	limit, offset := s.pageParams(c)
	filter := TitleFilter{
		CategorySlug: c.Query("category"),
		GenreSlug:    c.Query("genre"),
		Name:         c.Query("name"),
	}
	if v := c.Query("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string][]string{"year": {"must be an integer"}})
			return
		}
		filter.Year = &year
	}

	ctx := c.Request.Context()
	titles, total, err := s.titles.List(ctx, filter, limit, offset)
	if err != nil {
		s.logError("list titles failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list titles failed"})
		return
	}

	ids := make([]uint, 0, len(titles))
	for _, t := range titles {
		ids = append(ids, t.ID)
	}
	ratings, err := s.titles.Ratings(ctx, ids)
	if err != nil {
		s.logError("load ratings failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load ratings failed"})
		return
	}

	results := make([]titleResponse, 0, len(titles))
	for i := range titles {
		var rating *float64
		if r, ok := ratings[titles[i].ID]; ok {
			rounded := roundRating(r)
			rating = &rounded
		}
		results = append(results, toTitleResponse(&titles[i], rating))
	}
	c.JSON(http.StatusOK, gin.H{"count": total, "results": results})
}

// handleGetTitle 返回单个作品详情（含平均评分）。
func (s *Server) handleGetTitle(c *gin.Context) {
	titleID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title id"})
		return
	}

	ctx := c.Request.Context()
	title, err := s.titles.ByID(ctx, titleID)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "title not found"})
		return
	}
	if err != nil {
		s.logError("query title failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query title failed"})
		return
	}

	ratings, err := s.titles.Ratings(ctx, []uint{title.ID})
	if err != nil {
		s.logError("load ratings failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load ratings failed"})
		return
	}
	var rating *float64
	if r, ok := ratings[title.ID]; ok {
		rounded := roundRating(r)
		rating = &rounded
	}
	c.JSON(http.StatusOK, toTitleResponse(title, rating))
}

// handleCreateTitle 创建作品（仅管理员）。
//
// POST /api/v1/titles
func (s *Server) handleCreateTitle(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanWriteCatalog(id) {
		abortDenied(c, id)
		return
	}

	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fieldErrs := map[string][]string{}
	if req.Name == nil || *req.Name == "" {
		fieldErrs["name"] = []string{"required"}
	} else if len(*req.Name) > maxCatalogNameLen {
		fieldErrs["name"] = []string{"must be at most 256 characters"}
	}
	if req.Year == nil {
		fieldErrs["year"] = []string{"required"}
	} else if *req.Year > time.Now().Year() {
		fieldErrs["year"] = []string{"must not be in the future"}
	}
	if len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, fieldErrs)
		return
	}

	ctx := c.Request.Context()
	title := &model.Title{Name: *req.Name, Year: *req.Year}
	if req.Description != nil {
		title.Description = *req.Description
	}

	if req.Category != nil && *req.Category != "" {
		category, err := s.categories.BySlug(ctx, *req.Category)
		if errors.Is(err, auth.ErrNotFound) {
			c.JSON(http.StatusBadRequest, map[string][]string{"category": {"unknown slug"}})
			return
		}
		if err != nil {
			s.logError("query category failed", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query category failed"})
			return
		}
		title.CategoryID = &category.ID
		title.Category = category
	}

	genres, ok := s.resolveGenres(c, req.Genre)
	if !ok {
		return
	}
	title.Genres = genres

	if err := s.titles.Create(ctx, title); err != nil {
		s.logError("create title failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create title failed"})
		return
	}

	c.JSON(http.StatusCreated, toTitleResponse(title, nil))
}

// handlePatchTitle 更新作品（仅管理员），支持部分字段。
//
// PATCH /api/v1/titles/:id
func (s *Server) handlePatchTitle(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanWriteCatalog(id) {
		abortDenied(c, id)
		return
	}

	titleID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title id"})
		return
	}

	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	title, err := s.titles.ByID(ctx, titleID)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "title not found"})
		return
	}
	if err != nil {
		s.logError("query title failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query title failed"})
		return
	}

	if req.Name != nil {
		if *req.Name == "" || len(*req.Name) > maxCatalogNameLen {
			c.JSON(http.StatusBadRequest, map[string][]string{"name": {"must be 1 to 256 characters"}})
			return
		}
		title.Name = *req.Name
	}
	if req.Year != nil {
		if *req.Year > time.Now().Year() {
			c.JSON(http.StatusBadRequest, map[string][]string{"year": {"must not be in the future"}})
			return
		}
		title.Year = *req.Year
	}
	if req.Description != nil {
		title.Description = *req.Description
	}
	if req.Category != nil {
		if *req.Category == "" {
			title.CategoryID = nil
			title.Category = nil
		} else {
			category, err := s.categories.BySlug(ctx, *req.Category)
			if errors.Is(err, auth.ErrNotFound) {
				c.JSON(http.StatusBadRequest, map[string][]string{"category": {"unknown slug"}})
				return
			}
			if err != nil {
				s.logError("query category failed", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "query category failed"})
				return
			}
			title.CategoryID = &category.ID
			title.Category = category
		}
	}

	if err := s.titles.Save(ctx, title); err != nil {
		s.logError("update title failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update title failed"})
		return
	}

	if req.Genre != nil {
		genres, ok := s.resolveGenres(c, req.Genre)
		if !ok {
			return
		}
		if err := s.titles.ReplaceGenres(ctx, title, genres); err != nil {
			s.logError("update title genres failed", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update title genres failed"})
			return
		}
		title.Genres = genres
	}

	c.JSON(http.StatusOK, toTitleResponse(title, nil))
}

// handleDeleteTitle 删除作品及其评论（仅管理员）。
func (s *Server) handleDeleteTitle(c *gin.Context) {
	id := middleware.Identity(c)
	if !access.CanWriteCatalog(id) {
		abortDenied(c, id)
		return
	}

	titleID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title id"})
		return
	}

	ctx := c.Request.Context()
	title, err := s.titles.ByID(ctx, titleID)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "title not found"})
		return
	}
	if err != nil {
		s.logError("query title failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query title failed"})
		return
	}

	if err := s.titles.Delete(ctx, title); err != nil {
		s.logError("delete title failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete title failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": title.ID})
}

// resolveGenres 按 slug 解析体裁列表，未知 slug 返回 400 并中止。
func (s *Server) resolveGenres(c *gin.Context, slugs []string) ([]model.Genre, bool) {
	genres, err := s.genres.BySlugs(c.Request.Context(), slugs)
	if err != nil {
		s.logError("query genres failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query genres failed"})
		return nil, false
	}
	if len(genres) != len(slugs) {
		c.JSON(http.StatusBadRequest, map[string][]string{"genre": {"unknown slug"}})
		return nil, false
	}
	return genres, true
}

func roundRating(r float64) float64 {
	return float64(int(r*10+0.5)) / 10
}
