package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/Kashikuroni/api-yamdb/internal/api/access"
	"github.com/Kashikuroni/api-yamdb/internal/api/auth"
	"github.com/Kashikuroni/api-yamdb/internal/config"
	"github.com/Kashikuroni/api-yamdb/internal/model"
	"github.com/Kashikuroni/api-yamdb/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()
	return &Server{
		cfg: &config.Config{
			App: config.AppConfig{PageSize: 20, MaxPageSize: 100},
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// perform 以给定身份执行一次请求，id 为 nil 表示匿名。
func perform(id *access.Identity, method, route, url string, handler gin.HandlerFunc, body []byte) *httptest.ResponseRecorder {
	r := gin.New()
	r.Handle(method, route, func(c *gin.Context) {
		if id != nil {
			c.Set("identity", id)
		}
		handler(c)
	})

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type mockReviewStore struct {
	listFunc   func(ctx context.Context, titleID uint, limit, offset int) ([]model.Review, int64, error)
	byIDFunc   func(ctx context.Context, titleID, reviewID uint) (*model.Review, error)
	existsFunc func(ctx context.Context, authorID, titleID uint) (bool, error)
	created    []*model.Review
	saveCalls  int
	delCalls   int
}

func (m *mockReviewStore) ListByTitle(ctx context.Context, titleID uint, limit, offset int) ([]model.Review, int64, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, titleID, limit, offset)
	}
	return nil, 0, nil
}

func (m *mockReviewStore) ByID(ctx context.Context, titleID, reviewID uint) (*model.Review, error) {
	if m.byIDFunc != nil {
		return m.byIDFunc(ctx, titleID, reviewID)
	}
	return nil, auth.ErrNotFound
}

func (m *mockReviewStore) ExistsByAuthorAndTitle(ctx context.Context, authorID, titleID uint) (bool, error) {
	if m.existsFunc != nil {
		return m.existsFunc(ctx, authorID, titleID)
	}
	return false, nil
}

func (m *mockReviewStore) Create(ctx context.Context, review *model.Review) error {
	review.ID = uint(len(m.created) + 1)
	m.created = append(m.created, review)
	return nil
}

func (m *mockReviewStore) Save(ctx context.Context, review *model.Review) error {
	m.saveCalls++
	return nil
}

func (m *mockReviewStore) Delete(ctx context.Context, review *model.Review) error {
	m.delCalls++
	return nil
}

type mockTitleStore struct {
	byIDFunc    func(ctx context.Context, id uint) (*model.Title, error)
	listFunc    func(ctx context.Context, f TitleFilter, limit, offset int) ([]model.Title, int64, error)
	ratingsFunc func(ctx context.Context, titleIDs []uint) (map[uint]float64, error)
	created     []*model.Title
	saveCalls   int
	delCalls    int
}

func (m *mockTitleStore) List(ctx context.Context, f TitleFilter, limit, offset int) ([]model.Title, int64, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, f, limit, offset)
	}
	return nil, 0, nil
}

func (m *mockTitleStore) ByID(ctx context.Context, id uint) (*model.Title, error) {
	if m.byIDFunc != nil {
		return m.byIDFunc(ctx, id)
	}
	return nil, auth.ErrNotFound
}

func (m *mockTitleStore) Ratings(ctx context.Context, titleIDs []uint) (map[uint]float64, error) {
	if m.ratingsFunc != nil {
		return m.ratingsFunc(ctx, titleIDs)
	}
	return map[uint]float64{}, nil
}

func (m *mockTitleStore) Create(ctx context.Context, title *model.Title) error {
	title.ID = uint(len(m.created) + 1)
	m.created = append(m.created, title)
	return nil
}

func (m *mockTitleStore) Save(ctx context.Context, title *model.Title) error {
	m.saveCalls++
	return nil
}

func (m *mockTitleStore) Delete(ctx context.Context, title *model.Title) error {
	m.delCalls++
	return nil
}

func (m *mockTitleStore) ReplaceGenres(ctx context.Context, title *model.Title, genres []model.Genre) error {
	return nil
}

type mockCommentStore struct {
	byIDFunc   func(ctx context.Context, reviewID, commentID uint) (*model.Comment, error)
	existsFunc func(ctx context.Context, reviewID uint) (bool, error)
	created    []*model.Comment
	saveCalls  int
	delCalls   int
}

func (m *mockCommentStore) ListByReview(ctx context.Context, reviewID uint, limit, offset int) ([]model.Comment, int64, error) {
	return nil, 0, nil
}

func (m *mockCommentStore) ByID(ctx context.Context, reviewID, commentID uint) (*model.Comment, error) {
	if m.byIDFunc != nil {
		return m.byIDFunc(ctx, reviewID, commentID)
	}
	return nil, auth.ErrNotFound
}

func (m *mockCommentStore) ReviewExists(ctx context.Context, reviewID uint) (bool, error) {
	if m.existsFunc != nil {
		return m.existsFunc(ctx, reviewID)
	}
	return false, nil
}

func (m *mockCommentStore) Create(ctx context.Context, comment *model.Comment) error {
	comment.ID = uint(len(m.created) + 1)
	m.created = append(m.created, comment)
	return nil
}

func (m *mockCommentStore) Save(ctx context.Context, comment *model.Comment) error {
	m.saveCalls++
	return nil
}

func (m *mockCommentStore) Delete(ctx context.Context, comment *model.Comment) error {
	m.delCalls++
	return nil
}

type mockCategoryStore struct {
	bySlugFunc func(ctx context.Context, slug string) (*model.Category, error)
	takenFunc  func(ctx context.Context, slug string) (bool, error)
	created    []*model.Category
	saveCalls  int
	delCalls   int
}

func (m *mockCategoryStore) List(ctx context.Context, search string, limit, offset int) ([]model.Category, int64, error) {
	return nil, 0, nil
}

func (m *mockCategoryStore) BySlug(ctx context.Context, slug string) (*model.Category, error) {
	if m.bySlugFunc != nil {
		return m.bySlugFunc(ctx, slug)
	}
	return nil, auth.ErrNotFound
}

func (m *mockCategoryStore) SlugTaken(ctx context.Context, slug string) (bool, error) {
	if m.takenFunc != nil {
		return m.takenFunc(ctx, slug)
	}
	return false, nil
}

func (m *mockCategoryStore) Create(ctx context.Context, category *model.Category) error {
	category.ID = uint(len(m.created) + 1)
	m.created = append(m.created, category)
	return nil
}

func (m *mockCategoryStore) Save(ctx context.Context, category *model.Category) error {
	m.saveCalls++
	return nil
}

func (m *mockCategoryStore) Delete(ctx context.Context, category *model.Category) error {
	m.delCalls++
	return nil
}
