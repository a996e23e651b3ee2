package api

import (
	"context"
	"errors"

	"github.com/Kashikuroni/api-yamdb/internal/api/auth"
	"github.com/Kashikuroni/api-yamdb/internal/model"

	"gorm.io/gorm"
)

// UserStore 用户存储接口（auth.UserStore 的超集，补充管理端所需操作）。
type UserStore interface {
	auth.UserStore
	List(ctx context.Context, limit, offset int) ([]model.User, int64, error)
}

// CategoryStore 分类存储接口。
type CategoryStore interface {
	List(ctx context.Context, search string, limit, offset int) ([]model.Category, int64, error)
	BySlug(ctx context.Context, slug string) (*model.Category, error)
	SlugTaken(ctx context.Context, slug string) (bool, error)
	Create(ctx context.Context, category *model.Category) error
	Save(ctx context.Context, category *model.Category) error
	Delete(ctx context.Context, category *model.Category) error
}

// GenreStore 体裁存储接口。
type GenreStore interface {
	List(ctx context.Context, search string, limit, offset int) ([]model.Genre, int64, error)
	BySlug(ctx context.Context, slug string) (*model.Genre, error)
	BySlugs(ctx context.Context, slugs []string) ([]model.Genre, error)
	SlugTaken(ctx context.Context, slug string) (bool, error)
	Create(ctx context.Context, genre *model.Genre) error
	Save(ctx context.Context, genre *model.Genre) error
	Delete(ctx context.Context, genre *model.Genre) error
}

// TitleFilter 作品列表过滤条件。
type TitleFilter struct {
	CategorySlug string
	GenreSlug    string
	Name         string
	Year         *int
}

// TitleStore 作品存储接口。
type TitleStore interface {
	List(ctx context.Context, f TitleFilter, limit, offset int) ([]model.Title, int64, error)
	ByID(ctx context.Context, id uint) (*model.Title, error)
	// Ratings 返回各作品评分的平均值，无评论的作品不出现在结果里。
	Ratings(ctx context.Context, titleIDs []uint) (map[uint]float64, error)
	Create(ctx context.Context, title *model.Title) error
	Save(ctx context.Context, title *model.Title) error
	Delete(ctx context.Context, title *model.Title) error
	ReplaceGenres(ctx context.Context, title *model.Title, genres []model.Genre) error
}

// ReviewStore 评论存储接口。
type ReviewStore interface {
	ListByTitle(ctx context.Context, titleID uint, limit, offset int) ([]model.Review, int64, error)
	ByID(ctx context.Context, titleID, reviewID uint) (*model.Review, error)
	ExistsByAuthorAndTitle(ctx context.Context, authorID, titleID uint) (bool, error)
	Create(ctx context.Context, review *model.Review) error
	Save(ctx context.Context, review *model.Review) error
	Delete(ctx context.Context, review *model.Review) error
}

// CommentStore 跟帖存储接口。
type CommentStore interface {
	ListByReview(ctx context.Context, reviewID uint, limit, offset int) ([]model.Comment, int64, error)
	ByID(ctx context.Context, reviewID, commentID uint) (*model.Comment, error)
	ReviewExists(ctx context.Context, reviewID uint) (bool, error)
	Create(ctx context.Context, comment *model.Comment) error
	Save(ctx context.Context, comment *model.Comment) error
	Delete(ctx context.Context, comment *model.Comment) error
}

// mapNotFound 将 gorm 的未找到错误转换为 auth.ErrNotFound。
func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return auth.ErrNotFound
	}
	return err
}

type dbUserStore struct {
	db *gorm.DB
}

func (s dbUserStore) ByEmailAndUsername(ctx context.Context, email, username string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ? AND username = ?", email, username).First(&user).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &user, nil
}

func (s dbUserStore) ByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &user, nil
}

func (s dbUserStore) FindConflicts(ctx context.Context, email, username string) (bool, bool, error) {
	var emailCount, usernameCount int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&emailCount).Error; err != nil {
		return false, false, err
	}
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&usernameCount).Error; err != nil {
		return false, false, err
	}
	return emailCount > 0, usernameCount > 0, nil
}

func (s dbUserStore) Create(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s dbUserStore) Save(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Save(user).Error
}

func (s dbUserStore) Delete(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Delete(user).Error
}

func (s dbUserStore) List(ctx context.Context, limit, offset int) ([]model.User, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	users := []model.User{}
	if err := s.db.WithContext(ctx).Order("username ASC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

type dbCategoryStore struct {
	db *gorm.DB
}

func (s dbCategoryStore) List(ctx context.Context, search string, limit, offset int) ([]model.Category, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Category{})
	if search != "" {
		q = q.Where("name LIKE ?", "%"+search+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	categories := []model.Category{}
	if err := q.Order("slug ASC").Limit(limit).Offset(offset).Find(&categories).Error; err != nil {
		return nil, 0, err
	}
	return categories, total, nil
}

func (s dbCategoryStore) BySlug(ctx context.Context, slug string) (*model.Category, error) {
	var category model.Category
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&category).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &category, nil
}

func (s dbCategoryStore) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Category{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s dbCategoryStore) Create(ctx context.Context, category *model.Category) error {
	return s.db.WithContext(ctx).Create(category).Error
}

func (s dbCategoryStore) Save(ctx context.Context, category *model.Category) error {
	return s.db.WithContext(ctx).Save(category).Error
}

func (s dbCategoryStore) Delete(ctx context.Context, category *model.Category) error {
	return s.db.WithContext(ctx).Delete(category).Error
}

type dbGenreStore struct {
	db *gorm.DB
}

func (s dbGenreStore) List(ctx context.Context, search string, limit, offset int) ([]model.Genre, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Genre{})
	if search != "" {
		q = q.Where("name LIKE ?", "%"+search+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	genres := []model.Genre{}
	if err := q.Order("slug ASC").Limit(limit).Offset(offset).Find(&genres).Error; err != nil {
		return nil, 0, err
	}
	return genres, total, nil
}

func (s dbGenreStore) BySlug(ctx context.Context, slug string) (*model.Genre, error) {
	var genre model.Genre
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&genre).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &genre, nil
}

func (s dbGenreStore) BySlugs(ctx context.Context, slugs []string) ([]model.Genre, error) {
	genres := []model.Genre{}
	if len(slugs) == 0 {
		return genres, nil
	}
	if err := s.db.WithContext(ctx).Where("slug IN ?", slugs).Find(&genres).Error; err != nil {
		return nil, err
	}
	return genres, nil
}

func (s dbGenreStore) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Genre{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s dbGenreStore) Create(ctx context.Context, genre *model.Genre) error {
	return s.db.WithContext(ctx).Create(genre).Error
}

func (s dbGenreStore) Save(ctx context.Context, genre *model.Genre) error {
	return s.db.WithContext(ctx).Save(genre).Error
}

func (s dbGenreStore) Delete(ctx context.Context, genre *model.Genre) error {
	return s.db.WithContext(ctx).Delete(genre).Error
}

type dbTitleStore struct {
	db *gorm.DB
}

func (s dbTitleStore) List(ctx context.Context, f TitleFilter, limit, offset int) ([]model.Title, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Title{})
	if f.CategorySlug != "" {
		q = q.Joins("JOIN categories ON categories.id = titles.category_id").
			Where("categories.slug = ?", f.CategorySlug)
	}
	if f.GenreSlug != "" {
		q = q.Joins("JOIN genre_titles ON genre_titles.title_id = titles.id").
			Joins("JOIN genres ON genres.id = genre_titles.genre_id").
			Where("genres.slug = ?", f.GenreSlug)
	}
	if f.Name != "" {
		q = q.Where("titles.name LIKE ?", "%"+f.Name+"%")
	}
	if f.Year != nil {
		q = q.Where("titles.year = ?", *f.Year)
	}

	var total int64
	if err := q.Distinct("titles.id").Count(&total).Error; err != nil {
		return nil, 0, err
	}

	titles := []model.Title{}
	if err := q.Distinct().Preload("Category").Preload("Genres").
		Order("titles.id ASC").Limit(limit).Offset(offset).Find(&titles).Error; err != nil {
		return nil, 0, err
	}
	return titles, total, nil
}

func (s dbTitleStore) ByID(ctx context.Context, id uint) (*model.Title, error) {
	var title model.Title
	if err := s.db.WithContext(ctx).Preload("Category").Preload("Genres").First(&title, id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &title, nil
}

func (s dbTitleStore) Ratings(ctx context.Context, titleIDs []uint) (map[uint]float64, error) {
	ratings := map[uint]float64{}
	if len(titleIDs) == 0 {
		return ratings, nil
	}
	rows := []struct {
		TitleID uint    `gorm:"column:title_id"`
		Rating  float64 `gorm:"column:rating"`
	}{}
	if err := s.db.WithContext(ctx).Model(&model.Review{}).
		Select("title_id, AVG(score) AS rating").
		Where("title_id IN ?", titleIDs).
		Group("title_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		ratings[row.TitleID] = row.Rating
	}
	return ratings, nil
}

func (s dbTitleStore) Create(ctx context.Context, title *model.Title) error {
	return s.db.WithContext(ctx).Create(title).Error
}

func (s dbTitleStore) Save(ctx context.Context, title *model.Title) error {
	return s.db.WithContext(ctx).Omit("Genres", "Category").Save(title).Error
}

func (s dbTitleStore) Delete(ctx context.Context, title *model.Title) error {
	return s.db.WithContext(ctx).Select("Reviews").Delete(title).Error
}

func (s dbTitleStore) ReplaceGenres(ctx context.Context, title *model.Title, genres []model.Genre) error {
	return s.db.WithContext(ctx).Model(title).Association("Genres").Replace(genres)
}

type dbReviewStore struct {
	db *gorm.DB
}

func (s dbReviewStore) ListByTitle(ctx context.Context, titleID uint, limit, offset int) ([]model.Review, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Review{}).Where("title_id = ?", titleID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	reviews := []model.Review{}
	if err := s.db.WithContext(ctx).Preload("Author").
		Where("title_id = ?", titleID).
		Order("created_at DESC").Limit(limit).Offset(offset).Find(&reviews).Error; err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

func (s dbReviewStore) ByID(ctx context.Context, titleID, reviewID uint) (*model.Review, error) {
	var review model.Review
	if err := s.db.WithContext(ctx).Preload("Author").
		Where("id = ? AND title_id = ?", reviewID, titleID).First(&review).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &review, nil
}

func (s dbReviewStore) ExistsByAuthorAndTitle(ctx context.Context, authorID, titleID uint) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Review{}).
		Where("author_id = ? AND title_id = ?", authorID, titleID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s dbReviewStore) Create(ctx context.Context, review *model.Review) error {
	return s.db.WithContext(ctx).Create(review).Error
}

func (s dbReviewStore) Save(ctx context.Context, review *model.Review) error {
	return s.db.WithContext(ctx).Omit("Author", "Title").Save(review).Error
}

func (s dbReviewStore) Delete(ctx context.Context, review *model.Review) error {
	return s.db.WithContext(ctx).Select("Comments").Delete(review).Error
}

type dbCommentStore struct {
	db *gorm.DB
}

func (s dbCommentStore) ListByReview(ctx context.Context, reviewID uint, limit, offset int) ([]model.Comment, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Comment{}).Where("review_id = ?", reviewID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	comments := []model.Comment{}
	if err := s.db.WithContext(ctx).Preload("Author").
		Where("review_id = ?", reviewID).
		Order("created_at ASC").Limit(limit).Offset(offset).Find(&comments).Error; err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

func (s dbCommentStore) ByID(ctx context.Context, reviewID, commentID uint) (*model.Comment, error) {
	var comment model.Comment
	if err := s.db.WithContext(ctx).Preload("Author").
		Where("id = ? AND review_id = ?", commentID, reviewID).First(&comment).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &comment, nil
}

func (s dbCommentStore) ReviewExists(ctx context.Context, reviewID uint) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Review{}).Where("id = ?", reviewID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s dbCommentStore) Create(ctx context.Context, comment *model.Comment) error {
	return s.db.WithContext(ctx).Create(comment).Error
}

func (s dbCommentStore) Save(ctx context.Context, comment *model.Comment) error {
	return s.db.WithContext(ctx).Omit("Author", "Review").Save(comment).Error
}

func (s dbCommentStore) Delete(ctx context.Context, comment *model.Comment) error {
	return s.db.WithContext(ctx).Delete(comment).Error
}
