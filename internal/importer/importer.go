// Package importer 从 CSV 数据集批量导入演示数据。
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Kashikuroni/api-yamdb/internal/model"

	"gorm.io/gorm"
)

const batchSize = 500

// Importer 按固定顺序导入 users、genre、category、titles、review、
// comments 和 genre_title 七个 CSV 文件。
//
// 导入是幂等的：已存在的 id 跳过，外键悬空的行跳过并记录日志。
type Importer struct {
	db     *gorm.DB
	logger *slog.Logger
	dir    string
}

// New 创建 Importer，dir 为 CSV 数据集所在目录。
func New(db *gorm.DB, logger *slog.Logger, dir string) *Importer {
	return &Importer{db: db, logger: logger, dir: dir}
}

// Run 执行完整导入。任一文件失败即中止并返回错误。
func (im *Importer) Run(ctx context.Context) error {
	steps := []struct {
		file string
		fn   func(ctx context.Context, rows []map[string]string) error
	}{
		{"users.csv", im.importUsers},
		{"genre.csv", im.importGenres},
		{"category.csv", im.importCategories},
		{"titles.csv", im.importTitles},
		{"genre_title.csv", im.importGenreTitles},
		{"review.csv", im.importReviews},
		{"comments.csv", im.importComments},
	}
	for _, step := range steps {
		rows, err := readCSV(filepath.Join(im.dir, step.file))
		if err != nil {
			return fmt.Errorf("read %s: %w", step.file, err)
		}
		if err := step.fn(ctx, rows); err != nil {
			return fmt.Errorf("import %s: %w", step.file, err)
		}
		im.logger.Info("file imported", slog.String("file", step.file), slog.Int("rows", len(rows)))
	}
	return nil
}

// readCSV 读取带表头的 CSV，返回按列名索引的行。
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, err
	}

	rows := []map[string]string{}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (im *Importer) importUsers(ctx context.Context, rows []map[string]string) error {
	existing, err := existingIDs(ctx, im.db, &model.User{})
	if err != nil {
		return err
	}

	toCreate := []model.User{}
	for _, row := range rows {
		id := parseUint(row["id"])
		if id == 0 || existing[id] {
			continue
		}
		role, err := model.ParseRole(row["role"])
		if err != nil {
			role = model.RoleUser
		}
		toCreate = append(toCreate, model.User{
			ID:        id,
			Username:  row["username"],
			Email:     row["email"],
			Role:      role,
			Bio:       row["bio"],
			FirstName: row["first_name"],
			LastName:  row["last_name"],
		})
	}
	return im.db.WithContext(ctx).CreateInBatches(&toCreate, batchSize).Error
}

func (im *Importer) importGenres(ctx context.Context, rows []map[string]string) error {
	existing, err := existingIDs(ctx, im.db, &model.Genre{})
	if err != nil {
		return err
	}

	toCreate := []model.Genre{}
	for _, row := range rows {
		id := parseUint(row["id"])
		if id == 0 || existing[id] {
			continue
		}
		toCreate = append(toCreate, model.Genre{ID: id, Name: row["name"], Slug: row["slug"]})
	}
	return im.db.WithContext(ctx).CreateInBatches(&toCreate, batchSize).Error
}

func (im *Importer) importCategories(ctx context.Context, rows []map[string]string) error {
	existing, err := existingIDs(ctx, im.db, &model.Category{})
	if err != nil {
		return err
	}

	toCreate := []model.Category{}
	for _, row := range rows {
		id := parseUint(row["id"])
		if id == 0 || existing[id] {
			continue
		}
		toCreate = append(toCreate, model.Category{ID: id, Name: row["name"], Slug: row["slug"]})
	}
	return im.db.WithContext(ctx).CreateInBatches(&toCreate, batchSize).Error
}

func (im *Importer) importTitles(ctx context.Context, rows []map[string]string) error {
	existing, err := existingIDs(ctx, im.db, &model.Title{})
	if err != nil {
		return err
	}
	categories, err := existingIDs(ctx, im.db, &model.Category{})
	if err != nil {
		return err
	}

	toCreate := []model.Title{}
	for _, row := range rows {
		id := parseUint(row["id"])
		if id == 0 || existing[id] {
			continue
		}
		categoryID := parseUint(row["category"])
		if categoryID == 0 || !categories[categoryID] {
			im.logger.Warn("title skipped, unknown category", slog.String("id", row["id"]))
			continue
		}
		year, _ := strconv.Atoi(row["year"])
		toCreate = append(toCreate, model.Title{
			ID:         id,
			Name:       row["name"],
			Year:       year,
			CategoryID: &categoryID,
		})
	}
	return im.db.WithContext(ctx).CreateInBatches(&toCreate, batchSize).Error
}

func (im *Importer) importGenreTitles(ctx context.Context, rows []map[string]string) error {
	titles, err := existingIDs(ctx, im.db, &model.Title{})
	if err != nil {
		return err
	}
	genres, err := existingIDs(ctx, im.db, &model.Genre{})
	if err != nil {
		return err
	}
	links := []model.GenreTitle{}
	if err := im.db.WithContext(ctx).Find(&links).Error; err != nil {
		return err
	}
	existing := make(map[[2]uint]bool, len(links))
	for _, link := range links {
		existing[[2]uint{link.TitleID, link.GenreID}] = true
	}

	toCreate := []model.GenreTitle{}
	for _, row := range rows {
		titleID := parseUint(row["title_id"])
		genreID := parseUint(row["genre_id"])
		if titleID == 0 || genreID == 0 || !titles[titleID] || !genres[genreID] {
			im.logger.Warn("genre link skipped", slog.String("id", row["id"]))
			continue
		}
		if existing[[2]uint{titleID, genreID}] {
			continue
		}
		existing[[2]uint{titleID, genreID}] = true
		toCreate = append(toCreate, model.GenreTitle{TitleID: titleID, GenreID: genreID})
	}
	return im.db.WithContext(ctx).CreateInBatches(&toCreate, batchSize).Error
}

func (im *Importer) importReviews(ctx context.Context, rows []map[string]string) error {
	existing, err := existingIDs(ctx, im.db, &model.Review{})
	if err != nil {
		return err
	}
	titles, err := existingIDs(ctx, im.db, &model.Title{})
	if err != nil {
		return err
	}
	users, err := existingIDs(ctx, im.db, &model.User{})
	if err != nil {
		return err
	}

	toCreate := []model.Review{}
	for _, row := range rows {
		id := parseUint(row["id"])
		if id == 0 || existing[id] {
			continue
		}
		titleID := parseUint(row["title_id"])
		authorID := parseUint(row["author"])
		if !titles[titleID] || !users[authorID] {
			im.logger.Warn("review skipped, dangling reference", slog.String("id", row["id"]))
			continue
		}
		score, _ := strconv.Atoi(row["score"])
		toCreate = append(toCreate, model.Review{
			ID:        id,
			Text:      row["text"],
			Score:     score,
			TitleID:   titleID,
			AuthorID:  authorID,
			CreatedAt: parseDate(row["pub_date"]),
		})
	}
	return im.db.WithContext(ctx).CreateInBatches(&toCreate, batchSize).Error
}

func (im *Importer) importComments(ctx context.Context, rows []map[string]string) error {
	existing, err := existingIDs(ctx, im.db, &model.Comment{})
	if err != nil {
		return err
	}
	reviews, err := existingIDs(ctx, im.db, &model.Review{})
	if err != nil {
		return err
	}
	users, err := existingIDs(ctx, im.db, &model.User{})
	if err != nil {
		return err
	}

	toCreate := []model.Comment{}
	for _, row := range rows {
		id := parseUint(row["id"])
		if id == 0 || existing[id] {
			continue
		}
		reviewID := parseUint(row["review_id"])
		authorID := parseUint(row["author"])
		if !reviews[reviewID] || !users[authorID] {
			im.logger.Warn("comment skipped, dangling reference", slog.String("id", row["id"]))
			continue
		}
		toCreate = append(toCreate, model.Comment{
			ID:        id,
			Text:      row["text"],
			ReviewID:  reviewID,
			AuthorID:  authorID,
			CreatedAt: parseDate(row["pub_date"]),
		})
	}
	return im.db.WithContext(ctx).CreateInBatches(&toCreate, batchSize).Error
}

// existingIDs 返回某个表里已有的全部主键。
func existingIDs(ctx context.Context, db *gorm.DB, m any) (map[uint]bool, error) {
	ids := []uint{}
	if err := db.WithContext(ctx).Model(m).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func parseUint(s string) uint {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}

func parseDate(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now()
	}
	return t
}
