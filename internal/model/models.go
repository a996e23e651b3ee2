package model

import (
	"time"
)

// Category 表示作品分类（一个作品只属于一个分类）。
type Category struct {
	ID   uint   `gorm:"primaryKey"`                            // 分类 ID
	Name string `gorm:"type:varchar(256);not null"`            // 名称
	Slug string `gorm:"type:varchar(50);uniqueIndex;not null"` // URL 标识（唯一）
}

// Genre 表示作品体裁（作品与体裁是多对多关系）。
type Genre struct {
	ID   uint   `gorm:"primaryKey"`                            // 体裁 ID
	Name string `gorm:"type:varchar(256);not null"`            // 名称
	Slug string `gorm:"type:varchar(50);uniqueIndex;not null"` // URL 标识（唯一）
}

// Title 表示可被评论的作品（电影、书籍、音乐等）。
//
// 分类删除时作品保留（category_id 置空），体裁通过 genre_titles 表关联。
type Title struct {
	ID          uint   `gorm:"primaryKey"`                 // 作品 ID
	Name        string `gorm:"type:varchar(256);not null"` // 名称
	Year        int    `gorm:"not null"`                   // 发行年份
	Description string `gorm:"type:text"`                  // 描述

	CategoryID *uint     `gorm:"index"`                               // 所属分类 ID（可空）
	Category   *Category `gorm:"constraint:OnDelete:SET NULL"`        // 所属分类
	Genres     []Genre   `gorm:"many2many:genre_titles"`              // 体裁列表
	Reviews    []Review  `gorm:"constraint:OnDelete:CASCADE"`         // 评论列表
}

// GenreTitle 是作品与体裁的关联表（多对多中间表）。
type GenreTitle struct {
	GenreID uint `gorm:"primaryKey"` // 体裁 ID
	TitleID uint `gorm:"primaryKey"` // 作品 ID
}

// Review 表示用户对作品的评论。
//
// 同一作者对同一作品只能有一条评论（复合唯一索引兜底，
// 处理函数层还有一次预检查以便返回友好的 400）。
type Review struct {
	ID        uint      `gorm:"primaryKey"` // 评论 ID
	CreatedAt time.Time // 发布时间

	Text  string `gorm:"type:varchar(1024);not null"` // 正文
	Score int    `gorm:"not null"`                    // 评分 [0,10]

	TitleID uint `gorm:"not null;uniqueIndex:idx_reviews_author_title"` // 作品 ID
	Title   *Title

	AuthorID uint `gorm:"not null;uniqueIndex:idx_reviews_author_title"` // 作者 ID
	Author   *User

	Comments []Comment `gorm:"constraint:OnDelete:CASCADE"` // 跟帖列表
}

// Comment 表示针对某条评论的跟帖。
type Comment struct {
	ID        uint      `gorm:"primaryKey"` // 跟帖 ID
	CreatedAt time.Time // 发布时间

	Text string `gorm:"type:varchar(1024);not null"` // 正文

	ReviewID uint `gorm:"not null;index"` // 所属评论 ID
	Review   *Review

	AuthorID uint `gorm:"not null"` // 作者 ID
	Author   *User
}
