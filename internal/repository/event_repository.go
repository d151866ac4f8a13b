// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"time"

	"campus-rag-go/internal/model"
	"campus-rag-go/pkg/log"

	"gorm.io/gorm"
)

// EventRepository 定义了对 academic_events 表的数据操作接口。
// 它是事件行唯一的写入方。
type EventRepository interface {
	InsertIfAbsent(ctx context.Context, event *model.Event) (bool, error)
	StoreEvents(ctx context.Context, events []model.Event) (model.StoreResult, error)
	QueryByFilters(ctx context.Context, filter model.EventFilter) ([]model.Event, error)
	Upcoming(ctx context.Context, days int) ([]model.Event, error)
	Search(ctx context.Context, term string) ([]model.Event, error)
	DeactivateBySource(ctx context.Context, sourceFile string) (int64, error)
	Stats(ctx context.Context) (*model.EventStats, error)
}

type eventRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewEventRepository 创建一个新的 EventRepository 实例。
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db, now: time.Now}
}

// NewEventRepositoryWithClock 使用给定时钟计算“今天”，供测试使用。
func NewEventRepositoryWithClock(db *gorm.DB, now func() time.Time) EventRepository {
	return &eventRepository{db: db, now: now}
}

func (r *eventRepository) today() string {
	return r.now().Format("2006-01-02")
}

// InsertIfAbsent 以 (title, date, source_file) 为键插入事件。
// 键已存在且有效时返回 false；已存在但被停用（旧版本文档）时重新激活并更新内容。
func (r *eventRepository) InsertIfAbsent(ctx context.Context, event *model.Event) (bool, error) {
	db := r.db.WithContext(ctx)
	var existing model.Event
	err := db.Where("title = ? AND date = ? AND source_file = ?", event.Title, event.Date, event.SourceFile).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		event.IsActive = true
		if err := db.Create(event).Error; err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if existing.IsActive {
		return false, nil
	}

	err = db.Model(&existing).Updates(map[string]interface{}{
		"is_active":   true,
		"event_type":  event.EventType,
		"description": event.Description,
		"confidence":  event.Confidence,
	}).Error
	if err != nil {
		return false, err
	}
	event.ID = existing.ID
	event.IsActive = true
	return true, nil
}

// StoreEvents 逐条写入事件。单条失败只记录日志，不影响其余事件。
func (r *eventRepository) StoreEvents(ctx context.Context, events []model.Event) (model.StoreResult, error) {
	result := model.StoreResult{Total: len(events)}
	for i := range events {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		inserted, err := r.InsertIfAbsent(ctx, &events[i])
		if err != nil {
			log.Errorf("[EventRepository] 写入事件失败, title: %q, error: %v", events[i].Title, err)
			continue
		}
		if inserted {
			result.Stored++
		} else {
			result.Duplicates++
		}
	}
	log.Infof("[EventRepository] 写入 %d 个新事件, 跳过 %d 个重复事件", result.Stored, result.Duplicates)
	return result, nil
}

// QueryByFilters 返回有效事件，按日期升序、抽取时间降序排列。
func (r *eventRepository) QueryByFilters(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	q := r.db.WithContext(ctx).Where("is_active = ?", true)
	if f.FromDate != "" {
		q = q.Where("date >= ?", f.FromDate)
	}
	if f.ToDate != "" {
		q = q.Where("date <= ?", f.ToDate)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.SourceFile != "" {
		q = q.Where("source_file = ?", f.SourceFile)
	}
	q = q.Order("date ASC").Order("extracted_at DESC").Order("id ASC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var events []model.Event
	err := q.Find(&events).Error
	return events, err
}

// Upcoming 返回从今天起 days 天内的事件。
func (r *eventRepository) Upcoming(ctx context.Context, days int) ([]model.Event, error) {
	now := r.now()
	return r.QueryByFilters(ctx, model.EventFilter{
		FromDate: now.Format("2006-01-02"),
		ToDate:   now.AddDate(0, 0, days).Format("2006-01-02"),
	})
}

// Search 在标题和描述中做模糊匹配。
func (r *eventRepository) Search(ctx context.Context, term string) ([]model.Event, error) {
	like := "%" + term + "%"
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("title LIKE ? OR description LIKE ?", like, like).
		Order("date ASC").Order("id ASC").
		Find(&events).Error
	return events, err
}

// DeactivateBySource 停用某个源文件的全部事件，返回受影响的行数。
func (r *eventRepository) DeactivateBySource(ctx context.Context, sourceFile string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Event{}).
		Where("source_file = ? AND is_active = ?", sourceFile, true).
		Update("is_active", false)
	if res.Error != nil {
		return 0, res.Error
	}
	log.Infof("[EventRepository] 停用了 %s 的 %d 个事件", sourceFile, res.RowsAffected)
	return res.RowsAffected, nil
}

// Stats 汇总有效事件。
func (r *eventRepository) Stats(ctx context.Context) (*model.EventStats, error) {
	today := r.today()
	stats := &model.EventStats{}
	err := r.db.WithContext(ctx).Model(&model.Event{}).
		Where("is_active = ?", true).
		Select(`COUNT(*) AS total,
			COUNT(CASE WHEN date >= ? THEN 1 END) AS upcoming,
			COUNT(CASE WHEN date < ? THEN 1 END) AS past,
			COUNT(DISTINCT source_file) AS source_files,
			COUNT(DISTINCT event_type) AS event_types`, today, today).
		Scan(stats).Error
	if err != nil {
		return nil, err
	}

	stats.ByType = []model.TypeCount{}
	err = r.db.WithContext(ctx).Model(&model.Event{}).
		Where("is_active = ?", true).
		Select("event_type, COUNT(*) AS count").
		Group("event_type").
		Order("count DESC").Order("event_type ASC").
		Scan(&stats.ByType).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}
