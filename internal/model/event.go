package model

import "time"

// EventType 是事件抽取识别出的日历事件类别。
type EventType string

const (
	EventExam         EventType = "exam"
	EventRegistration EventType = "registration"
	EventDeadline     EventType = "deadline"
	EventFee          EventType = "fee"
	EventHoliday      EventType = "holiday"
	EventWorkshop     EventType = "workshop"
	EventResult       EventType = "result"
	EventRevaluation  EventType = "revaluation"
	EventInternship   EventType = "internship"
	EventProject      EventType = "project"
	EventAcademic     EventType = "academic"
)

// Event 对应于数据库中的 academic_events 表。
// (title, date, source_file) 在插入时去重；删除源文件只会把 is_active 置为 false。
type Event struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string    `gorm:"type:varchar(255);not null;index:idx_event_identity,priority:1" json:"title"`
	Date        string    `gorm:"type:varchar(10);not null;index:idx_event_identity,priority:2;index:idx_event_date" json:"date"`
	SourceFile  string    `gorm:"type:varchar(255);not null;index:idx_event_identity,priority:3" json:"sourceFile"`
	EventType   EventType `gorm:"type:varchar(32);not null;index" json:"eventType"`
	Description string    `gorm:"type:text" json:"description"`
	Confidence  float64   `gorm:"not null;default:0" json:"confidence"`
	IsActive    bool      `gorm:"not null;default:true;index" json:"isActive"`
	ExtractedAt time.Time `gorm:"autoCreateTime" json:"extractedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Event) TableName() string {
	return "academic_events"
}

// EventFilter 是事件查询的可选过滤条件，零值表示不过滤。
type EventFilter struct {
	FromDate   string
	ToDate     string
	EventType  EventType
	SourceFile string
	Limit      int
}

// EventStats 汇总当前有效事件的统计信息。
type EventStats struct {
	Total       int64       `json:"total"`
	Upcoming    int64       `json:"upcoming"`
	Past        int64       `json:"past"`
	SourceFiles int64       `json:"sourceFiles"`
	EventTypes  int64       `json:"eventTypes"`
	ByType      []TypeCount `json:"byType"`
}

// TypeCount 是按事件类型分组的计数。
type TypeCount struct {
	EventType EventType `json:"eventType"`
	Count     int64     `json:"count"`
}

// StoreResult 汇总一次批量写入事件的结果。
type StoreResult struct {
	Stored     int `json:"stored"`
	Duplicates int `json:"duplicates"`
	Total      int `json:"total"`
}
