package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"campus-rag-go/internal/model"
	"campus-rag-go/internal/repository"
)

// EventQuery 是事件接口的查询参数。优先级：Stats > Search > Upcoming > Type > 日期过滤。
type EventQuery struct {
	Type     string `form:"type"`
	Upcoming bool   `form:"upcoming"`
	Search   string `form:"search"`
	FromDate string `form:"fromDate"`
	ToDate   string `form:"toDate"`
	Limit    int    `form:"limit"`
	Stats    bool   `form:"stats"`
}

// EventView 是带有日历展示字段的事件。
type EventView struct {
	model.Event
	DayOfMonth int    `json:"dayOfMonth"`
	DayOfWeek  string `json:"dayOfWeek"`
}

// MonthGroup 是按月份分组的事件。
type MonthGroup struct {
	Key       string      `json:"key"`
	Year      int         `json:"year"`
	Month     int         `json:"month"`
	MonthName string      `json:"monthName"`
	Events    []EventView `json:"events"`
}

// EventsResult 是事件查询的结果，只有与查询方式对应的字段会被填充。
type EventsResult struct {
	Events         []model.Event     `json:"events,omitempty"`
	GroupedByMonth []MonthGroup      `json:"groupedByMonth,omitempty"`
	Stats          *model.EventStats `json:"stats,omitempty"`
	Count          int               `json:"count"`
	Message        string            `json:"-"`
}

// EventService 定义了学术日历事件的查询接口。
type EventService interface {
	Query(ctx context.Context, q EventQuery) (*EventsResult, error)
}

type eventService struct {
	repo         repository.EventRepository
	upcomingDays int
}

// NewEventService 创建一个新的 EventService 实例。
func NewEventService(repo repository.EventRepository, upcomingDays int) EventService {
	if upcomingDays <= 0 {
		upcomingDays = 30
	}
	return &eventService{repo: repo, upcomingDays: upcomingDays}
}

func (s *eventService) Query(ctx context.Context, q EventQuery) (*EventsResult, error) {
	switch {
	case q.Stats:
		stats, err := s.repo.Stats(ctx)
		if err != nil {
			return nil, err
		}
		return &EventsResult{Stats: stats, Count: int(stats.Total), Message: "Event statistics retrieved successfully"}, nil

	case q.Search != "":
		events, err := s.repo.Search(ctx, q.Search)
		if err != nil {
			return nil, err
		}
		return listResult(events, fmt.Sprintf("Found %d events matching %q", len(events), q.Search)), nil

	case q.Upcoming:
		events, err := s.repo.Upcoming(ctx, s.upcomingDays)
		if err != nil {
			return nil, err
		}
		return listResult(events, fmt.Sprintf("Retrieved %d upcoming events", len(events))), nil

	case q.Type != "":
		events, err := s.repo.QueryByFilters(ctx, model.EventFilter{EventType: model.EventType(q.Type)})
		if err != nil {
			return nil, err
		}
		return listResult(events, fmt.Sprintf("Retrieved %d %s events", len(events), q.Type)), nil
	}

	events, err := s.repo.QueryByFilters(ctx, model.EventFilter{FromDate: q.FromDate, ToDate: q.ToDate, Limit: q.Limit})
	if err != nil {
		return nil, err
	}
	res := listResult(events, fmt.Sprintf("Retrieved %d events", len(events)))
	res.GroupedByMonth = GroupByMonth(events)
	return res, nil
}

func listResult(events []model.Event, msg string) *EventsResult {
	if events == nil {
		events = []model.Event{}
	}
	return &EventsResult{Events: events, Count: len(events), Message: msg}
}

// GroupByMonth 按 YYYY-MM 分组，组按月份升序，组内按日期升序。
func GroupByMonth(events []model.Event) []MonthGroup {
	var groups []MonthGroup
	index := make(map[string]int)
	for _, ev := range events {
		d, err := time.Parse("2006-01-02", ev.Date)
		if err != nil {
			continue
		}
		key := d.Format("2006-01")
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, MonthGroup{
				Key:       key,
				Year:      d.Year(),
				Month:     int(d.Month()),
				MonthName: d.Month().String(),
			})
		}
		groups[i].Events = append(groups[i].Events, EventView{
			Event:      ev,
			DayOfMonth: d.Day(),
			DayOfWeek:  d.Weekday().String(),
		})
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	for _, g := range groups {
		sort.SliceStable(g.Events, func(i, j int) bool { return g.Events[i].Date < g.Events[j].Date })
	}
	return groups
}
