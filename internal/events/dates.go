package events

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var errMalformedDate = errors.New("malformed date")

const monthAlternation = `January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec`

// fieldOrder 描述正则三个捕获组分别对应的日期字段。
type fieldOrder [3]byte

var (
	orderDMY = fieldOrder{'d', 'm', 'y'}
	orderMDY = fieldOrder{'m', 'd', 'y'}
	orderYMD = fieldOrder{'y', 'm', 'd'}
)

var monthTable = map[string]int{
	"january": 1, "jan": 1,
	"february": 2, "feb": 2,
	"march": 3, "mar": 3,
	"april": 4, "apr": 4,
	"may": 5,
	"june": 6, "jun": 6,
	"july": 7, "jul": 7,
	"august": 8, "aug": 8,
	"september": 9, "sep": 9,
	"october": 10, "oct": 10,
	"november": 11, "nov": 11,
	"december": 12, "dec": 12,
}

// datePattern 是一条日期识别规则。months 为 nil 表示月份是数字。
type datePattern struct {
	re     *regexp.Regexp
	order  fieldOrder
	months map[string]int
}

// datePatterns 的顺序决定同一上下文中日期的产出顺序。
var datePatterns = []datePattern{
	{regexp.MustCompile(`\b(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})\b`), orderDMY, nil},
	{regexp.MustCompile(`(?i)\b(\d{1,2})\s+(` + monthAlternation + `)\s*,?\s*(\d{2,4})\b`), orderDMY, monthTable},
	{regexp.MustCompile(`(?i)\b(` + monthAlternation + `)\s+(\d{1,2})\s*,?\s*(\d{4})\b`), orderMDY, monthTable},
	{regexp.MustCompile(`(?i)\b(\d{1,2})[-\s]+(` + monthAlternation + `)[-\s]+(\d{4})\b`), orderDMY, monthTable},
	{regexp.MustCompile(`\b(\d{4})[/\-.](\d{1,2})[/\-.](\d{1,2})\b`), orderYMD, nil},
}

// dateMatch 是在上下文中识别出的一个日期。
type dateMatch struct {
	original string
	date     string
	position int
}

// parse 按字段顺序把捕获组转换为 YYYY-MM-DD，并拒绝日历上不存在的日期。
func (p datePattern) parse(groups []string) (string, error) {
	var day, month, year int
	for i, field := range p.order {
		raw := groups[i]
		switch field {
		case 'd':
			d, err := strconv.Atoi(raw)
			if err != nil {
				return "", fmt.Errorf("%w: day %q", errMalformedDate, raw)
			}
			day = d
		case 'm':
			if p.months != nil {
				m, ok := p.months[strings.ToLower(raw)]
				if !ok {
					return "", fmt.Errorf("%w: month %q", errMalformedDate, raw)
				}
				month = m
				continue
			}
			m, err := strconv.Atoi(raw)
			if err != nil {
				return "", fmt.Errorf("%w: month %q", errMalformedDate, raw)
			}
			month = m
		case 'y':
			if len(raw) == 2 {
				raw = "20" + raw
			}
			y, err := strconv.Atoi(raw)
			if err != nil {
				return "", fmt.Errorf("%w: year %q", errMalformedDate, raw)
			}
			year = y
		}
	}

	if month < 1 || month > 12 || day < 1 {
		return "", fmt.Errorf("%w: %04d-%02d-%02d", errMalformedDate, year, month, day)
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return "", fmt.Errorf("%w: %04d-%02d-%02d", errMalformedDate, year, month, day)
	}
	return t.Format(dateLayout), nil
}

const dateLayout = "2006-01-02"

// hasDate 判断一行中是否出现任何日期形态。
func hasDate(line string) bool {
	for _, p := range datePatterns {
		if p.re.MatchString(line) {
			return true
		}
	}
	return false
}
