package activity

// 贡献图单元格取值。已完成日取 3 与既有前端保持一致，强度只有两档。
const (
	LevelPadding = -1
	LevelNone    = 0
	LevelActive  = 3
)

// DefaultStreakLookbackDays 连续天数回溯上限，防止异常数据导致无限回溯
const DefaultStreakLookbackDays = 365

const daysPerWeek = 7

// DateSet 有完成记录的日期集合
type DateSet map[Date]struct{}

func NewDateSet(dates []Date) DateSet {
	set := make(DateSet, len(dates))
	for _, d := range dates {
		set[d] = struct{}{}
	}
	return set
}

func (s DateSet) Has(d Date) bool {
	_, ok := s[d]
	return ok
}

// Calculator 连续天数与贡献图计算
type Calculator struct {
	// StreakLookbackDays 回溯超过 today-N 天即停止；0 表示不限制
	StreakLookbackDays int
}

func NewCalculator(lookbackDays int) Calculator {
	if lookbackDays < 0 {
		lookbackDays = 0
	}
	return Calculator{StreakLookbackDays: lookbackDays}
}

// Stats 计算结果
type Stats struct {
	CurrentStreak    int
	CompletedDays    int
	ContributionData [][]int
}

func (c Calculator) Calculate(dates DateSet, today Date, year int) Stats {
	return Stats{
		CurrentStreak:    c.CurrentStreak(dates, today),
		CompletedDays:    len(dates),
		ContributionData: ContributionMatrix(dates, year),
	}
}

// CurrentStreak 从今天向前数连续有完成记录的天数。
// 今天还没有完成记录时从昨天开始数，不打断截至昨天的连续记录。
func (c Calculator) CurrentStreak(dates DateSet, today Date) int {
	check := today
	if !dates.Has(check) {
		check = today.AddDays(-1)
	}

	var floor Date
	capped := c.StreakLookbackDays > 0
	if capped {
		floor = today.AddDays(-c.StreakLookbackDays)
	}

	streak := 0
	for dates.Has(check) {
		streak++
		check = check.AddDays(-1)
		if capped && check.Before(floor) {
			break
		}
	}
	return streak
}

// ContributionMatrix 生成指定年份按周排列的贡献图。
// 第 0 周从 1 月 1 日当天或之前的周日开始，年外的格子为填充值。
func ContributionMatrix(dates DateSet, year int) [][]int {
	start := NewDate(year, 1, 1)
	end := NewDate(year, 12, 31)

	var weeks [][]int
	week := make([]int, 0, daysPerWeek)
	for i := 0; i < int(start.Weekday()); i++ {
		week = append(week, LevelPadding)
	}

	for d := start; !end.Before(d); d = d.AddDays(1) {
		level := LevelNone
		if dates.Has(d) {
			level = LevelActive
		}
		week = append(week, level)
		if len(week) == daysPerWeek {
			weeks = append(weeks, week)
			week = make([]int, 0, daysPerWeek)
		}
	}

	if len(week) > 0 {
		for len(week) < daysPerWeek {
			week = append(week, LevelPadding)
		}
		weeks = append(weeks, week)
	}
	return weeks
}

// LeadingPadding 指定年份第一周的填充格数量（周日为 0）
func LeadingPadding(year int) int {
	return int(NewDate(year, 1, 1).Weekday())
}
