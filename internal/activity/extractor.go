package activity

import (
	"time"

	"roadmap_analysis/internal/model"
)

// CompletionFact 一个最小工作单元（任务，或没有任务的旧条目）的完成情况
type CompletionFact struct {
	Completed   bool
	CompletedAt *Date
}

// Extraction 提取结果
type Extraction struct {
	Facts          []CompletionFact
	TotalItems     int // 叶子单元数量
	TotalDays      int // 路线图条目数量
	CompletedItems int
}

// CompletedDates returns the distinct completion dates, in first-seen order.
func (e Extraction) CompletedDates() []Date {
	seen := make(map[Date]struct{})
	var dates []Date
	for _, f := range e.Facts {
		if !f.Completed || f.CompletedAt == nil {
			continue
		}
		if _, ok := seen[*f.CompletedAt]; ok {
			continue
		}
		seen[*f.CompletedAt] = struct{}{}
		dates = append(dates, *f.CompletedAt)
	}
	return dates
}

// Extract 遍历路线图，将两种历史条目结构统一为完成事实。
// 条目带非空 tasks 时按任务展开，忽略条目自身的完成字段；否则条目本身算一个单元。
func Extract(roadmaps []model.RoadmapDocument, loc *time.Location) Extraction {
	var out Extraction
	for _, roadmap := range roadmaps {
		out.TotalDays += len(roadmap.Items)
		for _, item := range roadmap.Items {
			for _, fact := range leavesOf(item, loc) {
				out.TotalItems++
				if fact.Completed {
					out.CompletedItems++
				}
				out.Facts = append(out.Facts, fact)
			}
		}
	}
	return out
}

func leavesOf(item model.RoadmapItem, loc *time.Location) []CompletionFact {
	if !item.HasTasks() {
		return []CompletionFact{newFact(item.Done(), item.CompletedAt, loc)}
	}
	facts := make([]CompletionFact, 0, len(item.Tasks))
	for _, task := range item.Tasks {
		facts = append(facts, newFact(task.Done(), task.CompletedAt, loc))
	}
	return facts
}

// 未完成单元即使带有时间戳也不计入日期
func newFact(done bool, completedAt *time.Time, loc *time.Location) CompletionFact {
	fact := CompletionFact{Completed: done}
	if done && completedAt != nil {
		d := DateOf(*completedAt, loc)
		fact.CompletedAt = &d
	}
	return fact
}
