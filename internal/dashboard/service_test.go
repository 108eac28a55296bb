package dashboard

import (
	"strings"
	"testing"

	"markit/internal/stats"
)

func TestGenerateInsightsMeetingGoal(t *testing.T) {
	summary := stats.SubjectSummary{TotalSubjects: 3, TotalLectures: 30, TotalAttended: 25}
	overall := stats.RangeStats{Present: 25, Total: 30, AttendanceRate: 83}

	insights := generateInsights(summary, overall, 75)
	if len(insights) < 2 {
		t.Fatalf("insights = %v, want at least goal + tracking entries", insights)
	}
	if insights[0].Type != "positive" || !strings.Contains(insights[0].Message, "75%") {
		t.Errorf("first insight = %+v, want positive goal message", insights[0])
	}
	if insights[1].Type != "info" || !strings.Contains(insights[1].Message, "3 subjects") {
		t.Errorf("second insight = %+v, want tracking info", insights[1])
	}
}

func TestGenerateInsightsBelowGoal(t *testing.T) {
	overall := stats.RangeStats{Present: 12, Total: 20, AttendanceRate: 60}

	insights := generateInsights(stats.SubjectSummary{}, overall, 75)
	if len(insights) == 0 || insights[0].Type != "warning" {
		t.Fatalf("insights = %v, want leading warning", insights)
	}
	if !strings.Contains(insights[0].Message, "15%") {
		t.Errorf("warning message = %q, want 15%% deficit", insights[0].Message)
	}
}

func TestGenerateInsightsExcellentRecord(t *testing.T) {
	overall := stats.RangeStats{Present: 19, Total: 20, AttendanceRate: 95}

	insights := generateInsights(stats.SubjectSummary{}, overall, 75)
	last := insights[len(insights)-1]
	if last.Icon != "star" {
		t.Errorf("last insight = %+v, want star for >90%% present", last)
	}
}

func TestLowAttendanceFilterAndOrder(t *testing.T) {
	breakdown := []stats.SubjectBreakdown{
		{SubjectName: "Math", Percentage: 90},
		{SubjectName: "CS", Percentage: 60},
		{SubjectName: "Physics", Percentage: 40},
		{SubjectName: "Chemistry", Percentage: 70},
		{SubjectName: "Biology", Percentage: 50},
	}

	low := lowAttendance(breakdown, 75, 3)
	if len(low) != 3 {
		t.Fatalf("len = %d, want 3", len(low))
	}
	want := []string{"Physics", "Biology", "CS"}
	for i, name := range want {
		if low[i].SubjectName != name {
			t.Errorf("low[%d] = %q, want %q", i, low[i].SubjectName, name)
		}
	}
}

func TestLowAttendanceEmptyWhenAllMeetGoal(t *testing.T) {
	breakdown := []stats.SubjectBreakdown{
		{SubjectName: "Math", Percentage: 80},
	}
	low := lowAttendance(breakdown, 75, 3)
	if len(low) != 0 {
		t.Errorf("low = %v, want empty", low)
	}
}

func TestGenerateSuggestions(t *testing.T) {
	low := []stats.SubjectBreakdown{
		{SubjectName: "Physics", Percentage: 40},
		{SubjectName: "CS", Percentage: 60},
	}
	suggestions := generateSuggestions(low, 5)
	if len(suggestions) != 2 {
		t.Fatalf("suggestions = %v, want two", suggestions)
	}
	if !strings.Contains(suggestions[0].Message, "Physics, CS") {
		t.Errorf("first suggestion = %+v", suggestions[0])
	}
	if suggestions[1].Action != "set_reminders" || !strings.Contains(suggestions[1].Message, "5 lectures") {
		t.Errorf("second suggestion = %+v", suggestions[1])
	}
}

func TestGenerateSuggestionsQuietWeek(t *testing.T) {
	suggestions := generateSuggestions(nil, 2)
	if len(suggestions) != 0 {
		t.Errorf("suggestions = %v, want none", suggestions)
	}
}
