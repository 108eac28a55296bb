package lecture

import (
	"regexp"
	"time"
)

// Attendance statuses.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"
)

// ValidStatus reports whether s is one of the four attendance statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

var timeRe = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// ValidTime reports whether s is a 24-hour HH:MM string.
func ValidTime(s string) bool { return timeRe.MatchString(s) }

// Duration returns end minus start in minutes, floored at zero. Inputs must
// already be valid HH:MM strings.
func Duration(start, end string) int {
	s, err1 := time.Parse("15:04", start)
	e, err2 := time.Parse("15:04", end)
	if err1 != nil || err2 != nil {
		return 0
	}
	d := int(e.Sub(s).Minutes())
	if d < 0 {
		return 0
	}
	return d
}

// Material is a lecture resource attachment.
type Material struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Type string `json:"type,omitempty"`
}

// Marks holds obtained/total marks for an assignment.
type Marks struct {
	Obtained float64 `json:"obtained"`
	Total    float64 `json:"total"`
}

// Assignment is a piece of work attached to a lecture.
type Assignment struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Status      string     `json:"status,omitempty"`
	Marks       *Marks     `json:"marks,omitempty"`
}

// SubjectRef is the subject projection attached to lecture responses.
type SubjectRef struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Code                 string `json:"code,omitempty"`
	Color                string `json:"color,omitempty"`
	AttendancePercentage int    `json:"attendancePercentage,omitempty"`
}

// Lecture is one dated attendance event belonging to a subject.
type Lecture struct {
	ID          string       `json:"id"`
	SubjectID   string       `json:"subjectId"`
	UserID      string       `json:"userId"`
	Title       string       `json:"title"`
	Topic       string       `json:"topic"`
	Description string       `json:"description,omitempty"`
	Date        time.Time    `json:"date"`
	StartTime   string       `json:"startTime"`
	EndTime     string       `json:"endTime"`
	Duration    int          `json:"duration"`
	Room        string       `json:"room,omitempty"`
	Status      string       `json:"status"`
	Notes       string       `json:"notes,omitempty"`
	Materials   []Material   `json:"materials"`
	Assignments []Assignment `json:"assignments"`
	IsImportant bool         `json:"isImportant"`
	IsExam      bool         `json:"isExam"`
	ExamType    string       `json:"examType,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Subject     *SubjectRef  `json:"subject,omitempty"`
}
