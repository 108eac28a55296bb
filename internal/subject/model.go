package subject

import (
	"regexp"
	"time"
)

var (
	timeRe  = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)
	colorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	emailRe = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)
)

var weekdays = map[string]bool{
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
	"Friday": true, "Saturday": true, "Sunday": true,
}

// Instructor is the optional instructor record on a subject.
type Instructor struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Slot is one recurring weekly meeting of a subject.
type Slot struct {
	Day       string `json:"day"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Room      string `json:"room,omitempty"`
}

// LectureBrief is the trimmed lecture projection attached to subject reads.
type LectureBrief struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Topic  string    `json:"topic,omitempty"`
	Date   time.Time `json:"date"`
	Status string    `json:"status"`
}

// Subject is a course a user tracks attendance for. The three trailing
// counters are a cache maintained by the statistics recompute, never written
// directly by subject mutations.
type Subject struct {
	ID                   string         `json:"id"`
	UserID               string         `json:"userId"`
	Name                 string         `json:"name"`
	Code                 string         `json:"code,omitempty"`
	Description          string         `json:"description,omitempty"`
	Instructor           *Instructor    `json:"instructor,omitempty"`
	Schedule             []Slot         `json:"schedule"`
	Semester             string         `json:"semester,omitempty"`
	Year                 int            `json:"year,omitempty"`
	Color                string         `json:"color"`
	IsActive             bool           `json:"isActive"`
	TotalLectures        int            `json:"totalLectures"`
	AttendedLectures     int            `json:"attendedLectures"`
	AttendancePercentage int            `json:"attendancePercentage"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
	RecentLectures       []LectureBrief `json:"recentLectures,omitempty"`
}

// MeetsGoal reports whether the cached percentage reaches the goal.
func (s *Subject) MeetsGoal(goal int) bool {
	return s.AttendancePercentage >= goal
}
