package user

import (
	"regexp"
	"time"
)

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

var emailRe = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// Profile holds the optional profile fields.
type Profile struct {
	Avatar     string `json:"avatar,omitempty"`
	Bio        string `json:"bio,omitempty"`
	Phone      string `json:"phone,omitempty"`
	University string `json:"university,omitempty"`
	Department string `json:"department,omitempty"`
	Year       int    `json:"year,omitempty"`
}

// NotificationPrefs toggles the notification channels.
type NotificationPrefs struct {
	Email     bool `json:"email"`
	Push      bool `json:"push"`
	Reminders bool `json:"reminders"`
}

// Preferences holds per-user UI and notification settings.
type Preferences struct {
	Theme         string            `json:"theme"`
	Language      string            `json:"language"`
	Notifications NotificationPrefs `json:"notifications"`
}

// DefaultPreferences are applied at registration.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:    "system",
		Language: "en",
		Notifications: NotificationPrefs{
			Email:     true,
			Push:      true,
			Reminders: true,
		},
	}
}

// User is an account. PasswordHash never serializes.
type User struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	PasswordHash   string      `json:"-"`
	Role           string      `json:"role"`
	Profile        Profile     `json:"profile"`
	Preferences    Preferences `json:"preferences"`
	AttendanceGoal int         `json:"attendanceGoal"`
	IsActive       bool        `json:"isActive"`
	LastLogin      *time.Time  `json:"lastLogin,omitempty"`
	LoginCount     int         `json:"loginCount"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
	TotalSubjects  int         `json:"totalSubjects"`
	TotalLectures  int         `json:"totalLectures"`
}

func validTheme(theme string) bool {
	return theme == "light" || theme == "dark" || theme == "system"
}
