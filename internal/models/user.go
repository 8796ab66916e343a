package models

import (
	"time"
)

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// User is resolved from the identity provider; it is not stored locally.
type User struct {
	ID       string   `json:"id"`
	FullName string   `json:"full_name"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`

	AvatarURL *string `json:"avatar_url"`
}

// Enrollment links a user to a course as a student or as an owner.
type Enrollment struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CourseID  uint      `json:"course_id" gorm:"not null;uniqueIndex:idx_enrollment_course_user"`
	UserID    string    `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_enrollment_course_user"`
	IsOwner   bool      `json:"is_owner" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}
