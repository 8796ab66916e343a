package casdoor

import (
	"testing"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/stretchr/testify/assert"

	"github.com/SAP-F-2025/grading-service/internal/models"
)

func TestToModel_Roles(t *testing.T) {
	tests := []struct {
		name  string
		user  *casdoorsdk.User
		wants models.UserRole
	}{
		{"no roles", &casdoorsdk.User{Id: "1"}, models.RoleStudent},
		{"instructor", &casdoorsdk.User{Id: "1", Roles: []*casdoorsdk.Role{{Name: "Instructor"}}}, models.RoleTeacher},
		{"teacher beats student", &casdoorsdk.User{Id: "1", Roles: []*casdoorsdk.Role{{Name: "student"}, {Name: "teacher"}}}, models.RoleTeacher},
		{"admin flag", &casdoorsdk.User{Id: "1", IsAdmin: true, Roles: []*casdoorsdk.Role{{Name: "student"}}}, models.RoleAdmin},
		{"admin role", &casdoorsdk.User{Id: "1", Roles: []*casdoorsdk.Role{{Name: "teacher"}, {Name: "administrator"}}}, models.RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wants, ToModel(tt.user).Role)
		})
	}
}

func TestToModel_Fields(t *testing.T) {
	user := ToModel(&casdoorsdk.User{Id: "abc", DisplayName: "Ada", Email: "ada@example.com"})
	assert.Equal(t, "abc", user.ID)
	assert.Equal(t, "Ada", user.FullName)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Nil(t, user.AvatarURL)

	assert.Nil(t, ToModel(nil))
}
