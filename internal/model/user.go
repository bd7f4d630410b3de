package model

import "time"

// User status values stored in sys_user.status.
const (
	UserStatusDisabled = 0
	UserStatusActive   = 1
)

// User represents an application user record as stored in the
// `sys_user` table.  The session subsystem only reads ID, Username,
// PasswordHash and Status; the remaining fields are display data returned at
// login and by the current-user endpoints.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Username     – unique login name.
//	PasswordHash – bcrypt hashed password.
//	Nickname     – optional display name.
//	Phone        – optional mobile number.
//	Avatar       – optional avatar URL.
//	Status       – 1 when active, 0 when disabled.
//	CreatedAt    – timestamp of creation.
type User struct {
	ID           int64     // sys_user.id
	Username     string    // sys_user.username
	PasswordHash string    // sys_user.password
	Nickname     string    // sys_user.nickname
	Phone        string    // sys_user.phone
	Avatar       string    // sys_user.avatar
	Status       int       // sys_user.status
	CreatedAt    time.Time // sys_user.create_time
}

// Disabled reports whether the account has been switched off.
func (u User) Disabled() bool { return u.Status == UserStatusDisabled }
