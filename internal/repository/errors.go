// Package repository defines the persistence adapters of the user service:
// the MySQL backed user directory and the Redis backed credential store.
// Sentinel errors declared here let the service layer tell an absent record
// apart from an infrastructure failure without knowing the backend.
package repository

import "errors"

// ErrNotFound is returned when a user row or a credential store key does
// not exist (or has expired).
var ErrNotFound = errors.New("not found")

// ErrUsernameExists is returned by UserRepo.Create when the unique index on
// sys_user.username rejects the insert.
var ErrUsernameExists = errors.New("username already exists")
