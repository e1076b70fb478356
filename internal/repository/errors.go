// Package repository is the credential store: hand-written SQL over
// database/sql that runs unchanged on MySQL and SQLite.  Sentinel errors let
// the service layer distinguish failure scenarios without inspecting driver
// errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists and ErrUsernameExists signal a unique-key violation on
// users.email / users.username.
var (
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")
)

// ErrConflict is returned when a compare-and-set update found the row in a
// different state than expected: a single-use token already consumed, a
// refresh token already rotated, backup codes changed concurrently.
var ErrConflict = errors.New("conflict")

// isUniqueViolation reports whether err is a duplicate-key error from either
// driver.  MySQL reports 1062; SQLite reports "UNIQUE constraint failed".
func isUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// violatesUsernameKey reports whether a unique violation hit the username
// key rather than the email key.  MySQL names the key (uq_users_username);
// SQLite names the column (users.username).
func violatesUsernameKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return strings.Contains(me.Message, "'uq_users_username'") ||
			strings.Contains(me.Message, ".uq_users_username'")
	}
	return strings.Contains(err.Error(), "users.username")
}
