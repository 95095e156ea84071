package store

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentrain/mergetrain/internal/app"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sessionNameRe enforces the session/workspace name format: 1-64 chars,
// beginning with a letter, and containing only letters, digits, dash, or
// underscore. This rules out path separators and ".." sequences by
// construction, so it also serves as the path-traversal check for any
// field that carries a session name.
var sessionNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// ValidateSessionName enforces the session-name format shared by session
// creation and queue submission.
func ValidateSessionName(name string) error {
	if !sessionNameRe.MatchString(name) {
		return &ValidationError{
			Field:  "name",
			Reason: "must be 1-64 characters, start with a letter, and contain only letters, digits, dash, or underscore",
		}
	}
	return nil
}

// ValidateHeadSHA enforces the minimum recognizable prefix length for a
// commit SHA.
func ValidateHeadSHA(sha string) error {
	if len(strings.TrimSpace(sha)) < 4 {
		return &ValidationError{Field: "head_sha", Reason: "must be at least 4 characters"}
	}
	return nil
}

// ValidatePriority enforces the configured priority range (default 0-1000,
// 0 highest).
func ValidatePriority(priority int) error {
	cfg := app.EffectiveConfig()
	if priority < cfg.QueuePriorityMin || priority > cfg.QueuePriorityMax {
		return &ValidationError{
			Field:  "priority",
			Reason: "must be between " + strconv.Itoa(cfg.QueuePriorityMin) + " and " + strconv.Itoa(cfg.QueuePriorityMax),
		}
	}
	return nil
}

// isUniqueConstraintError reports whether err is a SQLite UNIQUE constraint
// violation, typed-checked first and falling back to string matching for
// wrapped errors (mirrors isRetryableError's belt-and-suspenders approach).
func isUniqueConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xFF == sqlite3.SQLITE_CONSTRAINT {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}
