package object

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Identity represents a Git identity (author, committer or tagger) in its raw
// form. This matches Git's internal format: "name <email> timestamp timezone".
//
// The timestamp is the one embedded in the object, not the time the object
// was parsed. It must round-trip unchanged or the object would hash to a
// different id.
type Identity struct {
	Name      string
	Email     string
	Timestamp int64
	Timezone  string
}

// ParseIdentity parses a Git identity line of the form
// "name <email> timestamp timezone".
func ParseIdentity(identity string) (*Identity, error) {
	// Find the last occurrence of '>' which marks the end of the email.
	emailEnd := strings.LastIndex(identity, ">")
	if emailEnd == -1 {
		return nil, fmt.Errorf("invalid identity format: %s", identity)
	}

	emailStart := strings.LastIndex(identity[:emailEnd], "<")
	if emailStart == -1 {
		return nil, fmt.Errorf("invalid identity format: %s", identity)
	}

	name := strings.TrimSpace(identity[:emailStart])
	email := identity[emailStart+1 : emailEnd]

	timeStr := strings.TrimSpace(identity[emailEnd+1:])
	parts := strings.Split(timeStr, " ")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid time format: %s", timeStr)
	}

	timestamp, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}

	return &Identity{
		Name:      name,
		Email:     email,
		Timestamp: timestamp,
		Timezone:  parts[1],
	}, nil
}

// String formats the identity back into Git's wire form. It is the exact
// inverse of ParseIdentity.
func (i *Identity) String() string {
	return fmt.Sprintf("%s <%s> %d %s", i.Name, i.Email, i.Timestamp, i.Timezone)
}

// Time returns the time.Time representation of the identity's timestamp and
// timezone offset.
func (i *Identity) Time() (time.Time, error) {
	if len(i.Timezone) != 5 {
		return time.Time{}, fmt.Errorf("invalid timezone offset format: %s", i.Timezone)
	}

	sign := i.Timezone[0]
	if sign != '+' && sign != '-' {
		return time.Time{}, fmt.Errorf("invalid timezone sign: %c", sign)
	}

	hours, err := strconv.Atoi(i.Timezone[1:3])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hours: %w", err)
	}

	minutes, err := strconv.Atoi(i.Timezone[3:5])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid minutes: %w", err)
	}

	seconds := hours*3600 + minutes*60
	if sign == '-' {
		seconds = -seconds
	}

	loc := time.FixedZone("", seconds)
	return time.Unix(i.Timestamp, 0).In(loc), nil
}

// NewIdentity builds an Identity from a time.Time, preserving its zone offset.
func NewIdentity(name, email string, t time.Time) Identity {
	return Identity{
		Name:      name,
		Email:     email,
		Timestamp: t.Unix(),
		Timezone:  t.Format("-0700"),
	}
}
