package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// RoomIDRegex validates room IDs, including the "a_b" form of direct calls
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_:.-]+$`)

	// IdentifierRegex validates user, session and connection IDs
	IdentifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

const maxIDLength = 128

// ValidateRoomID validates room ID
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room ID is required")
	}
	if len(roomID) > 2*maxIDLength+1 {
		return fmt.Errorf("room ID is too long (max %d characters)", 2*maxIDLength+1)
	}
	if !RoomIDRegex.MatchString(roomID) {
		return fmt.Errorf("invalid room ID format")
	}
	return nil
}

// ValidateSessionID validates scheduled session ID
func ValidateSessionID(sessionID string) error {
	return validateIdentifier(sessionID, "session ID")
}

// ValidateUserID validates user ID
func ValidateUserID(userID string) error {
	return validateIdentifier(userID, "user ID")
}

// ValidateConnectionID validates connection ID
func ValidateConnectionID(connectionID string) error {
	return validateIdentifier(connectionID, "connection ID")
}

func validateIdentifier(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, maxIDLength)
	}
	if !IdentifierRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format", fieldName)
	}
	return nil
}

// ValidateUserName validates display name
func ValidateUserName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("user name is required")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("user name contains invalid characters")
	}
	return ValidateStringLength(name, 1, 100, "user name")
}

// ValidatePassword validates a session password before hashing
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < 4 {
		return fmt.Errorf("password must be at least 4 characters")
	}
	// bcrypt ignores everything past 72 bytes
	if len(password) > 72 {
		return fmt.Errorf("password is too long (max 72 bytes)")
	}
	return nil
}

// ValidateMaxParticipants validates a room capacity; 0 means unlimited
func ValidateMaxParticipants(n int) error {
	if n < 0 {
		return fmt.Errorf("max participants must not be negative")
	}
	if n > 1000 {
		return fmt.Errorf("max participants is too high (max 1000)")
	}
	return nil
}

// ValidateICEURL validates a STUN/TURN server URL
func ValidateICEURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("ICE URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid ICE URL format: %w", err)
	}
	switch u.Scheme {
	case "stun", "stuns", "turn", "turns":
	default:
		return fmt.Errorf("invalid ICE URL scheme (must be stun, stuns, turn, or turns)")
	}
	if u.Opaque == "" {
		return fmt.Errorf("ICE URL must have a host")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
