package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxContentBytes = 4096 // max stored payload size
	MaxContentChars = 2000 // max character count
)

// NormalizeContent trims surrounding whitespace and checks that the result
// meets content requirements. It returns the trimmed content.
func NormalizeContent(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("%w: message content is empty", ErrInvalidArgument)
	}
	if len(trimmed) > MaxContentBytes {
		return "", fmt.Errorf("%w: message exceeds %d byte limit", ErrInvalidArgument, MaxContentBytes)
	}
	if utf8.RuneCountInString(trimmed) > MaxContentChars {
		return "", fmt.Errorf("%w: message exceeds %d character limit", ErrInvalidArgument, MaxContentChars)
	}
	if !utf8.ValidString(trimmed) {
		return "", fmt.Errorf("%w: message contains invalid UTF-8", ErrInvalidArgument)
	}
	return trimmed, nil
}

// NormalizeKind validates a message kind, defaulting the empty string to
// KindText.
func NormalizeKind(kind string) (string, error) {
	switch kind {
	case "":
		return KindText, nil
	case KindText, KindImage, KindFile:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: unknown message kind %q", ErrInvalidArgument, kind)
	}
}
