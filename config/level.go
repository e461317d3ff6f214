package config

import (
	"fmt"
	"strings"
)

// Level is how much diagnostic output a run prints.
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
	LevelDebug
)

var levelNames = [...]string{
	LevelError:   "error",
	LevelWarning: "warning",
	LevelInfo:    "info",
	LevelDebug:   "debug",
}

// ParseLevel converts a level name, case-insensitively, to a Level.
func ParseLevel(name string) (Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for level, levelName := range levelNames {
		if normalized == levelName {
			return Level(level), nil
		}
	}
	return LevelError, fmt.Errorf(
		"invalid verbosity %q, expected one of: %s",
		name,
		strings.Join(levelNames[:], ", "))
}

func (level Level) String() string {
	if level < LevelError || level > LevelDebug {
		return fmt.Sprintf("Level(%d)", int(level))
	}
	return levelNames[level]
}

// GlogVerbosity returns the value of glog's -v flag for the level. glog always
// prints errors and warnings to stderr, so LevelError can't hide warnings and
// behaves exactly like LevelWarning.
func (level Level) GlogVerbosity() int {
	switch {
	case level >= LevelDebug:
		return 2
	case level == LevelInfo:
		return 1
	default:
		return 0
	}
}

// Decode implements envconfig.Decoder.
func (level *Level) Decode(value string) error {
	parsed, err := ParseLevel(value)
	if err != nil {
		return err
	}
	*level = parsed
	return nil
}

func (level *Level) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("yaml-unmarshaling *Level: %w", err)
	}
	return level.Decode(s)
}
