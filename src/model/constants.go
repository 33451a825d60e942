package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Task priority level. A higher value is more urgent.
type Priority int

const (
	TPL_APPLICATION Priority = 4
	TPL_CALLBACK    Priority = 8
	TPL_NOTIFY      Priority = 16
	TPL_HIGH_LEVEL  Priority = 31
)

func (p Priority) String() string {
	switch p {
	case TPL_APPLICATION:
		return "TPL_APPLICATION"
	case TPL_CALLBACK:
		return "TPL_CALLBACK"
	case TPL_NOTIFY:
		return "TPL_NOTIFY"
	case TPL_HIGH_LEVEL:
		return "TPL_HIGH_LEVEL"
	default:
		return fmt.Sprintf("TPL(%d)", int(p))
	}
}

// Parses a level name ("TPL_NOTIFY", "notify") or a number.
func ParsePriority(value string) (Priority, error) {
	name := strings.ToUpper(strings.TrimSpace(value))
	name = strings.TrimPrefix(name, "TPL_")
	switch name {
	case "APPLICATION":
		return TPL_APPLICATION, nil
	case "CALLBACK":
		return TPL_CALLBACK, nil
	case "NOTIFY":
		return TPL_NOTIFY, nil
	case "HIGH_LEVEL", "HIGH":
		return TPL_HIGH_LEVEL, nil
	}

	n, err := strconv.Atoi(name)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid priority %q", value)
	}
	return Priority(n), nil
}

// Status reported to remote callers for a deferred procedure request.
type Status string

const (
	SUCCESS           Status = "SUCCESS"
	INVALID_PARAMETER Status = "INVALID_PARAMETER"
	OUT_OF_RESOURCES  Status = "OUT_OF_RESOURCES"
	NOT_FOUND         Status = "NOT_FOUND"
)
