package util

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID returns "<prefix>-<suffix>" where the suffix combines the
// current time in milliseconds with a random component.
func GenerateID(prefix string) string {
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 36)

	var random string
	if u, err := uuid.NewRandom(); err == nil {
		random = strings.ReplaceAll(u.String(), "-", "")[:10]
	} else {
		random = strconv.FormatInt(time.Now().UnixNano()%(1<<40), 36)
	}

	return prefix + "-" + strings.ToUpper(stamp+random)
}
