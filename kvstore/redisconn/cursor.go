package redisconn

import (
	"fmt"
	"strconv"

	"github.com/c360/semlink/errors"
)

func parseCursor(cursor string) (uint64, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return 0, errors.WrapInvalid(fmt.Errorf("%w: cursor %q", errors.ErrInvalidData, cursor),
			"redisconn", "Scan", "parse cursor")
	}
	return n, nil
}

func formatCursor(cursor uint64) string {
	return strconv.FormatUint(cursor, 10)
}
