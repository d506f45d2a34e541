package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
	"github.com/atlasmedia/adboard-backend/pkg/platforms"
)

const dateLayout = "2006-01-02"

// defaultRangeDays is the reporting window used when the caller omits bounds.
const defaultRangeDays = 30

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseDateRange reads optional from/to query parameters (YYYY-MM-DD). A
// missing bound defaults to a trailing window ending today.
func ParseDateRange(r *http.Request, now time.Time) (platforms.DateRange, error) {
	to := now
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return platforms.DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "to must be YYYY-MM-DD").WithDetails(map[string]any{"field": "to"})
		}
		to = parsed
	}

	from := to.AddDate(0, 0, -defaultRangeDays+1)
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return platforms.DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "from must be YYYY-MM-DD").WithDetails(map[string]any{"field": "from"})
		}
		from = parsed
	}

	rng := platforms.NewDateRange(from, to)
	if rng.To.Before(rng.From) {
		return platforms.DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to")
	}
	return rng, nil
}
