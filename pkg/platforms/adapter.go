package platforms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/atlasmedia/adboard-backend/pkg/enums"
	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
)

// Adapter is the shared surface of the three platform clients. Decrypted
// credentials live only inside the adapter instance.
type Adapter interface {
	Platform() enums.Platform
	TestConnection(ctx context.Context) error
	SummaryMetrics(ctx context.Context, rng DateRange) (Metrics, error)
	Campaigns(ctx context.Context, rng DateRange) ([]Campaign, error)
}

const responseBodyReadLimit int64 = 4096

// APIError wraps an upstream rejection, carrying the upstream status and an
// extract of the response body.
func APIError(platform enums.Platform, resp *http.Response) *pkgerrors.Error {
	body := ""
	if resp.Body != nil {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		body = strings.TrimSpace(string(raw))
	}
	return pkgerrors.New(pkgerrors.CodeAPI, fmt.Sprintf("%s request rejected", platform)).
		WithDetails(map[string]any{
			"platform": platform.String(),
			"status":   resp.StatusCode,
			"body":     body,
		})
}

// TransportError wraps a network-level failure reaching the platform.
func TransportError(platform enums.Platform, err error, op string) *pkgerrors.Error {
	return pkgerrors.Wrap(pkgerrors.CodeAPI, err, fmt.Sprintf("%s %s", platform, op))
}
