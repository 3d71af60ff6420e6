package ipintel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/solatis/tidegate/internal/types"
)

// Defaults for the ip-api.com JSON endpoint.
const (
	DefaultIPAPIEndpoint = "http://ip-api.com/json/"
	// DefaultIPAPIFields requests every field including proxy, hosting and reverse.
	DefaultIPAPIFields = 66846719

	maxIPAPIResponse = 64 * 1024
)

// IPAPIFetcher queries an ip-api.com compatible endpoint.
type IPAPIFetcher struct {
	endpoint string
	fields   int
	client   *http.Client
}

// NewIPAPIFetcher creates a fetcher. A nil client uses a client with the
// resolver's bounded timeout as its only deadline.
func NewIPAPIFetcher(endpoint string, fields int, client *http.Client) *IPAPIFetcher {
	if endpoint == "" {
		endpoint = DefaultIPAPIEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	if fields <= 0 {
		fields = DefaultIPAPIFields
	}
	if client == nil {
		client = &http.Client{Timeout: MaxLookupTimeout}
	}
	return &IPAPIFetcher{endpoint: endpoint, fields: fields, client: client}
}

// Fetch performs GET {endpoint}{ip}?fields=N and decodes the record.
// A decoded non-success record is returned as-is without error.
func (f *IPAPIFetcher) Fetch(ctx context.Context, ip string) (Record, error) {
	u := f.endpoint + url.PathEscape(ip) + "?fields=" + strconv.Itoa(f.fields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", types.ErrIPLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", types.ErrIPLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Record{}, fmt.Errorf("%w: unexpected status %d", types.ErrIPLookupFailed, resp.StatusCode)
	}

	var rec Record
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIPAPIResponse)).Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("%w: decode: %v", types.ErrIPLookupFailed, err)
	}
	return rec, nil
}
