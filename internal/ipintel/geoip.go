package ipintel

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/solatis/tidegate/internal/types"
)

// GeoIPConfig names local MaxMind database files. Empty paths are skipped;
// the city (or country) database is required.
type GeoIPConfig struct {
	CityDBPath      string
	ASNDBPath       string
	AnonymousDBPath string
}

// GeoIPFetcher classifies IPs from local MaxMind databases. Offline
// alternative to ip-api; produces the same Record shape.
type GeoIPFetcher struct {
	cityDB      *geoip2.Reader
	asnDB       *geoip2.Reader
	anonymousDB *geoip2.Reader
}

// NewGeoIPFetcher opens the configured databases.
func NewGeoIPFetcher(cfg GeoIPConfig) (*GeoIPFetcher, error) {
	if cfg.CityDBPath == "" {
		return nil, fmt.Errorf("geoip city database path required")
	}

	f := &GeoIPFetcher{}
	var err error
	if f.cityDB, err = geoip2.Open(cfg.CityDBPath); err != nil {
		return nil, fmt.Errorf("failed to open city database: %w", err)
	}
	if cfg.ASNDBPath != "" {
		if f.asnDB, err = geoip2.Open(cfg.ASNDBPath); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open ASN database: %w", err)
		}
	}
	if cfg.AnonymousDBPath != "" {
		if f.anonymousDB, err = geoip2.Open(cfg.AnonymousDBPath); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open anonymous IP database: %w", err)
		}
	}
	return f, nil
}

// Close closes all open databases.
func (f *GeoIPFetcher) Close() error {
	var errs []error
	for _, db := range []*geoip2.Reader{f.cityDB, f.asnDB, f.anonymousDB} {
		if db != nil {
			if err := db.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Fetch looks ip up in the local databases. Addresses absent from the city
// database return ErrIPLookupFailed.
func (f *GeoIPFetcher) Fetch(ctx context.Context, ip string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Record{}, fmt.Errorf("%w: invalid ip %q", types.ErrIPLookupFailed, ip)
	}

	city, err := f.cityDB.City(parsed)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", types.ErrIPLookupFailed, err)
	}
	if city.Country.IsoCode == "" {
		return Record{}, fmt.Errorf("%w: %s not found", types.ErrIPLookupFailed, ip)
	}

	rec := Record{
		Query:       ip,
		Status:      StatusSuccess,
		Country:     city.Country.Names["en"],
		CountryCode: city.Country.IsoCode,
		City:        city.City.Names["en"],
		Timezone:    city.Location.TimeZone,
	}
	if len(city.Subdivisions) > 0 {
		rec.RegionName = city.Subdivisions[0].Names["en"]
	}

	if f.asnDB != nil {
		if asn, err := f.asnDB.ASN(parsed); err == nil && asn.AutonomousSystemNumber != 0 {
			rec.AS = fmt.Sprintf("AS%d %s", asn.AutonomousSystemNumber, asn.AutonomousSystemOrganization)
			rec.Org = asn.AutonomousSystemOrganization
			rec.ISP = asn.AutonomousSystemOrganization
		}
	}

	if f.anonymousDB != nil {
		if anon, err := f.anonymousDB.AnonymousIP(parsed); err == nil {
			rec.Proxy = anon.IsAnonymousVPN || anon.IsPublicProxy || anon.IsTorExitNode
			rec.Hosting = anon.IsHostingProvider
		}
	}

	return rec, nil
}
