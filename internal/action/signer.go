package action

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/solatis/tidegate/internal/types"
)

/*
 * Storage-account signed URLs (blob service SAS, version 2020-12-06+ layout).
 *
 * String-to-sign is 16 newline-joined fields:
 *   sp, st, se, canonicalizedResource, si, sip, spr, sv, sr,
 *   snapshotTime, encryptionScope, rscc, rscd, rsce, rscl, rsct
 * The last seven are always empty.
 *
 * The canonicalized resource is container scope (/blob/{account}/{container})
 * and sr is "c", while the URL path points at the entry blob. The token
 * therefore grants read on the whole container.
 */

// Signing defaults.
const (
	DefaultContainer  = "$web"
	DefaultEntryBlob  = "index.html"
	DefaultSASVersion = "2022-11-02"
	DefaultTTLSeconds = 15
	MaxTTLSeconds     = 7 * 24 * 60 * 60

	// startSkew backdates the start time to tolerate clock skew.
	startSkew = time.Minute

	sasTimeFormat   = "2006-01-02T15:04:05Z"
	sasPermission   = "r"
	sasProtocol     = "https"
	sasResourceType = "c"
	blobHostSuffix  = ".blob.core.windows.net"
)

// SignerConfig holds the azure block of a redirect action.
type SignerConfig struct {
	AccountName   string
	AccountKeyB64 string
	CustomDomain  string
	Container     string
	EntryBlob     string
	Version       string
	TTLSeconds    int
	LockByIP      bool
}

// ParseSignerConfig reads the operator-authored azure object, applying
// defaults for container, entry blob, version and TTL (clamped to
// [1s, MaxTTLSeconds]).
func ParseSignerConfig(data map[string]any) SignerConfig {
	cfg := SignerConfig{
		AccountName:   strings.TrimSpace(textField(data, "accountName")),
		AccountKeyB64: strings.TrimSpace(textField(data, "accountKeyB64")),
		CustomDomain:  strings.TrimSpace(textField(data, "customDomain")),
		Container:     strings.TrimSpace(textField(data, "container")),
		EntryBlob:     strings.TrimLeft(textField(data, "entryBlob"), "/"),
		Version:       strings.TrimSpace(textField(data, "sv")),
		TTLSeconds:    DefaultTTLSeconds,
		LockByIP:      truthyField(data, "lockByIP"),
	}
	if cfg.Container == "" {
		cfg.Container = DefaultContainer
	}
	if cfg.EntryBlob == "" {
		cfg.EntryBlob = DefaultEntryBlob
	}
	if cfg.Version == "" {
		cfg.Version = DefaultSASVersion
	}
	if ttl, ok := intField(data, "ttlSeconds"); ok {
		cfg.TTLSeconds = ttl
	}
	if cfg.TTLSeconds < 1 {
		cfg.TTLSeconds = 1
	}
	if cfg.TTLSeconds > MaxTTLSeconds {
		cfg.TTLSeconds = MaxTTLSeconds
	}
	return cfg
}

// Signer produces signed URLs against an injectable clock.
type Signer struct {
	now func() time.Time
}

// NewSigner creates a signer. A nil clock uses time.Now.
func NewSigner(now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{now: now}
}

// sasParams are the signed fields of one token.
type sasParams struct {
	Permission string
	Start      string
	Expiry     string
	Resource   string // canonicalized resource
	IP         string // "" unless locked
	Protocol   string
	Version    string
	Type       string
}

// stringToSign joins the signed fields in the order the service verifies.
func (p sasParams) stringToSign() string {
	return strings.Join([]string{
		p.Permission,
		p.Start,
		p.Expiry,
		p.Resource,
		"", // signedIdentifier
		p.IP,
		p.Protocol,
		p.Version,
		p.Type,
		"", // signedSnapshotTime
		"", // signedEncryptionScope
		"", // rscc
		"", // rscd
		"", // rsce
		"", // rscl
		"", // rsct
	}, "\n")
}

// SignedURL returns the signed entry-blob URL. clientIP is bound into the
// token when LockByIP is set and clientIP is non-empty. Returns "" with
// ErrMissingCredentials when the account or a decodable key is missing.
func (s *Signer) SignedURL(cfg SignerConfig, clientIP string) (string, error) {
	if cfg.AccountName == "" || cfg.AccountKeyB64 == "" {
		return "", types.ErrMissingCredentials
	}
	key, err := base64.StdEncoding.DecodeString(cfg.AccountKeyB64)
	if err != nil {
		return "", fmt.Errorf("%w: account key is not base64", types.ErrMissingCredentials)
	}

	p := s.params(cfg, clientIP)
	sig := sign(key, p.stringToSign())

	var q strings.Builder
	writeParam(&q, "sv", p.Version)
	writeParam(&q, "se", p.Expiry)
	writeParam(&q, "sr", p.Type)
	writeParam(&q, "sp", p.Permission)
	writeParam(&q, "spr", p.Protocol)
	writeParam(&q, "st", p.Start)
	writeParam(&q, "sig", sig)
	if p.IP != "" {
		writeParam(&q, "sip", p.IP)
	}

	host := cfg.CustomDomain
	if host == "" {
		host = cfg.AccountName + blobHostSuffix
	}

	segments := strings.Split(cfg.EntryBlob, "/")
	for i, seg := range segments {
		segments[i] = EscapeRFC3986(seg)
	}

	return "https://" + host + "/" + EscapeRFC3986(cfg.Container) + "/" + strings.Join(segments, "/") + "?" + q.String(), nil
}

func (s *Signer) params(cfg SignerConfig, clientIP string) sasParams {
	now := s.now().UTC()
	p := sasParams{
		Permission: sasPermission,
		Start:      now.Add(-startSkew).Format(sasTimeFormat),
		Expiry:     now.Add(time.Duration(cfg.TTLSeconds) * time.Second).Format(sasTimeFormat),
		Resource:   "/blob/" + cfg.AccountName + "/" + cfg.Container,
		Protocol:   sasProtocol,
		Version:    cfg.Version,
		Type:       sasResourceType,
	}
	if cfg.LockByIP {
		p.IP = strings.TrimSpace(clientIP)
	}
	return p
}

// sign returns base64(HMAC-SHA256(key, message)).
func sign(key []byte, message string) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func writeParam(b *strings.Builder, name, value string) {
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(EscapeRFC3986(value))
}

// EscapeRFC3986 percent-encodes everything except unreserved characters
// (A-Z a-z 0-9 - _ . ~).
func EscapeRFC3986(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
