package authority

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	// DefaultUpstream is the recursive resolver used for validator lookups.
	DefaultUpstream = "8.8.8.8:53"

	// ValidatorRecordPrefix is prepended to the trust domain to form the TXT name.
	ValidatorRecordPrefix = "_custody-validator"

	// recordVersion tags a validator TXT record.
	recordVersion = "custody1"

	dnsTimeout   = 10 * time.Second
	edns0BufSize = 4096
)

// TXTResolver looks up TXT records.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DNSSECResolver resolves TXT records through an upstream recursive resolver
// and requires the AD (Authenticated Data) flag on every answer.
type DNSSECResolver struct {
	// Upstream is the recursive resolver address (e.g., "8.8.8.8:53").
	Upstream string

	// RequireAD rejects answers the upstream did not DNSSEC-validate.
	RequireAD bool
}

// NewDNSSECResolver creates a DNSSECResolver that requires validated answers.
// If upstream is empty, it defaults to DefaultUpstream.
func NewDNSSECResolver(upstream string) *DNSSECResolver {
	if upstream == "" {
		upstream = DefaultUpstream
	}
	return &DNSSECResolver{Upstream: upstream, RequireAD: true}
}

// LookupTXT queries name for TXT records with the DO flag set.
func (r *DNSSECResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true
	msg.SetEdns0(edns0BufSize, true)

	client := &dns.Client{Timeout: dnsTimeout}
	resp, _, err := client.ExchangeContext(ctx, msg, r.Upstream)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s TXT: %w", ErrDNSLookupFailed, name, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%w: query %s TXT: rcode %s",
			ErrDNSLookupFailed, name, dns.RcodeToString[resp.Rcode])
	}
	if r.RequireAD && !resp.AuthenticatedData {
		return nil, fmt.Errorf("%w: AD flag not set for %s TXT", ErrDNSSECValidationFailed, name)
	}

	var txts []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			// Long records arrive split into 255-byte strings.
			txts = append(txts, strings.Join(txt.Txt, ""))
		}
	}
	if len(txts) == 0 {
		return nil, fmt.Errorf("%w: no TXT records for %s", ErrDNSLookupFailed, name)
	}
	return txts, nil
}

// DNSTrustStore publishes the validator key in DNS, DKIM style:
//
//	_custody-validator.example.com. TXT "v=custody1; k=rsa; p=<base64 PKIX DER>"
type DNSTrustStore struct {
	Domain   string
	Resolver TXTResolver
}

// Compile-time interface check.
var _ TrustStore = (*DNSTrustStore)(nil)

// NewDNSTrustStore creates a DNSTrustStore for domain. A nil resolver uses
// NewDNSSECResolver("").
func NewDNSTrustStore(domain string, resolver TXTResolver) *DNSTrustStore {
	if resolver == nil {
		resolver = NewDNSSECResolver("")
	}
	return &DNSTrustStore{Domain: domain, Resolver: resolver}
}

// RecordName returns the TXT owner name for domain.
func RecordName(domain string) string {
	return ValidatorRecordPrefix + "." + strings.TrimSuffix(domain, ".")
}

// TrustedValidatorPublicKey returns the key from the first well-formed
// validator record.
func (s *DNSTrustStore) TrustedValidatorPublicKey(ctx context.Context) (string, error) {
	if s.Domain == "" {
		return "", fmt.Errorf("%w: no trust domain configured", ErrTrustStoreUnavailable)
	}
	name := RecordName(s.Domain)
	txts, err := s.Resolver.LookupTXT(ctx, name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTrustStoreUnavailable, err)
	}
	for _, txt := range txts {
		key, err := ParseValidatorRecord(txt)
		if err == nil {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: no valid validator record at %s", ErrTrustStoreUnavailable, name)
}

// ParseValidatorRecord parses a "v=custody1; k=rsa; p=..." TXT value and
// returns the key as PKIX PEM.
func ParseValidatorRecord(txt string) (string, error) {
	tags := make(map[string]string)
	for _, part := range strings.Split(txt, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		tags[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if tags["v"] != recordVersion {
		return "", fmt.Errorf("%w: record version %q", ErrKeyFormat, tags["v"])
	}
	if kt, ok := tags["k"]; ok && kt != "rsa" {
		return "", fmt.Errorf("%w: key type %q", ErrKeyFormat, kt)
	}
	der, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(tags["p"], " ", ""))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrKeyFormat, err)
	}
	pub, err := parsePublicDER(pemTypePublicKey, der)
	if err != nil {
		return "", err
	}
	return EncodePublicKey(pub)
}

// FormatValidatorRecord renders the TXT value that publishes publicKeyPEM.
func FormatValidatorRecord(publicKeyPEM string) (string, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", err
	}
	pkix, err := EncodePublicKey(pub)
	if err != nil {
		return "", err
	}
	block := pemBlock(pkix)
	return fmt.Sprintf("v=%s; k=rsa; p=%s", recordVersion, base64.StdEncoding.EncodeToString(block)), nil
}
