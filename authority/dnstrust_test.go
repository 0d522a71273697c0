package authority

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	txts []string
	err  error
	name string
}

func (f *fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	f.name = name
	return f.txts, f.err
}

func TestValidatorRecord_RoundTrip(t *testing.T) {
	key, _ := testKeys(t)
	pkix, err := EncodePublicKey(&key.PublicKey)
	require.NoError(t, err)

	record, err := FormatValidatorRecord(pkix)
	require.NoError(t, err)
	assert.Contains(t, record, "v=custody1; k=rsa; p=")

	got, err := ParseValidatorRecord(record)
	require.NoError(t, err)
	assert.Equal(t, pkix, got)
}

func TestParseValidatorRecord_Rejects(t *testing.T) {
	for _, txt := range []string{
		"v=spf1 -all",
		"v=custody1; k=ed25519; p=AAAA",
		"v=custody1; k=rsa; p=!!!",
		"v=custody1; k=rsa; p=AAAA",
	} {
		_, err := ParseValidatorRecord(txt)
		assert.ErrorIs(t, err, ErrKeyFormat, txt)
	}
}

func TestDNSTrustStore_FakeResolver(t *testing.T) {
	key, _ := testKeys(t)
	pkix, err := EncodePublicKey(&key.PublicKey)
	require.NoError(t, err)
	record, err := FormatValidatorRecord(pkix)
	require.NoError(t, err)

	res := &fakeResolver{txts: []string{"v=spf1 -all", record}}
	got, err := NewDNSTrustStore("example.com.", res).TrustedValidatorPublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pkix, got)
	assert.Equal(t, "_custody-validator.example.com", res.name)

	res = &fakeResolver{err: errors.New("timeout")}
	_, err = NewDNSTrustStore("example.com", res).TrustedValidatorPublicKey(context.Background())
	assert.ErrorIs(t, err, ErrTrustStoreUnavailable)

	res = &fakeResolver{txts: []string{"v=spf1 -all"}}
	_, err = NewDNSTrustStore("example.com", res).TrustedValidatorPublicKey(context.Background())
	assert.ErrorIs(t, err, ErrTrustStoreUnavailable)

	_, err = NewDNSTrustStore("", res).TrustedValidatorPublicKey(context.Background())
	assert.ErrorIs(t, err, ErrTrustStoreUnavailable)
}

// startTXTServer runs a local DNS server answering every TXT query with
// txt, split into 255-byte strings.
func startTXTServer(t *testing.T, txt string, authenticated bool) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	var parts []string
	for len(txt) > 255 {
		parts = append(parts, txt[:255])
		txt = txt[255:]
	}
	parts = append(parts, txt)

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			m.AuthenticatedData = authenticated
			m.Answer = append(m.Answer, &dns.TXT{
				Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60},
				Txt: parts,
			})
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNSSECResolver_LocalServer(t *testing.T) {
	key, _ := testKeys(t)
	pkix, err := EncodePublicKey(&key.PublicKey)
	require.NoError(t, err)
	record, err := FormatValidatorRecord(pkix)
	require.NoError(t, err)

	addr := startTXTServer(t, record, true)
	store := NewDNSTrustStore("example.com", NewDNSSECResolver(addr))
	got, err := store.TrustedValidatorPublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pkix, got)
}

func TestDNSSECResolver_RequiresAD(t *testing.T) {
	addr := startTXTServer(t, "v=custody1", false)
	_, err := NewDNSSECResolver(addr).LookupTXT(context.Background(), "example.com")
	assert.ErrorIs(t, err, ErrDNSSECValidationFailed)

	lax := &DNSSECResolver{Upstream: addr}
	txts, err := lax.LookupTXT(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"v=custody1"}, txts)
}

func TestNewDNSSECResolver_Defaults(t *testing.T) {
	assert.Equal(t, DefaultUpstream, NewDNSSECResolver("").Upstream)
	assert.Equal(t, "1.1.1.1:53", NewDNSSECResolver("1.1.1.1:53").Upstream)
}
