// Package siwe parses Sign-In with Ethereum (EIP-4361) messages and checks
// their EIP-191 personal_sign signatures.
package siwe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/matenet/backend/internal/common"
)

const (
	preambleSuffix = " wants you to sign in with your Ethereum account:"

	fieldURI            = "URI"
	fieldVersion        = "Version"
	fieldChainID        = "Chain ID"
	fieldNonce          = "Nonce"
	fieldIssuedAt       = "Issued At"
	fieldExpirationTime = "Expiration Time"
	fieldNotBefore      = "Not Before"
	fieldRequestID      = "Request ID"
	fieldResources      = "Resources"
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	noncePattern   = regexp.MustCompile(`^[a-zA-Z0-9]{8,}$`)
)

// Message is a parsed EIP-4361 message.
type Message struct {
	Scheme         string
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	RequestID      string
	Resources      []string
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrInvalidSignature, fmt.Sprintf(format, args...))
}

// ParseMessage parses raw into a Message. Field order is not enforced;
// unknown fields are rejected.
func ParseMessage(raw string) (*Message, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return nil, invalid("message too short")
	}

	m := &Message{}

	header, ok := strings.CutSuffix(lines[0], preambleSuffix)
	if !ok || header == "" {
		return nil, invalid("missing preamble")
	}
	if scheme, domain, found := strings.Cut(header, "://"); found {
		m.Scheme, m.Domain = scheme, domain
	} else {
		m.Domain = header
	}

	m.Address = strings.TrimSpace(lines[1])
	if !addressPattern.MatchString(m.Address) {
		return nil, invalid("malformed address %q", m.Address)
	}

	i := skipBlank(lines, 2)
	if i < len(lines) && !strings.HasPrefix(lines[i], fieldURI+": ") {
		m.Statement = lines[i]
		i = skipBlank(lines, i+1)
	}

	seen := map[string]bool{}
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			continue
		}
		if line == fieldResources+":" {
			for i+1 < len(lines) && strings.HasPrefix(lines[i+1], "- ") {
				m.Resources = append(m.Resources, strings.TrimPrefix(lines[i+1], "- "))
				i++
			}
			continue
		}

		key, value, found := strings.Cut(line, ": ")
		if !found {
			return nil, invalid("malformed line %q", line)
		}
		if seen[key] {
			return nil, invalid("duplicate field %q", key)
		}
		seen[key] = true

		if err := m.setField(key, value); err != nil {
			return nil, err
		}
	}

	for _, required := range []string{fieldURI, fieldVersion, fieldChainID, fieldNonce, fieldIssuedAt} {
		if !seen[required] {
			return nil, invalid("missing field %q", required)
		}
	}

	return m, nil
}

func skipBlank(lines []string, i int) int {
	for i < len(lines) && lines[i] == "" {
		i++
	}
	return i
}

func (m *Message) setField(key, value string) error {
	switch key {
	case fieldURI:
		m.URI = value
	case fieldVersion:
		if value != "1" {
			return invalid("unsupported version %q", value)
		}
		m.Version = value
	case fieldChainID:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return invalid("bad chain id %q", value)
		}
		m.ChainID = id
	case fieldNonce:
		if !noncePattern.MatchString(value) {
			return invalid("nonce must be at least 8 alphanumeric characters")
		}
		m.Nonce = value
	case fieldIssuedAt:
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return invalid("bad issued at %q", value)
		}
		m.IssuedAt = t
	case fieldExpirationTime:
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return invalid("bad expiration time %q", value)
		}
		m.ExpirationTime = &t
	case fieldNotBefore:
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return invalid("bad not before %q", value)
		}
		m.NotBefore = &t
	case fieldRequestID:
		m.RequestID = value
	default:
		return invalid("unknown field %q", key)
	}
	return nil
}

// String renders m in EIP-4361 form. ParseMessage(m.String()) round-trips.
func (m *Message) String() string {
	var b strings.Builder

	if m.Scheme != "" {
		b.WriteString(m.Scheme + "://")
	}
	b.WriteString(m.Domain + preambleSuffix + "\n")
	b.WriteString(m.Address + "\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n\n")
	}

	fmt.Fprintf(&b, "%s: %s\n", fieldURI, m.URI)
	fmt.Fprintf(&b, "%s: %s\n", fieldVersion, m.Version)
	fmt.Fprintf(&b, "%s: %d\n", fieldChainID, m.ChainID)
	fmt.Fprintf(&b, "%s: %s\n", fieldNonce, m.Nonce)
	fmt.Fprintf(&b, "%s: %s", fieldIssuedAt, m.IssuedAt.UTC().Format(time.RFC3339))
	if m.ExpirationTime != nil {
		fmt.Fprintf(&b, "\n%s: %s", fieldExpirationTime, m.ExpirationTime.UTC().Format(time.RFC3339))
	}
	if m.NotBefore != nil {
		fmt.Fprintf(&b, "\n%s: %s", fieldNotBefore, m.NotBefore.UTC().Format(time.RFC3339))
	}
	if m.RequestID != "" {
		fmt.Fprintf(&b, "\n%s: %s", fieldRequestID, m.RequestID)
	}
	if len(m.Resources) > 0 {
		b.WriteString("\n" + fieldResources + ":")
		for _, r := range m.Resources {
			b.WriteString("\n- " + r)
		}
	}

	return b.String()
}

// ValidAt checks the message time bounds against now.
func (m *Message) ValidAt(now time.Time) error {
	if m.ExpirationTime != nil && !now.Before(*m.ExpirationTime) {
		return invalid("message expired at %s", m.ExpirationTime.Format(time.RFC3339))
	}
	if m.NotBefore != nil && now.Before(*m.NotBefore) {
		return invalid("message not valid before %s", m.NotBefore.Format(time.RFC3339))
	}
	return nil
}
