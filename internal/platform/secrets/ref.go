package secrets

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// Ref names one secret version: secret://name[?version=N&project=P]. The legacy sm:// scheme is
// accepted as an alias.
type Ref struct {
	Name    string
	Version string
	Project string
}

// ParseRef parses raw. Version defaults to "latest"; an empty project means the fetcher default.
func ParseRef(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, errors.New("secrets: empty reference")
	}
	if rest, ok := strings.CutPrefix(raw, "sm://"); ok {
		raw = "secret://" + rest
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Ref{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return Ref{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	ref := Ref{
		Name:    strings.Trim(u.Host+u.Path, "/"),
		Version: strings.TrimSpace(u.Query().Get("version")),
		Project: strings.TrimSpace(u.Query().Get("project")),
	}
	if ref.Name == "" {
		return Ref{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}
	if ref.Version == "" {
		ref.Version = "latest"
	}
	return ref, nil
}

func (r Ref) String() string {
	s := "secret://" + r.Name + "?version=" + r.Version
	if r.Project != "" {
		s += "&project=" + r.Project
	}
	return s
}

// resource is the Secret Manager version name under project.
func (r Ref) resource(project string) string {
	return "projects/" + project + "/secrets/" + r.Name + "/versions/" + r.Version
}

// EnvKey is the dotenv key a secret is stored under locally: upper case with every rune outside
// [A-Z0-9] replaced by "_", so vnpay-hash-secret becomes VNPAY_HASH_SECRET.
func (r Ref) EnvKey() string {
	return strings.Map(func(c rune) rune {
		c = unicode.ToUpper(c)
		if ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			return c
		}
		return '_'
	}, r.Name)
}
