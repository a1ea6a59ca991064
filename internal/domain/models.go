package domain

import (
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Kind selects how a target is probed.
type Kind int

const (
	KindUnknown Kind = iota
	KindHTTP
	KindICMP
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "HTTP"
	case KindICMP:
		return "ICMP"
	default:
		return "UNKNOWN"
	}
}

// ParseKind accepts "HTTP" or "ICMP" in any case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HTTP":
		return KindHTTP, nil
	case "ICMP":
		return KindICMP, nil
	}
	return KindUnknown, fmt.Errorf("unknown monitor type %q", s)
}

// Target is one monitored endpoint. It is built once at load time and
// never mutated afterwards.
type Target struct {
	ID            string            `json:"id"`
	Kind          Kind              `json:"kind"`
	Address       string            `json:"address"`
	PushURL       string            `json:"push_url"`
	Headers       map[string]string `json:"headers,omitempty"`
	SkipTLSVerify bool              `json:"skip_tls_verify,omitempty"`
}

// Validate checks the address against the target kind and requires an
// absolute http(s) push destination.
func (t Target) Validate() error {
	addrRules := []validation.Rule{validation.Required}
	switch t.Kind {
	case KindHTTP:
		addrRules = append(addrRules, validation.By(httpURL))
	case KindICMP:
		addrRules = append(addrRules, is.Host)
	}
	return validation.ValidateStruct(&t,
		validation.Field(&t.Kind,
			validation.Required.Error("must be HTTP or ICMP"),
			validation.In(KindHTTP, KindICMP).Error("must be HTTP or ICMP"),
		),
		validation.Field(&t.Address, addrRules...),
		validation.Field(&t.PushURL, validation.Required, validation.By(httpURL)),
		validation.Field(&t.Headers, validation.When(t.Kind != KindHTTP, validation.Empty.Error("only allowed for HTTP targets"))),
	)
}

// Name is the label used in logs: the id when present, else the address.
func (t Target) Name() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Address
}

func httpURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
