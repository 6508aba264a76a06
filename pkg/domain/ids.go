package domain

import (
	"encoding/base32"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Identifier prefixes. Legacy identifiers carry their own fixed formats.
const (
	projectPrefix     = "proj:"
	packagePrefix     = "pkg:"
	deliverablePrefix = "del:"
	documentPrefix    = "doc:"
	sessionPrefix     = "session:"
)

// Legacy numbering ranges, bounded by the fixed-width formats.
const (
	MaxLegacyPackageNumber     = 999
	MaxLegacyDeliverableNumber = 99
)

// ErrInvalidID marks an identifier that does not match its format.
var ErrInvalidID = errors.New("invalid identifier")

var (
	tokenPattern             = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)
	legacyPackagePattern     = regexp.MustCompile(`^PKG-([0-9]{3})$`)
	legacyDeliverablePattern = regexp.MustCompile(`^DEL-([0-9]{2})\.([0-9]{2})$`)
)

func invalidID(kind, s string) error {
	return fmt.Errorf("%w: %q is not a %s id", ErrInvalidID, s, kind)
}

// parseToken accepts prefix followed by a generated token.
func parseToken(kind, prefix, s string) error {
	token, ok := strings.CutPrefix(s, prefix)
	if !ok || !tokenPattern.MatchString(token) {
		return invalidID(kind, s)
	}
	return nil
}

// unmarshalID validates text with parse. Empty text decodes to the zero id.
func unmarshalID[T ~string](dst *T, text []byte, parse func(string) (T, error)) error {
	if len(text) == 0 {
		*dst = ""
		return nil
	}
	parsed, err := parse(string(text))
	if err != nil {
		return err
	}
	*dst = parsed
	return nil
}

// tokenEncoding renders the 16 bytes of a UUIDv7 as 26 Crockford base32 characters.
// UUIDv7 leads with a millisecond timestamp, so tokens sort by creation time.
var tokenEncoding = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// newToken returns a unique, time-sortable 26-character token.
func newToken() string {
	u, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source fails.
		u = uuid.New()
	}
	return tokenEncoding.EncodeToString(u[:])
}

// ProjectID identifies a Project.
type ProjectID string

// NewProjectID generates a unique project identifier.
func NewProjectID() ProjectID { return ProjectID(projectPrefix + newToken()) }

// ParseProjectID accepts proj:<token>.
func ParseProjectID(s string) (ProjectID, error) {
	if err := parseToken("project", projectPrefix, s); err != nil {
		return "", err
	}
	return ProjectID(s), nil
}

func (id ProjectID) String() string { return string(id) }

func (id *ProjectID) UnmarshalText(text []byte) error { return unmarshalID(id, text, ParseProjectID) }

// PackageID identifies a Package.
type PackageID string

// NewPackageID generates a unique package identifier.
func NewPackageID() PackageID { return PackageID(packagePrefix + newToken()) }

// LegacyPackageID builds the deterministic form, e.g. PKG-003, for num in 1..999.
func LegacyPackageID(num int) (PackageID, error) {
	if num < 1 || num > MaxLegacyPackageNumber {
		return "", fmt.Errorf("%w: package number %d is outside 1..%d", ErrInvalidID, num, MaxLegacyPackageNumber)
	}
	return PackageID(fmt.Sprintf("PKG-%03d", num)), nil
}

// ParsePackageID accepts pkg:<token> or the legacy PKG-### form.
func ParsePackageID(s string) (PackageID, error) {
	id := PackageID(s)
	if _, ok := id.LegacyNumber(); ok {
		return id, nil
	}
	if err := parseToken("package", packagePrefix, s); err != nil {
		return "", err
	}
	return id, nil
}

// LegacyNumber returns ### from a PKG-### id.
func (id PackageID) LegacyNumber() (int, bool) {
	m := legacyPackagePattern.FindStringSubmatch(string(id))
	if m == nil {
		return 0, false
	}
	n, _ := strconv.Atoi(m[1])
	return n, n >= 1
}

func (id PackageID) String() string { return string(id) }

func (id *PackageID) UnmarshalText(text []byte) error { return unmarshalID(id, text, ParsePackageID) }

// DeliverableID identifies a Deliverable.
type DeliverableID string

// NewDeliverableID generates a unique deliverable identifier.
func NewDeliverableID() DeliverableID { return DeliverableID(deliverablePrefix + newToken()) }

// LegacyDeliverableID builds the deterministic form, e.g. DEL-02.01. Both numbers
// must be in 1..99.
func LegacyDeliverableID(pkgNum, delNum int) (DeliverableID, error) {
	for _, n := range []int{pkgNum, delNum} {
		if n < 1 || n > MaxLegacyDeliverableNumber {
			return "", fmt.Errorf("%w: deliverable number %d is outside 1..%d", ErrInvalidID, n, MaxLegacyDeliverableNumber)
		}
	}
	return DeliverableID(fmt.Sprintf("DEL-%02d.%02d", pkgNum, delNum)), nil
}

// ParseDeliverableID accepts del:<token> or the legacy DEL-##.## form.
func ParseDeliverableID(s string) (DeliverableID, error) {
	if m := legacyDeliverablePattern.FindStringSubmatch(s); m != nil {
		pkgNum, _ := strconv.Atoi(m[1])
		delNum, _ := strconv.Atoi(m[2])
		if pkgNum < 1 || delNum < 1 {
			return "", invalidID("deliverable", s)
		}
		return DeliverableID(s), nil
	}
	if err := parseToken("deliverable", deliverablePrefix, s); err != nil {
		return "", err
	}
	return DeliverableID(s), nil
}

func (id DeliverableID) String() string { return string(id) }

func (id *DeliverableID) UnmarshalText(text []byte) error {
	return unmarshalID(id, text, ParseDeliverableID)
}

// DocumentID identifies a Document.
type DocumentID string

// NewDocumentID generates a unique document identifier.
func NewDocumentID() DocumentID { return DocumentID(documentPrefix + newToken()) }

// ParseDocumentID accepts doc:<token>.
func ParseDocumentID(s string) (DocumentID, error) {
	if err := parseToken("document", documentPrefix, s); err != nil {
		return "", err
	}
	return DocumentID(s), nil
}

func (id DocumentID) String() string { return string(id) }

func (id *DocumentID) UnmarshalText(text []byte) error { return unmarshalID(id, text, ParseDocumentID) }

// SessionID identifies an AgentSession.
type SessionID string

// NewSessionID generates a unique session identifier.
func NewSessionID() SessionID { return SessionID(sessionPrefix + newToken()) }

// ParseSessionID accepts session:<token>.
func ParseSessionID(s string) (SessionID, error) {
	if err := parseToken("session", sessionPrefix, s); err != nil {
		return "", err
	}
	return SessionID(s), nil
}

func (id SessionID) String() string { return string(id) }

func (id *SessionID) UnmarshalText(text []byte) error { return unmarshalID(id, text, ParseSessionID) }
