package cert

import (
	"io/fs"
	"strings"

	"github.com/pkg/errors"
)

// Store retrieves certificate records by name from a filesystem, one
// record per file. It is stateless; every lookup re-reads the backing
// file.
type Store struct {
	fsys fs.FS
}

// NewStore returns a Store reading records from the root of fsys.
func NewStore(fsys fs.FS) *Store {
	return &Store{fsys: fsys}
}

// Certificate reads and parses the record stored under name.
func (s *Store) Certificate(name string) (*Certificate, error) {
	if name == "" {
		return nil, errors.New("cert: empty certificate name")
	}
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return nil, errors.Wrapf(err, "read certificate %q", name)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse certificate %q", name)
	}
	return c, nil
}

// Chain is an ordered certificate chain, outermost authority first.
type Chain []*Certificate

// Raw returns the chain flattened to its raw concatenated form, the
// shape it is embedded in when exported.
func (c Chain) Raw() []byte {
	size := 0
	for _, cert := range c {
		size += len(cert.Raw)
	}
	out := make([]byte, 0, size)
	for _, cert := range c {
		out = append(out, cert.Raw...)
	}
	return out
}

// Chain resolves a certificate chain from a signature issuer string
// such as "Root-CA00000003-XS00000020": the "Root-" parent is skipped
// and every remaining dash-separated segment names one certificate in
// the store.
func (s *Store) Chain(issuer string) (Chain, error) {
	if !strings.HasPrefix(issuer, "Root-") {
		return nil, errors.Errorf("cert: invalid signature issuer %q", issuer)
	}
	names := strings.Split(strings.TrimPrefix(issuer, "Root-"), "-")
	if len(names) == 1 && names[0] == "" {
		return nil, errors.Errorf("cert: invalid signature issuer %q", issuer)
	}

	chain := make(Chain, 0, len(names))
	for _, name := range names {
		cert, err := s.Certificate(name)
		if err != nil {
			return nil, err
		}
		chain = append(chain, cert)
	}
	return chain, nil
}
