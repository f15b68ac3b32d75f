package docs

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// NewID returns a 26-char ULID. Sortable by creation time, safe for
// filenames and primary keys.
func NewID() (string, error) {
	id, err := ulid.New(ulid.Now(), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
