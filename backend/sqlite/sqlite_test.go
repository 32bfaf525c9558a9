package sqlite

import (
	"testing"

	"github.com/enactgo/enact/backend"
	"github.com/enactgo/enact/backend/test"
)

func Test_SqliteBackend(t *testing.T) {
	test.BackendTest(t, func(opts ...backend.BackendOption) backend.Backend {
		return NewInMemoryBackend(opts...)
	}, nil)
}
