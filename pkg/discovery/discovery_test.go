package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	s := New(zap.NewNop(), "gardener", 8080)

	assert.Equal(t, "gardener", s.instance)
	assert.Equal(t, 8080, s.port)
	assert.Nil(t, s.server)
}

func TestShutdown_BeforeRegister(t *testing.T) {
	s := New(zap.NewNop(), "gardener", 8080)

	// Must not panic when nothing was registered
	s.Shutdown()
	s.Shutdown()
}

func TestListenPort(t *testing.T) {
	tests := []struct {
		addr string
		want int
	}{
		{addr: ":8080", want: 8080},
		{addr: "0.0.0.0:80", want: 80},
		{addr: "localhost:9000", want: 9000},
		{addr: "[::]:8080", want: 8080},
		{addr: ":0", want: 0},
		{addr: ":65536", want: 0},
		{addr: "8080", want: 0},
		{addr: "", want: 0},
		{addr: ":notaport", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, ListenPort(tt.addr))
		})
	}
}
