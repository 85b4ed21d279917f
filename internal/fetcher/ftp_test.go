package fetcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFTPSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		addr    string
		remote  string
		wantErr bool
	}{
		{
			name:   "default port",
			in:     "ftp://seeds.example.com/drops/restaurants.csv",
			addr:   "seeds.example.com:21",
			remote: "/drops/restaurants.csv",
		},
		{
			name:   "explicit port",
			in:     "ftp://seeds.example.com:2121/episodes.xlsx",
			addr:   "seeds.example.com:2121",
			remote: "/episodes.xlsx",
		},
		{name: "wrong scheme", in: "https://example.com/seed.csv", wantErr: true},
		{name: "no file", in: "ftp://seeds.example.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			addr, remote, err := splitFTPSource(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, addr)
			assert.Equal(t, tt.remote, remote)
		})
	}
}

func TestNewFTPFetcherDefaultTimeout(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 30*time.Second, NewFTPFetcher(0).dialTimeout)
	assert.Equal(t, 5*time.Second, NewFTPFetcher(5*time.Second).dialTimeout)
}
