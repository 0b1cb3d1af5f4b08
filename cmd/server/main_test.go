package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptfunc/promptfunc/internal/config"
)

func TestRunReturnsInitErrors(t *testing.T) {
	cases := map[string]struct {
		cfg  config.Config
		want string
	}{
		"storage": {
			cfg:  config.Config{StorageBackend: "azure", BlobMaxBytes: 1024},
			want: "storage backend init",
		},
		"queue": {
			cfg:  config.Config{StorageBackend: "memory", BlobMaxBytes: 1024, QueueBackend: "kafka", ResultsQueue: "r", QueueConnectAttempts: 3},
			want: "results queue init",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := run(&tc.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
