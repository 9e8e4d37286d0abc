package system_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clearancewatch/internal/clock/system"
)

func TestNowIsUTC(t *testing.T) {
	t.Parallel()

	now := system.New().Now()
	require.Equal(t, time.UTC, now.Location())
	require.WithinDuration(t, time.Now().UTC(), now, time.Second)
}
