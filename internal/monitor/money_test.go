package monitor_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"clearancewatch/internal/monitor"
)

func TestParseCents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want monitor.Cents
	}{
		{"plain", "5.98", 598},
		{"dollar sign", "$5.98", 598},
		{"thousands", "$1,299.00", 129900},
		{"no fraction", "$45", 4500},
		{"single fraction digit", "$4.5", 450},
		{"surrounding text", "Now $12.97 was $19.97", 1297},
		{"zero fraction", "100.00", 10000},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := monitor.ParseCents(tc.text)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseCentsRejectsNonNumeric(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "N/A", "See price in cart", "$"} {
		_, err := monitor.ParseCents(text)
		require.Error(t, err, "text %q", text)
	}
}

func TestCentsString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "$0.00", monitor.Cents(0).String())
	require.Equal(t, "$5.98", monitor.Cents(598).String())
	require.Equal(t, "$1,299.00", monitor.Cents(129900).String())
	require.Equal(t, "$1,234,567.89", monitor.Cents(123456789).String())
	require.Equal(t, "-$12.50", monitor.Cents(-1250).String())
}

func TestCentsFloat64(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 12.97, monitor.Cents(1297).Float64(), 1e-9)
}

func TestPctOff(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 0.25, monitor.PctOff(7500, 10000), 1e-9)
	require.InDelta(t, 0, monitor.PctOff(7500, 0), 1e-9)
	// price above was clamps to zero, never negative
	require.InDelta(t, 0, monitor.PctOff(12000, 10000), 1e-9)
	require.InDelta(t, 1, monitor.PctOff(0, 10000), 1e-9)
}
