package monitor_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"clearancewatch/internal/monitor"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	miss := &monitor.SelectorMissError{Category: "Tools", Selector: ".card"}
	transient := &monitor.TransientFetchError{URL: "https://example.com", Err: errors.New("reset")}

	require.True(t, monitor.IsSelectorMiss(miss))
	require.True(t, monitor.IsSelectorMiss(fmt.Errorf("page: %w", miss)))
	require.False(t, monitor.IsSelectorMiss(transient))

	require.True(t, monitor.IsTransient(transient))
	require.True(t, monitor.IsTransient(fmt.Errorf("attempt 2: %w", transient)))
	require.False(t, monitor.IsTransient(miss))
}

func TestStoreContextErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("no store badge")
	err := &monitor.StoreContextError{Zip: "30301", Err: cause}
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "30301")
}
