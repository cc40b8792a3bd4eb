package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestTaxonomySentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrNetwork, ErrRemoteRejected, ErrNotFound, ErrConfiguration}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				assert.True(t, Is(a, b))
				continue
			}
			assert.False(t, Is(a, b), "sentinel %v must not match %v", a, b)
		}
	}
}

func TestClassificationHelpers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		isNet   bool
		isRej   bool
		isNF    bool
		isCfg   bool
	}{
		{"network", Wrap(ErrNetwork, "dialing board service"), true, false, false, false},
		{"rejected", NewRemoteRejectedError("status %d", 403), false, true, false, false},
		{"not found", NewNotFoundError("items missing: %v", []string{"42"}), false, false, true, false},
		{"configuration", NewConfigurationError("missing %s", "api_token"), false, false, false, true},
		{"plain", New("unclassified"), false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isNet, IsNetwork(tt.err))
			assert.Equal(t, tt.isRej, IsRemoteRejected(tt.err))
			assert.Equal(t, tt.isNF, IsNotFound(tt.err))
			assert.Equal(t, tt.isCfg, IsConfiguration(tt.err))
		})
	}
}

func TestHelpersHandleNil(t *testing.T) {
	assert.False(t, IsNetwork(nil))
	assert.False(t, IsRemoteRejected(nil))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsConfiguration(nil))
}

func TestNewNetworkErrorPreservesCause(t *testing.T) {
	cause := New("connection reset by peer")
	err := NewNetworkError(cause, "fetching dependent items")

	require.True(t, IsNetwork(err))
	assert.Contains(t, err.Error(), "fetching dependent items")

	details := GetAllDetails(err)
	require.NotEmpty(t, details)
	assert.Contains(t, details[0], "connection reset by peer")
}

func TestWithSecondaryNilCause(t *testing.T) {
	err := WithSecondary(ErrNetwork, nil)
	assert.True(t, Is(err, ErrNetwork))
}

func TestClassificationSurvivesDeepWrapping(t *testing.T) {
	err := NewNotFoundError("item %s gone", "9001")
	err = Wrap(err, "dependency status fetch")
	err = WithHint(err, "the item may have been archived")
	err = Wrapf(err, "processing batch %s", "7001")

	assert.True(t, IsNotFound(err))
	assert.False(t, IsNetwork(err))
	assert.Contains(t, err.Error(), "9001")
	assert.Contains(t, err.Error(), "7001")

	hints := GetAllHints(err)
	assert.Contains(t, hints, "the item may have been archived")
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithStack(nil))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, WithDetail(nil, "detail"))
}

func ExampleNewNotFoundError() {
	err := NewNotFoundError("dependency items missing: %v", []string{"1", "2"})
	fmt.Println(IsNotFound(err))
	// Output: true
}
