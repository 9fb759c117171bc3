package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCategorySet(t *testing.T) {
	tests := []struct {
		name        string
		input       []string
		want        []string
		wantErr     bool
		errContains string
	}{
		{
			name:  "adds other when missing",
			input: []string{"event", "invoice"},
			want:  []string{"event", "invoice", "other"},
		},
		{
			name:  "normalizes case",
			input: []string{" Event ", "OTHER"},
			want:  []string{"event", "other"},
		},
		{
			name:        "rejects blank",
			input:       []string{"event", " "},
			wantErr:     true,
			errContains: "empty",
		},
		{
			name:        "rejects duplicates",
			input:       []string{"event", "EVENT"},
			wantErr:     true,
			errContains: "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := NewCategorySet(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, set.Names())
		})
	}
}

func TestCategorySet_Validate(t *testing.T) {
	set, err := NewCategorySet([]string{"event", "invoice"})
	require.NoError(t, err)

	assert.Equal(t, "event", set.Validate("Event"))
	assert.Equal(t, "invoice", set.Validate(" invoice\n"))
	assert.Equal(t, CategoryOther, set.Validate("spam"))
	assert.Equal(t, CategoryOther, set.Validate(""))

	var zero CategorySet
	assert.Equal(t, []string{CategoryOther}, zero.Names())
	assert.Equal(t, CategoryOther, zero.Validate("event"))
}

func TestAssociation(t *testing.T) {
	a := NewAssociation(Event{ID: "e1", Name: "Wedding"})
	require.True(t, a.Found())
	assert.Equal(t, "e1", *a.EventID)
	assert.Equal(t, "Wedding", *a.EventName)

	assert.False(t, Association{}.Found())
	assert.Equal(t, "a@b.com", NormalizeEmail("  A@B.com "))
}
