package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/venuedesk/internal/model"
)

type fakeModel struct {
	content string
	err     error
	got     [][]Message
	opts    []Options
}

func (f *fakeModel) Generate(_ context.Context, messages []Message, opts Options) (Response, error) {
	f.got = append(f.got, messages)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return Response{}, f.err
	}
	return Response{Content: f.content}, nil
}

func testCategories(t *testing.T) model.CategorySet {
	t.Helper()
	set, err := model.NewCategorySet([]string{"event", "invoice", "supplier"})
	require.NoError(t, err)
	return set
}

func TestClassifier_Classify(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		err       error
		want      string
		wantError bool
	}{
		{"valid category", `{"category":"invoice"}`, nil, "invoice", false},
		{"case is normalized", `{"category":" Event "}`, nil, "event", false},
		{"unknown category falls back", `{"category":"spam"}`, nil, model.CategoryOther, true},
		{"malformed json falls back", `not json`, nil, model.CategoryOther, true},
		{"model error falls back", "", errors.New("timeout"), model.CategoryOther, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lm := &fakeModel{content: tt.content, err: tt.err}
			c := NewClassifier(lm, testCategories(t), "The Old Mill", nil, nil)

			got, err := c.Classify(context.Background(), model.Message{ID: "m1", From: "a@example.com", Subject: "Wedding in June", Text: "Hi"})
			assert.Equal(t, tt.want, got)
			if tt.wantError {
				var ce *ClassificationError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, "m1", ce.MessageID)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClassifier_PromptAndSchema(t *testing.T) {
	lm := &fakeModel{content: `{"category":"event"}`}
	c := NewClassifier(lm, testCategories(t), "The Old Mill", nil, nil)

	_, err := c.Classify(context.Background(), model.Message{ID: "m1", Subject: "Booking", Text: strings.Repeat("x", maxClassifyBody+100)})
	require.NoError(t, err)

	require.Len(t, lm.got, 1)
	assert.Contains(t, lm.got[0][0].Content, "The Old Mill")
	assert.Contains(t, lm.got[0][0].Content, "event, invoice, supplier, other")
	assert.LessOrEqual(t, len(lm.got[0][1].Content), maxClassifyBody+100)

	schema := lm.opts[0].Schema
	require.NotNil(t, schema)
	assert.Equal(t, []string{"event", "invoice", "supplier", "other"}, schema.Properties["category"].Enum)
}

func TestDrafter_Draft(t *testing.T) {
	lm := &fakeModel{content: "  Thanks, we would love to host you.  "}
	d := NewDrafter(lm, "The Old Mill", nil)

	event := &model.Event{ID: "e1", Name: "Smith Wedding", Attendance: 80, Room: "Barn", Services: []string{"catering"}}
	draft, err := d.Draft(context.Background(), model.Message{ID: "m1", Subject: "Menu"}, event)
	require.NoError(t, err)
	assert.Equal(t, "Thanks, we would love to host you.", draft)

	system := lm.got[0][0].Content
	assert.Contains(t, system, "Smith Wedding")
	assert.Contains(t, system, "Guests: 80")
	assert.Contains(t, system, "Services: catering")
}

func TestDrafter_Errors(t *testing.T) {
	_, err := NewDrafter(&fakeModel{err: errors.New("down")}, "", nil).Draft(context.Background(), model.Message{ID: "m1"}, nil)
	assert.Error(t, err)

	_, err = NewDrafter(&fakeModel{content: "   "}, "", nil).Draft(context.Background(), model.Message{ID: "m1"}, nil)
	assert.Error(t, err)
}
