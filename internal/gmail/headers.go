package gmail

import (
	gmail "google.golang.org/api/gmail/v1"
)

// FromAPI converts a Gmail API message fetched with format "full".
func FromAPI(m *gmail.Message) *FullMessage {
	if m == nil {
		return nil
	}
	out := &FullMessage{
		ID:           m.Id,
		ThreadID:     m.ThreadId,
		InternalDate: m.InternalDate,
		LabelIDs:     m.LabelIds,
		Snippet:      m.Snippet,
	}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			out.Headers = append(out.Headers, Header{Name: h.Name, Value: h.Value})
		}
	}
	out.Text, out.HTML = extractBodies(m.Payload)
	return out
}
