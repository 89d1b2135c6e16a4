package events

import (
	"encoding/json"
	"testing"
)

func TestCaptionWireShape(t *testing.T) {
	ev := Caption("ABC", CaptionPayload{Text: "hola", SourceLanguage: "es-ES", IsFinal: true})

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(ev.Data, &fields); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	for _, key := range []string{"text", "sourceLanguage", "isFinal"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("caption missing %q", key)
		}
	}
	if len(fields) != 3 {
		t.Fatalf("caption carries unexpected fields: %s", ev.Data)
	}
}
