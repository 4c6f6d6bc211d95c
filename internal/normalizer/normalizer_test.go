package normalizer

import (
	"encoding/json"
	"testing"
	"time"

	"B24Relay/entity"
)

var testNow = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func decode(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatal(err)
	}
	return body
}

func TestDigits(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"5511999999999@s.whatsapp.net", "5511999999999"},
		{"+55 (11) 99999-9999", "5511999999999"},
		{"5511999999999:12@s.whatsapp.net", "5511999999999"},
		{"abc@lid", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Digits(tt.in); got != tt.want {
			t.Errorf("Digits(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseGateway_DirectChatFallback(t *testing.T) {
	res := ParseGateway(decode(t, `{"from":"5511999999999","text":"oi"}`), testNow)
	if !res.Ok() {
		t.Fatalf("expected messages, got reason %q", res.Reason)
	}
	if res.Shape != ShapeDirect {
		t.Errorf("shape = %s", res.Shape)
	}
	msg := res.Messages[0]
	if msg.ExternalUserID != "5511999999999" || msg.ExternalChatID != "5511999999999" {
		t.Errorf("user/chat = %q/%q", msg.ExternalUserID, msg.ExternalChatID)
	}
	if msg.Text != "oi" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.Timestamp != testNow.Unix() {
		t.Errorf("timestamp = %d, want now", msg.Timestamp)
	}
	if msg.MessageID == "" {
		t.Error("message id must be synthesized")
	}
}

func TestParseGateway_DirectKeepsChatID(t *testing.T) {
	res := ParseGateway(decode(t, `{"from":"5511999999999","chatId":"group-7","text":"oi","messageId":"m1","timestamp":1700000000000}`), testNow)
	if !res.Ok() {
		t.Fatalf("reason %q", res.Reason)
	}
	msg := res.Messages[0]
	if msg.ExternalChatID != "group-7" {
		t.Errorf("chat = %q", msg.ExternalChatID)
	}
	if msg.MessageID != "m1" {
		t.Errorf("id = %q", msg.MessageID)
	}
	if msg.Timestamp != 1700000000 {
		t.Errorf("millisecond timestamps must be reduced to seconds, got %d", msg.Timestamp)
	}
}

func TestParseGateway_DirectMedia(t *testing.T) {
	res := ParseGateway(decode(t, `{"from":"5511999999999","type":"image","mediaUrl":"https://cdn/x.jpg","filename":"x.jpg"}`), testNow)
	if !res.Ok() {
		t.Fatalf("reason %q", res.Reason)
	}
	msg := res.Messages[0]
	if len(msg.Files) != 1 || msg.Files[0].URL != "https://cdn/x.jpg" || msg.MediaName != "x.jpg" {
		t.Errorf("files = %#v", msg.Files)
	}
}

func TestParseGateway_NoDigitsIsMissingFields(t *testing.T) {
	bodies := []string{
		`{"from":"abc","text":"oi"}`,
		`{"data":{"key":{"remoteJid":"status@lid","id":"X"},"message":{"conversation":"oi"}}}`,
		`{"messages":[{"key":{"remoteJid":"@s.whatsapp.net"},"message":{"conversation":"oi"}}]}`,
	}
	for _, raw := range bodies {
		res := ParseGateway(decode(t, raw), testNow)
		if res.Reason != entity.ReasonMissingFields {
			t.Errorf("%s: reason = %q, want missing_fields", raw, res.Reason)
		}
		if len(res.Messages) != 0 {
			t.Errorf("%s: no messages expected", raw)
		}
	}
}

func TestParseGateway_ShapesAgree(t *testing.T) {
	direct := ParseGateway(decode(t, `{"from":"5511999999999","text":"hello","messageId":"ABC"}`), testNow)
	nested := ParseGateway(decode(t, `{"event":"messages.upsert","data":{"messages":[{"key":{"remoteJid":"5511999999999@s.whatsapp.net","fromMe":false,"id":"ABC"},"message":{"conversation":"hello"}}]}}`), testNow)
	top := ParseGateway(decode(t, `{"messages":[{"key":{"remoteJid":"5511999999999@s.whatsapp.net","id":"ABC"},"message":{"extendedTextMessage":{"text":"hello"}}}]}`), testNow)

	for _, res := range []Result{direct, nested, top} {
		if !res.Ok() {
			t.Fatalf("shape %s rejected: %q", res.Shape, res.Reason)
		}
	}
	a, b, c := direct.Messages[0], nested.Messages[0], top.Messages[0]
	if a.ExternalUserID != b.ExternalUserID || b.ExternalUserID != c.ExternalUserID {
		t.Errorf("user ids differ: %q %q %q", a.ExternalUserID, b.ExternalUserID, c.ExternalUserID)
	}
	if a.Text != b.Text || b.Text != c.Text {
		t.Errorf("texts differ: %q %q %q", a.Text, b.Text, c.Text)
	}
	if a.MessageID != b.MessageID || b.MessageID != c.MessageID {
		t.Errorf("message ids differ: %q %q %q", a.MessageID, b.MessageID, c.MessageID)
	}
	if nested.Shape != ShapeGatewayEvent || direct.Shape != ShapeDirect {
		t.Errorf("shapes = %s, %s", direct.Shape, nested.Shape)
	}
}

func TestParseGateway_ShapesAgreeWithoutID(t *testing.T) {
	direct := ParseGateway(decode(t, `{"from":"5511999999999","text":"hello"}`), testNow)
	nested := ParseGateway(decode(t, `{"data":{"key":{"remoteJid":"5511999999999@s.whatsapp.net"},"message":{"conversation":"hello"}}}`), testNow)
	if !direct.Ok() || !nested.Ok() {
		t.Fatal("both shapes should parse")
	}
	if direct.Messages[0].MessageID == "" || nested.Messages[0].MessageID == "" {
		t.Fatal("both shapes synthesize an id")
	}
	if direct.Messages[0].Timestamp != nested.Messages[0].Timestamp {
		t.Error("both shapes default the timestamp to now")
	}
}

func TestParseGateway_TextPriority(t *testing.T) {
	res := ParseGateway(decode(t, `{"data":{"key":{"remoteJid":"5511999999999@s.whatsapp.net"},"message":{"imageMessage":{"caption":"photo","url":"https://mmg/x"},"buttonsResponseMessage":{"selectedDisplayText":"yes"}}}}`), testNow)
	if !res.Ok() {
		t.Fatalf("reason %q", res.Reason)
	}
	if res.Messages[0].Text != "photo" {
		t.Errorf("caption should win over button reply, got %q", res.Messages[0].Text)
	}
	if res.Messages[0].MediaURL != "https://mmg/x" {
		t.Errorf("media = %q", res.Messages[0].MediaURL)
	}

	res = ParseGateway(decode(t, `{"data":{"key":{"remoteJid":"5511999999999@s.whatsapp.net"},"message":{"buttonsResponseMessage":{"selectedDisplayText":"yes"}}}}`), testNow)
	if res.Messages[0].Text != "yes" {
		t.Errorf("button reply text = %q", res.Messages[0].Text)
	}
}

func TestParseGateway_EmptyTextIsNotAnError(t *testing.T) {
	res := ParseGateway(decode(t, `{"data":{"key":{"remoteJid":"5511999999999@s.whatsapp.net"},"message":{"stickerMessage":{}}}}`), testNow)
	if !res.Ok() {
		t.Fatalf("reason %q", res.Reason)
	}
	if res.Messages[0].Text != "" {
		t.Errorf("text = %q", res.Messages[0].Text)
	}
}

func TestParseGateway_Ignored(t *testing.T) {
	tests := map[string]string{
		"fromMe":      `{"data":{"key":{"remoteJid":"5511999999999@s.whatsapp.net","fromMe":true},"message":{"conversation":"echo"}}}`,
		"other event": `{"event":"connection.update","data":{"key":{"remoteJid":"5511999999999@s.whatsapp.net"}}}`,
		"group":       `{"messages":[{"key":{"remoteJid":"120363000000@g.us"},"message":{"conversation":"hi"}}]}`,
		"empty batch": `{"messages":[]}`,
	}
	for name, raw := range tests {
		res := ParseGateway(decode(t, raw), testNow)
		if res.Reason != entity.ReasonEventIgnored {
			t.Errorf("%s: reason = %q, want event_ignored", name, res.Reason)
		}
	}
}

func TestParseGateway_UpsertSpellings(t *testing.T) {
	for _, ev := range []string{"messages.upsert", "MESSAGES_UPSERT", "Messages.Upsert"} {
		body := decode(t, `{"data":{"key":{"remoteJid":"5511999999999@s.whatsapp.net"},"message":{"conversation":"x"}}}`)
		body["event"] = ev
		if res := ParseGateway(body, testNow); !res.Ok() {
			t.Errorf("%s: reason %q", ev, res.Reason)
		}
	}
}

func TestParseGateway_Unsupported(t *testing.T) {
	for _, raw := range []string{`{}`, `{"hello":"world"}`} {
		res := ParseGateway(decode(t, raw), testNow)
		if res.Reason != entity.ReasonUnsupportedPayload {
			t.Errorf("%s: reason = %q", raw, res.Reason)
		}
	}
}

func TestParseGateway_Batch(t *testing.T) {
	res := ParseGateway(decode(t, `{"messages":[
		{"key":{"remoteJid":"5511111111111@s.whatsapp.net","id":"1"},"message":{"conversation":"a"}},
		{"key":{"remoteJid":"5511222222222@s.whatsapp.net","id":"2","fromMe":true},"message":{"conversation":"b"}},
		{"key":{"remoteJid":"5511333333333@s.whatsapp.net","id":"3"},"message":{"conversation":"c"}}
	]}`), testNow)
	if len(res.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(res.Messages))
	}
	if res.Messages[1].ExternalUserID != "5511333333333" {
		t.Errorf("second user = %q", res.Messages[1].ExternalUserID)
	}
}

var filter = CrmFilter{ConnectorID: "evolution_custom", Event: DefaultCrmEvent}

func TestParseCrmEvent_MessageShape(t *testing.T) {
	res := ParseCrmEvent(decode(t, `{"event":"ONIMCONNECTORMESSAGEADD","data":{"CONNECTOR":"EVOLUTION_CUSTOM","MESSAGE":{"text":"hello"},"USER":{"ID":"5511988887777"}},"auth":{"domain":"acme.bitrix24.com"}}`), filter, testNow)
	if !res.Ok() {
		t.Fatalf("reason %q", res.Reason)
	}
	msg := res.Messages[0]
	if msg.ExternalUserID != "5511988887777" || msg.Text != "hello" {
		t.Errorf("unexpected message %#v", msg)
	}
	if msg.PortalDomain != "acme.bitrix24.com" {
		t.Errorf("portal = %q", msg.PortalDomain)
	}
	if msg.SourcePlatform != entity.PlatformBitrix {
		t.Errorf("platform = %q", msg.SourcePlatform)
	}
}

func TestParseCrmEvent_FieldsShape(t *testing.T) {
	res := ParseCrmEvent(decode(t, `{"event":"OnImConnectorMessageAdd","data":{"CONNECTOR":"evolution_custom","FIELDS":{"MESSAGE":{"id":"77","text":"[b]Ana:[/b][br]hi there","user":{"id":"+55 11 98888-7777"}},"FILES":[{"url":"https://b24/f.pdf","name":"f.pdf"}]}},"auth":{"client_endpoint":"https://acme.bitrix24.com/rest/"}}`), filter, testNow)
	if !res.Ok() {
		t.Fatalf("reason %q", res.Reason)
	}
	msg := res.Messages[0]
	if msg.ExternalUserID != "5511988887777" {
		t.Errorf("user = %q", msg.ExternalUserID)
	}
	if msg.Text != "Ana:\nhi there" {
		t.Errorf("text = %q", msg.Text)
	}
	if len(msg.Files) != 1 || msg.MediaURL != "https://b24/f.pdf" {
		t.Errorf("files = %#v", msg.Files)
	}
	if msg.PortalDomain != "acme.bitrix24.com" {
		t.Errorf("portal from client endpoint = %q", msg.PortalDomain)
	}
	if msg.MessageID != "77" {
		t.Errorf("id = %q", msg.MessageID)
	}
}

func TestParseCrmEvent_MessagesList(t *testing.T) {
	res := ParseCrmEvent(decode(t, `{"event":"ONIMCONNECTORMESSAGEADD","data":{"CONNECTOR":"evolution_custom","LINE":"3","MESSAGES":[{"im":{"chat_id":"101","message_id":"202"},"message":{"id":["303"],"text":"hey","files":[{"link":"https://b24/a.png","name":"a.png"}]},"chat":{"id":"5511977776666"}}]}}`), filter, testNow)
	if !res.Ok() {
		t.Fatalf("reason %q", res.Reason)
	}
	msg := res.Messages[0]
	if msg.ExternalUserID != "5511977776666" || msg.ExternalChatID != "5511977776666" {
		t.Errorf("user/chat = %q/%q", msg.ExternalUserID, msg.ExternalChatID)
	}
	if msg.LineID != "3" {
		t.Errorf("line = %q", msg.LineID)
	}
	if msg.Im == nil || msg.Im.ChatID != "101" || msg.Im.MessageID != "202" {
		t.Errorf("im = %#v", msg.Im)
	}
	if msg.MessageID != "202" {
		t.Errorf("list-valued message.id should fall back to im.message_id, got %q", msg.MessageID)
	}
	if len(msg.Files) != 1 || msg.Files[0].URL != "https://b24/a.png" {
		t.Errorf("files = %#v", msg.Files)
	}
}

func TestParseCrmEvent_ConnectorMismatch(t *testing.T) {
	res := ParseCrmEvent(decode(t, `{"event":"ONIMCONNECTORMESSAGEADD","data":{"CONNECTOR":"other","MESSAGE":{"text":"hello"},"USER":{"ID":"5511988887777"}}}`), filter, testNow)
	if res.Reason != entity.ReasonConnectorMismatch {
		t.Fatalf("reason = %q", res.Reason)
	}
	if res.Connector != "other" {
		t.Errorf("connector = %q", res.Connector)
	}
}

func TestParseCrmEvent_EventIgnored(t *testing.T) {
	for _, raw := range []string{
		`{"event":"ONIMCONNECTORDIALOGFINISH","data":{"CONNECTOR":"evolution_custom"}}`,
		`{"data":{"CONNECTOR":"evolution_custom"}}`,
	} {
		res := ParseCrmEvent(decode(t, raw), filter, testNow)
		if res.Reason != entity.ReasonEventIgnored {
			t.Errorf("%s: reason = %q", raw, res.Reason)
		}
	}
}

func TestParseCrmEvent_MissingFields(t *testing.T) {
	for _, raw := range []string{
		`{"event":"ONIMCONNECTORMESSAGEADD","data":{"CONNECTOR":"evolution_custom","MESSAGE":{"text":"hello"},"USER":{"ID":"operator"}}}`,
		`{"event":"ONIMCONNECTORMESSAGEADD","data":{"CONNECTOR":"evolution_custom","MESSAGE":{"text":""},"USER":{"ID":"5511"}}}`,
	} {
		res := ParseCrmEvent(decode(t, raw), filter, testNow)
		if res.Reason != entity.ReasonMissingFields {
			t.Errorf("%s: reason = %q", raw, res.Reason)
		}
	}
}

func TestLookup(t *testing.T) {
	body := decode(t, `{"auth":{"access_token":"a","expires_in":3600},"AUTH_ID":"b"}`)
	if got := Lookup(body, "auth.access_token", "AUTH_ID"); got != "a" {
		t.Errorf("got %q", got)
	}
	if got := Lookup(body, "auth.refresh_token", "AUTH_ID"); got != "b" {
		t.Errorf("got %q", got)
	}
	if got := Lookup(body, "auth.expires_in"); got != "3600" {
		t.Errorf("got %q", got)
	}
	if got := Lookup(body, "missing"); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestParseGateway_NotifyBatch(t *testing.T) {
	res := ParseGateway(decode(t, `{"type":"notify","messages":[{"key":{"remoteJid":"5511999999999@s.whatsapp.net","id":"A1"},"message":{"conversation":"oi"}}]}`), testNow)
	if !res.Ok() {
		t.Fatalf("reason %q", res.Reason)
	}
	if res.Shape != ShapeGatewayEvent {
		t.Errorf("shape = %q", res.Shape)
	}
	msg := res.Messages[0]
	if msg.ExternalUserID != "5511999999999" || msg.Text != "oi" || msg.MessageID != "A1" {
		t.Errorf("unexpected message %#v", msg)
	}
}

func TestParseGateway_DirectWithoutSender(t *testing.T) {
	for _, raw := range []string{
		`{"text":"oi"}`,
		`{"chatId":"x","text":"oi"}`,
		`{"mediaUrl":"https://cdn/a.png"}`,
	} {
		res := ParseGateway(decode(t, raw), testNow)
		if res.Shape != ShapeDirect || res.Reason != entity.ReasonMissingFields {
			t.Errorf("%s: shape %q reason %q, want direct missing_fields", raw, res.Shape, res.Reason)
		}
	}
}

func TestParseGateway_EventWithoutMessages(t *testing.T) {
	res := ParseGateway(decode(t, `{"event":"connection.update","sender":"5511999999999@s.whatsapp.net","data":{"state":"open"}}`), testNow)
	if res.Reason != entity.ReasonEventIgnored {
		t.Fatalf("reason = %q", res.Reason)
	}
	if res.Event != "connection.update" {
		t.Errorf("event = %q", res.Event)
	}
}

func TestParseCrmEvent_FlatUserID(t *testing.T) {
	tests := map[string]string{
		"message": `{"event":"ONIMCONNECTORMESSAGEADD","data":{"CONNECTOR":"evolution_custom","USER_ID":"5511999999999","MESSAGE":{"text":"hello","id":"9"}}}`,
		"fields":  `{"event":"ONIMCONNECTORMESSAGEADD","data":{"CONNECTOR":"evolution_custom","USER_ID":5511999999999,"FIELDS":{"MESSAGE":{"text":"hello","id":"9"}}}}`,
		"list":    `{"event":"ONIMCONNECTORMESSAGEADD","data":{"CONNECTOR":"evolution_custom","USER_ID":"5511999999999","MESSAGES":[{"message":{"text":"hello","id":"9"}}]}}`,
	}
	for name, raw := range tests {
		res := ParseCrmEvent(decode(t, raw), filter, testNow)
		if !res.Ok() {
			t.Errorf("%s: reason %q", name, res.Reason)
			continue
		}
		if msg := res.Messages[0]; msg.ExternalUserID != "5511999999999" || msg.MessageID != "9" {
			t.Errorf("%s: unexpected message %#v", name, msg)
		}
	}

	res := ParseCrmEvent(decode(t, `{"event":"ONIMCONNECTORMESSAGEADD","data":{"CONNECTOR":"evolution_custom","USER_ID":"5511999999999","USER":{"ID":"5511988887777"},"MESSAGE":{"text":"hello"}}}`), filter, testNow)
	if !res.Ok() || res.Messages[0].ExternalUserID != "5511988887777" {
		t.Errorf("USER.ID should win over USER_ID: %#v", res)
	}
}
