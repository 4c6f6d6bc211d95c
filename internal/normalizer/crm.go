package normalizer

import (
	"strings"
	"time"

	"B24Relay/entity"
)

// DefaultCrmEvent is the open line event carrying operator messages.
const DefaultCrmEvent = "OnImConnectorMessageAdd"

// CrmFilter selects which CRM events are relayed.
type CrmFilter struct {
	ConnectorID string
	Event       string
}

var (
	crmUser = []path{
		p("user.id"), p("user.ID"),
		p("message.user.id"), p("message.USER.ID"),
		p("chat.id"),
	}
	crmText  = []path{p("message.text"), p("message.TEXT")}
	crmID    = []path{p("message.id"), p("message.ID"), p("im.message_id")}
	crmChat  = []path{p("chat.id"), p("chat.ID")}
	crmDate  = []path{p("message.date"), p("message.DATE")}
	fileURL  = []path{p("link"), p("url"), p("URL"), p("downloadLink")}
	fileName = []path{p("name"), p("NAME")}
)

var bbcode = strings.NewReplacer(
	"[br]", "\n", "[BR]", "\n",
	"[b]", "", "[/b]", "", "[B]", "", "[/B]", "",
	"[i]", "", "[/i]", "", "[u]", "", "[/u]", "", "[s]", "", "[/s]", "",
)

// ParseCrmEvent handles open line events. Events with another name or
// another connector are rejected before any message is read.
func ParseCrmEvent(body map[string]interface{}, f CrmFilter, now time.Time) Result {
	if len(body) == 0 {
		return reject(ShapeNone, entity.ReasonUnsupportedPayload)
	}

	event := first(body, p("event"), p("EVENT"))
	want := f.Event
	if want == "" {
		want = DefaultCrmEvent
	}
	if event == "" || !strings.Contains(strings.ToLower(event), strings.ToLower(want)) {
		res := reject(ShapeCrmEvent, entity.ReasonEventIgnored)
		res.Event = event
		return res
	}

	data := asMap(body["data"])
	if data == nil {
		data = asMap(body["DATA"])
	}
	if data == nil {
		res := reject(ShapeCrmEvent, entity.ReasonUnsupportedPayload)
		res.Event = event
		return res
	}

	connector := first(data, p("CONNECTOR"), p("connector"))
	if !strings.EqualFold(connector, f.ConnectorID) {
		res := reject(ShapeCrmEvent, entity.ReasonConnectorMismatch)
		res.Event, res.Connector = event, connector
		return res
	}

	res := Result{Shape: ShapeCrmEvent, Event: event, Connector: connector}
	portal := first(body, p("auth.domain"), p("AUTH.domain"))
	if portal == "" {
		portal = hostOf(first(body, p("auth.client_endpoint"), p("AUTH.client_endpoint")))
	}
	line := first(data, p("LINE"), p("line"))

	items := crmItems(data)
	if len(items) == 0 {
		res.Reason = entity.ReasonUnsupportedPayload
		return res
	}

	for _, item := range items {
		user := Digits(first(item, crmUser...))
		if user == "" {
			continue
		}
		chat := first(item, crmChat...)
		if chat == "" {
			chat = user
		}

		msg := entity.InboundMessage{
			SourcePlatform: entity.PlatformBitrix,
			PortalDomain:   portal,
			ExternalUserID: user,
			ExternalChatID: chat,
			Text:           strings.TrimSpace(bbcode.Replace(first(item, crmText...))),
			MessageID:      messageID(first(item, crmID...), now),
			Timestamp:      timestamp(first(item, crmDate...), now),
			LineID:         line,
			Files:          crmFiles(item),
		}
		if len(msg.Files) > 0 {
			msg.MediaURL = msg.Files[0].URL
			msg.MediaName = msg.Files[0].Name
		}
		if im := mapAt(item, p("im")); im != nil {
			msg.Im = &entity.ImRef{
				ChatID:    first(im, p("chat_id")),
				MessageID: first(im, p("message_id")),
			}
		}

		if msg.Text == "" && !msg.HasMedia() {
			continue
		}
		if err := msg.Validate(); err != nil {
			continue
		}
		res.Messages = append(res.Messages, msg)
	}

	if len(res.Messages) == 0 {
		res.Reason = entity.ReasonMissingFields
	}
	return res
}

// crmItems brings the three known event layouts to one item layout:
// {message, user, chat, im, files}.
func crmItems(data map[string]interface{}) []map[string]interface{} {
	if list := listAt(data, p("MESSAGES")); len(list) > 0 {
		items := make([]map[string]interface{}, 0, len(list))
		for _, raw := range list {
			m := asMap(raw)
			if m == nil {
				continue
			}
			if u := userID(data); u != nil && m["user"] == nil {
				item := make(map[string]interface{}, len(m)+1)
				for k, v := range m {
					item[k] = v
				}
				item["user"] = u
				m = item
			}
			items = append(items, m)
		}
		return items
	}

	if fields := mapAt(data, p("FIELDS")); fields != nil {
		if msg := mapAt(fields, p("MESSAGE")); msg != nil {
			return []map[string]interface{}{{
				"message": msg,
				"user":    firstMap(fields["USER"], msg["user"], data["USER"], userID(data)),
				"chat":    firstMap(fields["CHAT"], data["CHAT"]),
				"im":      firstMap(fields["IM"], data["IM"]),
				"files":   firstList(fields["FILES"], msg["files"], data["FILES"]),
			}}
		}
	}

	if msg := mapAt(data, p("MESSAGE")); msg != nil {
		return []map[string]interface{}{{
			"message": msg,
			"user":    firstMap(data["USER"], msg["user"], userID(data)),
			"chat":    firstMap(data["CHAT"]),
			"im":      firstMap(data["IM"]),
			"files":   firstList(msg["files"], data["FILES"]),
		}}
	}

	return nil
}

// userID wraps a flat data.USER_ID into the {id} user layout.
func userID(data map[string]interface{}) map[string]interface{} {
	if id := first(data, p("USER_ID"), p("user_id")); id != "" {
		return map[string]interface{}{"id": id}
	}
	return nil
}

func firstMap(vs ...interface{}) interface{} {
	for _, v := range vs {
		if m := asMap(v); m != nil {
			return m
		}
	}
	return nil
}

func firstList(vs ...interface{}) interface{} {
	for _, v := range vs {
		if l := asList(v); len(l) > 0 {
			return l
		}
	}
	return nil
}

func crmFiles(item map[string]interface{}) []entity.File {
	list := asList(item["files"])
	if len(list) == 0 {
		list = listAt(item, p("message.files"))
	}
	var files []entity.File
	for _, raw := range list {
		f := asMap(raw)
		if f == nil {
			continue
		}
		u := first(f, fileURL...)
		if u == "" {
			continue
		}
		files = append(files, entity.File{URL: u, Name: first(f, fileName...)})
	}
	return files
}
