// Package normalizer reduces inbound webhook bodies of either platform to
// entity.InboundMessage records. It never fails: every input yields either
// messages or a rejection reason.
package normalizer

import (
	"strings"
	"time"

	"B24Relay/entity"
)

type Shape string

const (
	ShapeNone         Shape = "none"
	ShapeDirect       Shape = "direct"
	ShapeGatewayEvent Shape = "gateway_event"
	ShapeCrmEvent     Shape = "crm_event"
)

// Result is the outcome of one parse: the shape that matched and either the
// produced messages or the reason nothing was produced.
type Result struct {
	Shape     Shape
	Messages  []entity.InboundMessage
	Reason    string
	Event     string
	Connector string
}

func (r Result) Ok() bool {
	return r.Reason == "" && len(r.Messages) > 0
}

func reject(shape Shape, reason string) Result {
	return Result{Shape: shape, Reason: reason}
}

// Field priority lists. The first non-empty candidate wins.
var (
	directSender    = []path{p("from"), p("sender"), p("phone"), p("number")}
	directChat      = []path{p("chatId"), p("chat_id"), p("chat.id")}
	directText      = []path{p("text"), p("message"), p("body"), p("caption")}
	directMedia     = []path{p("mediaUrl"), p("media_url"), p("media")}
	directMediaName = []path{p("filename"), p("fileName"), p("mediaName")}
	directID        = []path{p("messageId"), p("message_id"), p("id")}
	directTime      = []path{p("timestamp"), p("date")}
	directLine      = []path{p("lineId"), p("line_id"), p("line")}
	directName      = []path{p("name"), p("pushName")}

	gatewayText = []path{
		p("message.conversation"),
		p("message.extendedTextMessage.text"),
		p("message.imageMessage.caption"),
		p("message.videoMessage.caption"),
		p("message.documentMessage.caption"),
		p("message.buttonsResponseMessage.selectedDisplayText"),
		p("message.templateButtonReplyMessage.selectedDisplayText"),
		p("message.listResponseMessage.title"),
		p("message.text"),
	}
	gatewayMedia = []path{
		p("message.mediaUrl"),
		p("mediaUrl"),
		p("message.imageMessage.url"),
		p("message.videoMessage.url"),
		p("message.documentMessage.url"),
		p("message.audioMessage.url"),
	}
	gatewayMediaName = []path{p("message.documentMessage.fileName"), p("message.documentMessage.title")}
	gatewaySender    = []path{p("key.remoteJid"), p("remoteJid"), p("from")}
	gatewayID        = []path{p("key.id"), p("id")}
	gatewayTime      = []path{p("messageTimestamp"), p("timestamp")}
)

// ParseGateway handles bodies posted by the WhatsApp gateway. Shapes are
// tried in order: direct, gateway event. A body with direct fields but no
// sender is a direct message missing its sender.
func ParseGateway(body map[string]interface{}, now time.Time) Result {
	if len(body) == 0 {
		return reject(ShapeNone, entity.ReasonUnsupportedPayload)
	}
	if isDirect(body) {
		return parseDirect(body, now)
	}
	if res, ok := parseGatewayEvent(body, now); ok {
		return res
	}
	if event := first(body, p("event")); event != "" {
		res := reject(ShapeGatewayEvent, entity.ReasonEventIgnored)
		res.Event = event
		return res
	}
	return reject(ShapeNone, entity.ReasonUnsupportedPayload)
}

func isDirect(body map[string]interface{}) bool {
	if _, ok := body["messages"]; ok {
		return false
	}
	if _, ok := body["key"]; ok {
		return false
	}
	if data := asMap(body["data"]); data != nil {
		if _, ok := body["event"]; ok {
			return false
		}
		if _, ok := data["messages"]; ok {
			return false
		}
		if _, ok := data["key"]; ok {
			return false
		}
	}
	for _, fields := range [][]path{directSender, directText, directMedia, directChat} {
		if first(body, fields...) != "" {
			return true
		}
	}
	return false
}

func parseDirect(body map[string]interface{}, now time.Time) Result {
	user := Digits(first(body, directSender...))
	if user == "" {
		return reject(ShapeDirect, entity.ReasonMissingFields)
	}

	chat := first(body, directChat...)
	if chat == "" {
		chat = user
	}

	msg := entity.InboundMessage{
		SourcePlatform: entity.PlatformWhatsApp,
		PortalDomain:   first(body, p("portal_domain"), p("portalDomain")),
		ExternalUserID: user,
		ExternalChatID: chat,
		UserName:       first(body, directName...),
		Text:           first(body, directText...),
		MessageID:      messageID(first(body, directID...), now),
		Timestamp:      timestamp(first(body, directTime...), now),
		LineID:         first(body, directLine...),
	}
	if media := first(body, directMedia...); media != "" {
		msg.MediaURL = media
		msg.MediaName = first(body, directMediaName...)
		msg.Files = []entity.File{{URL: media, Name: msg.MediaName}}
		if strings.EqualFold(first(body, p("type")), "text") && msg.Text != "" {
			msg.MediaURL, msg.MediaName, msg.Files = "", "", nil
		}
	}

	if err := msg.Validate(); err != nil {
		return reject(ShapeDirect, entity.ReasonMissingFields)
	}
	return Result{Shape: ShapeDirect, Messages: []entity.InboundMessage{msg}}
}

func gatewayItems(body map[string]interface{}) ([]interface{}, bool) {
	if list, ok := body["messages"]; ok {
		return asList(list), true
	}
	data := asMap(body["data"])
	if data != nil {
		if list, ok := data["messages"]; ok {
			return asList(list), true
		}
		if _, ok := data["key"]; ok {
			return []interface{}{data}, true
		}
	}
	if _, ok := body["key"]; ok {
		return []interface{}{body}, true
	}
	return nil, false
}

// isUpsert accepts "messages.upsert", "MESSAGES_UPSERT" and similar spellings.
func isUpsert(event string) bool {
	e := strings.ToLower(strings.ReplaceAll(event, "_", "."))
	return strings.Contains(e, "messages.upsert")
}

func parseGatewayEvent(body map[string]interface{}, now time.Time) (Result, bool) {
	items, ok := gatewayItems(body)
	if !ok {
		return Result{}, false
	}

	event := first(body, p("event"))
	if event != "" && !isUpsert(event) {
		res := reject(ShapeGatewayEvent, entity.ReasonEventIgnored)
		res.Event = event
		return res, true
	}

	res := Result{Shape: ShapeGatewayEvent, Event: event}
	missing := 0
	for _, raw := range items {
		item := asMap(raw)
		if item == nil {
			missing++
			continue
		}
		if boolAt(item, p("key.fromMe")) {
			continue
		}
		jid := first(item, gatewaySender...)
		if strings.HasSuffix(jid, "@g.us") || strings.HasSuffix(jid, "@broadcast") {
			continue
		}
		user := Digits(jid)
		if user == "" {
			missing++
			continue
		}

		msg := entity.InboundMessage{
			SourcePlatform: entity.PlatformWhatsApp,
			PortalDomain:   first(body, p("portal_domain")),
			ExternalUserID: user,
			ExternalChatID: user,
			UserName:       first(item, p("pushName")),
			Text:           first(item, gatewayText...),
			MessageID:      messageID(first(item, gatewayID...), now),
			Timestamp:      timestamp(first(item, gatewayTime...), now),
			LineID:         first(body, p("lineId")),
		}
		if media := first(item, gatewayMedia...); media != "" {
			msg.MediaURL = media
			msg.MediaName = first(item, gatewayMediaName...)
			msg.Files = []entity.File{{URL: media, Name: msg.MediaName}}
		}

		if err := msg.Validate(); err != nil {
			missing++
			continue
		}
		res.Messages = append(res.Messages, msg)
	}

	if len(res.Messages) == 0 {
		if missing > 0 {
			res.Reason = entity.ReasonMissingFields
		} else {
			res.Reason = entity.ReasonEventIgnored
		}
	}
	return res, true
}
