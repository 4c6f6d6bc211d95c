package core

import (
	"context"
	"errors"
	"log/slog"

	"B24Relay/entity"
	"B24Relay/internal/config"
	"B24Relay/internal/lib/sl"
	"B24Relay/internal/normalizer"
)

// RelayFromGateway forwards WhatsApp messages posted by the gateway into the
// open line. Messages are relayed one after another, without de-duplication.
func (c *Core) RelayFromGateway(ctx context.Context, body map[string]interface{}) (*entity.RelayResult, error) {
	res := normalizer.ParseGateway(body, c.now())
	if !res.Ok() {
		return c.rejected(ctx, entity.DirectionToBitrix, entity.SourceWhatsApp, res)
	}
	if err := c.checkConfig(config.DirectionToCrm); err != nil {
		c.journal(ctx, entity.LevelError, entity.SourceSystem, "relay to bitrix24 not configured", err.Error())
		return nil, err
	}

	result := &entity.RelayResult{Ok: true}
	var lastErr error
	for i := range res.Messages {
		msg := &res.Messages[i]
		portal := c.portal(msg.PortalDomain)

		_, err := c.crm.SendMessages(ctx, portal, c.connectorRequest(msg))
		if err != nil {
			c.record(ctx, entity.DirectionToBitrix, entity.RelayFailed, msg, err)
			c.journal(ctx, entity.LevelError, entity.SourceBitrix, "send to open line failed", map[string]interface{}{
				"message_id": msg.MessageID,
				"user_id":    msg.ExternalUserID,
				"error":      err.Error(),
			})
			if !isRemote(err) {
				return nil, err
			}
			result.Failed = append(result.Failed, msg.MessageID)
			lastErr = err
			continue
		}

		result.Relayed++
		c.record(ctx, entity.DirectionToBitrix, entity.RelaySent, msg, nil)
		c.journal(ctx, entity.LevelInfo, entity.SourceWhatsApp, "message relayed to open line", map[string]interface{}{
			"message_id": msg.MessageID,
			"user_id":    msg.ExternalUserID,
			"chat_id":    msg.ExternalChatID,
		})
		c.saveChat(ctx, portal, msg.ExternalChatID, msg.ExternalUserID)
	}

	if result.Relayed == 0 && lastErr != nil {
		return nil, lastErr
	}
	return result, nil
}

// RelayFromCrm forwards operator messages of the open line to WhatsApp.
// Text is sent as one message; without text every file is sent on its own.
// Delivery and read are confirmed back once anything was sent.
func (c *Core) RelayFromCrm(ctx context.Context, body map[string]interface{}) (*entity.RelayResult, error) {
	filter := normalizer.CrmFilter{ConnectorID: c.conf.Bitrix.ConnectorID, Event: c.conf.Bitrix.Event}
	res := normalizer.ParseCrmEvent(body, filter, c.now())
	if !res.Ok() {
		return c.rejected(ctx, entity.DirectionToWhatsApp, entity.SourceBitrix, res)
	}
	if err := c.checkConfig(config.DirectionToGateway); err != nil {
		c.journal(ctx, entity.LevelError, entity.SourceSystem, "relay to whatsapp not configured", err.Error())
		return nil, err
	}

	result := &entity.RelayResult{Ok: true}
	var firstErr error
	for i := range res.Messages {
		msg := &res.Messages[i]
		portal := c.portal(msg.PortalDomain)
		recipient := c.recipient(ctx, portal, msg)

		sent, failed, err := c.sendToGateway(ctx, recipient, msg)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		result.Failed = append(result.Failed, failed...)

		switch {
		case sent == 0:
			c.record(ctx, entity.DirectionToWhatsApp, entity.RelayFailed, msg, err)
			continue
		case len(failed) > 0:
			c.record(ctx, entity.DirectionToWhatsApp, entity.RelayPartial, msg, err)
		default:
			c.record(ctx, entity.DirectionToWhatsApp, entity.RelaySent, msg, nil)
		}
		result.Relayed++
		c.journal(ctx, entity.LevelInfo, entity.SourceBitrix, "message relayed to whatsapp", map[string]interface{}{
			"message_id": msg.MessageID,
			"recipient":  recipient,
			"sent":       sent,
		})
		c.confirm(ctx, portal, msg)
	}

	if result.Relayed == 0 && firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// sendToGateway returns how many sends succeeded, the ids of the failed ones
// and the first error.
func (c *Core) sendToGateway(ctx context.Context, recipient string, msg *entity.InboundMessage) (int, []string, error) {
	if msg.Text != "" {
		_, err := c.gateway.SendText(ctx, entity.GatewaySendRequest{Recipient: recipient, Text: msg.Text})
		if err != nil {
			c.gatewayFailed(ctx, msg, msg.MessageID, err)
			return 0, []string{msg.MessageID}, err
		}
		return 1, nil, nil
	}

	files := msg.Files
	if len(files) == 0 && msg.MediaURL != "" {
		files = []entity.File{{URL: msg.MediaURL, Name: msg.MediaName}}
	}
	sent := 0
	var failed []string
	var firstErr error
	for _, f := range files {
		_, err := c.gateway.SendMedia(ctx, entity.GatewaySendRequest{Recipient: recipient, MediaURL: f.URL, MediaName: f.Name})
		if err != nil {
			c.gatewayFailed(ctx, msg, f.URL, err)
			failed = append(failed, f.URL)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}
	return sent, failed, firstErr
}

func (c *Core) gatewayFailed(ctx context.Context, msg *entity.InboundMessage, item string, err error) {
	c.journal(ctx, entity.LevelError, entity.SourceWhatsApp, "send to gateway failed", map[string]interface{}{
		"message_id": msg.MessageID,
		"item":       item,
		"error":      err.Error(),
	})
}

// confirm reports delivery and read of an operator message. Failures do not
// undo the send and are only journaled.
func (c *Core) confirm(ctx context.Context, portal string, msg *entity.InboundMessage) {
	req := entity.ConnectorStatusRequest{
		Connector: c.conf.Bitrix.ConnectorID,
		Line:      c.line(msg),
		ChatID:    msg.ExternalChatID,
		MessageID: msg.MessageID,
		Im:        msg.Im,
	}
	if _, err := c.crm.ConfirmDelivery(ctx, portal, req); err != nil {
		c.journal(ctx, entity.LevelWarning, entity.SourceBitrix, "delivery confirmation failed", err.Error())
	}
	if !c.conf.Bitrix.ConfirmRead {
		return
	}
	if _, err := c.crm.ConfirmRead(ctx, portal, req); err != nil {
		c.journal(ctx, entity.LevelWarning, entity.SourceBitrix, "read confirmation failed", err.Error())
	}
}

func (c *Core) rejected(ctx context.Context, direction entity.Direction, source string, res normalizer.Result) (*entity.RelayResult, error) {
	c.record(ctx, direction, entity.RelaySkipped, nil, nil)
	c.journal(ctx, entity.LevelDebug, source, "payload skipped", map[string]interface{}{
		"reason":    res.Reason,
		"shape":     res.Shape,
		"event":     res.Event,
		"connector": res.Connector,
	})
	if res.Reason == entity.ReasonMissingFields {
		return nil, &entity.ValidationError{Reason: res.Reason}
	}
	return entity.Skipped(res.Reason), nil
}

func (c *Core) connectorRequest(msg *entity.InboundMessage) entity.ConnectorSendRequest {
	text := msg.Text
	if text == "" && !msg.HasMedia() {
		text = c.conf.Bitrix.PlaceholderText
	}
	name := msg.UserName
	if name == "" {
		name = msg.ExternalUserID
	}
	return entity.ConnectorSendRequest{
		Connector: c.conf.Bitrix.ConnectorID,
		Line:      c.line(msg),
		Messages: []entity.ConnectorMessage{{
			User: entity.ConnectorUser{ID: msg.ExternalUserID, Name: name},
			Chat: entity.ConnectorChat{ID: msg.ExternalChatID},
			Message: entity.ConnectorMessageBody{
				ID:    msg.MessageID,
				Date:  msg.Timestamp,
				Text:  text,
				Files: msg.Files,
			},
		}},
	}
}

func (c *Core) line(msg *entity.InboundMessage) string {
	if msg.LineID != "" {
		return msg.LineID
	}
	return c.conf.Bitrix.LineID
}

// recipient prefers the number stored for the chat over the id in the event.
func (c *Core) recipient(ctx context.Context, portal string, msg *entity.InboundMessage) string {
	if c.repo == nil || msg.ExternalChatID == msg.ExternalUserID {
		return msg.ExternalUserID
	}
	cm, err := c.repo.GetChatMap(ctx, portal, msg.ExternalChatID)
	if err != nil {
		c.log.With(slog.String("chat_id", msg.ExternalChatID), sl.Err(err)).Warn("chat map lookup")
		return msg.ExternalUserID
	}
	if cm != nil {
		if phone := normalizer.Digits(cm.Phone); phone != "" {
			return phone
		}
	}
	return msg.ExternalUserID
}

func (c *Core) saveChat(ctx context.Context, portal, chatID, phone string) {
	if c.repo == nil {
		return
	}
	err := c.repo.SaveChatMap(ctx, entity.ChatMap{PortalDomain: portal, ExternalChatID: chatID, Phone: phone})
	if err != nil {
		c.journal(ctx, entity.LevelWarning, entity.SourceSystem, "save chat map failed", err.Error())
	}
}

func isRemote(err error) bool {
	var remote *entity.RemoteSendError
	return errors.As(err, &remote)
}
