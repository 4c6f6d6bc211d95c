package entity

// ConnectorUser is the external author of an open line message.
type ConnectorUser struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type ConnectorChat struct {
	ID string `json:"id"`
}

type ConnectorMessageBody struct {
	ID    string `json:"id"`
	Date  int64  `json:"date"`
	Text  string `json:"text,omitempty"`
	Files []File `json:"files,omitempty"`
}

type ConnectorMessage struct {
	User    ConnectorUser        `json:"user"`
	Chat    ConnectorChat        `json:"chat"`
	Message ConnectorMessageBody `json:"message"`
}

// ConnectorSendRequest is the imconnector.send.messages payload.
type ConnectorSendRequest struct {
	Connector string             `json:"CONNECTOR"`
	Line      string             `json:"LINE"`
	Messages  []ConnectorMessage `json:"MESSAGES"`
}

func (r ConnectorSendRequest) Params() map[string]interface{} {
	msgs := make([]interface{}, 0, len(r.Messages))
	for _, m := range r.Messages {
		body := map[string]interface{}{
			"id":   m.Message.ID,
			"date": m.Message.Date,
		}
		if m.Message.Text != "" {
			body["text"] = m.Message.Text
		}
		if len(m.Message.Files) > 0 {
			files := make([]interface{}, 0, len(m.Message.Files))
			for _, f := range m.Message.Files {
				file := map[string]interface{}{"url": f.URL}
				if f.Name != "" {
					file["name"] = f.Name
				}
				files = append(files, file)
			}
			body["files"] = files
		}
		user := map[string]interface{}{"id": m.User.ID}
		if m.User.Name != "" {
			user["name"] = m.User.Name
		}
		msgs = append(msgs, map[string]interface{}{
			"user":    user,
			"chat":    map[string]interface{}{"id": m.Chat.ID},
			"message": body,
		})
	}
	return map[string]interface{}{
		"CONNECTOR": r.Connector,
		"LINE":      r.Line,
		"MESSAGES":  msgs,
	}
}

// ConnectorStatusRequest reports delivery or read state of operator messages.
type ConnectorStatusRequest struct {
	Connector string
	Line      string
	ChatID    string
	MessageID string
	Im        *ImRef
}

func (r ConnectorStatusRequest) Params() map[string]interface{} {
	msg := map[string]interface{}{
		"message": map[string]interface{}{"id": []interface{}{r.MessageID}},
		"chat":    map[string]interface{}{"id": r.ChatID},
	}
	if r.Im != nil {
		msg["im"] = map[string]interface{}{
			"chat_id":    r.Im.ChatID,
			"message_id": r.Im.MessageID,
		}
	}
	return map[string]interface{}{
		"CONNECTOR": r.Connector,
		"LINE":      r.Line,
		"MESSAGES":  []interface{}{msg},
	}
}
