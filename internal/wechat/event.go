package wechat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WebhookEvent es la forma canónica de un push entrante.
// Se construye una vez por request y es de solo lectura.
type WebhookEvent struct {
	MsgType    string
	Event      string
	FromUser   string
	ToUser     string
	Ticket     string
	CreateTime int64
}

// ParseEvent convierte el XML plano que empuja WeChat en un WebhookEvent.
// El documento es tag/valor sin anidamiento: cada elemento hijo del root
// se vuelve un campo. Tags desconocidos se ignoran.
// Un documento vacío o malformado retorna un error que envuelve ErrParse.
func ParseEvent(raw []byte) (*WebhookEvent, error) {
	fields, err := parseFlatXML(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	ev := &WebhookEvent{
		MsgType:  fields["MsgType"],
		Event:    fields["Event"],
		FromUser: fields["FromUserName"],
		ToUser:   fields["ToUserName"],
		Ticket:   fields["Ticket"],
	}
	if s := fields["CreateTime"]; s != "" {
		// best-effort: un CreateTime ilegible no invalida el evento
		ev.CreateTime, _ = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	}
	return ev, nil
}

// parseFlatXML recorre los tokens y junta texto solo a profundidad 1
// (hijos directos del root). CDATA llega como CharData normal.
func parseFlatXML(raw []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	fields := make(map[string]string)

	depth := 0
	sawRoot := false
	var tag string
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				sawRoot = true
			}
			if depth == 2 {
				tag = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 2 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				fields[tag] = text.String()
			}
			depth--
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("document has no root element")
	}
	return fields, nil
}
