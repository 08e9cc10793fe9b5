package wechat

import (
	"fmt"
	"time"
)

// replyTemplate es contrato de wire con WeChat: los nombres de campo
// y el envelope CDATA tienen que reproducirse tal cual.
const replyTemplate = `<xml>
<ToUserName><![CDATA[%s]]></ToUserName>
<FromUserName><![CDATA[%s]]></FromUserName>
<CreateTime>%d</CreateTime>
<MsgType><![CDATA[text]]></MsgType>
<Content><![CDATA[%s]]></Content>
<FuncFlag>0</FuncFlag>
</xml>`

// TextReply arma el envelope de respuesta de texto para un push.
// to/from ya vienen invertidos respecto del evento (se responde al emisor).
func TextReply(to, from, content string) string {
	return fmt.Sprintf(replyTemplate, to, from, time.Now().Unix(), content)
}
