package smtp

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message 待发送的纯文本邮件
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	// Headers 附加的 X- 头，例如通知类型
	Headers map[string]string
	Date    time.Time
}

// Compose 生成 RFC 5322 邮件（UTF-8 纯文本，quoted-printable 编码）
//
// 返回邮件字节与 Message-ID。
func Compose(m Message) ([]byte, string, error) {
	from, err := mail.ParseAddress(m.From)
	if err != nil {
		return nil, "", fmt.Errorf("invalid from address: %w", err)
	}
	to, err := mail.ParseAddress(m.To)
	if err != nil {
		return nil, "", fmt.Errorf("invalid to address: %w", err)
	}

	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(from.Address))

	var buf bytes.Buffer
	writeHeader(&buf, "From", from.String())
	writeHeader(&buf, "To", to.String())
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	writeHeader(&buf, "Date", date.Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", messageID)
	for name, value := range m.Headers {
		if !strings.HasPrefix(name, "X-") {
			continue
		}
		writeHeader(&buf, name, mime.QEncoding.Encode("utf-8", value))
	}
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", `text/plain; charset="utf-8"`)
	writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	body := strings.ReplaceAll(m.Body, "\r\n", "\n")
	if _, err := qp.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n"))); err != nil {
		return nil, "", err
	}
	if err := qp.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), messageID, nil
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	// 头部不允许换行
	value = strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 {
		return address[i+1:]
	}
	return "localhost"
}

// ParsedEmail 表示解析后的邮件内容。
type ParsedEmail struct {
	MessageID string
	Subject   string
	From      string
	To        string
	Text      string
	Headers   mail.Header
}

// ParseEmail 解析单部分纯文本邮件。
func ParseEmail(rawEmail []byte) (*ParsedEmail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(rawEmail))
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}

	parsed := &ParsedEmail{
		MessageID: msg.Header.Get("Message-ID"),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		From:      msg.Header.Get("From"),
		To:        msg.Header.Get("To"),
		Headers:   msg.Header,
	}

	var body io.Reader = msg.Body
	if strings.EqualFold(msg.Header.Get("Content-Transfer-Encoding"), "quoted-printable") {
		body = quotedprintable.NewReader(msg.Body)
	}
	text, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	parsed.Text = strings.ReplaceAll(string(text), "\r\n", "\n")
	return parsed, nil
}

func decodeHeader(value string) string {
	if value == "" {
		return value
	}
	decoder := new(mime.WordDecoder)
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
