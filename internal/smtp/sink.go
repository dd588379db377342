package smtp

import (
	"io"
	"net"
	"strings"
	"sync"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// ReceivedMail Sink 收到的邮件
type ReceivedMail struct {
	From       string
	Recipients []string
	Parsed     *ParsedEmail
	Raw        []byte
	ReceivedAt time.Time
}

// Sink 只接收不转发的 SMTP 服务器，用于本地开发与测试。
//
// 收件人地址不合法返回 501，命中 reject 列表返回 550，其余全部接收并保存在内存中。
type Sink struct {
	mu       sync.Mutex
	received []ReceivedMail
	reject   map[string]bool
	log      *zap.Logger
	server   *gosmtp.Server
}

// NewSink 创建 Sink，reject 中的地址会在 RCPT 阶段被拒绝
func NewSink(log *zap.Logger, reject ...string) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sink{
		reject: make(map[string]bool, len(reject)),
		log:    log,
	}
	for _, addr := range reject {
		s.reject[normalizeAddress(addr)] = true
	}

	server := gosmtp.NewServer(s)
	server.Domain = "localhost"
	server.ReadTimeout = 10 * time.Second
	server.WriteTimeout = 10 * time.Second
	server.MaxMessageBytes = 10 << 20
	server.MaxRecipients = 50
	server.AllowInsecureAuth = true
	s.server = server
	return s
}

// Serve 在监听器上提供服务，直到 Close
func (s *Sink) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Close 关闭服务器
func (s *Sink) Close() error {
	return s.server.Close()
}

// Received 返回已收到邮件的副本
func (s *Sink) Received() []ReceivedMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ReceivedMail, len(s.received))
	copy(out, s.received)
	return out
}

// NewSession 创建新的 SMTP 会话。
func (s *Sink) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	return &session{sink: s}, nil
}

type session struct {
	sink       *Sink
	from       string
	recipients []string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt 处理 RCPT 命令。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)
	if parts := strings.Split(addr, "@"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	if s.sink.reject[addr] {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "recipient mailbox not found",
		}
	}
	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 处理邮件内容。
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, 10<<20))
	if err != nil {
		return err
	}

	parsed, err := ParseEmail(raw)
	if err != nil {
		return err
	}

	s.sink.mu.Lock()
	s.sink.received = append(s.sink.received, ReceivedMail{
		From:       s.from,
		Recipients: append([]string(nil), s.recipients...),
		Parsed:     parsed,
		Raw:        raw,
		ReceivedAt: time.Now().UTC(),
	})
	s.sink.mu.Unlock()

	s.sink.log.Info("mail received",
		zap.String("from", s.from),
		zap.Strings("to", s.recipients),
		zap.String("subject", parsed.Subject),
	)
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.from = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
