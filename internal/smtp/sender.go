package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// TLSMode 与中继之间的传输加密方式
type TLSMode string

const (
	TLSNone     TLSMode = "none"     // 明文，仅用于本地中继与 Sink
	TLSStartTLS TLSMode = "starttls" // 明文连接后升级，中继不支持时失败
	TLSImplicit TLSMode = "tls"      // 直接建立 TLS 连接（465 端口）
)

// ParseTLSMode 解析配置中的 TLS 模式
func ParseTLSMode(raw string) (TLSMode, error) {
	switch mode := TLSMode(raw); mode {
	case TLSNone, TLSStartTLS, TLSImplicit:
		return mode, nil
	case "":
		return TLSStartTLS, nil
	default:
		return "", fmt.Errorf("unsupported smtp tls mode: %s", raw)
	}
}

// DialFunc 建立到中继的 TCP 连接，便于测试替换
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Sender 通过 SMTP 中继发送邮件，每封邮件一个会话
type Sender struct {
	addr      string
	username  string
	password  string
	mode      TLSMode
	tlsConfig *tls.Config
	limiter   *ConnectionLimiter
	dial      DialFunc
}

// SenderOption Sender 配置项
type SenderOption func(*Sender)

// WithTLSMode 设置传输加密方式，默认 STARTTLS
func WithTLSMode(mode TLSMode) SenderOption {
	return func(s *Sender) { s.mode = mode }
}

// WithTLSConfig 设置 TLS 配置，默认按中继主机名校验证书
func WithTLSConfig(cfg *tls.Config) SenderOption {
	return func(s *Sender) { s.tlsConfig = cfg }
}

// WithDialer 替换底层拨号函数
func WithDialer(fn DialFunc) SenderOption {
	return func(s *Sender) { s.dial = fn }
}

// NewSender 创建发送器，username 为空时不做认证
func NewSender(addr, username, password string, limiter *ConnectionLimiter, opts ...SenderOption) *Sender {
	s := &Sender{
		addr:     addr,
		username: username,
		password: password,
		mode:     TLSStartTLS,
		limiter:  limiter,
		dial:     (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tlsConfig == nil {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		s.tlsConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return s
}

// Send 发送一封邮件
//
// 会话受 ctx 约束：截止时间同时作用于连接与每条 SMTP 命令，ctx 结束时连接被关闭。
// 连接数配额在会话完全退出后才归还。
func (s *Sender) Send(ctx context.Context, from string, to []string, raw []byte) error {
	if s.limiter != nil {
		release, err := s.limiter.Acquire(ctx)
		if err != nil {
			return err
		}
		defer release()
	}

	conn, err := s.dial(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := s.session(ctx, conn, from, to, raw); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			return context.DeadlineExceeded
		}
		return err
	}
	return nil
}

// session 在已建立的连接上完成握手、认证与投递
func (s *Sender) session(ctx context.Context, conn net.Conn, from string, to []string, raw []byte) error {
	var (
		client *gosmtp.Client
		err    error
	)
	switch s.mode {
	case TLSImplicit:
		client = gosmtp.NewClient(tls.Client(conn, s.tlsConfig))
	case TLSStartTLS:
		client, err = gosmtp.NewClientStartTLS(conn, s.tlsConfig)
		if err != nil {
			return err
		}
	default:
		client = gosmtp.NewClient(conn)
	}
	defer client.Close()

	// go-smtp 每条命令都会重设连接截止时间，这里收紧到 ctx 的剩余时间
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		client.CommandTimeout = min(client.CommandTimeout, remaining)
		client.SubmissionTimeout = min(client.SubmissionTimeout, remaining)
	}

	if s.username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := client.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return err
		}
	}

	if err := client.SendMail(from, to, bytes.NewReader(raw)); err != nil {
		return err
	}
	return client.Quit()
}

// IsRecipientRejected 判断是否为收件人被拒绝：5.1.x、550/553，或地址语法错误（501、5.5.x）
func IsRecipientRejected(err error) bool {
	var smtpErr *gosmtp.SMTPError
	if !errors.As(err, &smtpErr) {
		return false
	}
	if smtpErr.EnhancedCode[0] == 5 && (smtpErr.EnhancedCode[1] == 1 || smtpErr.EnhancedCode[1] == 5) {
		return true
	}
	switch smtpErr.Code {
	case 501, 550, 553:
		return true
	}
	return false
}
